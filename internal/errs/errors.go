// Package errs contains sentinel errors shared by the store, onboarding, app and api layers,
// plus the error type used for upstream vendor failures.
package errs

import (
	"errors"
	"fmt"
)

// DefaultVendorMessage is returned to callers when a vendor gives no usable detail.
const DefaultVendorMessage = "Something went wrong please try again later."

var (
	// ErrNotFound indicates the requested user or linkage record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the user is unknown to the directory or blocked.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadyExists indicates a record that must be unique is already present.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates a request that failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition indicates a step that is not part of the provider flow.
	ErrInvalidTransition = errors.New("invalid onboarding transition")

	// ErrAccountMissing indicates a post-creation step attempted before the external account exists.
	ErrAccountMissing = errors.New("external account has not been created")

	// ErrLockNotObtained indicates another request holds the onboarding lock for this identity.
	ErrLockNotObtained = errors.New("onboarding already in progress")

	// ErrDecrypt indicates a ciphertext could not be authenticated with the configured key.
	ErrDecrypt = errors.New("decrypt failed")
)

// VendorError is returned by provider clients when the upstream API rejects a call.
type VendorError struct {
	Vendor string
	Status int
	Detail string
}

func (e *VendorError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s API request failed with status %d", e.Vendor, e.Status)
	}
	return fmt.Sprintf("%s API request failed with status %d: %s", e.Vendor, e.Status, e.Detail)
}

// Message is the text safe to return to the app.
func (e *VendorError) Message() string {
	if e.Detail == "" {
		return DefaultVendorMessage
	}
	return e.Detail
}

// AsVendorError unwraps err into a *VendorError when one is present in the chain.
func AsVendorError(err error) (*VendorError, bool) {
	var ve *VendorError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
