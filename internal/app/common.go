/**
 * @description
 * Helpers shared by the provider services: the main-user guard, base64 file decoding
 * for KYC uploads and phone number normalization.
 *
 * @dependencies
 * - github.com/ttacon/libphonenumber: E.164 normalization of vendor phone numbers.
 */
package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"github.com/ttacon/libphonenumber"
)

// UserDirectory reads the user profiles owned by the upstream auth system.
type UserDirectory interface {
	GetByIdentity(ctx context.Context, identity string) (*domain.User, error)
}

// requireMainUser rejects identities that are unknown or blocked.
func requireMainUser(ctx context.Context, users UserDirectory, identity string) (*domain.User, error) {
	user, err := users.GetByIdentity(ctx, identity)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrForbidden
	}
	if err != nil {
		return nil, err
	}
	if user.Blocked {
		return nil, errs.ErrForbidden
	}
	return user, nil
}

// FileUpload is one base64 encoded file sent by the app.
type FileUpload struct {
	Label    string `json:"label"`
	File     string `json:"file" validate:"required"`
	FileType string `json:"fileType" validate:"required_without=FileName"`
	FileName string `json:"fileName" validate:"required_without=FileType"`
}

var dataURLPrefix = regexp.MustCompile(`^data:.*,`)

// decodeFile strips an optional data URL prefix and decodes the base64 payload.
func decodeFile(encoded string) ([]byte, error) {
	raw := dataURLPrefix.ReplaceAllString(encoded, "")
	content, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: file is not valid base64: %v", errs.ErrInvalidInput, err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: file is empty", errs.ErrInvalidInput)
	}
	return content, nil
}

// uploadName names an upload <uuid>.<ext>. ext is the subtype of the MIME type, or the
// extension of the client file name when no type was sent.
func uploadName(f FileUpload) string {
	var ext string
	if f.FileType != "" {
		parts := strings.Split(f.FileType, "/")
		ext = parts[len(parts)-1]
	} else {
		parts := strings.Split(f.FileName, ".")
		ext = parts[len(parts)-1]
	}
	return uuid.NewString() + "." + ext
}

// normalizePhone formats number as E.164, parsing it relative to region when it has no
// country prefix.
func normalizePhone(number, region string) (string, error) {
	if region == "" {
		region = "US"
	}
	p, err := libphonenumber.Parse(number, strings.ToUpper(region))
	if err != nil {
		return "", fmt.Errorf("%w: phone number %q: %v", errs.ErrInvalidInput, number, err)
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", fmt.Errorf("%w: phone number %q is not valid", errs.ErrInvalidInput, number)
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}
