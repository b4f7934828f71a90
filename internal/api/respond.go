package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kash/onboarding-service/internal/errs"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies; KYC uploads arrive base64 encoded.
const maxBodyBytes = 25 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// limitBody caps r.Body; reads past the cap fail with *http.MaxBytesError.
func limitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
}

// writeBodyError answers 413 for oversize bodies and 400 with message otherwise.
func writeBodyError(w http.ResponseWriter, err error, message string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, message)
}

// validationErrors maps each failing field to the tag it failed.
func validationErrors(err error) map[string]string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// bind decodes the JSON body into dst and validates it. It writes a 400 (413 for an
// oversize body) and returns false when either step fails.
func bind(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	limitBody(w, r)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBodyError(w, err, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		if fields := validationErrors(err); fields != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Validation failed", Fields: fields})
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// statusFor maps a service error to the HTTP status and message returned to the app.
func statusFor(err error) (int, string) {
	if ve, ok := errs.AsVendorError(err); ok {
		if ve.Status >= 400 && ve.Status < 500 {
			return http.StatusBadRequest, ve.Message()
		}
		return http.StatusInternalServerError, ve.Message()
	}
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, errs.ErrInvalidInput),
		errors.Is(err, errs.ErrInvalidTransition),
		errors.Is(err, errs.ErrAccountMissing):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errs.ErrAlreadyExists),
		errors.Is(err, errs.ErrLockNotObtained):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		log.Debug("request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, message)
}
