// Package apikeys provides API key issuance, authentication and scope authorization middleware.
//
// This file contains input validation. Struct rules are declared with
// go-playground/validator tags and reported as field-level ValidationErrors.
package apikeys

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// validate is safe for concurrent use and caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidationErrors represents a collection of validation errors.
// It is returned so callers see every invalid field at once.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	if len(v.Errors) == 1 {
		return fmt.Sprintf("validation failed: %s %s", v.Errors[0].Field, v.Errors[0].Message)
	}
	return fmt.Sprintf("validation failed: %d errors", len(v.Errors))
}

// Add adds a validation error to the collection.
func (v *ValidationErrors) Add(field, message string) {
	v.Errors = append(v.Errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// Merge appends every error of other.
func (v *ValidationErrors) Merge(other *ValidationErrors) {
	if other == nil {
		return
	}
	v.Errors = append(v.Errors, other.Errors...)
}

// HasErrors returns true if there are any validation errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// ToError returns the ValidationErrors as an error if there are errors, nil otherwise.
func (v *ValidationErrors) ToError() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}

// Unwrap lets errors.Is recognize ValidationErrors as ErrInvalidInput.
func (v *ValidationErrors) Unwrap() error {
	return ErrInvalidInput
}

// CreateAPIKeyRequest is the JSON body of the create endpoint.
// Scopes stay raw strings here; ParseCreateAPIKeyRequest turns them into Scopes.
type CreateAPIKeyRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	TenantID  *string    `json:"tenantId,omitempty"`
}

// ParseCreateAPIKeyRequest decodes and validates a create request body.
// Type mismatches (e.g. scopes sent as a string) are reported against their
// field. Everything returned is ready for APIKeyService.CreateAPIKey.
func ParseCreateAPIKeyRequest(body []byte) (*CreateAPIKeyOptions, error) {
	var req CreateAPIKeyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			errs := &ValidationErrors{}
			field := typeErr.Field
			if field == "" {
				field = JSON_FIELD_BODY
			}
			errs.Add(field, fmt.Sprintf("must be of type %s", typeErr.Type.String()))
			return nil, errs
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	errs := &ValidationErrors{}
	scopes, err := ParseScopes(req.Scopes)
	if err != nil {
		var scopeErrs *ValidationErrors
		if errors.As(err, &scopeErrs) {
			errs.Merge(scopeErrs)
		} else {
			return nil, err
		}
	}

	opts := &CreateAPIKeyOptions{
		Name:      req.Name,
		Scopes:    scopes,
		TenantID:  req.TenantID,
		ExpiresAt: req.ExpiresAt,
	}
	SanitizeCreateOptions(opts)

	if err := ValidateCreateOptions(opts); err != nil {
		var optErrs *ValidationErrors
		if errors.As(err, &optErrs) {
			errs.Merge(optErrs)
		} else {
			return nil, err
		}
	}

	if errs.HasErrors() {
		return nil, errs
	}
	return opts, nil
}

// SanitizeCreateOptions trims whitespace from free-text fields.
// A blank tenant id becomes nil.
func SanitizeCreateOptions(opts *CreateAPIKeyOptions) {
	if opts == nil {
		return
	}
	opts.Name = strings.TrimSpace(opts.Name)
	if opts.TenantID != nil {
		tenantID := strings.TrimSpace(*opts.TenantID)
		if tenantID == "" {
			opts.TenantID = nil
		} else {
			opts.TenantID = &tenantID
		}
	}
}

// ValidateCreateOptions checks name and tenant id. Scopes are not looked at:
// the Scopes type was validated when it was parsed.
func ValidateCreateOptions(opts *CreateAPIKeyOptions) error {
	if opts == nil {
		return NewValidationError("options", "cannot be nil")
	}
	return toValidationErrors(validate.Struct(opts))
}

// ValidateUserID validates the acting user id.
func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrMissingUserID
	}
	if len(userID) > MAX_USER_ID_LENGTH {
		errs := &ValidationErrors{}
		errs.Add(JSON_FIELD_USER_ID, fmt.Sprintf("must be at most %d characters", MAX_USER_ID_LENGTH))
		return errs
	}
	return nil
}

// toValidationErrors converts validator output into field-level errors.
func toValidationErrors(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return NewValidationError("input", err.Error())
	}

	errs := &ValidationErrors{}
	for _, fe := range fieldErrs {
		errs.Add(fe.Field(), validationMessage(fe))
	}
	return errs.ToError()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
