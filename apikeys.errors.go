// Package apikeys provides API key issuance, authentication and scope authorization middleware.
//
// This file defines the sentinel errors, their HTTP mapping and the JSON error body.
// Contextual errors are built with go-cuserr.
package apikeys

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/itsatony/go-cuserr"
)

// Sentinel errors. Domain errors wrap one of these so callers can classify
// them with errors.Is.
var (
	// ErrNotFound indicates a resource was not found (404)
	ErrNotFound = cuserr.ErrNotFound

	// ErrInvalidInput indicates invalid input data (400)
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failure (401)
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates authorization failure (403)
	ErrForbidden = errors.New("forbidden")

	// ErrInternal indicates an internal error (500)
	ErrInternal = errors.New("internal error")

	// ErrRateLimit indicates rate limit exceeded (429)
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrInvalidConfiguration indicates configuration error
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Domain-specific sentinel errors
var (
	// Authentication. Missing, malformed, unknown and revoked keys all share
	// ErrInvalidAPIKey so callers cannot probe which case applied.
	ErrInvalidAPIKey = fmt.Errorf("%w: %s", ErrUnauthorized, ERROR_INVALID_API_KEY)
	ErrAPIKeyExpired = fmt.Errorf("%w: %s", ErrUnauthorized, ERROR_API_KEY_EXPIRED)

	// ErrAPIKeyNotFound covers both a missing key and a key owned by someone else.
	ErrAPIKeyNotFound = fmt.Errorf("%w: %s", ErrNotFound, ERROR_API_KEY_NOT_FOUND)

	// Authorization
	ErrInsufficientScope = fmt.Errorf("%w: %s", ErrForbidden, ERROR_INSUFFICIENT_SCOPE)
	ErrSessionRequired   = fmt.Errorf("%w: %s", ErrUnauthorized, ERROR_SESSION_REQUIRED)
	ErrInvalidSession    = fmt.Errorf("%w: %s", ErrUnauthorized, ERROR_INVALID_SESSION)

	// Persistence
	ErrFailedToCreateAPIKey = fmt.Errorf("%w: %s", ErrInternal, ERROR_FAILED_TO_CREATE_API_KEY)
	ErrFailedToRevokeAPIKey = fmt.Errorf("%w: %s", ErrInternal, ERROR_FAILED_TO_REVOKE_API_KEY)
	ErrFailedToDeleteAPIKey = fmt.Errorf("%w: %s", ErrInternal, ERROR_FAILED_TO_DELETE_API_KEY)
	ErrFailedToListAPIKeys  = fmt.Errorf("%w: %s", ErrInternal, ERROR_FAILED_TO_LIST_API_KEYS)
	ErrFailedToLookupAPIKey = fmt.Errorf("%w: %s", ErrInternal, ERROR_FAILED_TO_LOOKUP_API_KEY)
	ErrFailedToGenerateKey  = fmt.Errorf("%w: %s", ErrInternal, ERROR_FAILED_TO_GENERATE_KEY)

	// Rate limiting
	ErrRateLimitExceeded      = fmt.Errorf("%w: %s", ErrRateLimit, ERROR_RATE_LIMIT_EXCEEDED)
	ErrFailedToCheckRateLimit = fmt.Errorf("%w: %s", ErrInternal, ERROR_FAILED_TO_CHECK_RATE)

	// Request parsing
	ErrInvalidJSON         = fmt.Errorf("%w: %s", ErrInvalidInput, ERROR_INVALID_JSON)
	ErrRequestBodyTooLarge = fmt.Errorf("%w: %s", ErrInvalidInput, ERROR_REQUEST_BODY_TOO_LARGE)

	// Input
	ErrMissingUserID = fmt.Errorf("%w: %s", ErrInvalidInput, ERROR_MISSING_USER_ID)
	ErrMissingKeyID  = fmt.Errorf("%w: %s", ErrInvalidInput, ERROR_MISSING_KEY_ID)

	// Configuration
	ErrRepositoryRequired  = fmt.Errorf("%w: %s", ErrInvalidConfiguration, ERROR_REPOSITORY_REQUIRED)
	ErrServiceRequired     = fmt.Errorf("%w: %s", ErrInvalidConfiguration, ERROR_SERVICE_REQUIRED)
	ErrSessionAuthRequired = fmt.Errorf("%w: %s", ErrInvalidConfiguration, ERROR_SESSION_AUTH_REQUIRED)
	ErrSecretRequired      = fmt.Errorf("%w: %s", ErrInvalidConfiguration, ERROR_SECRET_REQUIRED)
	ErrUnsupportedHash     = fmt.Errorf("%w: %s", ErrInvalidConfiguration, ERROR_UNSUPPORTED_HASH)
)

// Error checking helpers (compatible with errors.Is)
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func IsUnauthorizedError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrForbidden)
}

func IsInternalError(err error) bool {
	return errors.Is(err, ErrInternal)
}

func IsRateLimitError(err error) bool {
	return errors.Is(err, ErrRateLimit)
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}

// NewValidationError creates a validation error with field context using go-cuserr
func NewValidationError(field, message string) error {
	return cuserr.NewValidationError(field, message)
}

// NewInternalError creates an internal error with component context using go-cuserr
func NewInternalError(component string, cause error) error {
	return cuserr.NewInternalError(component, cause)
}

// wrapInternal keeps the sentinel reachable through errors.Is while carrying
// the go-cuserr context of the failing component.
func wrapInternal(sentinel error, component string, cause error) error {
	return fmt.Errorf("%w: %w", sentinel, NewInternalError(component, cause))
}

// ErrorToHTTPStatus maps errors to HTTP status codes.
// Anything unclassified is a 500 so unknown failures never grant access.
func ErrorToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var validationErrs *ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimit):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ErrorToCode maps errors to the machine readable code of the response body.
func ErrorToCode(err error) string {
	var validationErrs *ValidationErrors
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErrs):
		return CODE_VALIDATION_FAILED
	case errors.Is(err, ErrInvalidJSON):
		return CODE_INVALID_JSON
	case errors.Is(err, ErrAPIKeyExpired):
		return CODE_API_KEY_EXPIRED
	case errors.Is(err, ErrSessionRequired), errors.Is(err, ErrInvalidSession):
		return CODE_SESSION_REQUIRED
	case errors.Is(err, ErrInsufficientScope):
		return CODE_INSUFFICIENT_SCOPE
	case errors.Is(err, ErrUnauthorized):
		return CODE_INVALID_API_KEY
	case errors.Is(err, ErrNotFound):
		return CODE_NOT_FOUND
	case errors.Is(err, ErrRateLimit):
		return CODE_RATE_LIMIT_EXCEEDED
	case errors.Is(err, ErrInvalidInput):
		return CODE_VALIDATION_FAILED
	default:
		return CODE_INTERNAL
	}
}

// ErrorToMessage extracts a user-safe error message.
// Internal errors never leak their cause.
func ErrorToMessage(err error) string {
	if err == nil {
		return HTTP_MSG_OK
	}

	var validationErrs *ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		return validationErrs.Error()
	case errors.Is(err, ErrAPIKeyExpired):
		return ERROR_API_KEY_EXPIRED
	case errors.Is(err, ErrInvalidAPIKey):
		return ERROR_INVALID_API_KEY
	case errors.Is(err, ErrAPIKeyNotFound):
		return ERROR_API_KEY_NOT_FOUND
	case errors.Is(err, ErrSessionRequired), errors.Is(err, ErrInvalidSession):
		return ERROR_SESSION_REQUIRED
	case errors.Is(err, ErrRateLimitExceeded):
		return ERROR_RATE_LIMIT_EXCEEDED
	case errors.Is(err, ErrInvalidJSON):
		return ERROR_INVALID_JSON
	case errors.Is(err, ErrRequestBodyTooLarge):
		return ERROR_REQUEST_BODY_TOO_LARGE
	case ErrorToHTTPStatus(err) >= http.StatusInternalServerError:
		return HTTP_MSG_INTERNAL_ERROR
	default:
		return err.Error()
	}
}

// ErrorResponse is the JSON body of every error answered by this package.
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewErrorResponse creates a standardized error response
func NewErrorResponse(err error) *ErrorResponse {
	if err == nil {
		return nil
	}

	resp := &ErrorResponse{
		Code:    ErrorToCode(err),
		Message: ErrorToMessage(err),
	}

	var validationErrs *ValidationErrors
	if errors.As(err, &validationErrs) {
		resp.Details = map[string]interface{}{
			RESPONSE_KEY_FIELDS: validationErrs.Errors,
		}
	}

	return resp
}

// NewErrorResponseWithDetails creates an error response with additional details
func NewErrorResponseWithDetails(err error, details map[string]interface{}) *ErrorResponse {
	resp := NewErrorResponse(err)
	if resp == nil {
		return nil
	}
	resp.Details = details
	return resp
}

// newInsufficientScopeResponse names the missing scope in a human message.
func newInsufficientScopeResponse(required Scope) *ErrorResponse {
	return &ErrorResponse{
		Code:    CODE_INSUFFICIENT_SCOPE,
		Message: fmt.Sprintf(ERROR_INSUFFICIENT_SCOPE_FMT, required),
		Details: map[string]interface{}{
			RESPONSE_KEY_SCOPE: string(required),
		},
	}
}
