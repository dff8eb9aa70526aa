package apikeys

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Error Classification Tests
// =============================================================================

func TestErrorToHTTPStatus(t *testing.T) {
	verrs := &ValidationErrors{}
	verrs.Add("name", "is required")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation errors", verrs, http.StatusBadRequest},
		{"invalid json", ErrInvalidJSON, http.StatusBadRequest},
		{"missing user", ErrMissingUserID, http.StatusBadRequest},
		{"invalid key", ErrInvalidAPIKey, http.StatusUnauthorized},
		{"expired key", ErrAPIKeyExpired, http.StatusUnauthorized},
		{"session required", ErrSessionRequired, http.StatusUnauthorized},
		{"insufficient scope", ErrInsufficientScope, http.StatusForbidden},
		{"not found", ErrAPIKeyNotFound, http.StatusNotFound},
		{"rate limited", ErrRateLimitExceeded, http.StatusTooManyRequests},
		{"wrapped internal", wrapInternal(ErrFailedToLookupAPIKey, "test", errInjected), http.StatusInternalServerError},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorToHTTPStatus(tt.err))
		})
	}
}

func TestErrorToCode(t *testing.T) {
	assert.Equal(t, "", ErrorToCode(nil))
	assert.Equal(t, CODE_INVALID_API_KEY, ErrorToCode(ErrInvalidAPIKey))
	assert.Equal(t, CODE_API_KEY_EXPIRED, ErrorToCode(ErrAPIKeyExpired))
	assert.Equal(t, CODE_SESSION_REQUIRED, ErrorToCode(ErrInvalidSession))
	assert.Equal(t, CODE_INSUFFICIENT_SCOPE, ErrorToCode(ErrInsufficientScope))
	assert.Equal(t, CODE_NOT_FOUND, ErrorToCode(ErrAPIKeyNotFound))
	assert.Equal(t, CODE_RATE_LIMIT_EXCEEDED, ErrorToCode(ErrRateLimitExceeded))
	assert.Equal(t, CODE_INVALID_JSON, ErrorToCode(ErrInvalidJSON))
	assert.Equal(t, CODE_VALIDATION_FAILED, ErrorToCode(ErrMissingKeyID))
	assert.Equal(t, CODE_INTERNAL, ErrorToCode(errors.New("boom")))
}

func TestErrorToMessage(t *testing.T) {
	t.Run("authentication messages", func(t *testing.T) {
		assert.Equal(t, "Invalid API key", ErrorToMessage(ErrInvalidAPIKey))
		assert.Equal(t, "API key has expired", ErrorToMessage(ErrAPIKeyExpired))
	})

	t.Run("internal causes never leak", func(t *testing.T) {
		err := wrapInternal(ErrFailedToLookupAPIKey, "service_authenticate", errors.New("dial tcp 10.0.0.5:5432: connection refused"))
		assert.Equal(t, HTTP_MSG_INTERNAL_ERROR, ErrorToMessage(err))
	})

	t.Run("nil", func(t *testing.T) {
		assert.Equal(t, HTTP_MSG_OK, ErrorToMessage(nil))
	})
}

func TestWrapInternal(t *testing.T) {
	cause := errors.New("connection reset")
	err := wrapInternal(ErrFailedToRevokeAPIKey, "service_revoke", cause)

	assert.ErrorIs(t, err, ErrFailedToRevokeAPIKey)
	assert.ErrorIs(t, err, ErrInternal)
	assert.True(t, IsInternalError(err))
	assert.False(t, IsUnauthorizedError(err))
}

func TestSentinelHierarchy(t *testing.T) {
	assert.True(t, IsUnauthorizedError(ErrInvalidAPIKey))
	assert.True(t, IsUnauthorizedError(ErrAPIKeyExpired))
	assert.False(t, errors.Is(ErrAPIKeyExpired, ErrInvalidAPIKey))
	assert.True(t, IsForbiddenError(ErrInsufficientScope))
	assert.True(t, IsNotFoundError(ErrAPIKeyNotFound))
	assert.True(t, IsRateLimitError(ErrRateLimitExceeded))
	assert.True(t, IsConfigurationError(ErrRepositoryRequired))
	assert.True(t, IsInvalidInputError(fmt.Errorf("context: %w", ErrMissingKeyID)))
}

// =============================================================================
// Error Response Tests
// =============================================================================

func TestNewErrorResponse(t *testing.T) {
	assert.Nil(t, NewErrorResponse(nil))

	t.Run("validation details list the fields", func(t *testing.T) {
		verrs := &ValidationErrors{}
		verrs.Add("name", "is required")

		resp := NewErrorResponse(verrs)
		require.NotNil(t, resp)
		assert.Equal(t, CODE_VALIDATION_FAILED, resp.Code)
		fields, ok := resp.Details[RESPONSE_KEY_FIELDS].([]ValidationError)
		require.True(t, ok)
		assert.Equal(t, "name", fields[0].Field)
	})

	t.Run("insufficient scope names the scope", func(t *testing.T) {
		resp := newInsufficientScopeResponse("write")
		assert.Equal(t, CODE_INSUFFICIENT_SCOPE, resp.Code)
		assert.Equal(t, "API key lacks required scope 'write'", resp.Message)
		assert.Equal(t, "write", resp.Details[RESPONSE_KEY_SCOPE])
	})

	t.Run("custom details", func(t *testing.T) {
		resp := NewErrorResponseWithDetails(ErrAPIKeyNotFound, map[string]interface{}{"id": "k1"})
		assert.Equal(t, "k1", resp.Details["id"])
		assert.Nil(t, NewErrorResponseWithDetails(nil, nil))
	})
}
