// Package apikeys provides API key issuance, authentication and scope authorization middleware.
//
// This file contains framework-agnostic handler core logic.
// Handlers delegate to the service and return structured results; the
// framework adapters only translate them to responses.
package apikeys

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// HandlerResult represents a framework-agnostic handler response
type HandlerResult struct {
	StatusCode int
	Data       interface{}
	Error      *ErrorResponse
}

// Body returns what is serialized as the response body.
func (r *HandlerResult) Body() interface{} {
	if r.Error != nil {
		return r.Error
	}
	return r.Data
}

// NewSuccessResult creates a success result
func NewSuccessResult(statusCode int, data interface{}) *HandlerResult {
	return &HandlerResult{
		StatusCode: statusCode,
		Data:       data,
	}
}

// NewErrorResult creates an error result from err
func NewErrorResult(err error) *HandlerResult {
	return &HandlerResult{
		StatusCode: ErrorToHTTPStatus(err),
		Error:      NewErrorResponse(err),
	}
}

// HandlerCore contains framework-agnostic handler logic for the
// /users/me/api-keys routes. userID always comes from the primary session.
type HandlerCore struct {
	service *APIKeyService
	logger  *zap.Logger
}

// NewHandlerCore creates a new handler core
func NewHandlerCore(service *APIKeyService, logger *zap.Logger) (*HandlerCore, error) {
	if service == nil {
		return nil, ErrServiceRequired
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HandlerCore{
		service: service,
		logger:  logger.Named(CLASS_HANDLERS),
	}, nil
}

// HandleCreateAPIKey handles POST /users/me/api-keys/create
func (h *HandlerCore) HandleCreateAPIKey(ctx context.Context, userID string, requestBody []byte) *HandlerResult {
	opts, err := ParseCreateAPIKeyRequest(requestBody)
	if err != nil {
		h.logger.Info(LOG_MSG_VALIDATION_FAILED,
			zap.String(LOG_FIELD_USER_ID, userID),
			zap.Error(err))
		return NewErrorResult(err)
	}

	result, err := h.service.CreateAPIKey(ctx, userID, *opts)
	if err != nil {
		return h.failure(userID, OPERATION_CREATE_APIKEY, err)
	}

	return NewSuccessResult(http.StatusCreated, result)
}

// HandleListAPIKeys handles GET /users/me/api-keys
func (h *HandlerCore) HandleListAPIKeys(ctx context.Context, userID string) *HandlerResult {
	keys, err := h.service.ListAPIKeys(ctx, userID)
	if err != nil {
		return h.failure(userID, OPERATION_LIST_APIKEYS, err)
	}
	return NewSuccessResult(http.StatusOK, map[string]interface{}{RESPONSE_KEY_API_KEYS: keys})
}

// HandleGetAPIKey handles GET /users/me/api-keys/{id}
func (h *HandlerCore) HandleGetAPIKey(ctx context.Context, userID, keyID string) *HandlerResult {
	key, err := h.service.GetAPIKey(ctx, userID, keyID)
	if err != nil {
		return h.failure(userID, OPERATION_GET_APIKEY, err)
	}
	return NewSuccessResult(http.StatusOK, map[string]interface{}{RESPONSE_KEY_API_KEY: key})
}

// HandleRevokeAPIKey handles POST /users/me/api-keys/{id}/revoke
func (h *HandlerCore) HandleRevokeAPIKey(ctx context.Context, userID, keyID string) *HandlerResult {
	key, err := h.service.RevokeAPIKey(ctx, userID, keyID)
	if err != nil {
		return h.failure(userID, OPERATION_REVOKE_APIKEY, err)
	}
	return NewSuccessResult(http.StatusOK, map[string]interface{}{RESPONSE_KEY_API_KEY: key})
}

// HandleDeleteAPIKey handles DELETE /users/me/api-keys/{id}
func (h *HandlerCore) HandleDeleteAPIKey(ctx context.Context, userID, keyID string) *HandlerResult {
	deleted, err := h.service.DeleteAPIKey(ctx, userID, keyID)
	if err != nil {
		return h.failure(userID, OPERATION_DELETE_APIKEY, err)
	}
	return NewSuccessResult(http.StatusOK, map[string]interface{}{RESPONSE_KEY_DELETED: deleted})
}

// HandleVersion handles GET /version
func (h *HandlerCore) HandleVersion() *HandlerResult {
	return NewSuccessResult(http.StatusOK, GetVersionInfo())
}

func (h *HandlerCore) failure(userID, operation string, err error) *HandlerResult {
	result := NewErrorResult(err)
	if result.StatusCode >= http.StatusInternalServerError {
		h.logger.Error(HTTP_MSG_INTERNAL_ERROR,
			zap.String(LOG_FIELD_USER_ID, userID),
			zap.String("operation", operation),
			zap.Error(err))
	}
	return result
}
