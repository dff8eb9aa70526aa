package apikeys

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// GorillaMuxFramework implements HTTPFramework for net/http and gorilla/mux.
// r is a *http.Request and w an http.ResponseWriter.
type GorillaMuxFramework struct{}

func (g *GorillaMuxFramework) GetRequestHeader(r interface{}, key string) string {
	return r.(*http.Request).Header.Get(key)
}

func (g *GorillaMuxFramework) GetRequestParam(r interface{}, key string) string {
	return mux.Vars(r.(*http.Request))[key]
}

func (g *GorillaMuxFramework) GetRequestPath(r interface{}) string {
	return r.(*http.Request).URL.Path
}

func (g *GorillaMuxFramework) GetRequestMethod(r interface{}) string {
	return r.(*http.Request).Method
}

func (g *GorillaMuxFramework) GetRequestContext(r interface{}) context.Context {
	return r.(*http.Request).Context()
}

func (g *GorillaMuxFramework) SetRequestContext(r interface{}, ctx context.Context) {
	req := r.(*http.Request)
	*req = *req.WithContext(ctx)
}

func (g *GorillaMuxFramework) ReadBody(r interface{}) ([]byte, error) {
	req := r.(*http.Request)
	if req.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, MAX_REQUEST_BODY+1))
	if err != nil {
		return nil, ErrInvalidJSON
	}
	if len(body) > MAX_REQUEST_BODY {
		return nil, ErrRequestBodyTooLarge
	}
	return body, nil
}

func (g *GorillaMuxFramework) SetResponseHeader(w interface{}, key, value string) {
	w.(http.ResponseWriter).Header().Set(key, value)
}

func (g *GorillaMuxFramework) WriteJSON(w interface{}, status int, body interface{}) error {
	rw := w.(http.ResponseWriter)
	rw.Header().Set(HEADER_CONTENT_TYPE, CONTENT_TYPE_JSON)
	rw.WriteHeader(status)
	if body == nil {
		return nil
	}
	return json.NewEncoder(rw).Encode(body)
}

// RegisterRoutes mounts the key management routes on router. Every route
// requires a primary session; an API key alone is rejected with 401.
// GET /version is mounted without authentication.
func RegisterRoutes(router *mux.Router, handlers *HandlerCore, sessions *SessionGuard) {
	framework := &GorillaMuxFramework{}

	router.HandleFunc(PATH_VERSION, func(w http.ResponseWriter, r *http.Request) {
		writeResult(framework, w, handlers.HandleVersion())
	}).Methods(http.MethodGet)

	sub := router.NewRoute().Subrouter()
	sub.Use(sessions.RequirePrimarySession)

	sub.HandleFunc(PATH_API_KEYS_CREATE, func(w http.ResponseWriter, r *http.Request) {
		body, err := framework.ReadBody(r)
		if err != nil {
			writeError(framework, w, err)
			return
		}
		writeResult(framework, w, handlers.HandleCreateAPIKey(r.Context(), sessionUserID(r.Context()), body))
	}).Methods(http.MethodPost)

	sub.HandleFunc(PATH_API_KEYS, func(w http.ResponseWriter, r *http.Request) {
		writeResult(framework, w, handlers.HandleListAPIKeys(r.Context(), sessionUserID(r.Context())))
	}).Methods(http.MethodGet)

	sub.HandleFunc(PATH_API_KEY_REVOKE, func(w http.ResponseWriter, r *http.Request) {
		keyID := framework.GetRequestParam(r, PATH_VAR_KEY_ID)
		writeResult(framework, w, handlers.HandleRevokeAPIKey(r.Context(), sessionUserID(r.Context()), keyID))
	}).Methods(http.MethodPost)

	sub.HandleFunc(PATH_API_KEY_ID, func(w http.ResponseWriter, r *http.Request) {
		keyID := framework.GetRequestParam(r, PATH_VAR_KEY_ID)
		writeResult(framework, w, handlers.HandleGetAPIKey(r.Context(), sessionUserID(r.Context()), keyID))
	}).Methods(http.MethodGet)

	sub.HandleFunc(PATH_API_KEY_ID, func(w http.ResponseWriter, r *http.Request) {
		keyID := framework.GetRequestParam(r, PATH_VAR_KEY_ID)
		writeResult(framework, w, handlers.HandleDeleteAPIKey(r.Context(), sessionUserID(r.Context()), keyID))
	}).Methods(http.MethodDelete)

	handlers.logger.Info(LOG_MSG_ROUTES_REGISTERED, zap.String(LOG_FIELD_PATH, PATH_API_KEYS))
}

func writeResult(framework HTTPFramework, w interface{}, result *HandlerResult) {
	_ = framework.WriteJSON(w, result.StatusCode, result.Body())
}

// sessionUserID is empty when no session is attached; the service rejects an
// empty user id.
func sessionUserID(ctx context.Context) string {
	if session := SessionFromContext(ctx); session != nil {
		return session.UserID
	}
	return ""
}
