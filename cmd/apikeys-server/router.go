package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	apikeys "github.com/abrahamahn/go-apikeys"
)

const (
	PATH_API_PREFIX = "/api"
	PATH_WHOAMI     = "/whoami"

	SCOPE_PROFILE_READ apikeys.Scope = "profile:read"
)

// NewRouter mounts health, metrics, key management and the API-key protected
// example API.
func NewRouter(app *App) (*mux.Router, error) {
	router := mux.NewRouter()
	router.Use(versionHeader(app.Manager.Version))

	router.HandleFunc(apikeys.PATH_HEALTH, app.handleHealth).Methods(http.MethodGet)
	if app.Metrics != nil {
		router.Handle(apikeys.PATH_METRICS, app.Metrics.Handler()).Methods(http.MethodGet)
	}

	if err := app.Manager.RegisterRoutes(router); err != nil {
		return nil, err
	}

	api := router.PathPrefix(PATH_API_PREFIX).Subrouter()
	api.Use(app.Manager.Middleware)
	api.Handle(PATH_WHOAMI, app.Manager.RequireScope(SCOPE_PROFILE_READ)(http.HandlerFunc(handleWhoAmI))).Methods(http.MethodGet)

	return router, nil
}

func versionHeader(version string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(apikeys.HEADER_APP_VERSION, version)
			next.ServeHTTP(w, r)
		})
	}
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{"status": "ok"}
	if err := a.Storage.Ping(r.Context()); err != nil {
		a.Logger.Warn("Health check failed", zap.Error(err))
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
	}
	writeJSON(w, status, body)
}

func handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apikeys.AuthorizationFromContext(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set(apikeys.HEADER_CONTENT_TYPE, apikeys.CONTENT_TYPE_JSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
