package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apikeys "github.com/abrahamahn/go-apikeys"
)

func newTestApp(t *testing.T) (*App, *mux.Router) {
	t.Helper()
	cfg := &ServerConfig{
		Storage: StorageConfig{Backend: STORAGE_BACKEND_MEMORY, KeyPrefix: "test"},
		Auth: AuthConfig{
			SessionSecret: testSecret,
			SessionIssuer: "test",
			SessionTTL:    time.Minute,
			HashAlgorithm: apikeys.HASH_ALGORITHM_SHA256,
		},
		Metrics: MetricsConfig{Enabled: true, Namespace: "test"},
	}
	logger := zaptest.NewLogger(t)

	app, err := NewApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	router, err := NewRouter(app)
	require.NoError(t, err)
	return app, router
}

func serve(router http.Handler, method, path, authorization, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authorization != "" {
		req.Header.Set(apikeys.HEADER_AUTHORIZATION, authorization)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	app, router := newTestApp(t)

	rec := serve(router, http.MethodGet, apikeys.PATH_HEALTH, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, app.Manager.Version, rec.Header().Get(apikeys.HEADER_APP_VERSION))

	rec = serve(router, http.MethodGet, apikeys.PATH_METRICS, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_KeyManagementNeedsSession(t *testing.T) {
	_, router := newTestApp(t)

	rec := serve(router, http.MethodGet, apikeys.PATH_API_KEYS, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(router, http.MethodGet, "/api/whoami", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_IssueAndUseKey(t *testing.T) {
	app, router := newTestApp(t)

	token, err := app.Sessions.IssueSessionToken("user-1")
	require.NoError(t, err)
	session := apikeys.AUTH_SCHEME_BEARER + " " + token

	rec := serve(router, http.MethodPost, apikeys.PATH_API_KEYS_CREATE, session, `{"name":"cli","scopes":["profile:read"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created apikeys.CreateAPIKeyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = serve(router, http.MethodGet, "/api/whoami", apikeys.AUTH_SCHEME_BEARER+" "+created.Plaintext, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var authCtx apikeys.AuthorizationContext
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &authCtx))
	assert.Equal(t, "user-1", authCtx.UserID)
	assert.Equal(t, created.APIKey.ID, authCtx.KeyID)
}
