package apikeys

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fiberFixture struct {
	*serviceFixture
	sessions *JWTSessionAuthenticator
	app      *fiber.App
}

func newFiberFixture(t *testing.T) *fiberFixture {
	t.Helper()
	f := newServiceFixture(t, nil)
	sessions := newTestSessions(t)
	guard, err := NewSessionGuard(sessions, zaptest.NewLogger(t))
	require.NoError(t, err)
	handlers, err := NewHandlerCore(f.service, zaptest.NewLogger(t))
	require.NoError(t, err)
	authn, err := NewAuthenticator(f.service, zaptest.NewLogger(t), f.service.obs, nil)
	require.NoError(t, err)

	app := fiber.New()
	RegisterFiberRoutes(app, handlers, guard)

	api := app.Group("/api", FiberMiddleware(authn))
	api.Get("/whoami", FiberRequireScope(nil, "profile:read"), func(c *fiber.Ctx) error {
		return c.JSON(FiberAuthorizationContext(c))
	})

	return &fiberFixture{serviceFixture: f, sessions: sessions, app: app}
}

func (f *fiberFixture) do(t *testing.T, method, path, authorization, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(HEADER_CONTENT_TYPE, CONTENT_TYPE_JSON)
	}
	if authorization != "" {
		req.Header.Set(HEADER_AUTHORIZATION, authorization)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

// =============================================================================
// Fiber Adapter Tests
// =============================================================================

func TestFiber_KeyLifecycle(t *testing.T) {
	f := newFiberFixture(t)
	session := bearer(mustSessionToken(t, f.sessions, "user-1"))

	status, raw := f.do(t, http.MethodPost, PATH_API_KEYS+"/create", session, `{"name":"fiber","scopes":["profile:read"]}`)
	require.Equal(t, http.StatusCreated, status)
	var created CreateAPIKeyResult
	require.NoError(t, json.Unmarshal(raw, &created))
	require.NotEmpty(t, created.Plaintext)

	t.Run("key authenticates the API group", func(t *testing.T) {
		status, raw := f.do(t, http.MethodGet, "/api/whoami", bearer(created.Plaintext), "")
		require.Equal(t, http.StatusOK, status)
		var authCtx AuthorizationContext
		require.NoError(t, json.Unmarshal(raw, &authCtx))
		assert.Equal(t, created.APIKey.ID, authCtx.KeyID)
	})

	t.Run("list", func(t *testing.T) {
		status, raw := f.do(t, http.MethodGet, PATH_API_KEYS, session, "")
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(raw), created.APIKey.ID)
		assert.NotContains(t, string(raw), created.Plaintext)
	})

	t.Run("key cannot manage keys", func(t *testing.T) {
		status, _ := f.do(t, http.MethodGet, PATH_API_KEYS, bearer(created.Plaintext), "")
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("revoke then the key stops working", func(t *testing.T) {
		status, _ := f.do(t, http.MethodPost, PATH_API_KEYS+"/"+created.APIKey.ID+"/revoke", session, "")
		require.Equal(t, http.StatusOK, status)

		status, raw := f.do(t, http.MethodGet, "/api/whoami", bearer(created.Plaintext), "")
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Contains(t, string(raw), ERROR_INVALID_API_KEY)
	})

	t.Run("delete", func(t *testing.T) {
		status, _ := f.do(t, http.MethodDelete, PATH_API_KEYS+"/"+created.APIKey.ID, session, "")
		require.Equal(t, http.StatusOK, status)
		status, _ = f.do(t, http.MethodGet, PATH_API_KEYS+"/"+created.APIKey.ID, session, "")
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestFiber_ScopeGuard(t *testing.T) {
	f := newFiberFixture(t)
	noProfile := f.create(t, "user-1", "k", "orders:write")

	status, raw := f.do(t, http.MethodGet, "/api/whoami", bearer(noProfile.Plaintext), "")
	assert.Equal(t, http.StatusForbidden, status)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, CODE_INSUFFICIENT_SCOPE, body.Code)

	status, _ = f.do(t, http.MethodGet, "/api/whoami", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestFiber_Version(t *testing.T) {
	f := newFiberFixture(t)
	status, raw := f.do(t, http.MethodGet, PATH_VERSION, "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), `"project"`)
}
