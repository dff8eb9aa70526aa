package apikeys

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// FiberFramework implements HTTPFramework for Fiber v2. r and w are the same *fiber.Ctx.
type FiberFramework struct{}

func (f *FiberFramework) GetRequestHeader(r interface{}, key string) string {
	return r.(*fiber.Ctx).Get(key)
}

func (f *FiberFramework) GetRequestParam(r interface{}, key string) string {
	return r.(*fiber.Ctx).Params(key)
}

func (f *FiberFramework) GetRequestPath(r interface{}) string {
	return r.(*fiber.Ctx).Path()
}

func (f *FiberFramework) GetRequestMethod(r interface{}) string {
	return r.(*fiber.Ctx).Method()
}

func (f *FiberFramework) GetRequestContext(r interface{}) context.Context {
	return r.(*fiber.Ctx).UserContext()
}

// SetRequestContext also mirrors the authorization context and session into
// Locals, where Fiber handlers usually look.
func (f *FiberFramework) SetRequestContext(r interface{}, ctx context.Context) {
	c := r.(*fiber.Ctx)
	c.SetUserContext(ctx)
	if authCtx := AuthorizationFromContext(ctx); authCtx != nil {
		c.Locals(LOCALS_KEY_AUTHORIZATION, authCtx)
	}
	if session := SessionFromContext(ctx); session != nil {
		c.Locals(LOCALS_KEY_SESSION, session)
	}
}

func (f *FiberFramework) ReadBody(r interface{}) ([]byte, error) {
	body := r.(*fiber.Ctx).Body()
	if len(body) > MAX_REQUEST_BODY {
		return nil, ErrRequestBodyTooLarge
	}
	// fasthttp reuses the buffer after the handler returns
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

func (f *FiberFramework) SetResponseHeader(w interface{}, key, value string) {
	w.(*fiber.Ctx).Set(key, value)
}

func (f *FiberFramework) WriteJSON(w interface{}, status int, body interface{}) error {
	return w.(*fiber.Ctx).Status(status).JSON(body)
}

// FiberMiddleware adapts the authentication stage to Fiber.
func FiberMiddleware(authn *Authenticator) fiber.Handler {
	framework := &FiberFramework{}
	return func(c *fiber.Ctx) error {
		if !authn.Handle(framework, c, c) {
			return nil
		}
		return c.Next()
	}
}

// FiberRequireScope adapts the scope guard to Fiber.
func FiberRequireScope(guard *ScopeGuard, scopes ...Scope) fiber.Handler {
	if guard == nil {
		guard = defaultScopeGuard
	}
	framework := &FiberFramework{}
	return func(c *fiber.Ctx) error {
		if !guard.Handle(framework, c, c, scopes...) {
			return nil
		}
		return c.Next()
	}
}

// FiberRateLimit adapts the rate limiting stage to Fiber. Mount it after FiberMiddleware.
func FiberRateLimit(limiter *RateLimiter) fiber.Handler {
	framework := &FiberFramework{}
	return func(c *fiber.Ctx) error {
		if !limiter.Handle(framework, c, c) {
			return nil
		}
		return c.Next()
	}
}

// FiberRequirePrimarySession adapts the session guard to Fiber.
func FiberRequirePrimarySession(sessions *SessionGuard) fiber.Handler {
	framework := &FiberFramework{}
	return func(c *fiber.Ctx) error {
		if !sessions.Handle(framework, c, c) {
			return nil
		}
		return c.Next()
	}
}

// FiberAuthorizationContext returns the AuthorizationContext of an authenticated Fiber request.
func FiberAuthorizationContext(c *fiber.Ctx) *AuthorizationContext {
	if authCtx, ok := c.Locals(LOCALS_KEY_AUTHORIZATION).(*AuthorizationContext); ok {
		return authCtx
	}
	return AuthorizationFromContext(c.UserContext())
}

// RegisterFiberRoutes mounts the key management routes on a Fiber router.
func RegisterFiberRoutes(router fiber.Router, handlers *HandlerCore, sessions *SessionGuard) {
	framework := &FiberFramework{}

	router.Get(PATH_VERSION, func(c *fiber.Ctx) error {
		writeResult(framework, c, handlers.HandleVersion())
		return nil
	})

	group := router.Group(PATH_API_KEYS, FiberRequirePrimarySession(sessions))

	group.Post("/create", func(c *fiber.Ctx) error {
		body, err := framework.ReadBody(c)
		if err != nil {
			writeError(framework, c, err)
			return nil
		}
		writeResult(framework, c, handlers.HandleCreateAPIKey(c.UserContext(), sessionUserID(c.UserContext()), body))
		return nil
	})

	group.Get("/", func(c *fiber.Ctx) error {
		writeResult(framework, c, handlers.HandleListAPIKeys(c.UserContext(), sessionUserID(c.UserContext())))
		return nil
	})

	group.Get("/:"+PATH_VAR_KEY_ID, func(c *fiber.Ctx) error {
		keyID := framework.GetRequestParam(c, PATH_VAR_KEY_ID)
		writeResult(framework, c, handlers.HandleGetAPIKey(c.UserContext(), sessionUserID(c.UserContext()), keyID))
		return nil
	})

	group.Post("/:"+PATH_VAR_KEY_ID+"/revoke", func(c *fiber.Ctx) error {
		keyID := framework.GetRequestParam(c, PATH_VAR_KEY_ID)
		writeResult(framework, c, handlers.HandleRevokeAPIKey(c.UserContext(), sessionUserID(c.UserContext()), keyID))
		return nil
	})

	group.Delete("/:"+PATH_VAR_KEY_ID, func(c *fiber.Ctx) error {
		keyID := framework.GetRequestParam(c, PATH_VAR_KEY_ID)
		writeResult(framework, c, handlers.HandleDeleteAPIKey(c.UserContext(), sessionUserID(c.UserContext()), keyID))
		return nil
	})
}
