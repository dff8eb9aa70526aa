package apikeys

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// APIKeyManager wires the service, middleware stages and handlers from one Config.
type APIKeyManager struct {
	config        *Config
	logger        *zap.Logger
	observability *Observability
	service       *APIKeyService
	recorder      *AsyncLastUsedRecorder
	authenticator *Authenticator
	scopeGuard    *ScopeGuard
	limiter       *RateLimiter
	sessions      *SessionGuard
	handlers      *HandlerCore
	Version       string
}

// New creates a manager. The config is defaulted and validated first.
func New(config *Config) (*APIKeyManager, error) {
	if config == nil {
		return nil, ErrInvalidConfiguration
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger.Named(CLASS_APIKEY_MANAGER)
	obs := config.Observability.Build(config.Logger)

	digester, err := NewDigester(config.HashAlgorithm, config.HashSecret)
	if err != nil {
		return nil, err
	}

	recorder, err := NewAsyncLastUsedRecorder(config.Repository, config.Logger, obs.Metrics, config.LastUsedConcurrency, config.LastUsedTimeout)
	if err != nil {
		return nil, err
	}

	service, err := NewAPIKeyService(config.Repository, config.Logger, &APIKeyServiceOptions{
		Generator:     NewGenerator(digester),
		Toucher:       recorder,
		Observability: obs,
		CacheSize:     config.CacheSize,
		CacheTTL:      config.CacheTTL,
	})
	if err != nil {
		return nil, err
	}

	authenticator, err := NewAuthenticator(service, config.Logger, obs, &AuthenticatorConfig{
		MaxTokenLength:   config.MaxTokenLength,
		SkipPathPatterns: config.SkipPathPatterns,
	})
	if err != nil {
		return nil, err
	}

	handlers, err := NewHandlerCore(service, config.Logger)
	if err != nil {
		return nil, err
	}

	manager := &APIKeyManager{
		config:        config,
		logger:        logger,
		observability: obs,
		service:       service,
		recorder:      recorder,
		authenticator: authenticator,
		scopeGuard:    NewScopeGuard(config.Logger, obs),
		handlers:      handlers,
		Version:       GetProjectVersion(),
	}

	if len(config.RateLimitRules) > 0 {
		manager.limiter, err = NewRateLimiter(config.CounterStore, config.RateLimitRules, config.Logger, obs)
		if err != nil {
			return nil, err
		}
	}

	if config.SessionAuthenticator != nil {
		manager.sessions, err = NewSessionGuard(config.SessionAuthenticator, config.Logger)
		if err != nil {
			return nil, err
		}
	}

	logger.Info(LOG_MSG_MANAGER_CREATED,
		zap.String("version", manager.Version),
		zap.String("hash_algorithm", digester.Algorithm()),
		zap.Bool("hmac", digester.Keyed()),
		zap.Bool("cache", config.CacheSize > 0),
		zap.Bool("rate_limit", manager.limiter != nil))

	return manager, nil
}

// Middleware returns the net/http authentication stage followed by the rate
// limiter when rules are configured.
func (m *APIKeyManager) Middleware(next http.Handler) http.Handler {
	if m.limiter != nil {
		next = m.limiter.Middleware(next)
	}
	return m.authenticator.Middleware(next)
}

// RequireScope returns the net/http scope guard for required.
func (m *APIKeyManager) RequireScope(required Scope) func(http.Handler) http.Handler {
	return m.scopeGuard.RequireScope(required)
}

// RequireAnyScope returns the net/http scope guard accepting any of scopes.
func (m *APIKeyManager) RequireAnyScope(scopes ...Scope) func(http.Handler) http.Handler {
	return m.scopeGuard.RequireAnyScope(scopes...)
}

// FiberMiddleware returns the Fiber authentication stage (and rate limiter).
func (m *APIKeyManager) FiberMiddleware() []fiber.Handler {
	handlers := []fiber.Handler{FiberMiddleware(m.authenticator)}
	if m.limiter != nil {
		handlers = append(handlers, FiberRateLimit(m.limiter))
	}
	return handlers
}

// FiberRequireScope returns the Fiber scope guard.
func (m *APIKeyManager) FiberRequireScope(scopes ...Scope) fiber.Handler {
	return FiberRequireScope(m.scopeGuard, scopes...)
}

// RegisterRoutes mounts the key management routes on a gorilla/mux router.
func (m *APIKeyManager) RegisterRoutes(router *mux.Router) error {
	if m.sessions == nil {
		return ErrSessionAuthRequired
	}
	RegisterRoutes(router, m.handlers, m.sessions)
	return nil
}

// RegisterFiberRoutes mounts the key management routes on a Fiber router.
func (m *APIKeyManager) RegisterFiberRoutes(router fiber.Router) error {
	if m.sessions == nil {
		return ErrSessionAuthRequired
	}
	RegisterFiberRoutes(router, m.handlers, m.sessions)
	return nil
}

// Close waits for pending last use updates.
func (m *APIKeyManager) Close() {
	m.recorder.Wait()
}

func (m *APIKeyManager) Service() *APIKeyService {
	return m.service
}

func (m *APIKeyManager) Authenticator() *Authenticator {
	return m.authenticator
}

func (m *APIKeyManager) ScopeGuard() *ScopeGuard {
	return m.scopeGuard
}

func (m *APIKeyManager) RateLimiter() *RateLimiter {
	return m.limiter
}

func (m *APIKeyManager) Handlers() *HandlerCore {
	return m.handlers
}

func (m *APIKeyManager) Observability() *Observability {
	return m.observability
}

func (m *APIKeyManager) Config() *Config {
	return m.config
}

func (m *APIKeyManager) Logger() *zap.Logger {
	return m.logger
}
