package apikeys

import (
	"net/http"

	"go.uber.org/zap"
)

// ScopeGuard rejects authenticated requests whose key lacks a capability.
// It holds no per-request state and performs no I/O.
type ScopeGuard struct {
	logger *zap.Logger
	obs    *Observability
}

// NewScopeGuard creates a scope guard. Both arguments may be nil.
func NewScopeGuard(logger *zap.Logger, obs *Observability) *ScopeGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if obs == nil {
		obs = NewObservability(nil, nil, nil)
	}
	return &ScopeGuard{
		logger: logger.Named(CLASS_SCOPE_GUARD),
		obs:    obs,
	}
}

// RequireScope returns net/http middleware allowing only keys granted required.
func (g *ScopeGuard) RequireScope(required Scope) func(http.Handler) http.Handler {
	return g.RequireAnyScope(required)
}

// RequireAnyScope allows keys granted at least one of the listed scopes.
func (g *ScopeGuard) RequireAnyScope(scopes ...Scope) func(http.Handler) http.Handler {
	framework := &GorillaMuxFramework{}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.Handle(framework, w, r, scopes...) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Handle checks the request's AuthorizationContext. Without one the request
// is unauthenticated (401); with one that grants none of scopes it is
// forbidden (403). An empty scope list on the key grants everything.
func (g *ScopeGuard) Handle(framework HTTPFramework, w, r interface{}, scopes ...Scope) bool {
	ctx := framework.GetRequestContext(r)
	authCtx := AuthorizationFromContext(ctx)
	if authCtx == nil {
		writeError(framework, w, ErrInvalidAPIKey)
		return false
	}

	if len(scopes) == 0 {
		return true
	}
	for _, scope := range scopes {
		if authCtx.HasScope(scope) {
			return true
		}
	}

	denied := scopes[0]
	g.logger.Info(LOG_MSG_SCOPE_DENIED,
		zap.String(LOG_FIELD_KEY_ID, authCtx.KeyID),
		zap.String(LOG_FIELD_SCOPE, string(denied)),
		zap.String(LOG_FIELD_PATH, framework.GetRequestPath(r)))
	g.obs.Metrics.RecordScopeDenied(ctx, string(denied))

	event := &SecurityEvent{
		BaseAuditEvent: NewBaseAuditEvent(
			EventTypeSecurityBlocked,
			ActorInfo{UserID: authCtx.UserID, KeyID: authCtx.KeyID},
			ResourceInfo{Type: ResourceTypeEndpoint, ID: framework.GetRequestPath(r)},
			OutcomeBlocked,
		),
		ThreatType: ThreatTypeInsufficientScope,
		Severity:   SeverityLow,
		Details:    LOG_MSG_SCOPE_DENIED,
		Indicators: []string{string(denied)},
	}
	g.obs.stampTrace(ctx, &event.BaseAuditEvent)
	_ = g.obs.Audit.LogSecurityEvent(ctx, event)

	_ = framework.WriteJSON(w, http.StatusForbidden, newInsufficientScopeResponse(denied))
	return false
}

var defaultScopeGuard = NewScopeGuard(nil, nil)

// RequireScope is the package-level guard without logging or metrics.
func RequireScope(required Scope) func(http.Handler) http.Handler {
	return defaultScopeGuard.RequireScope(required)
}

// RequireAnyScope is the package-level guard without logging or metrics.
func RequireAnyScope(scopes ...Scope) func(http.Handler) http.Handler {
	return defaultScopeGuard.RequireAnyScope(scopes...)
}
