// Package apikeys provides API key issuance, authentication and scope authorization middleware.
//
// This file contains the authentication stage: it turns a bearer credential
// into an AuthorizationContext or rejects the request.
package apikeys

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AuthenticatorConfig configures the authentication stage.
type AuthenticatorConfig struct {
	// MaxTokenLength rejects longer bearer tokens before hashing. Default 512.
	MaxTokenLength int

	// SkipPathPatterns are regular expressions; matching paths bypass authentication.
	SkipPathPatterns []string
}

// Authenticator is the authentication middleware stage.
type Authenticator struct {
	service      *APIKeyService
	logger       *zap.Logger
	obs          *Observability
	maxTokenLen  int
	skipPatterns []*regexp.Regexp
}

// NewAuthenticator creates the authentication stage on top of service.
func NewAuthenticator(service *APIKeyService, logger *zap.Logger, obs *Observability, config *AuthenticatorConfig) (*Authenticator, error) {
	if service == nil {
		return nil, ErrServiceRequired
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if obs == nil {
		obs = NewObservability(nil, nil, nil)
	}
	if config == nil {
		config = &AuthenticatorConfig{}
	}

	a := &Authenticator{
		service:     service,
		logger:      logger.Named(CLASS_AUTHENTICATOR),
		obs:         obs,
		maxTokenLen: config.MaxTokenLength,
	}
	if a.maxTokenLen <= 0 {
		a.maxTokenLen = DEFAULT_MAX_TOKEN_LEN
	}
	for _, pattern := range config.SkipPathPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, NewValidationError("skip_path_patterns", err.Error())
		}
		a.skipPatterns = append(a.skipPatterns, re)
	}

	return a, nil
}

// Middleware returns the net/http authentication middleware.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	framework := &GorillaMuxFramework{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Handle(framework, w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handle runs authentication for any framework. It returns true when the
// request may proceed; otherwise the rejection has already been written.
func (a *Authenticator) Handle(framework HTTPFramework, w, r interface{}) bool {
	path := framework.GetRequestPath(r)
	if a.shouldSkip(path) {
		return true
	}

	ctx := framework.GetRequestContext(r)
	start := time.Now()
	token, provided, ok := ParseBearerToken(framework.GetRequestHeader(r, HEADER_AUTHORIZATION), a.maxTokenLen)

	var authCtx *AuthorizationContext
	var err error
	if !ok {
		err = ErrInvalidAPIKey
		labels := map[string]string{LABEL_REASON: REASON_MALFORMED}
		a.obs.Metrics.RecordAuthAttempt(ctx, false, time.Since(start), labels)
		a.obs.Metrics.RecordAuthError(ctx, REASON_MALFORMED, labels)
	} else {
		authCtx, err = a.authenticate(ctx, token)
	}

	a.auditAttempt(ctx, framework, r, provided, authCtx, err, time.Since(start))

	if err != nil {
		status := ErrorToHTTPStatus(err)
		if status >= http.StatusInternalServerError {
			a.logger.Error(LOG_MSG_LOOKUP_FAILED,
				zap.String(LOG_FIELD_PATH, path),
				zap.Error(err))
		} else {
			a.logger.Debug(LOG_MSG_AUTH_REJECTED,
				zap.String(LOG_FIELD_PATH, path),
				zap.String(LOG_FIELD_REASON, ErrorToCode(err)))
		}
		writeError(framework, w, err)
		return false
	}

	framework.SetRequestContext(r, WithAuthorizationContext(ctx, authCtx))
	return true
}

// authenticate calls the service. A panic below this point is reported as an
// invalid key rather than crashing the server.
func (a *Authenticator) authenticate(ctx context.Context, token string) (authCtx *AuthorizationContext, err error) {
	defer func() {
		if p := recover(); p != nil {
			a.logger.Error(LOG_MSG_AUTH_PANIC, zap.Any(LOG_FIELD_PANIC, p))
			authCtx, err = nil, ErrInvalidAPIKey
		}
	}()
	return a.service.Authenticate(ctx, token)
}

func (a *Authenticator) shouldSkip(path string) bool {
	for _, re := range a.skipPatterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func (a *Authenticator) auditAttempt(ctx context.Context, framework HTTPFramework, r interface{}, provided bool, authCtx *AuthorizationContext, err error, latency time.Duration) {
	outcome := OutcomeSuccess
	actor := ActorInfo{
		IPAddress: framework.GetRequestHeader(r, HEADER_FORWARDED_FOR),
		UserAgent: framework.GetRequestHeader(r, HEADER_USER_AGENT),
	}
	if authCtx != nil {
		actor.UserID = authCtx.UserID
		actor.KeyID = authCtx.KeyID
		if authCtx.TenantID != nil {
			actor.TenantID = *authCtx.TenantID
		}
	}
	if err != nil {
		outcome = OutcomeFailure
	}

	event := &AuthAttemptEvent{
		BaseAuditEvent: NewBaseAuditEvent(
			EventTypeAuthAttempt,
			actor,
			ResourceInfo{Type: ResourceTypeEndpoint, ID: framework.GetRequestPath(r)},
			outcome,
		),
		Method:      AuthMethodAPIKey,
		KeyProvided: provided,
		KeyValid:    err == nil,
		LatencyMS:   latency.Milliseconds(),
		Endpoint:    framework.GetRequestPath(r),
		HTTPMethod:  framework.GetRequestMethod(r),
	}
	if err != nil {
		event.ErrorCode = ErrorToCode(err)
	}
	a.obs.stampTrace(ctx, &event.BaseAuditEvent)

	if auditErr := a.obs.Audit.LogAuthAttempt(ctx, event); auditErr != nil {
		a.logger.Warn("Failed to write audit event", zap.Error(auditErr))
	}
}

// ParseBearerToken extracts the token of an "Authorization: Bearer <token>"
// header. provided reports whether any credential was present. ok is false
// for missing, malformed and oversized values.
func ParseBearerToken(header string, maxLen int) (token string, provided bool, ok bool) {
	if header == "" {
		return "", false, false
	}
	scheme, rest, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, AUTH_SCHEME_BEARER) {
		return "", true, false
	}
	if rest == "" || strings.ContainsAny(rest, " \t\r\n\x00") {
		return "", true, false
	}
	if maxLen > 0 && len(rest) > maxLen {
		return "", true, false
	}
	return rest, true, true
}

// WithAuthorizationContext attaches an AuthorizationContext to ctx.
func WithAuthorizationContext(ctx context.Context, authCtx *AuthorizationContext) context.Context {
	return context.WithValue(ctx, contextKeyAuthorization, authCtx)
}

// AuthorizationFromContext returns the AuthorizationContext attached by the
// authentication stage, or nil.
func AuthorizationFromContext(ctx context.Context) *AuthorizationContext {
	if ctx == nil {
		return nil
	}
	authCtx, _ := ctx.Value(contextKeyAuthorization).(*AuthorizationContext)
	return authCtx
}

// writeError answers with the JSON error body derived from err.
func writeError(framework HTTPFramework, w interface{}, err error) {
	_ = framework.WriteJSON(w, ErrorToHTTPStatus(err), NewErrorResponse(err))
}
