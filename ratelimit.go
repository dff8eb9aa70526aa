package apikeys

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/itsatony/go-datarepository"
	"go.uber.org/zap"
)

// RateLimitRule limits requests whose path matches Path (a regular expression)
// to Limit per Timespan, counted separately for each target in ApplyTo.
type RateLimitRule struct {
	Path     string                `json:"path" mapstructure:"path" validate:"required"`
	Timespan time.Duration         `json:"timespan" mapstructure:"timespan" validate:"required,gt=0"`
	Limit    int                   `json:"limit" mapstructure:"limit" validate:"required,gt=0"`
	ApplyTo  []RateLimitRuleTarget `json:"applyTo" mapstructure:"apply_to" validate:"required,min=1,dive,oneof=key user tenant"`

	pathRegex *regexp.Regexp
}

// RateLimiter counts authenticated requests in fixed windows on a go-datarepository backend.
type RateLimiter struct {
	repo   datarepository.DataRepository
	rules  []RateLimitRule
	logger *zap.Logger
	obs    *Observability
}

// NewRateLimiter compiles the rule paths. The rules slice is copied.
func NewRateLimiter(repo datarepository.DataRepository, rules []RateLimitRule, logger *zap.Logger, obs *Observability) (*RateLimiter, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if obs == nil {
		obs = NewObservability(nil, nil, nil)
	}

	compiled := make([]RateLimitRule, len(rules))
	for i, rule := range rules {
		re, err := regexp.Compile(rule.Path)
		if err != nil {
			return nil, NewValidationError(fmt.Sprintf("rate_limit_rules[%d].path", i), err.Error())
		}
		rule.pathRegex = re
		compiled[i] = rule
	}

	return &RateLimiter{
		repo:   repo,
		rules:  compiled,
		logger: logger.Named(CLASS_RATE_LIMITER),
		obs:    obs,
	}, nil
}

// Rules returns the configured rules.
func (r *RateLimiter) Rules() []RateLimitRule {
	return r.rules
}

// Allow counts the request against every matching rule and target. It
// returns the first exhausted rule, or nil when the request may proceed.
func (r *RateLimiter) Allow(ctx context.Context, path string, authCtx *AuthorizationContext) (*RateLimitRule, error) {
	for i := range r.rules {
		rule := &r.rules[i]
		if !rule.pathRegex.MatchString(path) {
			continue
		}

		for _, target := range rule.ApplyTo {
			value := targetValue(target, authCtx)
			if value == "" {
				continue
			}

			allowed, err := r.checkRateLimit(ctx, counterKey(i, target, value), rule.Timespan, rule.Limit)
			if err != nil {
				return nil, err
			}
			if !allowed {
				return rule, nil
			}
		}
	}
	return nil, nil
}

// Middleware returns the net/http rate limiting stage. It must run after authentication.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	framework := &GorillaMuxFramework{}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.Handle(framework, w, req) {
			return
		}
		next.ServeHTTP(w, req)
	})
}

// Handle applies the rules for any framework. Requests without an
// AuthorizationContext are passed through. Counter failures reject the request.
func (r *RateLimiter) Handle(framework HTTPFramework, w, req interface{}) bool {
	ctx := framework.GetRequestContext(req)
	authCtx := AuthorizationFromContext(ctx)
	if authCtx == nil {
		return true
	}

	path := framework.GetRequestPath(req)
	exhausted, err := r.Allow(ctx, path, authCtx)
	if err != nil {
		r.logger.Error(LOG_MSG_RATE_LIMIT_FAILED,
			zap.String(LOG_FIELD_PATH, path),
			zap.Error(err))
		writeError(framework, w, err)
		return false
	}
	if exhausted == nil {
		return true
	}

	r.logger.Info(LOG_MSG_RATE_LIMIT_EXCEEDED,
		zap.String(LOG_FIELD_KEY_ID, authCtx.KeyID),
		zap.String(LOG_FIELD_RULE, exhausted.Path),
		zap.Int(LOG_FIELD_LIMIT, exhausted.Limit))

	event := &SecurityEvent{
		BaseAuditEvent: NewBaseAuditEvent(
			EventTypeSecurityBlocked,
			ActorInfo{UserID: authCtx.UserID, KeyID: authCtx.KeyID},
			ResourceInfo{Type: ResourceTypeEndpoint, ID: path},
			OutcomeBlocked,
		),
		ThreatType: ThreatTypeRateLimitExceeded,
		Severity:   SeverityMedium,
		Details:    LOG_MSG_RATE_LIMIT_EXCEEDED,
		Indicators: []string{exhausted.Path},
	}
	r.obs.stampTrace(ctx, &event.BaseAuditEvent)
	_ = r.obs.Audit.LogSecurityEvent(ctx, event)

	framework.SetResponseHeader(w, HEADER_RETRY_AFTER, strconv.Itoa(int(exhausted.Timespan.Seconds())))
	writeError(framework, w, ErrRateLimitExceeded)
	return false
}

func (r *RateLimiter) checkRateLimit(ctx context.Context, key string, timespan time.Duration, limit int) (bool, error) {
	id := datarepository.SimpleIdentifier(key)

	count, err := r.repo.AtomicIncrement(ctx, id)
	if err != nil {
		return false, wrapInternal(ErrFailedToCheckRateLimit, "ratelimit_increment", err)
	}

	if count == 1 {
		// first hit opens the window
		if err := r.repo.SetExpiration(ctx, id, timespan); err != nil {
			return false, wrapInternal(ErrFailedToCheckRateLimit, "ratelimit_expiration", err)
		}
	}

	return count <= int64(limit), nil
}

// CurrentUsage returns the counter of the rule with the given path for the
// first applicable target of authCtx. Missing counters read as zero.
func (r *RateLimiter) CurrentUsage(ctx context.Context, authCtx *AuthorizationContext, rulePath string) (int64, error) {
	for i, rule := range r.rules {
		if rule.Path != rulePath {
			continue
		}
		for _, target := range rule.ApplyTo {
			value := targetValue(target, authCtx)
			if value == "" {
				continue
			}
			var count int64
			err := r.repo.Read(ctx, datarepository.SimpleIdentifier(counterKey(i, target, value)), &count)
			if err != nil {
				if datarepository.IsNotFoundError(err) {
					return 0, nil
				}
				return 0, wrapInternal(ErrFailedToCheckRateLimit, "ratelimit_read", err)
			}
			return count, nil
		}
	}
	return 0, nil
}

func targetValue(target RateLimitRuleTarget, authCtx *AuthorizationContext) string {
	if authCtx == nil {
		return ""
	}
	switch target {
	case RateLimitRuleTargetKey:
		return authCtx.KeyID
	case RateLimitRuleTargetUser:
		return authCtx.UserID
	case RateLimitRuleTargetTenant:
		if authCtx.TenantID != nil {
			return *authCtx.TenantID
		}
	}
	return ""
}

// counterKey keeps counters of different rules and targets apart.
func counterKey(ruleIndex int, target RateLimitRuleTarget, value string) string {
	return strings.Join([]string{REPO_KEY_RATELIMIT, strconv.Itoa(ruleIndex), string(target), value}, REPO_KEY_SEPARATOR)
}
