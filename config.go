package apikeys

import (
	"fmt"
	"time"

	"github.com/itsatony/go-datarepository"
	"go.uber.org/zap"
)

// Config configures an APIKeyManager.
type Config struct {
	// Repository stores API keys. Required. Use NewDataRepositoryAdapter or
	// NewPostgresRepository.
	Repository Repository

	// CounterStore backs rate limit counters. Required when RateLimitRules is set.
	CounterStore datarepository.DataRepository

	// Logger is the zap logger. Default: no-op.
	Logger *zap.Logger

	// HashAlgorithm is sha256 (default) or sha3-256.
	HashAlgorithm string

	// HashSecret turns the stored digest into an HMAC. Changing it invalidates
	// every issued key.
	HashSecret []byte

	// MaxTokenLength bounds the bearer token accepted by the middleware. Default 512.
	MaxTokenLength int

	// SkipPathPatterns are regular expressions of paths that bypass authentication.
	SkipPathPatterns []string

	// CacheSize enables the authentication cache when > 0.
	// With several instances a revocation is only observed everywhere after
	// CacheTTL, so keep it short or leave the cache disabled.
	CacheSize int
	CacheTTL  time.Duration

	// LastUsedConcurrency bounds in-flight last use updates. Default 64.
	LastUsedConcurrency int64

	// LastUsedTimeout bounds one last use update. Default 5s.
	LastUsedTimeout time.Duration

	// RateLimitRules enables the rate limiting stage when non-empty.
	RateLimitRules []RateLimitRule

	// SessionAuthenticator guards the key management routes. Required for
	// RegisterRoutes and RegisterFiberRoutes.
	SessionAuthenticator SessionAuthenticator

	// Observability configures metrics, audit and tracing. nil disables all.
	Observability *ObservabilityConfig
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.HashAlgorithm == "" {
		c.HashAlgorithm = DEFAULT_HASH_ALGORITHM
	}
	if c.MaxTokenLength <= 0 {
		c.MaxTokenLength = DEFAULT_MAX_TOKEN_LEN
	}
	if c.CacheSize > 0 && c.CacheTTL <= 0 {
		c.CacheTTL = DEFAULT_CACHE_TTL
	}
	if c.LastUsedConcurrency <= 0 {
		c.LastUsedConcurrency = DEFAULT_TOUCH_CONCURRENCY
	}
	if c.LastUsedTimeout <= 0 {
		c.LastUsedTimeout = DEFAULT_TOUCH_TIMEOUT
	}
}

// Validate checks the configuration. Errors wrap ErrInvalidConfiguration.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfiguration)
	}
	if c.Repository == nil {
		return ErrRepositoryRequired
	}
	switch c.HashAlgorithm {
	case "", HASH_ALGORITHM_SHA256, HASH_ALGORITHM_SHA3_256:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedHash, c.HashAlgorithm)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("%w: cache size must not be negative", ErrInvalidConfiguration)
	}
	if len(c.RateLimitRules) > 0 && c.CounterStore == nil {
		return fmt.Errorf("%w: rate limit rules need a counter store", ErrInvalidConfiguration)
	}
	for i, rule := range c.RateLimitRules {
		if err := validate.Struct(rule); err != nil {
			return fmt.Errorf("%w: rate_limit_rules[%d]: %w", ErrInvalidConfiguration, i, toValidationErrors(err))
		}
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("%w: observability: %w", ErrInvalidConfiguration, err)
	}
	return nil
}
