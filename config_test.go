package apikeys

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	t.Run("fills unset fields", func(t *testing.T) {
		config := &Config{}
		config.ApplyDefaults()

		assert.NotNil(t, config.Logger)
		assert.Equal(t, DEFAULT_HASH_ALGORITHM, config.HashAlgorithm)
		assert.Equal(t, DEFAULT_MAX_TOKEN_LEN, config.MaxTokenLength)
		assert.Equal(t, int64(DEFAULT_TOUCH_CONCURRENCY), config.LastUsedConcurrency)
		assert.Equal(t, DEFAULT_TOUCH_TIMEOUT, config.LastUsedTimeout)
		assert.Zero(t, config.CacheTTL, "cache stays off")
	})

	t.Run("cache ttl defaults only with a cache", func(t *testing.T) {
		config := &Config{CacheSize: 10}
		config.ApplyDefaults()
		assert.Equal(t, DEFAULT_CACHE_TTL, config.CacheTTL)
	})

	t.Run("keeps explicit values", func(t *testing.T) {
		config := &Config{
			HashAlgorithm:   HASH_ALGORITHM_SHA3_256,
			MaxTokenLength:  128,
			CacheSize:       10,
			CacheTTL:        time.Second,
			LastUsedTimeout: time.Second,
		}
		config.ApplyDefaults()
		assert.Equal(t, HASH_ALGORITHM_SHA3_256, config.HashAlgorithm)
		assert.Equal(t, 128, config.MaxTokenLength)
		assert.Equal(t, time.Second, config.CacheTTL)
		assert.Equal(t, time.Second, config.LastUsedTimeout)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{Repository: newMemoryRepository()}
	}

	var nilConfig *Config
	assert.ErrorIs(t, nilConfig.Validate(), ErrInvalidConfiguration)
	assert.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"missing repository", func(c *Config) { c.Repository = nil }, ErrRepositoryRequired},
		{"unknown hash", func(c *Config) { c.HashAlgorithm = "md5" }, ErrUnsupportedHash},
		{"negative cache", func(c *Config) { c.CacheSize = -1 }, ErrInvalidConfiguration},
		{"rules without counter store", func(c *Config) {
			c.RateLimitRules = []RateLimitRule{perKeyRule(1)}
		}, ErrInvalidConfiguration},
		{"invalid rule", func(c *Config) {
			c.CounterStore = newMockDataRepository()
			c.RateLimitRules = []RateLimitRule{{Path: ".*", Limit: 0, Timespan: time.Minute, ApplyTo: []RateLimitRuleTarget{"key"}}}
		}, ErrInvalidConfiguration},
		{"invalid rule target", func(c *Config) {
			c.CounterStore = newMockDataRepository()
			c.RateLimitRules = []RateLimitRule{{Path: ".*", Limit: 1, Timespan: time.Minute, ApplyTo: []RateLimitRuleTarget{"planet"}}}
		}, ErrInvalidConfiguration},
		{"invalid observability", func(c *Config) {
			c.Observability = &ObservabilityConfig{AuditSampleRate: 3}
		}, ErrInvalidConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(config)
			assert.ErrorIs(t, config.Validate(), tt.want)
		})
	}

	t.Run("valid rules", func(t *testing.T) {
		config := valid()
		config.CounterStore = newMockDataRepository()
		config.RateLimitRules = []RateLimitRule{perKeyRule(5)}
		assert.NoError(t, config.Validate())
	})
}
