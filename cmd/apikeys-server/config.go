package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	apikeys "github.com/abrahamahn/go-apikeys"
)

const (
	ENV_PREFIX = "APIKEYS"

	STORAGE_BACKEND_MEMORY   = "memory"
	STORAGE_BACKEND_REDIS    = "redis"
	STORAGE_BACKEND_POSTGRES = "postgres"
)

// ServerConfig is the configuration of the apikeys-server binary.
// Precedence: defaults < YAML file < APIKEYS_* environment variables.
type ServerConfig struct {
	Server     HTTPConfig              `mapstructure:"server"`
	Storage    StorageConfig           `mapstructure:"storage"`
	Auth       AuthConfig              `mapstructure:"auth"`
	Log        LogConfig               `mapstructure:"log"`
	Metrics    MetricsConfig           `mapstructure:"metrics"`
	Tracing    TracingConfig           `mapstructure:"tracing"`
	RateLimits []apikeys.RateLimitRule `mapstructure:"rate_limits" validate:"dive"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type StorageConfig struct {
	Backend     string `mapstructure:"backend" validate:"required,oneof=memory redis postgres"`
	RedisConn   string `mapstructure:"redis_conn" validate:"required_if=Backend redis"`
	PostgresDSN string `mapstructure:"postgres_dsn" validate:"required_if=Backend postgres"`
	KeyPrefix   string `mapstructure:"key_prefix" validate:"required"`
}

type AuthConfig struct {
	// SessionSecret signs the primary session tokens guarding key management.
	SessionSecret string        `mapstructure:"session_secret" validate:"required,min=32"`
	SessionIssuer string        `mapstructure:"session_issuer"`
	SessionTTL    time.Duration `mapstructure:"session_ttl" validate:"gt=0"`
	HashSecret    string        `mapstructure:"hash_secret"`
	HashAlgorithm string        `mapstructure:"hash_algorithm" validate:"oneof=sha256 sha3-256"`
	CacheSize     int           `mapstructure:"cache_size" validate:"gte=0"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// configKeys are bound to environment variables explicitly; AutomaticEnv
// alone does not reach keys without a default during Unmarshal.
var configKeys = []string{
	"server.addr",
	"server.read_timeout",
	"server.write_timeout",
	"server.shutdown_timeout",
	"storage.backend",
	"storage.redis_conn",
	"storage.postgres_dsn",
	"storage.key_prefix",
	"auth.session_secret",
	"auth.session_issuer",
	"auth.session_ttl",
	"auth.hash_secret",
	"auth.hash_algorithm",
	"auth.cache_size",
	"auth.cache_ttl",
	"log.level",
	"metrics.enabled",
	"metrics.namespace",
	"tracing.enabled",
}

// LoadConfig reads configPath (optional) and the environment.
func LoadConfig(configPath string) (*ServerConfig, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("storage.backend", STORAGE_BACKEND_MEMORY)
	v.SetDefault("storage.key_prefix", apikeys.REPO_KEY_PREFIX)

	v.SetDefault("auth.session_issuer", apikeys.PACKAGE_NAME)
	v.SetDefault("auth.session_ttl", apikeys.DEFAULT_SESSION_TTL.String())
	v.SetDefault("auth.hash_algorithm", apikeys.DEFAULT_HASH_ALGORITHM)
	v.SetDefault("auth.cache_size", 0)
	v.SetDefault("auth.cache_ttl", apikeys.DEFAULT_CACHE_TTL.String())

	v.SetDefault("log.level", "info")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "apikeys")
	v.SetDefault("tracing.enabled", false)
}

// Validate checks the struct tags of the whole tree.
func (c *ServerConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", apikeys.ErrInvalidConfiguration, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", apikeys.ErrInvalidConfiguration, err)
	}
	return nil
}

// LibraryConfig maps the server configuration onto apikeys.Config. Storage,
// logger and session authenticator are attached by the caller.
func (c *ServerConfig) LibraryConfig() *apikeys.Config {
	cfg := &apikeys.Config{
		HashAlgorithm:    c.Auth.HashAlgorithm,
		CacheSize:        c.Auth.CacheSize,
		CacheTTL:         c.Auth.CacheTTL,
		RateLimitRules:   c.RateLimits,
		SkipPathPatterns: []string{"^" + apikeys.PATH_HEALTH + "$", "^" + apikeys.PATH_METRICS + "$"},
	}
	if c.Auth.HashSecret != "" {
		cfg.HashSecret = []byte(c.Auth.HashSecret)
	}
	return cfg
}
