// Package apikeys provides API key issuance, authentication and scope authorization middleware.
//
// This file contains all constants. NO MAGIC STRINGS: every string literal used
// in more than one place is defined here.
package apikeys

import "time"

const (
	// Package metadata
	PACKAGE_NAME    = "go-apikeys"
	PACKAGE_VERSION = "2.0.0"

	// Key material
	KEY_PLAINTEXT_LENGTH = 64 // nanoid characters, 6 bits each
	KEY_PREFIX_LENGTH    = 8
	KEY_ID_PREFIX        = "ak_"
	KEY_ID_LENGTH        = 21

	// Digest algorithms
	HASH_ALGORITHM_SHA256   = "sha256"
	HASH_ALGORITHM_SHA3_256 = "sha3-256"
	DEFAULT_HASH_ALGORITHM  = HASH_ALGORITHM_SHA256

	// Authorization header
	HEADER_AUTHORIZATION  = "Authorization"
	HEADER_CONTENT_TYPE   = "Content-Type"
	HEADER_APP_VERSION    = "X-App-Version"
	HEADER_FORWARDED_FOR  = "X-Forwarded-For"
	HEADER_USER_AGENT     = "User-Agent"
	HEADER_RETRY_AFTER    = "Retry-After"
	AUTH_SCHEME_BEARER    = "Bearer"
	DEFAULT_MAX_TOKEN_LEN = 512

	// Content types
	CONTENT_TYPE_JSON = "application/json"

	// Fiber locals keys (Fiber requires string keys)
	LOCALS_KEY_AUTHORIZATION = "apikeys:authorization"
	LOCALS_KEY_SESSION       = "apikeys:session"

	// Repository keys
	REPO_KEY_PREFIX    = "apikeys"
	REPO_KEY_SEPARATOR = ":"
	REPO_KEY_RECORD    = "key"
	REPO_KEY_HASH      = "hash"
	REPO_KEY_LAST_USED = "lastused"
	REPO_KEY_RATELIMIT = "ratelimit"
	REPO_KEY_WILDCARD  = "*"

	// Machine readable error codes (response "code" field)
	CODE_INVALID_API_KEY     = "INVALID_API_KEY"
	CODE_API_KEY_EXPIRED     = "API_KEY_EXPIRED"
	CODE_INSUFFICIENT_SCOPE  = "INSUFFICIENT_SCOPE"
	CODE_NOT_FOUND           = "NOT_FOUND"
	CODE_VALIDATION_FAILED   = "VALIDATION_FAILED"
	CODE_SESSION_REQUIRED    = "SESSION_REQUIRED"
	CODE_RATE_LIMIT_EXCEEDED = "RATE_LIMIT_EXCEEDED"
	CODE_INVALID_JSON        = "INVALID_JSON"
	CODE_INTERNAL            = "INTERNAL"

	// HTTP status messages
	HTTP_MSG_OK             = "OK"
	HTTP_MSG_INTERNAL_ERROR = "Internal Server Error"

	// Error messages (user-facing)
	ERROR_INVALID_API_KEY          = "Invalid API key"
	ERROR_API_KEY_EXPIRED          = "API key has expired"
	ERROR_API_KEY_NOT_FOUND        = "API key not found"
	ERROR_INSUFFICIENT_SCOPE       = "insufficient scope"
	ERROR_INSUFFICIENT_SCOPE_FMT   = "API key lacks required scope '%s'"
	ERROR_SESSION_REQUIRED         = "a primary session is required for this operation"
	ERROR_INVALID_SESSION          = "invalid session token"
	ERROR_FAILED_TO_CREATE_API_KEY = "failed to create API key"
	ERROR_FAILED_TO_REVOKE_API_KEY = "failed to revoke API key"
	ERROR_FAILED_TO_DELETE_API_KEY = "failed to delete API key"
	ERROR_FAILED_TO_LIST_API_KEYS  = "failed to list API keys"
	ERROR_FAILED_TO_LOOKUP_API_KEY = "failed to look up API key"
	ERROR_FAILED_TO_GENERATE_KEY   = "failed to generate key material"
	ERROR_FAILED_TO_CHECK_RATE     = "failed to check rate limit"
	ERROR_RATE_LIMIT_EXCEEDED      = "rate limit exceeded"
	ERROR_INVALID_JSON             = "request body is not valid JSON"
	ERROR_REQUEST_BODY_TOO_LARGE   = "request body is too large"
	ERROR_INVALID_CONFIGURATION    = "invalid configuration"
	ERROR_REPOSITORY_REQUIRED      = "repository is required"
	ERROR_SERVICE_REQUIRED         = "API key service is required"
	ERROR_SESSION_AUTH_REQUIRED    = "session authenticator is required"
	ERROR_SECRET_REQUIRED          = "signing secret is required"
	ERROR_UNSUPPORTED_HASH         = "unsupported hash algorithm"
	ERROR_MISSING_USER_ID          = "user id is required"
	ERROR_MISSING_KEY_ID           = "key id is required"

	// Log messages
	LOG_MSG_MANAGER_CREATED        = "API key manager created"
	LOG_MSG_APIKEY_CREATED         = "API key created"
	LOG_MSG_APIKEY_REVOKED         = "API key revoked"
	LOG_MSG_APIKEY_ALREADY_REVOKED = "API key already revoked"
	LOG_MSG_APIKEY_DELETED         = "API key deleted"
	LOG_MSG_APIKEY_NOT_OWNED       = "API key missing or not owned by caller"
	LOG_MSG_AUTH_SUCCEEDED         = "API key authenticated"
	LOG_MSG_AUTH_REJECTED          = "API key rejected"
	LOG_MSG_AUTH_PANIC             = "Recovered panic during API key authentication"
	LOG_MSG_LOOKUP_FAILED          = "API key lookup failed"
	LOG_MSG_SCOPE_DENIED           = "API key lacks required scope"
	LOG_MSG_TOUCH_FAILED           = "Failed to record API key last use"
	LOG_MSG_TOUCH_DROPPED          = "Dropped API key last use update, recorder saturated"
	LOG_MSG_VALIDATION_FAILED      = "API key request validation failed"
	LOG_MSG_INVALID_JSON           = "Invalid JSON in request body"
	LOG_MSG_RATE_LIMIT_EXCEEDED    = "Rate limit exceeded"
	LOG_MSG_RATE_LIMIT_FAILED      = "Rate limit check failed"
	LOG_MSG_ROUTES_REGISTERED      = "API key management routes registered"
	LOG_MSG_SESSION_REJECTED       = "Primary session rejected"

	// Log field names
	LOG_FIELD_USER_ID     = "user_id"
	LOG_FIELD_TENANT_ID   = "tenant_id"
	LOG_FIELD_KEY_ID      = "key_id"
	LOG_FIELD_KEY_PREFIX  = "key_prefix"
	LOG_FIELD_NAME        = "name"
	LOG_FIELD_SCOPE       = "scope"
	LOG_FIELD_SCOPES      = "scopes"
	LOG_FIELD_REASON      = "reason"
	LOG_FIELD_PATH        = "path"
	LOG_FIELD_METHOD      = "method"
	LOG_FIELD_STATUS_CODE = "status_code"
	LOG_FIELD_ERROR       = "error"
	LOG_FIELD_PANIC       = "panic"
	LOG_FIELD_RULE        = "rule"
	LOG_FIELD_LIMIT       = "limit"

	// Response JSON keys
	RESPONSE_KEY_API_KEY   = "apiKey"
	RESPONSE_KEY_API_KEYS  = "apiKeys"
	RESPONSE_KEY_PLAINTEXT = "plaintext"
	RESPONSE_KEY_DELETED   = "deleted"
	RESPONSE_KEY_FIELDS    = "fields"
	RESPONSE_KEY_SCOPE     = "requiredScope"

	// Class names for logging
	CLASS_APIKEY_MANAGER = "APIKeyManager"
	CLASS_APIKEY_SERVICE = "APIKeyService"
	CLASS_AUTHENTICATOR  = "Authenticator"
	CLASS_SCOPE_GUARD    = "ScopeGuard"
	CLASS_LAST_USED      = "LastUsedRecorder"
	CLASS_RATE_LIMITER   = "RateLimiter"
	CLASS_HANDLERS       = "Handlers"
	CLASS_SESSION        = "SessionAuthenticator"
	CLASS_REPOSITORY     = "Repository"
	CLASS_AUDIT          = "Audit"

	// Route path variables
	PATH_VAR_KEY_ID = "id"

	// API endpoint paths
	PATH_API_KEYS        = "/users/me/api-keys"
	PATH_API_KEYS_CREATE = "/users/me/api-keys/create"
	PATH_API_KEY_ID      = "/users/me/api-keys/{id}"
	PATH_API_KEY_REVOKE  = "/users/me/api-keys/{id}/revoke"
	PATH_VERSION         = "/version"
	PATH_METRICS         = "/metrics"
	PATH_HEALTH          = "/health"

	// Validation limits
	MAX_NAME_LENGTH      = 200
	MAX_TENANT_ID_LENGTH = 255
	MAX_USER_ID_LENGTH   = 255
	MAX_SCOPE_LENGTH     = 64
	MAX_SCOPES           = 32
	MAX_REQUEST_BODY     = 16 * 1024

	// Regular expression patterns
	REGEX_SCOPE = `^[A-Za-z0-9][A-Za-z0-9:._\-]*$`

	// JSON field names
	JSON_FIELD_USER_ID    = "userId"
	JSON_FIELD_TENANT_ID  = "tenantId"
	JSON_FIELD_NAME       = "name"
	JSON_FIELD_SCOPES     = "scopes"
	JSON_FIELD_EXPIRES_AT = "expiresAt"
	JSON_FIELD_BODY       = "body"

	// Rate limit rule targets
	RATE_LIMIT_TARGET_KEY    = "key"
	RATE_LIMIT_TARGET_USER   = "user"
	RATE_LIMIT_TARGET_TENANT = "tenant"

	// Operation identifiers (tracing, metrics)
	OPERATION_CREATE_APIKEY = "create_apikey"
	OPERATION_LIST_APIKEYS  = "list_apikeys"
	OPERATION_GET_APIKEY    = "get_apikey"
	OPERATION_REVOKE_APIKEY = "revoke_apikey"
	OPERATION_DELETE_APIKEY = "delete_apikey"
	OPERATION_AUTHENTICATE  = "authenticate_apikey"
	OPERATION_TOUCH         = "touch_apikey"

	// Authentication failure reasons (metrics labels, audit error codes)
	REASON_MALFORMED = "malformed"
	REASON_NOT_FOUND = "not_found"
	REASON_EXPIRED   = "expired"
	REASON_INTERNAL  = "internal"

	// Session token
	SESSION_TOKEN_TYPE = "session"

	// Environment variable prefix for the server binary
	ENV_PREFIX = "APIKEYS"
)

// Durations
const (
	DEFAULT_CACHE_TTL         = 30 * time.Second
	DEFAULT_TOUCH_TIMEOUT     = 5 * time.Second
	DEFAULT_SESSION_TTL       = 15 * time.Minute
	DEFAULT_TOUCH_CONCURRENCY = 64
)

// RateLimitRuleTarget selects the identity a rate limit counter is kept for.
type RateLimitRuleTarget string

const (
	RateLimitRuleTargetKey    RateLimitRuleTarget = RATE_LIMIT_TARGET_KEY
	RateLimitRuleTargetUser   RateLimitRuleTarget = RATE_LIMIT_TARGET_USER
	RateLimitRuleTargetTenant RateLimitRuleTarget = RATE_LIMIT_TARGET_TENANT
)

// contextKey is unexported so only this package can create keys.
type contextKey string

var (
	contextKeyAuthorization contextKey = "apikeys:authorization"
	contextKeySession       contextKey = "apikeys:session"
)
