package apikeys

import (
	"time"

	"github.com/google/uuid"
)

// BaseAuditEvent contains fields common to all audit events
type BaseAuditEvent struct {
	// EventID is a unique identifier for this event (UUID v4)
	EventID string `json:"event_id"`

	// EventType categorizes the event (e.g., "auth.attempt", "key.created")
	EventType string `json:"event_type"`

	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`

	// Actor identifies who performed the action
	Actor ActorInfo `json:"actor"`

	// Resource identifies what was affected
	Resource ResourceInfo `json:"resource"`

	// Outcome indicates the result ("success", "failure", "blocked")
	Outcome string `json:"outcome"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// TraceID links this event to distributed traces (OpenTelemetry format)
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// ActorInfo identifies who performed an action.
// KeyPrefix is the display prefix only; plaintext and digests never appear in audit output.
type ActorInfo struct {
	UserID    string `json:"user_id,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	KeyID     string `json:"key_id,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ResourceInfo identifies what was affected by an action
type ResourceInfo struct {
	// Type is the resource type ("api_key", "endpoint", etc.)
	Type string `json:"type"`

	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// AuthAttemptEvent represents an authentication attempt
type AuthAttemptEvent struct {
	BaseAuditEvent

	// Method is the authentication method used ("api_key")
	Method string `json:"method"`

	// KeyProvided indicates whether a bearer credential was present at all
	KeyProvided bool `json:"key_provided"`

	// KeyValid indicates whether the provided key authenticated
	KeyValid bool `json:"key_valid"`

	LatencyMS  int64  `json:"latency_ms"`
	Endpoint   string `json:"endpoint"`
	HTTPMethod string `json:"http_method"`

	// ErrorCode is the response code when authentication failed
	ErrorCode string `json:"error_code,omitempty"`
}

// KeyLifecycleEvent represents API key creation, revocation or deletion
type KeyLifecycleEvent struct {
	BaseAuditEvent

	// Operation is the lifecycle operation ("create", "revoke", "delete")
	Operation string `json:"operation"`

	TargetUserID   string `json:"target_user_id"`
	TargetTenantID string `json:"target_tenant_id,omitempty"`

	BeforeState *APIKey `json:"before_state,omitempty"`
	AfterState  *APIKey `json:"after_state,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// SecurityEvent represents a security-related event (scope denials, rate limiting)
type SecurityEvent struct {
	BaseAuditEvent

	// ThreatType categorizes the threat ("insufficient_scope", "rate_limit_exceeded")
	ThreatType string `json:"threat_type"`

	// Severity indicates the threat severity ("low", "medium", "high", "critical")
	Severity string `json:"severity"`

	Details    string   `json:"details"`
	Indicators []string `json:"indicators,omitempty"`
}

// NewBaseAuditEvent creates a new BaseAuditEvent with common fields initialized
func NewBaseAuditEvent(eventType string, actor ActorInfo, resource ResourceInfo, outcome string) BaseAuditEvent {
	return BaseAuditEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Resource:  resource,
		Outcome:   outcome,
		Metadata:  make(map[string]interface{}),
	}
}

// NewKeyLifecycleEvent builds a lifecycle event for a key owned by record.
// The actor is the session user performing the operation.
func NewKeyLifecycleEvent(eventType, operation, actorUserID string, record *APIKeyRecord) *KeyLifecycleEvent {
	event := &KeyLifecycleEvent{
		BaseAuditEvent: NewBaseAuditEvent(
			eventType,
			ActorInfo{UserID: actorUserID},
			ResourceInfo{Type: ResourceTypeAPIKey},
			OutcomeSuccess,
		),
		Operation: operation,
	}
	if record != nil {
		event.Resource.ID = record.ID
		event.Resource.Name = record.Name
		event.TargetUserID = record.UserID
		if record.TenantID != nil {
			event.TargetTenantID = *record.TenantID
			event.Actor.TenantID = *record.TenantID
		}
	}
	return event
}

// Event type constants
const (
	EventTypeAuthAttempt     = "auth.attempt"
	EventTypeKeyCreated      = "key.created"
	EventTypeKeyRevoked      = "key.revoked"
	EventTypeKeyDeleted      = "key.deleted"
	EventTypeSecurityBlocked = "security.blocked"
)

// Lifecycle operation constants
const (
	LifecycleOperationCreate = "create"
	LifecycleOperationRevoke = "revoke"
	LifecycleOperationDelete = "delete"
)

const (
	ResourceTypeAPIKey   = "api_key"
	ResourceTypeEndpoint = "endpoint"

	AuthMethodAPIKey = "api_key"
)

// Outcome constants
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeBlocked = "blocked"
)

// Threat type constants
const (
	ThreatTypeInsufficientScope = "insufficient_scope"
	ThreatTypeRateLimitExceeded = "rate_limit_exceeded"
)

// Severity constants
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)
