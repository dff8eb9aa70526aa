package apikeys

import (
	"context"
	"encoding/json"
	"math/rand"

	"go.uber.org/zap"
)

// StructuredAuditLogger implements AuditProvider by logging audit events as structured JSON
// using the provided Zap logger. This is the default audit implementation.
type StructuredAuditLogger struct {
	logger       *zap.Logger
	sampleRate   float64
	auditSuccess bool
}

// NewStructuredAuditLogger creates a new StructuredAuditLogger
func NewStructuredAuditLogger(logger *zap.Logger, sampleRate float64, auditSuccess bool) *StructuredAuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sampleRate < 0.0 || sampleRate > 1.0 {
		sampleRate = 1.0
	}

	return &StructuredAuditLogger{
		logger:       logger,
		sampleRate:   sampleRate,
		auditSuccess: auditSuccess,
	}
}

func (s *StructuredAuditLogger) shouldSample() bool {
	if s.sampleRate >= 1.0 {
		return true
	}
	return rand.Float64() < s.sampleRate
}

func (s *StructuredAuditLogger) logAuditEvent(event interface{}, eventType string) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to marshal audit event", zap.Error(err), zap.String("event_type", eventType))
		return err
	}

	s.logger.Info("AUDIT_EVENT",
		zap.String("event_type", eventType),
		zap.ByteString("event", eventJSON),
	)
	return nil
}

// LogAuthAttempt logs an authentication attempt event.
// Failures are always logged; successes only when enabled and sampled.
func (s *StructuredAuditLogger) LogAuthAttempt(ctx context.Context, event *AuthAttemptEvent) error {
	if event == nil {
		return nil
	}

	if event.Outcome == OutcomeSuccess {
		if !s.auditSuccess || !s.shouldSample() {
			return nil
		}
	}

	return s.logAuditEvent(event, event.EventType)
}

// LogKeyCreated logs an API key creation event
func (s *StructuredAuditLogger) LogKeyCreated(ctx context.Context, event *KeyLifecycleEvent) error {
	if event == nil {
		return nil
	}
	return s.logAuditEvent(event, EventTypeKeyCreated)
}

// LogKeyRevoked logs an API key revocation event
func (s *StructuredAuditLogger) LogKeyRevoked(ctx context.Context, event *KeyLifecycleEvent) error {
	if event == nil {
		return nil
	}
	return s.logAuditEvent(event, EventTypeKeyRevoked)
}

// LogKeyDeleted logs an API key deletion event
func (s *StructuredAuditLogger) LogKeyDeleted(ctx context.Context, event *KeyLifecycleEvent) error {
	if event == nil {
		return nil
	}
	return s.logAuditEvent(event, EventTypeKeyDeleted)
}

// LogSecurityEvent logs a security-related event. Never sampled.
func (s *StructuredAuditLogger) LogSecurityEvent(ctx context.Context, event *SecurityEvent) error {
	if event == nil {
		return nil
	}

	s.logger.Warn("SECURITY_EVENT",
		zap.String("event_type", event.EventType),
		zap.String("threat_type", event.ThreatType),
		zap.String("severity", event.Severity),
		zap.String("details", event.Details),
		zap.Strings("indicators", event.Indicators),
		zap.String("event_id", event.EventID),
		zap.Time("timestamp", event.Timestamp),
		zap.String(LOG_FIELD_USER_ID, event.Actor.UserID),
		zap.String(LOG_FIELD_KEY_ID, event.Actor.KeyID),
		zap.String("ip_address", event.Actor.IPAddress),
	)
	return nil
}
