// Package apikeys provides API key issuance, authentication and scope authorization middleware.
//
// This file contains the business logic service for API key lifecycle operations.
// The service is independent of HTTP frameworks.
package apikeys

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const (
	CACHE_EVICTION_REVOKED = "revoked"
	CACHE_EVICTION_DELETED = "deleted"
)

// APIKeyServiceOptions holds the optional collaborators of APIKeyService.
type APIKeyServiceOptions struct {
	// Generator creates key material. Default: sha256 digests, no HMAC.
	Generator *Generator

	// Toucher records last use after a successful authentication. Default: NoOpToucher.
	Toucher BestEffortToucher

	Observability *Observability

	// CacheSize enables the authentication cache when > 0. Entries live for CacheTTL.
	// Revocations made through another process are seen only after the TTL.
	CacheSize int
	CacheTTL  time.Duration
}

// APIKeyService handles business logic for API key operations.
// This service is framework-agnostic and can be used with any HTTP framework.
type APIKeyService struct {
	repo      Repository
	generator *Generator
	toucher   BestEffortToucher
	obs       *Observability
	logger    *zap.Logger
	cache     *expirable.LRU[string, *APIKeyRecord]
	now       func() time.Time
}

// NewAPIKeyService creates a new API key service.
func NewAPIKeyService(repo Repository, logger *zap.Logger, opts *APIKeyServiceOptions) (*APIKeyService, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts == nil {
		opts = &APIKeyServiceOptions{}
	}

	s := &APIKeyService{
		repo:      repo,
		generator: opts.Generator,
		toucher:   opts.Toucher,
		obs:       opts.Observability,
		logger:    logger.Named(CLASS_APIKEY_SERVICE),
		now:       func() time.Time { return time.Now().UTC() },
	}
	if s.generator == nil {
		s.generator = NewGenerator(nil)
	}
	if s.toucher == nil {
		s.toucher = NoOpToucher{}
	}
	if s.obs == nil {
		s.obs = NewObservability(nil, nil, nil)
	}
	if opts.CacheSize > 0 {
		ttl := opts.CacheTTL
		if ttl <= 0 {
			ttl = DEFAULT_CACHE_TTL
		}
		s.cache = expirable.NewLRU[string, *APIKeyRecord](opts.CacheSize, nil, ttl)
	}

	return s, nil
}

// Generator returns the key material generator used by the service.
func (s *APIKeyService) Generator() *Generator {
	return s.generator
}

// CreateAPIKey issues a new key for userID. The plaintext is returned in the
// result and is never stored or logged.
func (s *APIKeyService) CreateAPIKey(ctx context.Context, userID string, opts CreateAPIKeyOptions) (*CreateAPIKeyResult, error) {
	start := time.Now()
	ctx, span := s.obs.Tracing.StartSpan(ctx, OPERATION_CREATE_APIKEY)
	defer span.End()

	if err := ValidateUserID(userID); err != nil {
		return nil, s.fail(ctx, span, OPERATION_CREATE_APIKEY, err)
	}

	SanitizeCreateOptions(&opts)
	if err := ValidateCreateOptions(&opts); err != nil {
		s.logger.Warn(LOG_MSG_VALIDATION_FAILED,
			zap.String(LOG_FIELD_USER_ID, userID),
			zap.Error(err))
		return nil, s.fail(ctx, span, OPERATION_CREATE_APIKEY, err)
	}

	material, err := s.generator.Generate()
	if err != nil {
		s.logger.Error(ERROR_FAILED_TO_GENERATE_KEY,
			zap.String(LOG_FIELD_USER_ID, userID),
			zap.Error(err))
		return nil, s.fail(ctx, span, OPERATION_CREATE_APIKEY, err)
	}

	record, err := s.repo.Create(ctx, &CreateAPIKeyData{
		UserID:    userID,
		TenantID:  opts.TenantID,
		Name:      opts.Name,
		KeyPrefix: material.Prefix,
		KeyHash:   material.Hash,
		Scopes:    opts.Scopes,
		ExpiresAt: opts.ExpiresAt,
	})
	if err != nil {
		s.logger.Error(ERROR_FAILED_TO_CREATE_API_KEY,
			zap.String(LOG_FIELD_USER_ID, userID),
			zap.Error(err))
		return nil, s.fail(ctx, span, OPERATION_CREATE_APIKEY, wrapInternal(ErrFailedToCreateAPIKey, "service_create", err))
	}

	public := record.Public()
	span.SetAttribute(LOG_FIELD_KEY_ID, record.ID)

	s.logger.Info(LOG_MSG_APIKEY_CREATED,
		zap.String(LOG_FIELD_USER_ID, userID),
		zap.String(LOG_FIELD_KEY_ID, record.ID),
		zap.String(LOG_FIELD_KEY_PREFIX, record.KeyPrefix),
		zap.Strings(LOG_FIELD_SCOPES, public.Scopes))

	event := NewKeyLifecycleEvent(EventTypeKeyCreated, LifecycleOperationCreate, userID, record)
	event.AfterState = public
	s.audit(ctx, event, s.obs.Audit.LogKeyCreated)
	s.obs.Metrics.RecordOperation(ctx, OPERATION_CREATE_APIKEY, time.Since(start), tenantLabels(record.TenantID))

	return &CreateAPIKeyResult{
		APIKey:    public,
		Plaintext: material.Plaintext,
	}, nil
}

// ListAPIKeys returns the keys owned by userID, newest first.
func (s *APIKeyService) ListAPIKeys(ctx context.Context, userID string) ([]*APIKey, error) {
	start := time.Now()
	ctx, span := s.obs.Tracing.StartSpan(ctx, OPERATION_LIST_APIKEYS)
	defer span.End()

	if err := ValidateUserID(userID); err != nil {
		return nil, s.fail(ctx, span, OPERATION_LIST_APIKEYS, err)
	}

	records, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		s.logger.Error(ERROR_FAILED_TO_LIST_API_KEYS,
			zap.String(LOG_FIELD_USER_ID, userID),
			zap.Error(err))
		return nil, s.fail(ctx, span, OPERATION_LIST_APIKEYS, wrapInternal(ErrFailedToListAPIKeys, "service_list", err))
	}

	keys := make([]*APIKey, 0, len(records))
	for _, record := range records {
		keys = append(keys, record.Public())
	}

	span.SetAttribute("count", len(keys))
	s.obs.Metrics.RecordOperation(ctx, OPERATION_LIST_APIKEYS, time.Since(start), nil)
	return keys, nil
}

// GetAPIKey returns one key owned by userID.
func (s *APIKeyService) GetAPIKey(ctx context.Context, userID, keyID string) (*APIKey, error) {
	start := time.Now()
	ctx, span := s.obs.Tracing.StartSpan(ctx, OPERATION_GET_APIKEY)
	defer span.End()

	record, err := s.loadOwned(ctx, userID, keyID)
	if err != nil {
		return nil, s.fail(ctx, span, OPERATION_GET_APIKEY, err)
	}

	s.obs.Metrics.RecordOperation(ctx, OPERATION_GET_APIKEY, time.Since(start), tenantLabels(record.TenantID))
	return record.Public(), nil
}

// RevokeAPIKey marks a key revoked. Revoking an already revoked key succeeds
// and returns the record unchanged.
func (s *APIKeyService) RevokeAPIKey(ctx context.Context, userID, keyID string) (*APIKey, error) {
	start := time.Now()
	ctx, span := s.obs.Tracing.StartSpan(ctx, OPERATION_REVOKE_APIKEY)
	defer span.End()

	existing, err := s.loadOwned(ctx, userID, keyID)
	if err != nil {
		return nil, s.fail(ctx, span, OPERATION_REVOKE_APIKEY, err)
	}

	if existing.IsRevoked() {
		s.logger.Info(LOG_MSG_APIKEY_ALREADY_REVOKED,
			zap.String(LOG_FIELD_USER_ID, userID),
			zap.String(LOG_FIELD_KEY_ID, keyID))
		s.evict(ctx, existing.KeyHash, CACHE_EVICTION_REVOKED)
		return existing.Public(), nil
	}

	revoked, err := s.repo.Revoke(ctx, keyID)
	if err != nil {
		s.logger.Error(ERROR_FAILED_TO_REVOKE_API_KEY,
			zap.String(LOG_FIELD_USER_ID, userID),
			zap.String(LOG_FIELD_KEY_ID, keyID),
			zap.Error(err))
		return nil, s.fail(ctx, span, OPERATION_REVOKE_APIKEY, wrapInternal(ErrFailedToRevokeAPIKey, "service_revoke", err))
	}
	s.evict(ctx, existing.KeyHash, CACHE_EVICTION_REVOKED)
	if revoked == nil {
		// deleted between the ownership check and the update
		return nil, s.fail(ctx, span, OPERATION_REVOKE_APIKEY, ErrAPIKeyNotFound)
	}

	s.logger.Info(LOG_MSG_APIKEY_REVOKED,
		zap.String(LOG_FIELD_USER_ID, userID),
		zap.String(LOG_FIELD_KEY_ID, keyID))

	event := NewKeyLifecycleEvent(EventTypeKeyRevoked, LifecycleOperationRevoke, userID, revoked)
	event.BeforeState = existing.Public()
	event.AfterState = revoked.Public()
	s.audit(ctx, event, s.obs.Audit.LogKeyRevoked)
	s.obs.Metrics.RecordOperation(ctx, OPERATION_REVOKE_APIKEY, time.Since(start), tenantLabels(revoked.TenantID))

	return revoked.Public(), nil
}

// DeleteAPIKey permanently removes a key. A key that is missing, owned by
// someone else or removed concurrently yields ErrAPIKeyNotFound.
func (s *APIKeyService) DeleteAPIKey(ctx context.Context, userID, keyID string) (bool, error) {
	start := time.Now()
	ctx, span := s.obs.Tracing.StartSpan(ctx, OPERATION_DELETE_APIKEY)
	defer span.End()

	existing, err := s.loadOwned(ctx, userID, keyID)
	if err != nil {
		return false, s.fail(ctx, span, OPERATION_DELETE_APIKEY, err)
	}

	deleted, err := s.repo.Delete(ctx, keyID)
	if err != nil {
		s.logger.Error(ERROR_FAILED_TO_DELETE_API_KEY,
			zap.String(LOG_FIELD_USER_ID, userID),
			zap.String(LOG_FIELD_KEY_ID, keyID),
			zap.Error(err))
		return false, s.fail(ctx, span, OPERATION_DELETE_APIKEY, wrapInternal(ErrFailedToDeleteAPIKey, "service_delete", err))
	}
	s.evict(ctx, existing.KeyHash, CACHE_EVICTION_DELETED)
	if !deleted {
		return false, s.fail(ctx, span, OPERATION_DELETE_APIKEY, ErrAPIKeyNotFound)
	}

	s.logger.Info(LOG_MSG_APIKEY_DELETED,
		zap.String(LOG_FIELD_USER_ID, userID),
		zap.String(LOG_FIELD_KEY_ID, keyID))

	event := NewKeyLifecycleEvent(EventTypeKeyDeleted, LifecycleOperationDelete, userID, existing)
	event.BeforeState = existing.Public()
	s.audit(ctx, event, s.obs.Audit.LogKeyDeleted)
	s.obs.Metrics.RecordOperation(ctx, OPERATION_DELETE_APIKEY, time.Since(start), tenantLabels(existing.TenantID))

	return true, nil
}

// Authenticate resolves a presented plaintext key into an AuthorizationContext.
// Unknown, revoked and malformed keys all return ErrInvalidAPIKey; an expired
// key returns ErrAPIKeyExpired. Repository failures are internal errors and
// never authenticate.
func (s *APIKeyService) Authenticate(ctx context.Context, plaintext string) (*AuthorizationContext, error) {
	start := time.Now()
	ctx, span := s.obs.Tracing.StartSpan(ctx, OPERATION_AUTHENTICATE)
	defer span.End()

	if plaintext == "" {
		return nil, s.rejectAuth(ctx, span, start, REASON_MALFORMED, ErrInvalidAPIKey)
	}

	digest := s.generator.Digester().Digest(plaintext)

	record, cacheHit, err := s.lookup(ctx, digest)
	if err != nil {
		s.logger.Error(LOG_MSG_LOOKUP_FAILED, zap.Error(err))
		return nil, s.rejectAuth(ctx, span, start, REASON_INTERNAL, wrapInternal(ErrFailedToLookupAPIKey, "service_authenticate", err))
	}
	if record == nil || record.IsRevoked() {
		return nil, s.rejectAuth(ctx, span, start, REASON_NOT_FOUND, ErrInvalidAPIKey)
	}
	if record.IsExpired(s.now()) {
		return nil, s.rejectAuth(ctx, span, start, REASON_EXPIRED, ErrAPIKeyExpired)
	}

	s.toucher.Touch(ctx, record.ID)

	span.SetAttribute(LOG_FIELD_KEY_ID, record.ID)
	labels := tenantLabels(record.TenantID)
	labels[LABEL_CACHE_HIT] = boolLabel(cacheHit)
	s.obs.Metrics.RecordAuthAttempt(ctx, true, time.Since(start), labels)

	return newAuthorizationContext(record), nil
}

// lookup consults the cache before the repository. Only active records are cached.
func (s *APIKeyService) lookup(ctx context.Context, digest string) (*APIKeyRecord, bool, error) {
	if s.cache != nil {
		if record, ok := s.cache.Get(digest); ok {
			s.obs.Metrics.RecordCacheHit(ctx)
			return record, true, nil
		}
		s.obs.Metrics.RecordCacheMiss(ctx)
	}

	record, err := s.repo.FindByKeyHash(ctx, digest)
	if err != nil {
		return nil, false, err
	}
	if record != nil && s.cache != nil && !record.IsRevoked() {
		s.cache.Add(digest, record)
	}
	return record, false, nil
}

func (s *APIKeyService) evict(ctx context.Context, digest, reason string) {
	if s.cache == nil || digest == "" {
		return
	}
	if s.cache.Remove(digest) {
		s.obs.Metrics.RecordCacheEviction(ctx, reason)
	}
}

// loadOwned fetches keyID and checks it belongs to userID. Missing and
// foreign keys produce the same ErrAPIKeyNotFound.
func (s *APIKeyService) loadOwned(ctx context.Context, userID, keyID string) (*APIKeyRecord, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	if keyID == "" {
		return nil, ErrMissingKeyID
	}

	record, err := s.repo.FindByID(ctx, keyID)
	if err != nil {
		s.logger.Error(LOG_MSG_LOOKUP_FAILED,
			zap.String(LOG_FIELD_KEY_ID, keyID),
			zap.Error(err))
		return nil, wrapInternal(ErrFailedToLookupAPIKey, "service_load", err)
	}
	if record == nil || record.UserID != userID {
		s.logger.Debug(LOG_MSG_APIKEY_NOT_OWNED,
			zap.String(LOG_FIELD_USER_ID, userID),
			zap.String(LOG_FIELD_KEY_ID, keyID))
		return nil, ErrAPIKeyNotFound
	}
	return record, nil
}

func (s *APIKeyService) fail(ctx context.Context, span Span, operation string, err error) error {
	span.RecordError(err)
	s.obs.Metrics.RecordOperationError(ctx, operation, errorType(err))
	return err
}

func (s *APIKeyService) rejectAuth(ctx context.Context, span Span, start time.Time, reason string, err error) error {
	span.SetAttribute(LOG_FIELD_REASON, reason)
	if reason == REASON_INTERNAL {
		span.RecordError(err)
	}
	labels := map[string]string{LABEL_REASON: reason}
	s.obs.Metrics.RecordAuthAttempt(ctx, false, time.Since(start), labels)
	s.obs.Metrics.RecordAuthError(ctx, reason, labels)
	return err
}

func (s *APIKeyService) audit(ctx context.Context, event *KeyLifecycleEvent, log func(context.Context, *KeyLifecycleEvent) error) {
	s.obs.stampTrace(ctx, &event.BaseAuditEvent)
	if err := log(ctx, event); err != nil {
		s.logger.Warn("Failed to write audit event",
			zap.String("event_type", event.EventType),
			zap.Error(err))
	}
}

func tenantLabels(tenantID *string) map[string]string {
	labels := map[string]string{}
	if tenantID != nil {
		labels[LABEL_TENANT_ID] = *tenantID
	}
	return labels
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// errorType classifies an error for the operation_errors metric.
func errorType(err error) string {
	var verrs *ValidationErrors
	switch {
	case errors.As(err, &verrs), errors.Is(err, ErrInvalidInput):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}
