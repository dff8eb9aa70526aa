package apikeys

import (
	"time"
)

// KeyStatus is the authentication state of a record at a point in time.
type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "active"
	KeyStatusExpired KeyStatus = "expired"
	KeyStatusRevoked KeyStatus = "revoked"
)

// APIKeyRecord is the persisted form of an API key.
// KeyHash is never serialized; use Public for anything leaving the service.
type APIKeyRecord struct {
	ID         string     `json:"id"`
	TenantID   *string    `json:"tenantId,omitempty"`
	UserID     string     `json:"userId"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"keyPrefix"`
	KeyHash    string     `json:"-"`
	Scopes     Scopes     `json:"scopes"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// IsRevoked reports whether the key was revoked. Revocation is permanent.
func (r *APIKeyRecord) IsRevoked() bool {
	return r.RevokedAt != nil
}

// IsExpired reports whether the key expired at or before now.
func (r *APIKeyRecord) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// Status reports the record state. A key can be revoked and expired at once;
// revoked wins.
func (r *APIKeyRecord) Status(now time.Time) KeyStatus {
	switch {
	case r.IsRevoked():
		return KeyStatusRevoked
	case r.IsExpired(now):
		return KeyStatusExpired
	default:
		return KeyStatusActive
	}
}

// Public returns the shape exposed to callers. It has no hash field.
func (r *APIKeyRecord) Public() *APIKey {
	if r == nil {
		return nil
	}
	scopes := r.Scopes.Strings()
	return &APIKey{
		ID:         r.ID,
		TenantID:   r.TenantID,
		UserID:     r.UserID,
		Name:       r.Name,
		KeyPrefix:  r.KeyPrefix,
		Scopes:     scopes,
		Status:     r.Status(time.Now()),
		LastUsedAt: r.LastUsedAt,
		ExpiresAt:  r.ExpiresAt,
		RevokedAt:  r.RevokedAt,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// APIKey is the public view of a record.
type APIKey struct {
	ID         string     `json:"id"`
	TenantID   *string    `json:"tenantId"`
	UserID     string     `json:"userId"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"keyPrefix"`
	Scopes     []string   `json:"scopes"`
	Status     KeyStatus  `json:"status"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	RevokedAt  *time.Time `json:"revokedAt"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// CreateAPIKeyOptions is the caller input of APIKeyService.CreateAPIKey.
// A past ExpiresAt is accepted; such a key never authenticates.
type CreateAPIKeyOptions struct {
	Name      string     `json:"name" validate:"required,max=200"`
	Scopes    Scopes     `json:"scopes" validate:"-"`
	TenantID  *string    `json:"tenantId" validate:"omitempty,min=1,max=255"`
	ExpiresAt *time.Time `json:"expiresAt" validate:"-"`
}

// CreateAPIKeyResult carries the only copy of the plaintext credential.
type CreateAPIKeyResult struct {
	APIKey    *APIKey `json:"apiKey"`
	Plaintext string  `json:"plaintext"`
}

// CreateAPIKeyData is what the service hands to Repository.Create.
type CreateAPIKeyData struct {
	UserID    string
	TenantID  *string
	Name      string
	KeyPrefix string
	KeyHash   string
	Scopes    Scopes
	ExpiresAt *time.Time
}

// AuthorizationContext is attached to a request after successful API key
// authentication. It lives for one request only.
type AuthorizationContext struct {
	UserID   string  `json:"userId"`
	KeyID    string  `json:"keyId"`
	Scopes   Scopes  `json:"scopes"`
	TenantID *string `json:"tenantId,omitempty"`
}

// HasScope reports whether the context grants the required scope.
// Pure; safe to call any number of times.
func (a *AuthorizationContext) HasScope(required Scope) bool {
	if a == nil {
		return false
	}
	return a.Scopes.Allows(required)
}

// newAuthorizationContext copies the scopes so handlers cannot mutate a cached record.
func newAuthorizationContext(record *APIKeyRecord) *AuthorizationContext {
	scopes := make(Scopes, len(record.Scopes))
	copy(scopes, record.Scopes)
	return &AuthorizationContext{
		UserID:   record.UserID,
		KeyID:    record.ID,
		Scopes:   scopes,
		TenantID: record.TenantID,
	}
}
