// Package apikeys provides API key issuance, authentication and scope authorization middleware.
//
// This file defines the repository contract the service depends on.
// The data layer stays behind it: go-datarepository (memory, redis) and
// PostgreSQL implementations ship with the package.
package apikeys

import (
	"context"
)

// Repository persists API key records.
//
// "Absent" is reported as (nil, nil) so the service alone decides how a
// missing record is surfaced. Infrastructure failures are returned as errors.
//
// All queries must be parameterized or keyed by exact identifiers: the hash
// lookup is an exact match, never a pattern.
type Repository interface {
	// Create stores a new record and returns it with ID and timestamps set.
	Create(ctx context.Context, data *CreateAPIKeyData) (*APIKeyRecord, error)

	// FindByKeyHash returns the record with the given digest.
	// It MUST return (nil, nil) for revoked records, so revocation holds even
	// for callers that skip the service.
	FindByKeyHash(ctx context.Context, hash string) (*APIKeyRecord, error)

	// FindByID returns the record regardless of its state.
	FindByID(ctx context.Context, id string) (*APIKeyRecord, error)

	// FindByUserID returns the user's records, newest first.
	FindByUserID(ctx context.Context, userID string) ([]*APIKeyRecord, error)

	// Revoke sets RevokedAt if not yet set and returns the record.
	// A revoked record is never un-revoked.
	Revoke(ctx context.Context, id string) (*APIKeyRecord, error)

	// UpdateLastUsed stamps LastUsedAt with the current time. It must not
	// touch any other field.
	UpdateLastUsed(ctx context.Context, id string) error

	// Delete hard-removes the record. It returns false if nothing was removed.
	Delete(ctx context.Context, id string) (bool, error)
}
