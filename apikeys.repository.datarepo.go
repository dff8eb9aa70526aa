package apikeys

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/itsatony/go-datarepository"
	"go.uber.org/zap"
)

// DataRepositoryAdapter implements Repository on go-datarepository, so the
// same code runs against its memory and redis backends.
//
// Layout (relative to the datarepository key prefix):
//
//	key:<id>       the record
//	hash:<digest>  index entry pointing at the record id
//	lastused:<id>  last use timestamp, kept apart so touching a key never
//	               rewrites (and so never races with) its revocation
type DataRepositoryAdapter struct {
	repo   datarepository.DataRepository
	logger *zap.Logger
	now    func() time.Time
}

// storedAPIKey is the serialized record. Unlike APIKeyRecord it keeps the hash.
type storedAPIKey struct {
	ID        string     `json:"id"`
	TenantID  *string    `json:"tenantId,omitempty"`
	UserID    string     `json:"userId"`
	Name      string     `json:"name"`
	KeyPrefix string     `json:"keyPrefix"`
	KeyHash   string     `json:"keyHash"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type hashIndexEntry struct {
	KeyID string `json:"keyId"`
}

type lastUsedEntry struct {
	At time.Time `json:"at"`
}

// NewDataRepositoryAdapter creates a new adapter for go-datarepository.
func NewDataRepositoryAdapter(repo datarepository.DataRepository, logger *zap.Logger) (*DataRepositoryAdapter, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataRepositoryAdapter{
		repo:   repo,
		logger: logger.Named(CLASS_REPOSITORY),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func recordIdentifier(id string) datarepository.EntityIdentifier {
	return datarepository.SimpleIdentifier(REPO_KEY_RECORD + REPO_KEY_SEPARATOR + id)
}

func hashIdentifier(hash string) datarepository.EntityIdentifier {
	return datarepository.SimpleIdentifier(REPO_KEY_HASH + REPO_KEY_SEPARATOR + hash)
}

func lastUsedIdentifier(id string) datarepository.EntityIdentifier {
	return datarepository.SimpleIdentifier(REPO_KEY_LAST_USED + REPO_KEY_SEPARATOR + id)
}

// Create implements Repository.Create
func (a *DataRepositoryAdapter) Create(ctx context.Context, data *CreateAPIKeyData) (*APIKeyRecord, error) {
	if data == nil {
		return nil, NewValidationError("data", "cannot be nil")
	}

	id, err := generateKeyID()
	if err != nil {
		return nil, NewInternalError("repository_create_id", err)
	}

	now := a.now()
	stored := &storedAPIKey{
		ID:        id,
		TenantID:  data.TenantID,
		UserID:    data.UserID,
		Name:      data.Name,
		KeyPrefix: data.KeyPrefix,
		KeyHash:   data.KeyHash,
		Scopes:    data.Scopes.Strings(),
		ExpiresAt: data.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := a.repo.Create(ctx, recordIdentifier(id), stored); err != nil {
		return nil, NewInternalError("repository_create", err)
	}

	if err := a.repo.Create(ctx, hashIdentifier(data.KeyHash), &hashIndexEntry{KeyID: id}); err != nil {
		// Without its index the record can never authenticate; drop it.
		if delErr := a.repo.Delete(ctx, recordIdentifier(id)); delErr != nil {
			a.logger.Error("Failed to remove record after index failure",
				zap.String(LOG_FIELD_KEY_ID, id),
				zap.Error(delErr))
		}
		return nil, NewInternalError("repository_create_index", err)
	}

	return stored.toRecord(nil), nil
}

// FindByKeyHash implements Repository.FindByKeyHash
func (a *DataRepositoryAdapter) FindByKeyHash(ctx context.Context, hash string) (*APIKeyRecord, error) {
	if hash == "" {
		return nil, nil
	}

	var entry hashIndexEntry
	if err := a.repo.Read(ctx, hashIdentifier(hash), &entry); err != nil {
		if datarepository.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, NewInternalError("repository_read_index", err)
	}

	record, err := a.FindByID(ctx, entry.KeyID)
	if err != nil || record == nil {
		return nil, err
	}
	// Stale index entries and revoked records are both "absent" here.
	if record.KeyHash != hash || record.IsRevoked() {
		return nil, nil
	}
	return record, nil
}

// FindByID implements Repository.FindByID
func (a *DataRepositoryAdapter) FindByID(ctx context.Context, id string) (*APIKeyRecord, error) {
	stored, err := a.readStored(ctx, id)
	if err != nil || stored == nil {
		return nil, err
	}
	return stored.toRecord(a.readLastUsed(ctx, id)), nil
}

// FindByUserID implements Repository.FindByUserID
func (a *DataRepositoryAdapter) FindByUserID(ctx context.Context, userID string) ([]*APIKeyRecord, error) {
	pattern := REPO_KEY_RECORD + REPO_KEY_SEPARATOR + REPO_KEY_WILDCARD

	_, entities, err := a.repo.List(ctx, pattern)
	if err != nil {
		return nil, NewInternalError("repository_list", err)
	}

	records := make([]*APIKeyRecord, 0)
	for _, entity := range entities {
		var stored storedAPIKey
		if err := decodeEntity(entity, &stored); err != nil {
			a.logger.Warn("Skipping malformed API key entity", zap.Error(err))
			continue
		}
		if stored.UserID != userID {
			continue
		}
		records = append(records, stored.toRecord(a.readLastUsed(ctx, stored.ID)))
	}

	sortNewestFirst(records)
	return records, nil
}

// Revoke implements Repository.Revoke
func (a *DataRepositoryAdapter) Revoke(ctx context.Context, id string) (*APIKeyRecord, error) {
	stored, err := a.readStored(ctx, id)
	if err != nil || stored == nil {
		return nil, err
	}

	if stored.RevokedAt == nil {
		now := a.now()
		stored.RevokedAt = &now
		stored.UpdatedAt = now
		if err := a.repo.Update(ctx, recordIdentifier(id), stored); err != nil {
			if datarepository.IsNotFoundError(err) {
				return nil, nil
			}
			return nil, NewInternalError("repository_revoke", err)
		}
	}

	return stored.toRecord(a.readLastUsed(ctx, id)), nil
}

// UpdateLastUsed implements Repository.UpdateLastUsed
func (a *DataRepositoryAdapter) UpdateLastUsed(ctx context.Context, id string) error {
	stored, err := a.readStored(ctx, id)
	if err != nil {
		return err
	}
	if stored == nil {
		return nil
	}

	if err := a.repo.Upsert(ctx, lastUsedIdentifier(id), &lastUsedEntry{At: a.now()}); err != nil {
		return NewInternalError("repository_touch", err)
	}
	return nil
}

// Delete implements Repository.Delete
func (a *DataRepositoryAdapter) Delete(ctx context.Context, id string) (bool, error) {
	stored, err := a.readStored(ctx, id)
	if err != nil {
		return false, err
	}
	if stored == nil {
		return false, nil
	}

	if err := a.repo.Delete(ctx, recordIdentifier(id)); err != nil {
		if datarepository.IsNotFoundError(err) {
			return false, nil
		}
		return false, NewInternalError("repository_delete", err)
	}

	for _, identifier := range []datarepository.EntityIdentifier{hashIdentifier(stored.KeyHash), lastUsedIdentifier(id)} {
		if err := a.repo.Delete(ctx, identifier); err != nil && !datarepository.IsNotFoundError(err) {
			a.logger.Warn("Failed to remove API key side entry",
				zap.String(LOG_FIELD_KEY_ID, id),
				zap.String("entry", identifier.String()),
				zap.Error(err))
		}
	}
	return true, nil
}

// Ping checks the backend.
func (a *DataRepositoryAdapter) Ping(ctx context.Context) error {
	return a.repo.Ping(ctx)
}

func (a *DataRepositoryAdapter) readStored(ctx context.Context, id string) (*storedAPIKey, error) {
	if id == "" {
		return nil, nil
	}
	var stored storedAPIKey
	if err := a.repo.Read(ctx, recordIdentifier(id), &stored); err != nil {
		if datarepository.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, NewInternalError("repository_read", err)
	}
	return &stored, nil
}

// readLastUsed never fails: a missing or unreadable stamp only hides lastUsedAt.
func (a *DataRepositoryAdapter) readLastUsed(ctx context.Context, id string) *time.Time {
	var entry lastUsedEntry
	if err := a.repo.Read(ctx, lastUsedIdentifier(id), &entry); err != nil {
		if !datarepository.IsNotFoundError(err) {
			a.logger.Debug("Failed to read last use", zap.String(LOG_FIELD_KEY_ID, id), zap.Error(err))
		}
		return nil
	}
	at := entry.At
	return &at
}

func (s *storedAPIKey) toRecord(lastUsedAt *time.Time) *APIKeyRecord {
	return &APIKeyRecord{
		ID:         s.ID,
		TenantID:   s.TenantID,
		UserID:     s.UserID,
		Name:       s.Name,
		KeyPrefix:  s.KeyPrefix,
		KeyHash:    s.KeyHash,
		Scopes:     scopesFromStrings(s.Scopes),
		LastUsedAt: lastUsedAt,
		ExpiresAt:  s.ExpiresAt,
		RevokedAt:  s.RevokedAt,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

// decodeEntity unmarshals a List result. Backends hand entities back as JSON
// strings; other shapes are round-tripped through JSON.
func decodeEntity(entity interface{}, out interface{}) error {
	switch v := entity.(type) {
	case string:
		return json.NewDecoder(strings.NewReader(v)).Decode(out)
	case []byte:
		return json.Unmarshal(v, out)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, out)
	}
}

func sortNewestFirst(records []*APIKeyRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
