package apikeys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/itsatony/go-datarepository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errInjected = errors.New("injected failure")

// =============================================================================
// In-memory Repository with error injection
// =============================================================================

type memoryRepository struct {
	mu      sync.Mutex
	records map[string]*APIKeyRecord
	seq     int
	base    time.Time

	createErr       error
	findByHashErr   error
	findByIDErr     error
	findByUserErr   error
	revokeErr       error
	updateLastErr   error
	deleteErr       error
	findByHashPanic bool
	revokeReturnNil bool
	deleteReturnsNo bool

	findByHashCalls int
	touches         int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		records: make(map[string]*APIKeyRecord),
		base:    time.Now().UTC(),
	}
}

func copyRecord(r *APIKeyRecord) *APIKeyRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Scopes = append(Scopes(nil), r.Scopes...)
	return &c
}

func (m *memoryRepository) Create(ctx context.Context, data *CreateAPIKeyData) (*APIKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.seq++
	// strictly increasing timestamps keep newest-first ordering deterministic
	created := m.base.Add(time.Duration(m.seq) * time.Millisecond)
	record := &APIKeyRecord{
		ID:        fmt.Sprintf("ak_test%04d", m.seq),
		TenantID:  data.TenantID,
		UserID:    data.UserID,
		Name:      data.Name,
		KeyPrefix: data.KeyPrefix,
		KeyHash:   data.KeyHash,
		Scopes:    append(Scopes(nil), data.Scopes...),
		ExpiresAt: data.ExpiresAt,
		CreatedAt: created,
		UpdatedAt: created,
	}
	m.records[record.ID] = record
	return copyRecord(record), nil
}

func (m *memoryRepository) FindByKeyHash(ctx context.Context, hash string) (*APIKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findByHashCalls++
	if m.findByHashPanic {
		panic("repository exploded")
	}
	if m.findByHashErr != nil {
		return nil, m.findByHashErr
	}
	for _, r := range m.records {
		if r.KeyHash == hash && r.RevokedAt == nil {
			return copyRecord(r), nil
		}
	}
	return nil, nil
}

func (m *memoryRepository) FindByID(ctx context.Context, id string) (*APIKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	return copyRecord(m.records[id]), nil
}

func (m *memoryRepository) FindByUserID(ctx context.Context, userID string) ([]*APIKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findByUserErr != nil {
		return nil, m.findByUserErr
	}
	out := make([]*APIKeyRecord, 0)
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, copyRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryRepository) Revoke(ctx context.Context, id string) (*APIKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revokeErr != nil {
		return nil, m.revokeErr
	}
	if m.revokeReturnNil {
		return nil, nil
	}
	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	if r.RevokedAt == nil {
		now := time.Now().UTC()
		r.RevokedAt = &now
		r.UpdatedAt = now
	}
	return copyRecord(r), nil
}

func (m *memoryRepository) UpdateLastUsed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touches++
	if m.updateLastErr != nil {
		return m.updateLastErr
	}
	if r, ok := m.records[id]; ok {
		now := time.Now().UTC()
		r.LastUsedAt = &now
	}
	return nil
}

func (m *memoryRepository) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	if m.deleteReturnsNo {
		return false, nil
	}
	if _, ok := m.records[id]; !ok {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}

func (m *memoryRepository) touchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touches
}

func (m *memoryRepository) hashLookups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findByHashCalls
}

func (m *memoryRepository) get(id string) *APIKeyRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRecord(m.records[id])
}

// expire moves the expiry of a stored record into the past.
func (m *memoryRepository) expire(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	past := time.Now().UTC().Add(-time.Minute)
	m.records[id].ExpiresAt = &past
}

// =============================================================================
// Recording observability providers
// =============================================================================

type recordedAuthAttempt struct {
	success bool
	labels  map[string]string
}

type recordingMetrics struct {
	mu              sync.Mutex
	authAttempts    []recordedAuthAttempt
	authErrors      []string
	operations      []string
	operationErrors []string
	scopeDenials    []string
	lastUsed        []string
	cacheHits       int
	cacheMisses     int
	evictions       []string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{}
}

func (m *recordingMetrics) RecordAuthAttempt(ctx context.Context, success bool, latency time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	m.authAttempts = append(m.authAttempts, recordedAuthAttempt{success: success, labels: copied})
}

func (m *recordingMetrics) RecordAuthError(ctx context.Context, reason string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authErrors = append(m.authErrors, reason)
}

func (m *recordingMetrics) RecordOperation(ctx context.Context, operation string, latency time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations = append(m.operations, operation)
}

func (m *recordingMetrics) RecordOperationError(ctx context.Context, operation string, errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operationErrors = append(m.operationErrors, operation+":"+errorType)
}

func (m *recordingMetrics) RecordScopeDenied(ctx context.Context, scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopeDenials = append(m.scopeDenials, scope)
}

func (m *recordingMetrics) RecordLastUsedUpdate(ctx context.Context, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUsed = append(m.lastUsed, outcome)
}

func (m *recordingMetrics) RecordCacheHit(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits++
}

func (m *recordingMetrics) RecordCacheMiss(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheMisses++
}

func (m *recordingMetrics) RecordCacheEviction(ctx context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictions = append(m.evictions, reason)
}

func (m *recordingMetrics) attempts() []recordedAuthAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedAuthAttempt(nil), m.authAttempts...)
}

func (m *recordingMetrics) lastUsedOutcomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lastUsed...)
}

type recordingAudit struct {
	mu           sync.Mutex
	authAttempts []*AuthAttemptEvent
	created      []*KeyLifecycleEvent
	revoked      []*KeyLifecycleEvent
	deleted      []*KeyLifecycleEvent
	security     []*SecurityEvent
	err          error
}

func newRecordingAudit() *recordingAudit {
	return &recordingAudit{}
}

func (a *recordingAudit) LogAuthAttempt(ctx context.Context, event *AuthAttemptEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.authAttempts = append(a.authAttempts, event)
	return a.err
}

func (a *recordingAudit) LogKeyCreated(ctx context.Context, event *KeyLifecycleEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created = append(a.created, event)
	return a.err
}

func (a *recordingAudit) LogKeyRevoked(ctx context.Context, event *KeyLifecycleEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked = append(a.revoked, event)
	return a.err
}

func (a *recordingAudit) LogKeyDeleted(ctx context.Context, event *KeyLifecycleEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, event)
	return a.err
}

func (a *recordingAudit) LogSecurityEvent(ctx context.Context, event *SecurityEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.security = append(a.security, event)
	return a.err
}

// =============================================================================
// Mock go-datarepository backend
// =============================================================================

type mockDataRepository struct {
	mu   sync.Mutex
	data map[string]string // JSON strings, as the real backends return them
	ttl  map[string]time.Duration

	createErrOn map[string]error // keyed by identifier prefix
	readError   error
	updateError error
	deleteError error
	listError   error
	upsertError error
	incrError   error
	expireError error
}

func newMockDataRepository() *mockDataRepository {
	return &mockDataRepository{
		data:        make(map[string]string),
		ttl:         make(map[string]time.Duration),
		createErrOn: make(map[string]error),
	}
}

func (m *mockDataRepository) Create(ctx context.Context, id datarepository.EntityIdentifier, entity interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for prefix, err := range m.createErrOn {
		if strings.HasPrefix(id.String(), prefix) {
			return err
		}
	}
	if _, exists := m.data[id.String()]; exists {
		return errors.New("already exists")
	}
	raw, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	m.data[id.String()] = string(raw)
	return nil
}

func (m *mockDataRepository) Upsert(ctx context.Context, id datarepository.EntityIdentifier, entity interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertError != nil {
		return m.upsertError
	}
	raw, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	m.data[id.String()] = string(raw)
	return nil
}

func (m *mockDataRepository) Read(ctx context.Context, id datarepository.EntityIdentifier, entity interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readError != nil {
		return m.readError
	}
	raw, exists := m.data[id.String()]
	if !exists {
		return datarepository.ErrNotFound
	}
	return json.Unmarshal([]byte(raw), entity)
}

func (m *mockDataRepository) Update(ctx context.Context, id datarepository.EntityIdentifier, entity interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateError != nil {
		return m.updateError
	}
	if _, exists := m.data[id.String()]; !exists {
		return datarepository.ErrNotFound
	}
	raw, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	m.data[id.String()] = string(raw)
	return nil
}

func (m *mockDataRepository) Delete(ctx context.Context, id datarepository.EntityIdentifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteError != nil {
		return m.deleteError
	}
	if _, exists := m.data[id.String()]; !exists {
		return datarepository.ErrNotFound
	}
	delete(m.data, id.String())
	return nil
}

// List supports the trailing "*" patterns used by the adapter.
func (m *mockDataRepository) List(ctx context.Context, pattern string) ([]datarepository.EntityIdentifier, []interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listError != nil {
		return nil, nil, m.listError
	}
	prefix := strings.TrimSuffix(pattern, REPO_KEY_WILDCARD)

	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	ids := make([]datarepository.EntityIdentifier, 0, len(keys))
	entities := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, datarepository.SimpleIdentifier(key))
		entities = append(entities, m.data[key])
	}
	return ids, entities, nil
}

func (m *mockDataRepository) Search(ctx context.Context, query string, offset, limit int, sortBy, sortDir string) ([]datarepository.EntityIdentifier, error) {
	return nil, nil
}

func (m *mockDataRepository) AcquireLock(ctx context.Context, id datarepository.EntityIdentifier, ttl time.Duration) (bool, error) {
	return true, nil
}

func (m *mockDataRepository) ReleaseLock(ctx context.Context, id datarepository.EntityIdentifier) error {
	return nil
}

func (m *mockDataRepository) AtomicIncrement(ctx context.Context, id datarepository.EntityIdentifier) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrError != nil {
		return 0, m.incrError
	}
	var count int64
	if raw, ok := m.data[id.String()]; ok {
		count, _ = strconv.ParseInt(raw, 10, 64)
	}
	count++
	m.data[id.String()] = strconv.FormatInt(count, 10)
	return count, nil
}

func (m *mockDataRepository) Close() error {
	return nil
}

func (m *mockDataRepository) Publish(ctx context.Context, channel string, message interface{}) error {
	return nil
}

func (m *mockDataRepository) Subscribe(ctx context.Context, channel string) (chan interface{}, error) {
	ch := make(chan interface{})
	close(ch)
	return ch, nil
}

func (m *mockDataRepository) Ping(ctx context.Context) error {
	return nil
}

func (m *mockDataRepository) SetExpiration(ctx context.Context, id datarepository.EntityIdentifier, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expireError != nil {
		return m.expireError
	}
	m.ttl[id.String()] = expiration
	return nil
}

func (m *mockDataRepository) GetExpiration(ctx context.Context, id datarepository.EntityIdentifier) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttl[id.String()], nil
}

func (m *mockDataRepository) RegisterPlugin(plugin datarepository.RepositoryPlugin) error {
	return nil
}

func (m *mockDataRepository) GetPlugin(name string) (datarepository.RepositoryPlugin, bool) {
	return nil, false
}

func (m *mockDataRepository) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.data))
	for key := range m.data {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (m *mockDataRepository) setDeleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteError = err
}

// =============================================================================
// Fixtures
// =============================================================================

type serviceFixture struct {
	repo    *memoryRepository
	metrics *recordingMetrics
	audit   *recordingAudit
	service *APIKeyService
}

func newServiceFixture(t *testing.T, opts *APIKeyServiceOptions) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:    newMemoryRepository(),
		metrics: newRecordingMetrics(),
		audit:   newRecordingAudit(),
	}
	if opts == nil {
		opts = &APIKeyServiceOptions{}
	}
	if opts.Observability == nil {
		opts.Observability = NewObservability(f.metrics, f.audit, nil)
	}
	svc, err := NewAPIKeyService(f.repo, zaptest.NewLogger(t), opts)
	require.NoError(t, err)
	f.service = svc
	return f
}

func (f *serviceFixture) create(t *testing.T, userID, name string, scopes ...string) *CreateAPIKeyResult {
	t.Helper()
	result, err := f.service.CreateAPIKey(context.Background(), userID, CreateAPIKeyOptions{
		Name:   name,
		Scopes: MustParseScopes(scopes...),
	})
	require.NoError(t, err)
	return result
}

func bearer(token string) string {
	return AUTH_SCHEME_BEARER + " " + token
}

func stringPtr(s string) *string {
	return &s
}
