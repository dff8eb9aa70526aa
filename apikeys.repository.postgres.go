package apikeys

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	MIGRATE_UP   = "up"
	MIGRATE_DOWN = "down"

	apiKeyColumns = `id, tenant_id, user_id, name, key_prefix, key_hash, scopes,
		last_used_at, expires_at, revoked_at, created_at, updated_at`
)

// PostgresRepository implements Repository on PostgreSQL.
// Every statement is parameterized; revocation is a single UPDATE so it is
// as linearizable as the database itself.
type PostgresRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
	now    func() time.Time
}

// apiKeyRow mirrors the api_keys table.
type apiKeyRow struct {
	ID         string         `db:"id"`
	TenantID   *string        `db:"tenant_id"`
	UserID     string         `db:"user_id"`
	Name       string         `db:"name"`
	KeyPrefix  string         `db:"key_prefix"`
	KeyHash    string         `db:"key_hash"`
	Scopes     pq.StringArray `db:"scopes"`
	LastUsedAt *time.Time     `db:"last_used_at"`
	ExpiresAt  *time.Time     `db:"expires_at"`
	RevokedAt  *time.Time     `db:"revoked_at"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r *apiKeyRow) toRecord() *APIKeyRecord {
	return &APIKeyRecord{
		ID:         r.ID,
		TenantID:   r.TenantID,
		UserID:     r.UserID,
		Name:       r.Name,
		KeyPrefix:  r.KeyPrefix,
		KeyHash:    r.KeyHash,
		Scopes:     scopesFromStrings(r.Scopes),
		LastUsedAt: r.LastUsedAt,
		ExpiresAt:  r.ExpiresAt,
		RevokedAt:  r.RevokedAt,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// OpenPostgres connects to dsn and configures the pool.
func OpenPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// RunMigrations applies (up) or rolls back (down) the embedded schema migrations.
func RunMigrations(db *sql.DB, direction string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	switch direction {
	case MIGRATE_UP:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	case MIGRATE_DOWN:
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to rollback migrations: %w", err)
		}
	default:
		return fmt.Errorf("%w: unknown migration direction %q", ErrInvalidConfiguration, direction)
	}

	return nil
}

// NewPostgresRepository wraps an open database handle.
func NewPostgresRepository(db *sqlx.DB, logger *zap.Logger) (*PostgresRepository, error) {
	if db == nil {
		return nil, ErrRepositoryRequired
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresRepository{
		db:     db,
		logger: logger.Named(CLASS_REPOSITORY),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create implements Repository.Create
func (p *PostgresRepository) Create(ctx context.Context, data *CreateAPIKeyData) (*APIKeyRecord, error) {
	if data == nil {
		return nil, NewValidationError("data", "cannot be nil")
	}

	id, err := generateKeyID()
	if err != nil {
		return nil, NewInternalError("repository_create_id", err)
	}

	now := p.now()
	row := &apiKeyRow{
		ID:        id,
		TenantID:  data.TenantID,
		UserID:    data.UserID,
		Name:      data.Name,
		KeyPrefix: data.KeyPrefix,
		KeyHash:   data.KeyHash,
		Scopes:    pq.StringArray(data.Scopes.Strings()),
		ExpiresAt: data.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO api_keys (id, tenant_id, user_id, name, key_prefix, key_hash, scopes, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = p.db.ExecContext(ctx, query,
		row.ID,
		row.TenantID,
		row.UserID,
		row.Name,
		row.KeyPrefix,
		row.KeyHash,
		row.Scopes,
		row.ExpiresAt,
		row.CreatedAt,
		row.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			p.logger.Error("Insert rejected by database",
				zap.String("pq_code", string(pqErr.Code)),
				zap.String(LOG_FIELD_USER_ID, data.UserID))
		}
		return nil, NewInternalError("repository_create", err)
	}

	return row.toRecord(), nil
}

// FindByKeyHash implements Repository.FindByKeyHash
func (p *PostgresRepository) FindByKeyHash(ctx context.Context, hash string) (*APIKeyRecord, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL`
	return p.getOne(ctx, "repository_find_by_hash", query, hash)
}

// FindByID implements Repository.FindByID
func (p *PostgresRepository) FindByID(ctx context.Context, id string) (*APIKeyRecord, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	return p.getOne(ctx, "repository_find_by_id", query, id)
}

// FindByUserID implements Repository.FindByUserID
func (p *PostgresRepository) FindByUserID(ctx context.Context, userID string) ([]*APIKeyRecord, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	var rows []apiKeyRow
	if err := p.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, NewInternalError("repository_find_by_user", err)
	}

	records := make([]*APIKeyRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toRecord())
	}
	return records, nil
}

// Revoke implements Repository.Revoke. COALESCE keeps the first revocation time.
func (p *PostgresRepository) Revoke(ctx context.Context, id string) (*APIKeyRecord, error) {
	query := `
		UPDATE api_keys
		SET revoked_at = COALESCE(revoked_at, $2),
		    updated_at = CASE WHEN revoked_at IS NULL THEN $2 ELSE updated_at END
		WHERE id = $1
		RETURNING ` + apiKeyColumns
	return p.getOne(ctx, "repository_revoke", query, id, p.now())
}

// UpdateLastUsed implements Repository.UpdateLastUsed
func (p *PostgresRepository) UpdateLastUsed(ctx context.Context, id string) error {
	query := `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`
	if _, err := p.db.ExecContext(ctx, query, id, p.now()); err != nil {
		return NewInternalError("repository_touch", err)
	}
	return nil
}

// Delete implements Repository.Delete
func (p *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return false, NewInternalError("repository_delete", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, NewInternalError("repository_delete", err)
	}
	return affected > 0, nil
}

// Ping checks the database connection.
func (p *PostgresRepository) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresRepository) getOne(ctx context.Context, component, query string, args ...interface{}) (*APIKeyRecord, error) {
	var row apiKeyRow
	if err := p.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, NewInternalError(component, err)
	}
	return row.toRecord(), nil
}
