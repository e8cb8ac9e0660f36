package tenant

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mercator-hq/switchboard/pkg/policy"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository is a Repository backed by PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to connString and verifies the connection.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(connString string) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, connString)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// LoadPolicy implements Repository.
func (r *PostgresRepository) LoadPolicy(ctx context.Context, tenantID string) (*policy.RawPolicy, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT policy FROM tenants WHERE tenant_id = $1`, tenantID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && data == nil) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	var raw policy.RawPolicy
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}
	return &raw, nil
}

// SavePolicy implements Repository.
func (r *PostgresRepository) SavePolicy(ctx context.Context, tenantID string, raw *policy.RawPolicy) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO tenants (tenant_id, policy) VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO UPDATE SET
			policy = EXCLUDED.policy,
			updated_at = NOW()
	`, tenantID, data)
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

// AcquireCompileLock implements Repository.
func (r *PostgresRepository) AcquireCompileLock(ctx context.Context, tenantID, token string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO tenants (tenant_id, compile_lock, locked_at) VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO UPDATE SET
			compile_lock = EXCLUDED.compile_lock,
			locked_at = EXCLUDED.locked_at
		WHERE tenants.compile_lock IS NULL
	`, tenantID, token, at)
	if err != nil {
		return fmt.Errorf("failed to acquire compile lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLockHeld
	}
	return nil
}

// ReleaseCompileLock implements Repository.
func (r *PostgresRepository) ReleaseCompileLock(ctx context.Context, tenantID, token string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tenants SET compile_lock = NULL, locked_at = NULL
		WHERE tenant_id = $1 AND compile_lock = $2
	`, tenantID, token)
	if err != nil {
		return fmt.Errorf("failed to release compile lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// UpdateCompileMetadata implements Repository.
func (r *PostgresRepository) UpdateCompileMetadata(ctx context.Context, tenantID string, meta CompileMetadata) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tenants (tenant_id, compiled_version, compiled_checksum, compiled_cache_key, compiled_at, conflict_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id) DO UPDATE SET
			compiled_version = EXCLUDED.compiled_version,
			compiled_checksum = EXCLUDED.compiled_checksum,
			compiled_cache_key = EXCLUDED.compiled_cache_key,
			compiled_at = EXCLUDED.compiled_at,
			conflict_count = EXCLUDED.conflict_count,
			updated_at = NOW()
	`, tenantID, meta.Version, meta.Checksum, meta.CacheKey, meta.CompiledAt, meta.Conflicts)
	if err != nil {
		return fmt.Errorf("failed to update compile metadata: %w", err)
	}
	return nil
}

// GetCompileMetadata implements Repository.
func (r *PostgresRepository) GetCompileMetadata(ctx context.Context, tenantID string) (*CompileMetadata, error) {
	var meta CompileMetadata
	var compiledAt *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT compiled_version, compiled_checksum, compiled_cache_key, compiled_at, conflict_count
		FROM tenants WHERE tenant_id = $1
	`, tenantID).Scan(&meta.Version, &meta.Checksum, &meta.CacheKey, &compiledAt, &meta.Conflicts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get compile metadata: %w", err)
	}
	if compiledAt != nil {
		meta.CompiledAt = *compiledAt
	}
	return &meta, nil
}

// ReapStaleLocks implements Repository.
func (r *PostgresRepository) ReapStaleLocks(ctx context.Context, olderThan time.Time) ([]LockInfo, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE tenants SET compile_lock = NULL, locked_at = NULL
		FROM (
			SELECT tenant_id, compile_lock, locked_at FROM tenants
			WHERE compile_lock IS NOT NULL AND locked_at < $1
			FOR UPDATE
		) AS stale
		WHERE tenants.tenant_id = stale.tenant_id
		RETURNING stale.tenant_id, stale.compile_lock, stale.locked_at
	`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to reap stale locks: %w", err)
	}
	defer rows.Close()

	var reaped []LockInfo
	for rows.Next() {
		var info LockInfo
		if err := rows.Scan(&info.TenantID, &info.Token, &info.LockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reaped lock: %w", err)
		}
		reaped = append(reaped, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reaped locks: %w", err)
	}
	return reaped, nil
}

// ListTenants implements Repository.
func (r *PostgresRepository) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT tenant_id FROM tenants ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close implements Repository.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
