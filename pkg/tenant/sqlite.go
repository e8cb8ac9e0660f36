package tenant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/switchboard/pkg/policy"
)

// SQLiteRepository is a Repository backed by a SQLite database file.
type SQLiteRepository struct {
	db *sql.DB

	loadStmt    *sql.Stmt
	saveStmt    *sql.Stmt
	acquireStmt *sql.Stmt
	releaseStmt *sql.Stmt
	metaSetStmt *sql.Stmt
	metaGetStmt *sql.Stmt
	staleStmt   *sql.Stmt
	clearStmt   *sql.Stmt
	listStmt    *sql.Stmt
}

// SQLiteConfig configures a SQLiteRepository.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteRepository opens (creating if needed) the database at cfg.Path.
func NewSQLiteRepository(cfg SQLiteConfig) (*SQLiteRepository, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer; one connection also makes the
	// conditional-update lock a true compare-and-swap.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	repo := &SQLiteRepository{db: db}

	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := repo.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return repo, nil
}

func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		tenant_id TEXT PRIMARY KEY,
		policy TEXT,
		compile_lock TEXT,
		locked_at INTEGER,
		compiled_version TEXT NOT NULL DEFAULT '',
		compiled_checksum TEXT NOT NULL DEFAULT '',
		compiled_cache_key TEXT NOT NULL DEFAULT '',
		compiled_at INTEGER NOT NULL DEFAULT 0,
		conflict_count INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tenants_locked_at ON tenants(locked_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

func (r *SQLiteRepository) prepareStatements() error {
	stmts := []struct {
		dst   **sql.Stmt
		name  string
		query string
	}{
		{&r.loadStmt, "load", `SELECT policy FROM tenants WHERE tenant_id = ?`},
		{&r.saveStmt, "save", `
			INSERT INTO tenants (tenant_id, policy, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (tenant_id) DO UPDATE SET
				policy = excluded.policy,
				updated_at = excluded.updated_at`},
		{&r.acquireStmt, "acquire", `
			INSERT INTO tenants (tenant_id, compile_lock, locked_at, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (tenant_id) DO UPDATE SET
				compile_lock = excluded.compile_lock,
				locked_at = excluded.locked_at
			WHERE tenants.compile_lock IS NULL`},
		{&r.releaseStmt, "release", `
			UPDATE tenants SET compile_lock = NULL, locked_at = NULL
			WHERE tenant_id = ? AND compile_lock = ?`},
		{&r.metaSetStmt, "update metadata", `
			INSERT INTO tenants (tenant_id, compiled_version, compiled_checksum, compiled_cache_key, compiled_at, conflict_count, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (tenant_id) DO UPDATE SET
				compiled_version = excluded.compiled_version,
				compiled_checksum = excluded.compiled_checksum,
				compiled_cache_key = excluded.compiled_cache_key,
				compiled_at = excluded.compiled_at,
				conflict_count = excluded.conflict_count,
				updated_at = excluded.updated_at`},
		{&r.metaGetStmt, "get metadata", `
			SELECT compiled_version, compiled_checksum, compiled_cache_key, compiled_at, conflict_count
			FROM tenants WHERE tenant_id = ?`},
		{&r.staleStmt, "stale locks", `
			SELECT tenant_id, compile_lock, locked_at FROM tenants
			WHERE compile_lock IS NOT NULL AND locked_at < ?
			ORDER BY tenant_id`},
		{&r.clearStmt, "clear lock", `
			UPDATE tenants SET compile_lock = NULL, locked_at = NULL
			WHERE tenant_id = ? AND compile_lock = ?`},
		{&r.listStmt, "list", `SELECT tenant_id FROM tenants ORDER BY tenant_id`},
	}

	for _, s := range stmts {
		stmt, err := r.db.Prepare(s.query)
		if err != nil {
			return fmt.Errorf("failed to prepare %s statement: %w", s.name, err)
		}
		*s.dst = stmt
	}
	return nil
}

// LoadPolicy implements Repository.
func (r *SQLiteRepository) LoadPolicy(ctx context.Context, tenantID string) (*policy.RawPolicy, error) {
	var data sql.NullString
	err := r.loadStmt.QueryRowContext(ctx, tenantID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !data.Valid) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	var raw policy.RawPolicy
	if err := json.Unmarshal([]byte(data.String), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}
	return &raw, nil
}

// SavePolicy implements Repository.
func (r *SQLiteRepository) SavePolicy(ctx context.Context, tenantID string, raw *policy.RawPolicy) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}
	if _, err := r.saveStmt.ExecContext(ctx, tenantID, string(data), time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

// AcquireCompileLock implements Repository.
func (r *SQLiteRepository) AcquireCompileLock(ctx context.Context, tenantID, token string, at time.Time) error {
	res, err := r.acquireStmt.ExecContext(ctx, tenantID, token, at.UnixNano(), at.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to acquire compile lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to acquire compile lock: %w", err)
	}
	if n == 0 {
		return ErrLockHeld
	}
	return nil
}

// ReleaseCompileLock implements Repository.
func (r *SQLiteRepository) ReleaseCompileLock(ctx context.Context, tenantID, token string) error {
	res, err := r.releaseStmt.ExecContext(ctx, tenantID, token)
	if err != nil {
		return fmt.Errorf("failed to release compile lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to release compile lock: %w", err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// UpdateCompileMetadata implements Repository.
func (r *SQLiteRepository) UpdateCompileMetadata(ctx context.Context, tenantID string, meta CompileMetadata) error {
	_, err := r.metaSetStmt.ExecContext(ctx, tenantID,
		meta.Version, meta.Checksum, meta.CacheKey, meta.CompiledAt.UnixNano(), meta.Conflicts,
		time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to update compile metadata: %w", err)
	}
	return nil
}

// GetCompileMetadata implements Repository.
func (r *SQLiteRepository) GetCompileMetadata(ctx context.Context, tenantID string) (*CompileMetadata, error) {
	var meta CompileMetadata
	var compiledAt int64
	err := r.metaGetStmt.QueryRowContext(ctx, tenantID).Scan(
		&meta.Version, &meta.Checksum, &meta.CacheKey, &compiledAt, &meta.Conflicts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get compile metadata: %w", err)
	}
	if compiledAt != 0 {
		meta.CompiledAt = time.Unix(0, compiledAt)
	}
	return &meta, nil
}

// ReapStaleLocks implements Repository.
func (r *SQLiteRepository) ReapStaleLocks(ctx context.Context, olderThan time.Time) ([]LockInfo, error) {
	rows, err := r.staleStmt.QueryContext(ctx, olderThan.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query stale locks: %w", err)
	}

	var stale []LockInfo
	for rows.Next() {
		var info LockInfo
		var lockedAt int64
		if err := rows.Scan(&info.TenantID, &info.Token, &lockedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan stale lock: %w", err)
		}
		info.LockedAt = time.Unix(0, lockedAt)
		stale = append(stale, info)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale locks: %w", err)
	}

	// Clear by token so a lock re-acquired since the query is left alone.
	var reaped []LockInfo
	for _, info := range stale {
		res, err := r.clearStmt.ExecContext(ctx, info.TenantID, info.Token)
		if err != nil {
			return reaped, fmt.Errorf("failed to clear stale lock for %q: %w", info.TenantID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			reaped = append(reaped, info)
		}
	}
	return reaped, nil
}

// ListTenants implements Repository.
func (r *SQLiteRepository) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.listStmt.QueryContext(ctx)
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
func (r *SQLiteRepository) Close() error {
	for _, stmt := range []*sql.Stmt{
		r.loadStmt, r.saveStmt, r.acquireStmt, r.releaseStmt,
		r.metaSetStmt, r.metaGetStmt, r.staleStmt, r.clearStmt, r.listStmt,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return r.db.Close()
}
