package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_records (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    call_id TEXT,
    ts INTEGER NOT NULL,
    phase TEXT,
    route TEXT,
    rule_id TEXT,
    reason TEXT,
    overrides TEXT,
    checksum TEXT,
    conflicts INTEGER,
    outcome TEXT NOT NULL,
    detail TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_records(ts);
CREATE INDEX IF NOT EXISTS idx_audit_tenant ON audit_records(tenant_id, ts);
CREATE INDEX IF NOT EXISTS idx_audit_call ON audit_records(call_id, ts);
`

const (
	insertRecord = `INSERT INTO audit_records
		(id, kind, tenant_id, call_id, ts, phase, route, rule_id, reason, overrides, checksum, conflicts, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectColumns = `SELECT id, kind, tenant_id, call_id, ts, phase, route, rule_id, reason, overrides, checksum, conflicts, outcome, detail
		FROM audit_records`

	deleteBefore = `DELETE FROM audit_records WHERE ts < ?`
)

// SQLiteStore persists records in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	insert *sql.Stmt
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the audit database at path.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audit.sqlite")

	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &StorageError{Backend: "sqlite", Operation: "mkdir", Cause: err}
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Operation: "open", Cause: err}
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, &StorageError{Backend: "sqlite", Operation: "create_schema", Cause: err}
	}

	insert, err := db.Prepare(insertRecord)
	if err != nil {
		db.Close()
		return nil, &StorageError{Backend: "sqlite", Operation: "prepare", Cause: err}
	}

	logger.Info("audit store initialized", "path", path)

	return &SQLiteStore{db: db, insert: insert, logger: logger}, nil
}

// Append inserts a record.
func (s *SQLiteStore) Append(ctx context.Context, r *Record) error {
	overrides, err := json.Marshal(r.Overrides)
	if err != nil {
		return &StorageError{Backend: "sqlite", Operation: "encode", Cause: err}
	}

	_, err = s.insert.ExecContext(ctx,
		r.ID, string(r.Kind), r.TenantID, r.CallID, r.Timestamp.UnixNano(),
		r.Phase, r.Route, r.RuleID, r.Reason, string(overrides),
		r.Checksum, r.Conflicts, r.Outcome, r.Detail,
	)
	if err != nil {
		return &StorageError{Backend: "sqlite", Operation: "insert", Cause: err}
	}
	return nil
}

// Get returns one record by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Operation: "get", Cause: err}
	}
	return r, nil
}

// Query returns matching records, oldest first.
func (s *SQLiteStore) Query(ctx context.Context, q *Query) ([]*Record, error) {
	if q == nil {
		q = &Query{}
	}

	var where []string
	var args []interface{}
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if q.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, q.TenantID)
	}
	if q.CallID != "" {
		where = append(where, "call_id = ?")
		args = append(args, q.CallID)
	}
	if q.Since != nil {
		where = append(where, "ts >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if q.Until != nil {
		where = append(where, "ts < ?")
		args = append(args, q.Until.UnixNano())
	}

	stmt := selectColumns
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY ts ASC"
	if q.Limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Operation: "query", Cause: err}
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, &StorageError{Backend: "sqlite", Operation: "scan", Cause: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Backend: "sqlite", Operation: "query", Cause: err}
	}
	return out, nil
}

// DeleteBefore removes records older than cutoff.
func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, deleteBefore, cutoff.UnixNano())
	if err != nil {
		return 0, &StorageError{Backend: "sqlite", Operation: "delete", Cause: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageError{Backend: "sqlite", Operation: "delete", Cause: err}
	}
	return n, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	s.insert.Close()
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		r                                               Record
		kind                                            string
		ts                                              int64
		callID, phase, route, ruleID, reason, overrides sql.NullString
		checksum, detail                                sql.NullString
		conflicts                                       sql.NullInt64
	)
	err := sc.Scan(&r.ID, &kind, &r.TenantID, &callID, &ts, &phase, &route, &ruleID,
		&reason, &overrides, &checksum, &conflicts, &r.Outcome, &detail)
	if err != nil {
		return nil, err
	}

	r.Kind = Kind(kind)
	r.Timestamp = time.Unix(0, ts).UTC()
	r.CallID = callID.String
	r.Phase = phase.String
	r.Route = route.String
	r.RuleID = ruleID.String
	r.Reason = reason.String
	r.Checksum = checksum.String
	r.Detail = detail.String
	r.Conflicts = int(conflicts.Int64)
	if overrides.Valid && overrides.String != "" && overrides.String != "null" {
		if err := json.Unmarshal([]byte(overrides.String), &r.Overrides); err != nil {
			return nil, fmt.Errorf("failed to decode overrides: %w", err)
		}
	}
	return &r, nil
}
