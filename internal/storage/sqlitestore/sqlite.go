package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"burnbin/internal/storage"
)

// Store implements storage.Store using SQLite. Consume runs inside an
// immediate transaction, which takes the write lock up front so concurrent
// consumers of the same id serialize instead of racing between read and
// update.
type Store struct {
	db *sql.DB
}

// Open initializes the SQLite database at path, creating parent directories
// as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_txlock=immediate&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, storage.Unavailable("open sqlite", err)
	}
	if err := initialize(db); err != nil {
		_ = db.Close()
		return nil, storage.Unavailable("init schema", err)
	}
	return &Store{db: db}, nil
}

func initialize(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		return fmt.Errorf("enable wal: %w", err)
	}
	schema := `
CREATE TABLE IF NOT EXISTS pastes (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    created_at_ms INTEGER NOT NULL,
    expires_at_ms INTEGER,
    remaining_views INTEGER
);
CREATE INDEX IF NOT EXISTS idx_pastes_expires_at_ms ON pastes (expires_at_ms);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Create inserts a paste record. The caller owns id uniqueness.
func (s *Store) Create(ctx context.Context, rec *storage.Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}

	const q = `
INSERT INTO pastes (id, content, created_at_ms, expires_at_ms, remaining_views)
VALUES (?, ?, ?, ?, ?);
`
	_, err := s.db.ExecContext(ctx, q,
		rec.ID,
		rec.Content,
		rec.CreatedAtMS,
		nullableInt(rec.ExpiresAtMS),
		nullableInt(rec.RemainingViews),
	)
	if err != nil {
		return storage.Unavailable("create", err)
	}
	return nil
}

// ConsumeByID atomically fetches a paste and applies its expiry policy inside
// one write-locking transaction.
func (s *Store) ConsumeByID(ctx context.Context, id string, nowMS int64) (*storage.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storage.Unavailable("begin consume", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
SELECT id, content, created_at_ms, expires_at_ms, remaining_views
FROM pastes WHERE id = ?;
`
	var (
		rec       storage.Record
		expiresAt sql.NullInt64
		remaining sql.NullInt64
	)
	err = tx.QueryRowContext(ctx, q, id).Scan(&rec.ID, &rec.Content, &rec.CreatedAtMS, &expiresAt, &remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.Unavailable("query paste", err)
	}
	if expiresAt.Valid {
		rec.ExpiresAtMS = &expiresAt.Int64
	}
	if remaining.Valid {
		rec.RemainingViews = &remaining.Int64
	}

	// Expiry is checked before the view limit.
	if rec.Expired(nowMS) {
		return nil, s.deleteInTx(ctx, tx, id)
	}

	if rec.ViewLimited() {
		if *rec.RemainingViews <= 0 {
			return nil, s.deleteInTx(ctx, tx, id)
		}
		next := *rec.RemainingViews - 1
		if next < 0 {
			next = 0
		}
		if _, err := tx.ExecContext(ctx, `UPDATE pastes SET remaining_views = ? WHERE id = ?;`, next, id); err != nil {
			return nil, storage.Unavailable("persist decrement", err)
		}
		rec.RemainingViews = &next
	}

	if err := tx.Commit(); err != nil {
		return nil, storage.Unavailable("commit consume", err)
	}
	return &rec, nil
}

// deleteInTx removes a dead record and commits; the caller always maps the
// result to not-found.
func (s *Store) deleteInTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM pastes WHERE id = ?;`, id); err != nil {
		return storage.Unavailable("delete dead paste", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Unavailable("commit delete", err)
	}
	return storage.ErrNotFound
}

// HealthCheck performs a trivial query round-trip.
func (s *Store) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1;`).Scan(&one); err != nil {
		return storage.Unavailable("health check", err)
	}
	return nil
}

// DeleteExpired removes all pastes whose expiry is at or before nowMS.
func (s *Store) DeleteExpired(ctx context.Context, nowMS int64) (int, error) {
	const q = `DELETE FROM pastes WHERE expires_at_ms IS NOT NULL AND expires_at_ms <= ?;`
	res, err := s.db.ExecContext(ctx, q, nowMS)
	if err != nil {
		return 0, storage.Unavailable("delete expired", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(rows), nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
