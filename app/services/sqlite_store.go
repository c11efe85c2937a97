package services

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"go.uber.org/zap"
)

// SQLiteStore is the default durable store for local batch runs: one database
// file holding both the vicinity cache and the dedupe ledger. WAL mode keeps
// writes cheap under the per-record commit pattern.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (creating if needed) the store at path.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS vicinity_cache (
			vkey TEXT PRIMARY KEY,
			response_json BLOB NOT NULL,
			last_used INTEGER DEFAULT (strftime('%s','now'))
		);`,
		`CREATE TABLE IF NOT EXISTS places_seen (
			key TEXT PRIMARY KEY,
			first_seen INTEGER DEFAULT (strftime('%s','now'))
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create sqlite schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Get looks up a cached response and refreshes its last_used stamp on a hit.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT response_json FROM vicinity_cache WHERE vkey = ?;`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite cache get: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE vicinity_cache SET last_used = strftime('%s','now') WHERE vkey = ?;`, key); err != nil {
		s.logger.Warn("sqlite cache touch failed", zap.Error(err), zap.String("vkey", key))
	}
	return value, true, nil
}

// Put inserts or replaces in a single statement.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO vicinity_cache (vkey, response_json, last_used)
		 VALUES (?, ?, strftime('%s','now'));`, key, value)
	if err != nil {
		return fmt.Errorf("sqlite cache put: %w", err)
	}
	return nil
}

// IsNew is the ledger test-and-set: INSERT OR IGNORE is a single atomic
// statement, so the affected-row count decides without a separate read.
func (s *SQLiteStore) IsNew(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO places_seen (key) VALUES (?);`, key)
	if err != nil {
		return false, fmt.Errorf("sqlite ledger insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite ledger insert: %w", err)
	}
	return n > 0, nil
}

// Count reports the ledger size.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM places_seen;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite ledger count: %w", err)
	}
	return n, nil
}

// Close closes the database file.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
