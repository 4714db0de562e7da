package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/stride/pkg/types"
)

// Compile-time interface check: SQLStore must implement Repository.
var _ Repository = (*SQLStore)(nil)

const createRecords = `CREATE TABLE IF NOT EXISTS records (
    table_name TEXT NOT NULL,
    uuid TEXT NOT NULL,
    user_id TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL,
    body TEXT NOT NULL,
    PRIMARY KEY (table_name, uuid)
);`

const indexRecordsCursor = `CREATE INDEX IF NOT EXISTS idx_records_cursor
    ON records(table_name, user_id, updated_at);`

// SQLStore is a Repository persisted in a SQLite document table. It backs
// the stride server.
type SQLStore struct {
	mu    sync.Mutex // serializes upserts so stamps stay ordered
	db    *sql.DB
	stamp stamper
}

// OpenSQLStore opens or creates the database at path.
func OpenSQLStore(path string, clock types.Clock) (*SQLStore, error) {
	if clock == nil {
		clock = types.SystemClock{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	for _, stmt := range []string{createRecords, indexRecordsCursor} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying schema: %w", err)
		}
	}

	s := &SQLStore{db: db, stamp: stamper{clock: clock}}
	var last sql.NullString
	if err := db.QueryRow("SELECT MAX(updated_at) FROM records").Scan(&last); err != nil {
		db.Close()
		return nil, fmt.Errorf("reading last stamp: %w", err)
	}
	if last.Valid {
		if s.stamp.last, err = time.Parse(time.RFC3339Nano, last.String); err != nil {
			db.Close()
			return nil, fmt.Errorf("parsing last stamp %q: %w", last.String, err)
		}
	}
	return s, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Upsert implements Repository.
func (s *SQLStore) Upsert(ctx context.Context, table string, rec Record) error {
	if err := validate(table, rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := rec.Clone()
	stamp := s.stamp.next().Format(TimeLayout)
	stored[KeyUpdatedAt] = stamp
	body, err := json.Marshal(stored)
	if err != nil {
		return &Error{Code: CodeInvalidText, Message: err.Error()}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (table_name, uuid, user_id, updated_at, body) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(table_name, uuid) DO UPDATE SET
		   user_id = excluded.user_id, updated_at = excluded.updated_at, body = excluded.body`,
		table, rec.UUID(), rec.UserID(), stamp, string(body),
	)
	if err != nil {
		return fmt.Errorf("upserting %s %s: %w", table, rec.UUID(), err)
	}
	return nil
}

// Select implements Repository.
func (s *SQLStore) Select(ctx context.Context, table string, q Query) ([]Record, error) {
	if !types.IsSyncTable(table) {
		return nil, &Error{Code: CodeUndefinedTable, Message: fmt.Sprintf("relation %q does not exist", table)}
	}
	query := "SELECT body FROM records WHERE table_name = ? AND updated_at > ?"
	args := []any{table, ""}
	if !q.UpdatedAfter.IsZero() {
		args[1] = q.UpdatedAfter.UTC().Format(TimeLayout)
	}
	if q.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, q.UserID)
	}
	query += " ORDER BY updated_at"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", table, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		rec := Record{}
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decoding %s record: %w", table, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
