package drafts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/p-n-ai/pai-lesson/internal/lesson/answers"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS drafts (
	module_id  TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	saved_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS positions (
	module_id  TEXT PRIMARY KEY,
	step_index INTEGER NOT NULL
);`

// SQLiteStore keeps drafts in a local SQLite file so they survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the draft database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating draft directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening draft database: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating draft tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadDraft(ctx context.Context, moduleID string) (Draft, bool, error) {
	var payload string
	var savedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, saved_at FROM drafts WHERE module_id = ?`, moduleID,
	).Scan(&payload, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, false, nil
	}
	if err != nil {
		return Draft{}, false, fmt.Errorf("loading draft: %w", err)
	}

	values, err := answers.Unmarshal([]byte(payload))
	if err != nil {
		return Draft{}, false, fmt.Errorf("decoding draft: %w", err)
	}
	return Draft{Values: values, SavedAt: time.UnixMilli(savedAt).UTC()}, true, nil
}

func (s *SQLiteStore) SaveDraft(ctx context.Context, moduleID string, d Draft) error {
	payload, err := answers.Marshal(d.Values)
	if err != nil {
		return fmt.Errorf("encoding draft: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drafts (module_id, payload, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(module_id) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		moduleID, string(payload), d.SavedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving draft: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteDraft(ctx context.Context, moduleID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE module_id = ?`, moduleID); err != nil {
		return fmt.Errorf("deleting draft: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadPosition(ctx context.Context, moduleID string) (int, bool, error) {
	var index int
	err := s.db.QueryRowContext(ctx,
		`SELECT step_index FROM positions WHERE module_id = ?`, moduleID,
	).Scan(&index)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("loading position: %w", err)
	}
	return index, true, nil
}

func (s *SQLiteStore) SavePosition(ctx context.Context, moduleID string, index int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO positions (module_id, step_index) VALUES (?, ?)
		 ON CONFLICT(module_id) DO UPDATE SET step_index = excluded.step_index`,
		moduleID, index,
	)
	if err != nil {
		return fmt.Errorf("saving position: %w", err)
	}
	return nil
}
