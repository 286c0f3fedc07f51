package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one finished transcription.
//
// ClipPath names the clip the text came from at the time it was recorded.
// Only the latest clip is kept on disk: the next capture session or the
// application exit deletes it, so older paths no longer resolve.
type Entry struct {
	ID           string        `json:"id"`
	SessionID    string        `json:"session_id"`
	CreatedAt    time.Time     `json:"created_at"`
	Mode         string        `json:"mode"`
	Model        string        `json:"model"`
	ClipPath     string        `json:"clip_path"`
	ClipDuration time.Duration `json:"clip_duration"`
	Latency      time.Duration `json:"latency"`
	Text         string        `json:"text,omitempty"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// OK reports whether the entry holds a successful transcription
func (e Entry) OK() bool {
	return e.ErrorKind == ""
}

const schema = `
CREATE TABLE IF NOT EXISTS transcriptions (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	mode          TEXT NOT NULL,
	model         TEXT NOT NULL,
	clip_path     TEXT NOT NULL,
	clip_duration INTEGER NOT NULL,
	latency       INTEGER NOT NULL,
	text          TEXT NOT NULL DEFAULT '',
	error_kind    TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_created_at ON transcriptions(created_at);
`

// Store persists transcription history in SQLite
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts an entry, assigning an id and timestamp when missing
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return e, fmt.Errorf("generate id: %w", err)
		}
		e.ID = id.String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcriptions
			(id, session_id, created_at, mode, model, clip_path, clip_duration, latency, text, error_kind, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.SessionID, e.CreatedAt.UnixMilli(), e.Mode, e.Model, e.ClipPath,
		int64(e.ClipDuration), int64(e.Latency), e.Text, e.ErrorKind, e.ErrorMessage)
	if err != nil {
		return e, fmt.Errorf("insert transcription: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, created_at, mode, model, clip_path, clip_duration, latency, text, error_kind, error_message
		FROM transcriptions
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcriptions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt, clipDuration, latency int64
		if err := rows.Scan(&e.ID, &e.SessionID, &createdAt, &e.Mode, &e.Model, &e.ClipPath,
			&clipDuration, &latency, &e.Text, &e.ErrorKind, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan transcription: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		e.ClipDuration = time.Duration(clipDuration)
		e.Latency = time.Duration(latency)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of stored entries
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcriptions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transcriptions: %w", err)
	}
	return n, nil
}

// Prune deletes entries created before cutoff
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transcriptions WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune transcriptions: %w", err)
	}
	return res.RowsAffected()
}
