package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists transcripts in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under the recorder's worker.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS transcript_lines (
		id TEXT PRIMARY KEY,
		uid TEXT NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		character_id TEXT NOT NULL DEFAULT '',
		speaker TEXT NOT NULL,
		utterance_id TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		pii_redacted INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcript_lines_uid_created ON transcript_lines(uid, created_at);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, line Line) error {
	line = withDefaults(line)
	redacted := 0
	if line.PIIRedacted {
		redacted = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcript_lines (id, uid, session_id, character_id, speaker, utterance_id, text, pii_redacted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		line.ID, line.UID, line.SessionID, line.CharacterID, line.Speaker, line.UtteranceID,
		line.Text, redacted, line.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save transcript line: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, uid string, limit int) ([]Line, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, uid, session_id, character_id, speaker, utterance_id, text, pii_redacted, created_at
		 FROM transcript_lines WHERE uid = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		uid, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	lines := make([]Line, 0, limit)
	for rows.Next() {
		var (
			l        Line
			redacted int
			created  int64
		)
		if err := rows.Scan(&l.ID, &l.UID, &l.SessionID, &l.CharacterID, &l.Speaker, &l.UtteranceID, &l.Text, &redacted, &created); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		l.PIIRedacted = redacted != 0
		l.CreatedAt = time.Unix(0, created).UTC()
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}
	reverse(lines)
	return lines, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
