package transcript

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists transcripts in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcript_lines (
			id TEXT PRIMARY KEY,
			uid TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			character_id TEXT NOT NULL DEFAULT '',
			speaker TEXT NOT NULL,
			utterance_id TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transcript_lines_uid_created ON transcript_lines (uid, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, line Line) error {
	line = withDefaults(line)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transcript_lines (id, uid, session_id, character_id, speaker, utterance_id, text, pii_redacted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		line.ID,
		line.UID,
		line.SessionID,
		line.CharacterID,
		line.Speaker,
		line.UtteranceID,
		line.Text,
		line.PIIRedacted,
		line.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save transcript line: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, uid string, limit int) ([]Line, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, uid, session_id, character_id, speaker, utterance_id, text, pii_redacted, created_at
		 FROM transcript_lines WHERE uid=$1 ORDER BY created_at DESC LIMIT $2`,
		uid,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	lines := make([]Line, 0, limit)
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.UID, &l.SessionID, &l.CharacterID, &l.Speaker, &l.UtteranceID, &l.Text, &l.PIIRedacted, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}
	reverse(lines)
	return lines, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func reverse(lines []Line) {
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
}
