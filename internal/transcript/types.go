// Package transcript persists the final lines of each conversation.
package transcript

import (
	"context"
	"time"
)

// Line is one finished utterance by the player or a character.
type Line struct {
	ID          string    `json:"id"`
	UID         string    `json:"uid"`
	SessionID   string    `json:"session_id,omitempty"`
	CharacterID string    `json:"character_id,omitempty"`
	Speaker     string    `json:"speaker"`
	UtteranceID string    `json:"utterance_id,omitempty"`
	Text        string    `json:"text"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists and retrieves transcript lines.
type Store interface {
	Save(ctx context.Context, line Line) error
	// Recent returns up to limit lines for uid in chronological order.
	Recent(ctx context.Context, uid string, limit int) ([]Line, error)
	Close() error
}

const defaultRecentLimit = 50
