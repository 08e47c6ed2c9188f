// Package store is the durable chat log. Messages are appended by the
// archive writer and read back, newest first, by the history service.
package store

import (
	"context"
	"time"
)

// PersistedMessage is a durable chat message. ID is the store's own key;
// MessageID is the live message id it was written from.
type PersistedMessage struct {
	ID           int64     `json:"id"`
	MessageID    string    `json:"messageId"`
	TournamentID string    `json:"tournamentId"`
	SenderID     string    `json:"senderId"`
	SenderName   string    `json:"senderName"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Log is the message log contract shared by the Postgres and in-memory
// implementations.
type Log interface {
	// Append stores msg. Appending a MessageID that already exists for the
	// same tournament is a no-op.
	Append(ctx context.Context, msg PersistedMessage) error
	// Recent returns up to limit messages for the tournament, newest first.
	Recent(ctx context.Context, tournamentID string, limit int) ([]PersistedMessage, error)
}
