package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Tyrowin/tourneychat/internal/telemetry"
)

const tracerName = "tourneychat/store"

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tournaments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'scheduled',
		starts_at TIMESTAMPTZ NOT NULL,
		ends_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS registrations (
		tournament_id TEXT NOT NULL REFERENCES tournaments(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'registered',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (tournament_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id BIGSERIAL PRIMARY KEY,
		message_id TEXT NOT NULL,
		tournament_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`ALTER TABLE chat_messages DROP CONSTRAINT IF EXISTS chat_messages_message_id_key`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_messages_tournament_message ON chat_messages (tournament_id, message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_tournament_created ON chat_messages (tournament_id, created_at DESC)`,
}

// Migrate creates the tables the chat service reads and writes.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}

// Postgres is the pgx-backed Log.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Append(ctx context.Context, msg PersistedMessage) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "store.append",
		attribute.String("tournament_id", msg.TournamentID))
	defer span.End()

	_, err := p.pool.Exec(ctx,
		`INSERT INTO chat_messages (message_id, tournament_id, sender_id, sender_name, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tournament_id, message_id) DO NOTHING`,
		msg.MessageID, msg.TournamentID, msg.SenderID, msg.SenderName, msg.Text, msg.CreatedAt)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("insert chat message %s: %w", msg.MessageID, err)
	}
	return nil
}

func (p *Postgres) Recent(ctx context.Context, tournamentID string, limit int) ([]PersistedMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "store.recent",
		attribute.String("tournament_id", tournamentID),
		attribute.Int("limit", limit))
	defer span.End()

	rows, err := p.pool.Query(ctx,
		`SELECT id, message_id, tournament_id, sender_id, sender_name, text, created_at
		FROM chat_messages
		WHERE tournament_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, tournamentID, limit)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("query chat history %s: %w", tournamentID, err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (PersistedMessage, error) {
		var m PersistedMessage
		err := row.Scan(&m.ID, &m.MessageID, &m.TournamentID, &m.SenderID, &m.SenderName, &m.Text, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("scan chat history %s: %w", tournamentID, err)
	}
	return msgs, nil
}

// Ping reports whether the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
