package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tyrowin/tourneychat/internal/chat"
)

// Postgres reads tournaments and registrations from the platform database.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Tournament(ctx context.Context, id string) (Tournament, error) {
	var t Tournament
	var status string
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, status, starts_at, ends_at FROM tournaments WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &status, &t.StartsAt, &t.EndsAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tournament{}, chat.NotFoundError("tournament not found")
	}
	if err != nil {
		return Tournament{}, fmt.Errorf("load tournament %s: %w", id, err)
	}
	t.Status = Status(status)
	return t, nil
}

func (p *Postgres) IsRegistrant(ctx context.Context, tournamentID, userID string) (bool, error) {
	var ok bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM registrations
			WHERE tournament_id = $1 AND user_id = $2 AND status <> 'cancelled'
		)`, tournamentID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check registration %s/%s: %w", tournamentID, userID, err)
	}
	return ok, nil
}

func (p *Postgres) Registrants(ctx context.Context, tournamentID string) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT user_id FROM registrations
		WHERE tournament_id = $1 AND status <> 'cancelled'
		ORDER BY user_id`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list registrants %s: %w", tournamentID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan registrants %s: %w", tournamentID, err)
	}
	return ids, nil
}
