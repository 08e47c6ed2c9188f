// Package registry answers tournament and registration questions for the
// chat service. It is a read-only view of data owned elsewhere.
package registry

import (
	"context"
	"time"
)

// Status is a tournament's lifecycle status.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Tournament is the subset of tournament data chat depends on.
type Tournament struct {
	ID       string
	Name     string
	Status   Status
	StartsAt time.Time
	EndsAt   time.Time
}

// Authority is the registration oracle. Tournament returns an error
// matching chat.ErrNotFound for unknown ids.
type Authority interface {
	Tournament(ctx context.Context, id string) (Tournament, error)
	IsRegistrant(ctx context.Context, tournamentID, userID string) (bool, error)
	Registrants(ctx context.Context, tournamentID string) ([]string, error)
}
