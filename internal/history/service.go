// Package history serves durable chat history for a tournament. It reads
// the message log directly and never consults live room state.
package history

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Tyrowin/tourneychat/internal/chat"
	"github.com/Tyrowin/tourneychat/internal/clock"
	"github.com/Tyrowin/tourneychat/internal/logging"
	"github.com/Tyrowin/tourneychat/internal/registry"
	"github.com/Tyrowin/tourneychat/internal/store"
	"github.com/Tyrowin/tourneychat/internal/telemetry"
)

const (
	DefaultLimit = 100
	DefaultGrace = 7 * 24 * time.Hour
)

// Options configures a Service.
type Options struct {
	Limit  int
	Grace  time.Duration
	Clock  clock.Clock
	Logger *zap.Logger
}

// Service answers history requests.
type Service struct {
	authority registry.Authority
	log       store.Log
	limit     int
	grace     time.Duration
	clock     clock.Clock
	logger    *zap.Logger
}

func NewService(authority registry.Authority, log store.Log, opts Options) *Service {
	s := &Service{
		authority: authority,
		log:       log,
		limit:     opts.Limit,
		grace:     opts.Grace,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
	if s.limit <= 0 {
		s.limit = DefaultLimit
	}
	if s.grace <= 0 {
		s.grace = DefaultGrace
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = logging.L()
	}
	return s
}

// GetHistory returns the most recent messages of a tournament in ascending
// creation order. Preconditions are checked in order: the tournament exists,
// its grace window has not elapsed, and the caller is a non-cancelled
// registrant.
func (s *Service) GetHistory(ctx context.Context, tournamentID string, caller chat.Identity) ([]store.PersistedMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "tourneychat/history", "history.get",
		attribute.String("tournament_id", tournamentID),
		attribute.String("user_id", caller.UserID))
	defer span.End()

	t, err := s.authority.Tournament(ctx, tournamentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if s.clock.Now().After(t.EndsAt.Add(s.grace)) {
		return nil, chat.ExpiredError("chat history is no longer available for this tournament")
	}

	ok, err := s.authority.IsRegistrant(ctx, tournamentID, caller.UserID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("check registration: %w", err)
	}
	if !ok {
		return nil, chat.UnauthorizedError("you are not registered for this tournament")
	}

	msgs, err := s.log.Recent(ctx, tournamentID, s.limit)
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("history query failed", zap.String("tournament_id", tournamentID), zap.Error(err))
		return nil, fmt.Errorf("load history: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
