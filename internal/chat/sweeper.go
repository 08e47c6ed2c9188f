package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/tourneychat/internal/telemetry"
)

// DefaultSweepInterval is the period between expiry passes.
const DefaultSweepInterval = 60 * time.Second

// RoomCloser is implemented by subscribers that track their own room set.
// RoomClosed is called under the room lock after the room-closed frame has
// been delivered and must not call back into the Manager.
type RoomCloser interface {
	RoomClosed(tournamentID string)
}

// SweepOnce evicts every room whose end of life has passed. Each evicted
// room's subscribers receive exactly one room-closed frame. It returns the
// number of rooms evicted.
func (m *Manager) SweepOnce() int {
	now := m.clock.Now()

	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.RUnlock()

	evicted := 0
	for _, room := range rooms {
		if !m.closeExpired(room, now) {
			continue
		}

		m.mu.Lock()
		if m.rooms[room.tournamentID] == room {
			delete(m.rooms, room.tournamentID)
			m.tombstones[room.tournamentID] = room.endOfLife
		}
		m.mu.Unlock()

		evicted++
		telemetry.IncSwept()
		m.logger.Info("room expired",
			zap.String("tournament_id", room.tournamentID),
			zap.Time("end_of_life", room.endOfLife))
	}

	m.mu.Lock()
	for id, end := range m.tombstones {
		if now.Sub(end) > m.tombstoneTTL {
			delete(m.tombstones, id)
		}
	}
	telemetry.SetRooms(len(m.rooms))
	m.mu.Unlock()

	return evicted
}

// closeExpired marks room closed and notifies its subscribers if it has
// expired. The room's end of life never changes, so the closed flag alone
// keeps later joins and sends out.
func (m *Manager) closeExpired(room *Room, now time.Time) bool {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || !now.After(room.endOfLife) {
		return false
	}
	room.closed = true

	frame := mustEncode(EventRoomClosed, RoomClosed{
		TournamentID: room.tournamentID,
		Reason:       ReasonTournamentEnded,
	})
	for _, sub := range room.subscribers {
		sub.Deliver(frame)
		if rc, ok := sub.(RoomCloser); ok {
			rc.RoomClosed(room.tournamentID)
		}
	}
	room.subscribers = make(map[string]Subscriber)
	room.buffer = nil
	return true
}

// Sweeper runs SweepOnce on a fixed period.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a sweeper for m. A non-positive interval uses
// DefaultSweepInterval.
func NewSweeper(m *Manager, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{manager: m, interval: interval, logger: m.logger.Named("sweeper")}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			if n := s.manager.SweepOnce(); n > 0 {
				s.logger.Info("sweep complete", zap.Int("evicted", n), zap.Int("remaining", s.manager.RoomCount()))
			}
		}
	}
}
