package chat

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/tourneychat/internal/clock"
	"github.com/Tyrowin/tourneychat/internal/logging"
	"github.com/Tyrowin/tourneychat/internal/telemetry"
)

const (
	DefaultBufferCapacity = 200
	DefaultMaxTextLength  = 500
	DefaultTombstoneTTL   = 24 * time.Hour
)

// MessageSink receives every locally admitted message after it has been
// broadcast. Publish must not block.
type MessageSink interface {
	Publish(msg LiveMessage)
}

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	BufferCapacity int
	MaxTextLength  int
	TombstoneTTL   time.Duration
	Clock          clock.Clock
	Logger         *zap.Logger
}

// Manager owns the room table. The table lock is only held for lookups,
// inserts and deletes; it is never held together with a room lock.
type Manager struct {
	mu         sync.RWMutex
	rooms      map[string]*Room
	tombstones map[string]time.Time

	// seq numbers admitted messages across every room so ids never repeat
	// within a process.
	seq atomic.Uint64

	capacity     int
	maxText      int
	tombstoneTTL time.Duration
	clock        clock.Clock
	logger       *zap.Logger

	sinkMu sync.RWMutex
	sinks  []MessageSink
}

// NewManager creates an empty room table.
func NewManager(opts Options) *Manager {
	m := &Manager{
		rooms:        make(map[string]*Room),
		tombstones:   make(map[string]time.Time),
		capacity:     opts.BufferCapacity,
		maxText:      opts.MaxTextLength,
		tombstoneTTL: opts.TombstoneTTL,
		clock:        opts.Clock,
		logger:       opts.Logger,
	}
	if m.capacity <= 0 {
		m.capacity = DefaultBufferCapacity
	}
	if m.maxText <= 0 {
		m.maxText = DefaultMaxTextLength
	}
	if m.tombstoneTTL <= 0 {
		m.tombstoneTTL = DefaultTombstoneTTL
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.logger == nil {
		m.logger = logging.L()
	}
	return m
}

// AddSink registers a consumer for admitted messages.
func (m *Manager) AddSink(sink MessageSink) {
	m.sinkMu.Lock()
	m.sinks = append(m.sinks, sink)
	m.sinkMu.Unlock()
}

// Join admits sub to the tournament's room, creating the room on first use.
// claimed must contain the caller's own user id. On success the joiner
// receives the room's buffer as room-history and existing subscribers
// receive member-joined.
func (m *Manager) Join(sub Subscriber, tournamentID string, claimed []string, endTime time.Time) error {
	tournamentID = strings.TrimSpace(tournamentID)
	if tournamentID == "" {
		return ValidationError("tournamentId is required")
	}
	if m.clock.Now().After(endTime) {
		return ChatClosedError("chat for this tournament has closed")
	}
	ident := sub.Identity()
	if !containsID(claimed, ident.UserID) {
		return UnauthorizedError("you are not a member of this tournament")
	}

	room := m.roomFor(tournamentID, endTime)

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || m.clock.Now().After(room.endOfLife) {
		return ChatClosedError("chat for this tournament has closed")
	}
	for _, id := range claimed {
		if id = strings.TrimSpace(id); id != "" {
			room.members[id] = struct{}{}
		}
	}

	history := mustEncode(EventRoomHistory, RoomHistory{TournamentID: tournamentID, Messages: room.history()})
	if !sub.Deliver(history) {
		return nil
	}
	if _, already := room.subscribers[sub.ID()]; already {
		return nil
	}

	m.broadcastLocked(room, mustEncode(EventMemberJoined, MemberNotice{
		TournamentID: tournamentID,
		UserID:       ident.UserID,
		DisplayName:  ident.DisplayName,
	}))
	room.subscribers[sub.ID()] = sub

	m.logger.Debug("member joined room",
		zap.String("tournament_id", tournamentID),
		zap.String("user_id", ident.UserID),
		zap.Int("subscribers", len(room.subscribers)))
	return nil
}

// Leave unsubscribes sub from the room and notifies the remaining
// subscribers. The member set is left untouched.
func (m *Manager) Leave(sub Subscriber, tournamentID string) error {
	room := m.lookup(tournamentID)
	if room == nil {
		return NotFoundError("chat room not found")
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return NotFoundError("chat room not found")
	}
	m.unsubscribeLocked(room, sub)
	return nil
}

// Disconnect removes sub from each listed room. It is safe to call more than
// once and for rooms that have already been swept.
func (m *Manager) Disconnect(sub Subscriber, tournamentIDs []string) {
	for _, id := range tournamentIDs {
		room := m.lookup(id)
		if room == nil {
			continue
		}
		room.mu.Lock()
		if !room.closed {
			m.unsubscribeLocked(room, sub)
		}
		room.mu.Unlock()
	}
}

func (m *Manager) unsubscribeLocked(room *Room, sub Subscriber) {
	if _, ok := room.subscribers[sub.ID()]; !ok {
		return
	}
	delete(room.subscribers, sub.ID())
	m.broadcastLocked(room, memberLeft(room, sub))
}

// broadcastLocked sends frame to the room. Subscribers dropped because they
// stopped accepting frames are announced with member-left like any other
// departure. The caller holds room.mu.
func (m *Manager) broadcastLocked(room *Room, frame []byte) {
	dropped := room.broadcast(frame)
	for len(dropped) > 0 {
		m.recordDropped(len(dropped))
		var next []Subscriber
		for _, sub := range dropped {
			next = append(next, room.broadcast(memberLeft(room, sub))...)
		}
		dropped = next
	}
}

func memberLeft(room *Room, sub Subscriber) []byte {
	ident := sub.Identity()
	return mustEncode(EventMemberLeft, MemberNotice{
		TournamentID: room.tournamentID,
		UserID:       ident.UserID,
		DisplayName:  ident.DisplayName,
	})
}

// RoomCount returns the number of rooms in the table.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Room returns a copy of the named room's state.
func (m *Manager) Room(tournamentID string) (RoomInfo, bool) {
	room := m.lookup(tournamentID)
	if room == nil {
		return RoomInfo{}, false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return RoomInfo{}, false
	}
	return room.info(), true
}

// History returns a copy of the named room's buffer, oldest first.
func (m *Manager) History(tournamentID string) []LiveMessage {
	room := m.lookup(tournamentID)
	if room == nil {
		return nil
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.history()
}

// lookup and tombstoned trim the id the same way Join does, so every
// operation addresses a room by the key it was created under.
func (m *Manager) lookup(tournamentID string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[strings.TrimSpace(tournamentID)]
}

func (m *Manager) tombstoned(tournamentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tombstones[strings.TrimSpace(tournamentID)]
	return ok
}

// roomFor returns the live room for tournamentID, creating it if absent.
func (m *Manager) roomFor(tournamentID string, endTime time.Time) *Room {
	if room := m.lookup(tournamentID); room != nil {
		return room
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[tournamentID]; ok {
		return room
	}
	room := newRoom(tournamentID, endTime, m.capacity)
	m.rooms[tournamentID] = room
	delete(m.tombstones, tournamentID)
	telemetry.SetRooms(len(m.rooms))

	m.logger.Info("room created",
		zap.String("tournament_id", tournamentID),
		zap.Time("end_of_life", endTime))
	return room
}

func (m *Manager) recordDropped(n int) {
	for i := 0; i < n; i++ {
		telemetry.IncSubscriberDropped()
	}
	if n > 0 {
		m.logger.Warn("dropped unresponsive subscribers", zap.Int("count", n))
	}
}

func containsID(ids []string, want string) bool {
	if want == "" {
		return false
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == want {
			return true
		}
	}
	return false
}
