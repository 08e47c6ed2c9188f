package chat

import (
	"sync"
	"time"
	"unicode/utf16"
)

// Room is the live state of one tournament's chat channel. All fields are
// guarded by mu.
type Room struct {
	mu sync.Mutex

	tournamentID string
	endOfLife    time.Time
	members      map[string]struct{}
	buffer       []LiveMessage
	capacity     int
	subscribers  map[string]Subscriber
	closed       bool
}

func newRoom(tournamentID string, endOfLife time.Time, capacity int) *Room {
	return &Room{
		tournamentID: tournamentID,
		endOfLife:    endOfLife,
		members:      make(map[string]struct{}),
		buffer:       make([]LiveMessage, 0, capacity),
		capacity:     capacity,
		subscribers:  make(map[string]Subscriber),
	}
}

// RoomInfo is a point-in-time copy of a room's state.
type RoomInfo struct {
	TournamentID string
	EndOfLife    time.Time
	Members      []string
	Subscribers  int
	Buffered     int
}

func (r *Room) info() RoomInfo {
	members := make([]string, 0, len(r.members))
	for id := range r.members {
		members = append(members, id)
	}
	return RoomInfo{
		TournamentID: r.tournamentID,
		EndOfLife:    r.endOfLife,
		Members:      members,
		Subscribers:  len(r.subscribers),
		Buffered:     len(r.buffer),
	}
}

func (r *Room) isMember(userID string) bool {
	_, ok := r.members[userID]
	return ok
}

// append adds msg to the buffer, evicting the oldest entry at capacity.
func (r *Room) append(msg LiveMessage) {
	if len(r.buffer) < r.capacity {
		r.buffer = append(r.buffer, msg)
		return
	}
	copy(r.buffer, r.buffer[1:])
	r.buffer[len(r.buffer)-1] = msg
}

func (r *Room) history() []LiveMessage {
	out := make([]LiveMessage, len(r.buffer))
	copy(out, r.buffer)
	return out
}

// broadcast delivers frame to every subscriber and removes the ones that can
// no longer accept frames. It returns the removed subscribers.
func (r *Room) broadcast(frame []byte) []Subscriber {
	var dropped []Subscriber
	for id, sub := range r.subscribers {
		if !sub.Deliver(frame) {
			delete(r.subscribers, id)
			dropped = append(dropped, sub)
		}
	}
	return dropped
}

// truncateUTF16 shortens s to at most limit UTF-16 code units without
// splitting a surrogate pair.
func truncateUTF16(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	units := 0
	for i, r := range s {
		n := 1
		if utf16.RuneLen(r) == 2 {
			n = 2
		}
		if units+n > limit {
			return s[:i]
		}
		units += n
	}
	return s
}
