package store

import (
	"context"
	"sort"
	"sync"
)

// messageKey mirrors the (tournament_id, message_id) unique index.
type messageKey struct {
	tournamentID string
	messageID    string
}

// Memory is an in-process Log for development and tests.
type Memory struct {
	mu     sync.RWMutex
	nextID int64
	seen   map[messageKey]struct{}
	byRoom map[string][]PersistedMessage
}

func NewMemory() *Memory {
	return &Memory{
		seen:   make(map[messageKey]struct{}),
		byRoom: make(map[string][]PersistedMessage),
	}
}

func (m *Memory) Append(_ context.Context, msg PersistedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.MessageID != "" {
		key := messageKey{tournamentID: msg.TournamentID, messageID: msg.MessageID}
		if _, dup := m.seen[key]; dup {
			return nil
		}
		m.seen[key] = struct{}{}
	}
	m.nextID++
	msg.ID = m.nextID
	m.byRoom[msg.TournamentID] = append(m.byRoom[msg.TournamentID], msg)
	return nil
}

func (m *Memory) Recent(_ context.Context, tournamentID string, limit int) ([]PersistedMessage, error) {
	m.mu.RLock()
	msgs := make([]PersistedMessage, len(m.byRoom[tournamentID]))
	copy(msgs, m.byRoom[tournamentID])
	m.mu.RUnlock()

	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID > msgs[j].ID
		}
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// Len reports how many messages are stored for a tournament.
func (m *Memory) Len(tournamentID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byRoom[tournamentID])
}
