package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/Tyrowin/tourneychat/internal/chat"
)

// Memory is an in-process Authority used for local development and tests.
type Memory struct {
	mu            sync.RWMutex
	tournaments   map[string]Tournament
	registrations map[string]map[string]bool // tournament -> user -> active
}

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{
		tournaments:   make(map[string]Tournament),
		registrations: make(map[string]map[string]bool),
	}
}

// PutTournament inserts or replaces a tournament.
func (m *Memory) PutTournament(t Tournament) {
	m.mu.Lock()
	m.tournaments[t.ID] = t
	m.mu.Unlock()
}

// Register records an active registration.
func (m *Memory) Register(tournamentID string, userIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	regs, ok := m.registrations[tournamentID]
	if !ok {
		regs = make(map[string]bool)
		m.registrations[tournamentID] = regs
	}
	for _, id := range userIDs {
		regs[id] = true
	}
}

// Cancel marks a registration as cancelled.
func (m *Memory) Cancel(tournamentID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if regs, ok := m.registrations[tournamentID]; ok {
		if _, exists := regs[userID]; exists {
			regs[userID] = false
		}
	}
}

func (m *Memory) Tournament(_ context.Context, id string) (Tournament, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tournaments[id]
	if !ok {
		return Tournament{}, chat.NotFoundError("tournament not found")
	}
	return t, nil
}

func (m *Memory) IsRegistrant(_ context.Context, tournamentID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registrations[tournamentID][userID], nil
}

func (m *Memory) Registrants(_ context.Context, tournamentID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.registrations[tournamentID]))
	for id, active := range m.registrations[tournamentID] {
		if active {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}
