package registry

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML layout accepted by LoadSeed.
//
//	tournaments:
//	  - id: spring-open
//	    name: Spring Open
//	    status: active
//	    starts_at: 2026-05-01T18:00:00Z
//	    ends_at: 2026-05-01T22:00:00Z
//	    registrants: [alice, bob]
type Seed struct {
	Tournaments []SeedTournament `yaml:"tournaments"`
}

// SeedTournament is one tournament entry of a Seed.
type SeedTournament struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Status      Status    `yaml:"status"`
	StartsAt    time.Time `yaml:"starts_at"`
	EndsAt      time.Time `yaml:"ends_at"`
	Registrants []string  `yaml:"registrants"`
	Cancelled   []string  `yaml:"cancelled"`
}

// LoadSeed fills m from the YAML file at path and returns the number of
// tournaments loaded.
func LoadSeed(path string, m *Memory) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}
	return seed.Apply(m)
}

// Apply loads every tournament of s into m.
func (s Seed) Apply(m *Memory) (int, error) {
	for i, t := range s.Tournaments {
		if t.ID == "" {
			return i, fmt.Errorf("seed tournament %d: id is required", i)
		}
		if t.EndsAt.IsZero() {
			return i, fmt.Errorf("seed tournament %s: ends_at is required", t.ID)
		}
		status := t.Status
		if status == "" {
			status = StatusActive
		}
		m.PutTournament(Tournament{
			ID:       t.ID,
			Name:     t.Name,
			Status:   status,
			StartsAt: t.StartsAt,
			EndsAt:   t.EndsAt,
		})
		m.Register(t.ID, t.Registrants...)
		for _, id := range t.Cancelled {
			m.Register(t.ID, id)
			m.Cancel(t.ID, id)
		}
	}
	return len(s.Tournaments), nil
}
