// Package status holds the process-wide tracking state read by every status
// query.
package status

import (
	"sync"
	"time"

	"github.com/vincentbai/mindfulweb-agent/internal/models"
)

// Snapshot is a consistent copy of the tracking state.
type Snapshot struct {
	IsTracking bool                  `json:"isTracking"`
	IsOnline   bool                  `json:"isOnline"`
	Health     models.HealthSnapshot `json:"health"`
}

// State is shared by the tracking controller, which owns IsTracking, and the
// delivery client, which owns IsOnline and the health snapshot.
type State struct {
	mu       sync.RWMutex
	tracking bool
	online   bool
	health   models.HealthSnapshot
}

func New() *State {
	return &State{}
}

func (s *State) SetTracking(tracking bool) {
	s.mu.Lock()
	s.tracking = tracking
	s.mu.Unlock()
}

func (s *State) SetOnline(online bool) {
	s.mu.Lock()
	s.online = online
	s.mu.Unlock()
}

// RecordHealth stores the outcome of a connectivity probe and mirrors it into
// the online flag.
func (s *State) RecordHealth(at time.Time, ok bool) {
	s.mu.Lock()
	s.health = models.HealthSnapshot{LastCheckedAt: at, LastResult: ok}
	s.online = ok
	s.mu.Unlock()
}

func (s *State) IsTracking() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracking
}

func (s *State) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

func (s *State) Health() models.HealthSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{IsTracking: s.tracking, IsOnline: s.online, Health: s.health}
}
