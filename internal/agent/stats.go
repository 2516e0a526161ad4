package agent

import (
	"sync"
	"time"

	"github.com/vincentbai/mindfulweb-agent/internal/models"
)

// DailyStats counts emitted events and distinct domains for the current
// local day. Counts reset on the first read or write after midnight.
type DailyStats struct {
	now func() time.Time

	mu      sync.Mutex
	day     string
	events  int
	domains map[string]struct{}
}

func NewDailyStats(now func() time.Time) *DailyStats {
	if now == nil {
		now = time.Now
	}
	return &DailyStats{now: now, domains: make(map[string]struct{})}
}

func (s *DailyStats) Record(event models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollLocked()
	s.events++
	s.domains[event.Domain] = struct{}{}
}

func (s *DailyStats) Today() (events, domains int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollLocked()
	return s.events, len(s.domains)
}

func (s *DailyStats) rollLocked() {
	day := s.now().Local().Format(time.DateOnly)
	if day == s.day {
		return
	}
	s.day = day
	s.events = 0
	s.domains = make(map[string]struct{})
}
