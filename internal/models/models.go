package models

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	KindActive   EventKind = "active"
	KindInactive EventKind = "inactive"
)

func (k EventKind) Valid() bool {
	switch k {
	case KindActive, KindInactive:
		return true
	default:
		return false
	}
}

// Event is one focus transition for a domain. Events are never mutated after
// NewEvent returns them.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"event"`
	Domain    string    `json:"domain"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEvent(kind EventKind, domain string, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Domain:    domain,
		Timestamp: at.UTC(),
	}
}

type Batch struct {
	Events []Event `json:"events"`
}

// WindowNone is the window id the browser reports when no window has focus.
const WindowNone int64 = -1

type Tab struct {
	ID       int64  `json:"id"`
	WindowID int64  `json:"windowId"`
	URL      string `json:"url"`
}

type HealthSnapshot struct {
	LastCheckedAt time.Time `json:"lastCheckedAt"`
	LastResult    bool      `json:"lastResult"`
}

type TodayStats struct {
	Events  int `json:"events"`
	Domains int `json:"domains"`
	Queue   int `json:"queue"`
}
