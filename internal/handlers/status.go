package handlers

import (
	"errors"

	"github.com/vincentbai/mindfulweb-agent/internal/models"
)

type StateReader interface {
	IsTracking() bool
	IsOnline() bool
}

// StatsSource reports today's event and distinct-domain counts.
type StatsSource interface {
	Today() (events, domains int)
}

type Sizer interface {
	Size() int
}

type StatusHandler struct {
	state StateReader
	stats StatsSource
	queue Sizer
}

func NewStatusHandler(state StateReader, stats StatsSource, sizer Sizer) (*StatusHandler, error) {
	if state == nil || stats == nil || sizer == nil {
		return nil, errors.New("status handler requires state, stats and queue")
	}
	return &StatusHandler{state: state, stats: stats, queue: sizer}, nil
}

func (h *StatusHandler) TrackingStatus() TrackingStatusResponse {
	return TrackingStatusResponse{IsTracking: h.state.IsTracking(), IsOnline: h.state.IsOnline()}
}

func (h *StatusHandler) TodayStats() models.TodayStats {
	events, domains := h.stats.Today()
	return models.TodayStats{Events: events, Domains: domains, Queue: h.queue.Size()}
}
