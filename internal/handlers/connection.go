package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/vincentbai/mindfulweb-agent/internal/delivery"
	"github.com/vincentbai/mindfulweb-agent/internal/logx"
	"github.com/vincentbai/mindfulweb-agent/internal/queue"
	"pkt.systems/pslog"
)

type HealthChecker interface {
	CheckHealth(ctx context.Context, force bool) delivery.HealthResult
}

type Flusher interface {
	Size() int
	Drain(ctx context.Context, send queue.SendFunc) (queue.DrainResult, error)
}

// ConnectionHandler answers connectivity probes and user-initiated flushes.
type ConnectionHandler struct {
	health HealthChecker
	queue  Flusher
	send   queue.SendFunc
	log    pslog.Logger
}

func NewConnectionHandler(health HealthChecker, flusher Flusher, send queue.SendFunc, logger pslog.Logger) (*ConnectionHandler, error) {
	if health == nil || flusher == nil || send == nil {
		return nil, errors.New("connection handler requires health checker, queue and sender")
	}
	return &ConnectionHandler{
		health: health,
		queue:  flusher,
		send:   send,
		log:    logx.OrDefault(logger).With("component", "connection"),
	}, nil
}

// CheckConnection runs a throttled probe and leaves the queue alone.
func (h *ConnectionHandler) CheckConnection(ctx context.Context) delivery.HealthResult {
	return h.health.CheckHealth(ctx, false)
}

// TestConnection flushes the queue when it holds events, since a delivered
// batch proves connectivity. An empty queue falls back to a throttled probe.
func (h *ConnectionHandler) TestConnection(ctx context.Context) TestConnectionResponse {
	if h.queue.Size() == 0 {
		probe := h.health.CheckHealth(ctx, false)
		return TestConnectionResponse{
			Success:     probe.Success,
			TooFrequent: probe.TooFrequent,
			QueueSize:   intPtr(0),
			Error:       probe.Error,
		}
	}

	result, err := h.queue.Drain(ctx, h.send)
	switch {
	case errors.Is(err, queue.ErrDrainInProgress):
		return TestConnectionResponse{Error: "delivery already in progress"}
	case err != nil:
		h.log.Warn("test connection flush failed", "sent", result.Sent, "remaining", result.Remaining, "err", err)
		return TestConnectionResponse{
			Error:            err.Error(),
			SentEvents:       intPtr(result.Sent),
			RemainingInQueue: intPtr(result.Remaining),
		}
	}
	h.log.Info("test connection flush", "sent", result.Sent, "remaining", result.Remaining)
	return TestConnectionResponse{
		Success:          result.Remaining == 0 || result.Sent > 0,
		Message:          flushMessage(result),
		SentEvents:       intPtr(result.Sent),
		RemainingInQueue: intPtr(result.Remaining),
	}
}

func flushMessage(result queue.DrainResult) string {
	if result.Remaining == 0 {
		return fmt.Sprintf("delivered %d queued events", result.Sent)
	}
	return fmt.Sprintf("delivered %d queued events, %d still queued", result.Sent, result.Remaining)
}

func intPtr(v int) *int {
	return &v
}
