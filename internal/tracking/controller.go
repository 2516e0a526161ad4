// Package tracking switches focus tracking on and off and remembers the
// choice across restarts.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vincentbai/mindfulweb-agent/internal/logx"
	"github.com/vincentbai/mindfulweb-agent/internal/status"
	"pkt.systems/pslog"
)

// Tracker is the lifecycle the controller drives.
type Tracker interface {
	Start(ctx context.Context) error
	Stop()
	IsTracking() bool
}

// FlagStore persists the enabled flag.
type FlagStore interface {
	TrackingEnabled() bool
	SetTrackingEnabled(ctx context.Context, enabled bool) error
}

type Result struct {
	Success    bool `json:"success"`
	IsTracking bool `json:"isTracking"`
}

type Controller struct {
	tracker Tracker
	flags   FlagStore
	state   *status.State
	log     pslog.Logger

	mu sync.Mutex
}

func New(tracker Tracker, flags FlagStore, state *status.State, logger pslog.Logger) (*Controller, error) {
	if tracker == nil {
		return nil, errors.New("tracking controller requires a tracker")
	}
	if flags == nil {
		return nil, errors.New("tracking controller requires a flag store")
	}
	if state == nil {
		return nil, errors.New("tracking controller requires a status state")
	}
	return &Controller{
		tracker: tracker,
		flags:   flags,
		state:   state,
		log:     logx.OrDefault(logger).With("component", "tracking"),
	}, nil
}

// SetTrackingEnabled starts or stops the tracker and persists the flag. When
// the flag cannot be saved the tracker is put back the way it was and the
// error is returned with an unsuccessful result.
func (c *Controller) SetTrackingEnabled(ctx context.Context, enabled bool) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	was := c.tracker.IsTracking()
	if err := c.apply(ctx, enabled); err != nil {
		c.revert(ctx, was)
		return Result{IsTracking: c.tracker.IsTracking()}, err
	}
	if err := c.flags.SetTrackingEnabled(ctx, enabled); err != nil {
		c.revert(ctx, was)
		c.log.Warn("tracking flag not saved", "enabled", enabled, "err", err)
		return Result{IsTracking: c.tracker.IsTracking()}, err
	}
	if was != enabled {
		c.log.Info("tracking toggled", "enabled", enabled)
	}
	return Result{Success: true, IsTracking: c.tracker.IsTracking()}, nil
}

// Restore applies the persisted flag at startup.
func (c *Controller) Restore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	enabled := c.flags.TrackingEnabled()
	if err := c.apply(ctx, enabled); err != nil {
		return fmt.Errorf("restore tracking: %w", err)
	}
	c.log.Info("tracking restored", "enabled", enabled)
	return nil
}

// Shutdown stops the tracker without touching the persisted flag.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracker.Stop()
	c.state.SetTracking(false)
}

func (c *Controller) IsTracking() bool {
	return c.state.IsTracking()
}

func (c *Controller) apply(ctx context.Context, enabled bool) error {
	if enabled {
		if err := c.tracker.Start(ctx); err != nil {
			return fmt.Errorf("start tracker: %w", err)
		}
	} else {
		c.tracker.Stop()
	}
	c.state.SetTracking(c.tracker.IsTracking())
	return nil
}

func (c *Controller) revert(ctx context.Context, was bool) {
	if err := c.apply(ctx, was); err != nil {
		c.log.Error("tracking revert failed", "err", err)
	}
}
