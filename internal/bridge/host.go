// Package bridge mirrors the browser's tab and window state from signals the
// extension posts to the agent, and serves that state to the focus tracker.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vincentbai/mindfulweb-agent/internal/logx"
	"github.com/vincentbai/mindfulweb-agent/internal/models"
	"github.com/vincentbai/mindfulweb-agent/internal/tracker"
	"pkt.systems/pslog"
)

var ErrTabNotFound = errors.New("tab not found")

var _ tracker.Host = (*Host)(nil)

// Host is the agent-side mirror of the browser.
type Host struct {
	log pslog.Logger

	mu            sync.RWMutex
	tabs          map[int64]models.Tab
	activeByWin   map[int64]int64
	focusedWindow int64
	// recent lists windows by focus, most recent last.
	recent      []int64
	subscribers map[uint64]func(tracker.Signal)
	nextSub     uint64
}

func NewHost(logger pslog.Logger) *Host {
	return &Host{
		log:           logx.OrDefault(logger).With("component", "bridge"),
		tabs:          make(map[int64]models.Tab),
		activeByWin:   make(map[int64]int64),
		focusedWindow: models.WindowNone,
		subscribers:   make(map[uint64]func(tracker.Signal)),
	}
}

func (h *Host) Subscribe(handler func(tracker.Signal)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextSub
	h.nextSub++
	h.subscribers[id] = handler
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
		})
	}
}

// Apply updates the mirror from one wire signal and then hands the signal to
// every subscriber. Subscribers run synchronously on the caller's goroutine.
func (h *Host) Apply(wire WireSignal) error {
	signal, err := wire.Tracker()
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.applyLocked(wire)
	handlers := make([]func(tracker.Signal), 0, len(h.subscribers))
	for _, handler := range h.subscribers {
		handlers = append(handlers, handler)
	}
	h.mu.Unlock()

	h.log.Trace("bridge signal", "type", wire.Type, "tab", wire.TabID, "window", wire.WindowID)
	for _, handler := range handlers {
		handler(signal)
	}
	return nil
}

func (h *Host) applyLocked(wire WireSignal) {
	switch wire.Type {
	case TypeTabActivated:
		tab := h.tabs[wire.TabID]
		tab.ID = wire.TabID
		tab.WindowID = wire.WindowID
		if wire.URL != "" {
			tab.URL = wire.URL
		}
		h.tabs[wire.TabID] = tab
		h.activeByWin[wire.WindowID] = wire.TabID
		h.focusWindowLocked(wire.WindowID)
	case TypeTabUpdated:
		tab := h.tabs[wire.TabID]
		tab.ID = wire.TabID
		tab.WindowID = wire.WindowID
		if wire.URL != "" {
			tab.URL = wire.URL
		}
		h.tabs[wire.TabID] = tab
		if wire.Active {
			h.activeByWin[wire.WindowID] = wire.TabID
		}
	case TypeTabRemoved:
		delete(h.tabs, wire.TabID)
		if h.activeByWin[wire.WindowID] == wire.TabID {
			delete(h.activeByWin, wire.WindowID)
		}
		if wire.WindowClosing {
			h.forgetWindowLocked(wire.WindowID)
		}
	case TypeWindowFocusChanged:
		if wire.WindowID == models.WindowNone {
			h.focusedWindow = models.WindowNone
			return
		}
		h.focusWindowLocked(wire.WindowID)
	}
}

func (h *Host) focusWindowLocked(windowID int64) {
	h.focusedWindow = windowID
	h.forgetWindowLocked(windowID)
	h.recent = append(h.recent, windowID)
}

func (h *Host) forgetWindowLocked(windowID int64) {
	for i, id := range h.recent {
		if id == windowID {
			h.recent = append(h.recent[:i], h.recent[i+1:]...)
			break
		}
	}
	if h.focusedWindow == windowID && len(h.recent) == 0 {
		h.focusedWindow = models.WindowNone
	}
}

// ActiveTab returns the active tab of the current window: the focused one, or
// the most recently focused window that still has an active tab.
func (h *Host) ActiveTab(context.Context) (models.Tab, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.focusedWindow != models.WindowNone {
		if tab, err := h.activeInWindowLocked(h.focusedWindow); err == nil {
			return tab, nil
		}
	}
	for i := len(h.recent) - 1; i >= 0; i-- {
		if tab, err := h.activeInWindowLocked(h.recent[i]); err == nil {
			return tab, nil
		}
	}
	return models.Tab{}, fmt.Errorf("active tab: %w", ErrTabNotFound)
}

func (h *Host) Tab(_ context.Context, tabID int64) (models.Tab, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	tab, ok := h.tabs[tabID]
	if !ok {
		return models.Tab{}, fmt.Errorf("tab %d: %w", tabID, ErrTabNotFound)
	}
	return tab, nil
}

func (h *Host) ActiveTabInWindow(_ context.Context, windowID int64) (models.Tab, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.activeInWindowLocked(windowID)
}

// Forget drops the mirror, typically when the extension reconnects and will
// resend its state.
func (h *Host) Forget() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tabs = make(map[int64]models.Tab)
	h.activeByWin = make(map[int64]int64)
	h.focusedWindow = models.WindowNone
	h.recent = nil
}

func (h *Host) TabCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tabs)
}

func (h *Host) activeInWindowLocked(windowID int64) (models.Tab, error) {
	tabID, ok := h.activeByWin[windowID]
	if !ok {
		return models.Tab{}, fmt.Errorf("window %d: %w", windowID, ErrTabNotFound)
	}
	tab, ok := h.tabs[tabID]
	if !ok {
		return models.Tab{}, fmt.Errorf("tab %d: %w", tabID, ErrTabNotFound)
	}
	return tab, nil
}
