// Package tracker turns browser tab and window focus changes into
// active/inactive domain events.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/vincentbai/mindfulweb-agent/internal/domains"
	"github.com/vincentbai/mindfulweb-agent/internal/logx"
	"github.com/vincentbai/mindfulweb-agent/internal/models"
	"pkt.systems/pslog"
)

const defaultLookupTimeout = 3 * time.Second

type Options struct {
	Logger pslog.Logger
	// LookupTimeout bounds each host lookup made while handling a signal.
	LookupTimeout time.Duration
}

// Tracker owns the pointer to the previously active tab. Signals are handled
// one at a time: a transition reads and replaces the pointer inside a single
// critical section, so an INACTIVE for the old domain is always emitted
// before the ACTIVE for the new one.
type Tracker struct {
	host          Host
	emitter       Emitter
	log           pslog.Logger
	lookupTimeout time.Duration

	lifecycle   sync.Mutex
	unsubscribe func()

	mu       sync.Mutex
	tracking bool
	previous *models.Tab
	// previousActive is false once the previous domain got its INACTIVE
	// because the browser lost focus.
	previousActive bool
}

func New(host Host, emitter Emitter, opts Options) (*Tracker, error) {
	if host == nil {
		return nil, errors.New("tracker host is required")
	}
	if emitter == nil {
		return nil, errors.New("tracker emitter is required")
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = defaultLookupTimeout
	}
	return &Tracker{
		host:          host,
		emitter:       emitter,
		log:           logx.OrDefault(opts.Logger).With("component", "tracker"),
		lookupTimeout: opts.LookupTimeout,
	}, nil
}

// Start subscribes to the host and records the currently active tab. It is a
// no-op when the tracker is already listening.
func (t *Tracker) Start(ctx context.Context) error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	if t.unsubscribe != nil {
		return nil
	}

	t.mu.Lock()
	t.tracking = true
	t.previous = nil
	t.previousActive = false
	lookupCtx, cancel := context.WithTimeout(ctx, t.lookupTimeout)
	tab, err := t.host.ActiveTab(lookupCtx)
	cancel()
	switch {
	case err != nil:
		t.log.Debug("tracker start without active tab", "err", err)
	case tab.URL != "":
		t.previous = &tab
		t.previousActive = true
	}
	t.mu.Unlock()

	t.unsubscribe = t.host.Subscribe(t.handle)
	t.log.Info("tracker started")
	return nil
}

// Stop detaches from the host. It waits for a transition in progress and is
// a no-op when the tracker is not listening.
func (t *Tracker) Stop() {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	if t.unsubscribe == nil {
		return
	}
	t.unsubscribe()
	t.unsubscribe = nil

	t.mu.Lock()
	t.tracking = false
	t.previous = nil
	t.previousActive = false
	t.mu.Unlock()
	t.log.Info("tracker stopped")
}

func (t *Tracker) IsTracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracking
}

// PreviousTab returns a copy of the previously active tab, or nil.
func (t *Tracker) PreviousTab() *models.Tab {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.previous == nil {
		return nil
	}
	tab := *t.previous
	return &tab
}

// HandleSignal processes one signal synchronously. Hosts call it through the
// handler registered in Start; it never panics.
func (t *Tracker) HandleSignal(signal Signal) {
	t.handle(signal)
}

func (t *Tracker) handle(signal Signal) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("tracker signal panic", "signal", fmt.Sprintf("%T", signal), "panic", r, "stack", string(debug.Stack()))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), t.lookupTimeout)
	defer cancel()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.tracking {
		return
	}

	switch s := signal.(type) {
	case TabActivated:
		tab, err := t.host.Tab(ctx, s.TabID)
		if err != nil {
			t.log.Debug("tracker tab lookup failed", "tab", s.TabID, "err", err)
			return
		}
		t.focusTab(ctx, tab)
	case TabUpdated:
		if !s.Complete || !s.Active {
			return
		}
		t.focusTab(ctx, s.Tab)
	case TabRemoved:
		if !s.WindowClosing {
			return
		}
		t.windowClosed(ctx, s)
	case WindowFocusChanged:
		if s.WindowID == models.WindowNone {
			t.focusLost(ctx)
			return
		}
		t.windowFocused(ctx, s.WindowID)
	default:
		t.log.Warn("tracker unknown signal", "signal", fmt.Sprintf("%T", signal))
	}
}

// focusTab moves focus to tab: INACTIVE for the previous domain, then ACTIVE
// for the new one. Staying on the same domain only swaps the pointer. No
// second INACTIVE is emitted for a domain that already lost focus.
func (t *Tracker) focusTab(ctx context.Context, tab models.Tab) {
	domain, ok := domains.Resolve(tab.URL)
	if !ok {
		logx.WithTab(t.log, tab).Trace("tracker tab not trackable")
		return
	}
	previousDomain, hasPrevious := t.previousDomain()
	if hasPrevious && previousDomain == domain {
		t.previous = &tab
		if !t.previousActive {
			t.emit(ctx, models.KindActive, domain)
			t.previousActive = true
		}
		return
	}
	if hasPrevious && t.previousActive {
		t.emit(ctx, models.KindInactive, previousDomain)
	}
	t.emit(ctx, models.KindActive, domain)
	t.previous = &tab
	t.previousActive = true
}

func (t *Tracker) focusLost(ctx context.Context) {
	previousDomain, ok := t.previousDomain()
	if !ok || !t.previousActive {
		return
	}
	t.emit(ctx, models.KindInactive, previousDomain)
	t.previousActive = false
}

// windowFocused emits ACTIVE for the focused window's tab. A paired INACTIVE
// is only needed when focus moved between windows without the browser
// reporting a focus loss first.
func (t *Tracker) windowFocused(ctx context.Context, windowID int64) {
	tab, err := t.host.ActiveTabInWindow(ctx, windowID)
	if err != nil {
		t.log.Debug("tracker window lookup failed", "window", windowID, "err", err)
		return
	}
	domain, ok := domains.Resolve(tab.URL)
	if !ok {
		logx.WithTab(t.log, tab).Trace("tracker tab not trackable")
		return
	}
	previousDomain, hasPrevious := t.previousDomain()
	if hasPrevious && t.previousActive {
		if previousDomain == domain {
			t.previous = &tab
			return
		}
		t.emit(ctx, models.KindInactive, previousDomain)
	}
	t.emit(ctx, models.KindActive, domain)
	t.previous = &tab
	t.previousActive = true
}

// windowClosed emits INACTIVE for the tab left active in the current window
// when a window closes.
func (t *Tracker) windowClosed(ctx context.Context, s TabRemoved) {
	tab, err := t.host.ActiveTab(ctx)
	if err != nil {
		t.log.Debug("tracker active tab lookup failed", "window", s.WindowID, "err", err)
		return
	}
	domain, ok := domains.Resolve(tab.URL)
	if !ok {
		return
	}
	t.emit(ctx, models.KindInactive, domain)
	if previousDomain, hasPrevious := t.previousDomain(); hasPrevious && previousDomain == domain {
		t.previousActive = false
	}
}

func (t *Tracker) previousDomain() (string, bool) {
	if t.previous == nil {
		return "", false
	}
	return domains.Resolve(t.previous.URL)
}

// emit is called with t.mu held.
func (t *Tracker) emit(ctx context.Context, kind models.EventKind, domain string) {
	if !t.tracking {
		return
	}
	logx.WithDomain(t.log, domain).Debug("tracker emit", "kind", kind)
	t.emitter.Emit(ctx, kind, domain)
}
