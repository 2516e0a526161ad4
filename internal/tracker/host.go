package tracker

import (
	"context"

	"github.com/vincentbai/mindfulweb-agent/internal/models"
)

// Signal is one of the browser notifications the tracker reacts to.
type Signal interface {
	signal()
}

// TabActivated reports that the user switched to a tab.
type TabActivated struct {
	TabID    int64
	WindowID int64
}

// TabUpdated reports a tab change. Only updates of the active tab that
// finished loading move focus.
type TabUpdated struct {
	Tab      models.Tab
	Complete bool
	Active   bool
}

// TabRemoved reports a closed tab. WindowClosing is set when the tab closed
// because its window did.
type TabRemoved struct {
	TabID         int64
	WindowID      int64
	WindowClosing bool
}

// WindowFocusChanged reports the newly focused window, or models.WindowNone
// when the browser lost focus entirely.
type WindowFocusChanged struct {
	WindowID int64
}

func (TabActivated) signal()       {}
func (TabUpdated) signal()         {}
func (TabRemoved) signal()         {}
func (WindowFocusChanged) signal() {}

// Host is the browser the tracker observes.
type Host interface {
	// Subscribe delivers every signal to handler until the returned function
	// is called.
	Subscribe(handler func(Signal)) (unsubscribe func())
	// ActiveTab returns the active tab of the current window.
	ActiveTab(ctx context.Context) (models.Tab, error)
	Tab(ctx context.Context, tabID int64) (models.Tab, error)
	ActiveTabInWindow(ctx context.Context, windowID int64) (models.Tab, error)
}

// Emitter receives the focus events the tracker produces.
type Emitter interface {
	Emit(ctx context.Context, kind models.EventKind, domain string)
}

type EmitterFunc func(ctx context.Context, kind models.EventKind, domain string)

func (f EmitterFunc) Emit(ctx context.Context, kind models.EventKind, domain string) {
	f(ctx, kind, domain)
}
