package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vincentbai/mindfulweb-agent/internal/logx"
	"github.com/vincentbai/mindfulweb-agent/internal/models"
	"github.com/vincentbai/mindfulweb-agent/internal/tracker"
)

func TestDecodeSignals(t *testing.T) {
	t.Parallel()

	one, err := DecodeSignals([]byte(`{"type":"tab_activated","tabId":4,"windowId":1,"url":"https://a.com"}`))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, int64(4), one[0].TabID)

	many, err := DecodeSignals([]byte(` [{"type":"window_focus_changed","windowId":-1},{"type":"tab_removed","tabId":2,"windowId":1,"windowClosing":true}]`))
	require.NoError(t, err)
	require.Len(t, many, 2)
	assert.True(t, many[1].WindowClosing)

	tests := map[string]string{
		"empty":        ``,
		"malformed":    `{"type":`,
		"missing type": `{"tabId":1}`,
		"unknown":      `{"type":"tab_moved","tabId":1}`,
		"no tab":       `{"type":"tab_activated","windowId":1}`,
		"bad window":   `{"type":"window_focus_changed","windowId":-7}`,
	}
	for name, payload := range tests {
		_, err := DecodeSignals([]byte(payload))
		assert.Error(t, err, name)
	}
}

func TestWireSignalTrackerConversion(t *testing.T) {
	t.Parallel()

	signal, err := WireSignal{Type: TypeTabUpdated, TabID: 3, WindowID: 9, URL: "https://b.com", Status: "complete", Active: true}.Tracker()
	require.NoError(t, err)
	assert.Equal(t, tracker.TabUpdated{Tab: models.Tab{ID: 3, WindowID: 9, URL: "https://b.com"}, Complete: true, Active: true}, signal)

	signal, err = WireSignal{Type: TypeTabUpdated, TabID: 3, WindowID: 9, Status: "loading"}.Tracker()
	require.NoError(t, err)
	assert.False(t, signal.(tracker.TabUpdated).Complete)

	signal, err = WireSignal{Type: TypeWindowFocusChanged, WindowID: models.WindowNone}.Tracker()
	require.NoError(t, err)
	assert.Equal(t, tracker.WindowFocusChanged{WindowID: models.WindowNone}, signal)
}

func TestHostMirrorsTabs(t *testing.T) {
	t.Parallel()
	host := NewHost(logx.Discard())
	ctx := context.Background()

	require.NoError(t, host.Apply(WireSignal{Type: TypeTabActivated, TabID: 1, WindowID: 10, URL: "https://a.com"}))
	require.NoError(t, host.Apply(WireSignal{Type: TypeTabUpdated, TabID: 1, WindowID: 10, URL: "https://b.com", Status: "complete", Active: true}))

	tab, err := host.Tab(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "https://b.com", tab.URL)

	active, err := host.ActiveTab(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active.ID)

	inWindow, err := host.ActiveTabInWindow(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, tab, inWindow)

	_, err = host.Tab(ctx, 42)
	assert.True(t, errors.Is(err, ErrTabNotFound))
	_, err = host.ActiveTabInWindow(ctx, 99)
	assert.ErrorIs(t, err, ErrTabNotFound)
	assert.Equal(t, 1, host.TabCount())
}

func TestHostActiveTabAfterWindowCloses(t *testing.T) {
	t.Parallel()
	host := NewHost(logx.Discard())
	ctx := context.Background()

	require.NoError(t, host.Apply(WireSignal{Type: TypeTabActivated, TabID: 1, WindowID: 10, URL: "https://a.com"}))
	require.NoError(t, host.Apply(WireSignal{Type: TypeTabActivated, TabID: 2, WindowID: 20, URL: "https://b.com"}))
	require.NoError(t, host.Apply(WireSignal{Type: TypeTabRemoved, TabID: 2, WindowID: 20, WindowClosing: true}))

	active, err := host.ActiveTab(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active.ID)

	require.NoError(t, host.Apply(WireSignal{Type: TypeWindowFocusChanged, WindowID: models.WindowNone}))
	active, err = host.ActiveTab(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active.ID)

	host.Forget()
	_, err = host.ActiveTab(ctx)
	assert.ErrorIs(t, err, ErrTabNotFound)
	assert.Zero(t, host.TabCount())
}

func TestHostFansOutAfterUpdate(t *testing.T) {
	t.Parallel()
	host := NewHost(logx.Discard())

	var seen []tracker.Signal
	var urlAtDelivery string
	cancel := host.Subscribe(func(signal tracker.Signal) {
		seen = append(seen, signal)
		tab, err := host.Tab(context.Background(), 5)
		if err == nil {
			urlAtDelivery = tab.URL
		}
	})

	require.NoError(t, host.Apply(WireSignal{Type: TypeTabActivated, TabID: 5, WindowID: 1, URL: "https://c.com"}))
	assert.Equal(t, "https://c.com", urlAtDelivery)
	require.Len(t, seen, 1)

	cancel()
	cancel()
	require.NoError(t, host.Apply(WireSignal{Type: TypeTabActivated, TabID: 5, WindowID: 1}))
	assert.Len(t, seen, 1)

	assert.Error(t, host.Apply(WireSignal{Type: "bogus"}))
}

func TestHostDrivesTracker(t *testing.T) {
	t.Parallel()
	host := NewHost(logx.Discard())
	require.NoError(t, host.Apply(WireSignal{Type: TypeTabActivated, TabID: 1, WindowID: 10, URL: "https://a.com"}))

	var got []string
	tr, err := tracker.New(host, tracker.EmitterFunc(func(_ context.Context, kind models.EventKind, domain string) {
		got = append(got, string(kind)+":"+domain)
	}), tracker.Options{Logger: logx.Discard()})
	require.NoError(t, err)
	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop()

	require.NoError(t, host.Apply(WireSignal{Type: TypeTabActivated, TabID: 2, WindowID: 10, URL: "https://b.com"}))
	require.NoError(t, host.Apply(WireSignal{Type: TypeWindowFocusChanged, WindowID: models.WindowNone}))
	require.NoError(t, host.Apply(WireSignal{Type: TypeWindowFocusChanged, WindowID: 10}))

	assert.Equal(t, []string{"inactive:a.com", "active:b.com", "inactive:b.com", "active:b.com"}, got)
}
