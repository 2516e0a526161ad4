package tracking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vincentbai/mindfulweb-agent/internal/logx"
	"github.com/vincentbai/mindfulweb-agent/internal/status"
)

type fakeTracker struct {
	running  bool
	starts   int
	stops    int
	startErr error
}

func (f *fakeTracker) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	if !f.running {
		f.starts++
	}
	f.running = true
	return nil
}

func (f *fakeTracker) Stop() {
	if f.running {
		f.stops++
	}
	f.running = false
}

func (f *fakeTracker) IsTracking() bool { return f.running }

type fakeFlags struct {
	enabled bool
	saveErr error
	saves   int
}

func (f *fakeFlags) TrackingEnabled() bool { return f.enabled }

func (f *fakeFlags) SetTrackingEnabled(_ context.Context, enabled bool) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.enabled = enabled
	return nil
}

func newController(t *testing.T, tr *fakeTracker, flags *fakeFlags) (*Controller, *status.State) {
	t.Helper()
	state := status.New()
	c, err := New(tr, flags, state, logx.Discard())
	require.NoError(t, err)
	return c, state
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()
	_, err := New(nil, &fakeFlags{}, status.New(), nil)
	assert.Error(t, err)
	_, err = New(&fakeTracker{}, nil, status.New(), nil)
	assert.Error(t, err)
	_, err = New(&fakeTracker{}, &fakeFlags{}, nil, nil)
	assert.Error(t, err)
}

func TestSetTrackingEnabledTogglesAndPersists(t *testing.T) {
	t.Parallel()
	tr := &fakeTracker{}
	flags := &fakeFlags{}
	c, state := newController(t, tr, flags)

	result, err := c.SetTrackingEnabled(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, Result{Success: true, IsTracking: true}, result)
	assert.True(t, state.IsTracking())
	assert.True(t, flags.enabled)

	result, err = c.SetTrackingEnabled(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, Result{Success: true, IsTracking: true}, result)
	assert.Equal(t, 1, tr.starts)

	result, err = c.SetTrackingEnabled(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, Result{Success: true, IsTracking: false}, result)
	assert.False(t, state.IsTracking())
	assert.False(t, c.IsTracking())
	assert.False(t, flags.enabled)
	assert.Equal(t, 3, flags.saves)
}

func TestSetTrackingEnabledRevertsOnSaveFailure(t *testing.T) {
	t.Parallel()
	tr := &fakeTracker{}
	flags := &fakeFlags{saveErr: errors.New("disk full")}
	c, state := newController(t, tr, flags)

	result, err := c.SetTrackingEnabled(context.Background(), true)
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.False(t, result.IsTracking)
	assert.False(t, tr.running)
	assert.False(t, state.IsTracking())
}

func TestSetTrackingEnabledStartFailure(t *testing.T) {
	t.Parallel()
	tr := &fakeTracker{startErr: errors.New("no host")}
	flags := &fakeFlags{}
	c, _ := newController(t, tr, flags)

	result, err := c.SetTrackingEnabled(context.Background(), true)
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Zero(t, flags.saves)
}

func TestRestoreAndShutdown(t *testing.T) {
	t.Parallel()
	tr := &fakeTracker{}
	flags := &fakeFlags{enabled: true}
	c, state := newController(t, tr, flags)

	require.NoError(t, c.Restore(context.Background()))
	assert.True(t, state.IsTracking())

	c.Shutdown()
	assert.False(t, state.IsTracking())
	assert.True(t, flags.enabled)

	flags.enabled = false
	require.NoError(t, c.Restore(context.Background()))
	assert.False(t, tr.running)
}
