package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vincentbai/mindfulweb-agent/internal/domains"
	"github.com/vincentbai/mindfulweb-agent/internal/logx"
	"github.com/vincentbai/mindfulweb-agent/internal/models"
)

func newTestQueue(maxSize int) *Queue {
	return New(Options{
		MaxSize: maxSize,
		Logger:  logx.Discard(),
	})
}

func fill(q *Queue, domainsInOrder ...string) {
	for _, domain := range domainsInOrder {
		q.Enqueue(context.Background(), models.KindActive, domain)
	}
}

func queuedDomains(q *Queue) []string {
	events := q.Snapshot()
	out := make([]string, len(events))
	for i, event := range events {
		out[i] = event.Domain
	}
	return out
}

func acceptFirst(n int) SendFunc {
	return func(_ context.Context, events []models.Event) (int, error) {
		return min(n, len(events)), nil
	}
}

func TestEnqueueKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	q := newTestQueue(0)
	fill(q, "a.com", "b.com", "c.com")

	assert.Equal(t, 3, q.Size())
	assert.Equal(t, []string{"a.com", "b.com", "c.com"}, queuedDomains(q))
}

func TestDrainRemovesOnlyAcknowledgedPrefix(t *testing.T) {
	t.Parallel()

	q := newTestQueue(0)
	fill(q, "1.com", "2.com", "3.com", "4.com", "5.com")

	result, err := q.Drain(context.Background(), acceptFirst(2))
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Sent: 2, Remaining: 3}, result)
	assert.Equal(t, []string{"3.com", "4.com", "5.com"}, queuedDomains(q))

	result, err = q.Drain(context.Background(), acceptFirst(10))
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Sent: 3, Remaining: 0}, result)
	assert.Equal(t, 0, q.Size())
}

func TestDrainEmptyQueueSkipsSender(t *testing.T) {
	t.Parallel()

	q := newTestQueue(0)
	called := false
	result, err := q.Drain(context.Background(), func(context.Context, []models.Event) (int, error) {
		called = true
		return 0, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, DrainResult{}, result)
}

func TestDrainClampsSenderCount(t *testing.T) {
	t.Parallel()

	q := newTestQueue(0)
	fill(q, "a.com", "b.com")

	result, err := q.Drain(context.Background(), func(context.Context, []models.Event) (int, error) {
		return 99, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)

	fill(q, "c.com")
	result, err = q.Drain(context.Background(), func(context.Context, []models.Event) (int, error) {
		return -3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Sent: 0, Remaining: 1}, result)
}

func TestDrainReturnsSendErrorWithPartialCounts(t *testing.T) {
	t.Parallel()

	q := newTestQueue(0)
	fill(q, "a.com", "b.com", "c.com")
	boom := errors.New("connection reset")

	result, err := q.Drain(context.Background(), func(context.Context, []models.Event) (int, error) {
		return 1, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, DrainResult{Sent: 1, Remaining: 2}, result)
	assert.Equal(t, []string{"b.com", "c.com"}, queuedDomains(q))
}

func TestEnqueueDuringDrainIsRetained(t *testing.T) {
	t.Parallel()

	q := newTestQueue(0)
	fill(q, "a.com", "b.com")

	result, err := q.Drain(context.Background(), func(_ context.Context, events []models.Event) (int, error) {
		fill(q, "late.com")
		return len(events), nil
	})
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Sent: 2, Remaining: 1}, result)
	assert.Equal(t, []string{"late.com"}, queuedDomains(q))
}

func TestPurgeDuringDrainDoesNotShiftRemoval(t *testing.T) {
	t.Parallel()

	q := newTestQueue(0)
	fill(q, "blocked.com", "a.com", "b.com", "c.com")

	result, err := q.Drain(context.Background(), func(_ context.Context, events []models.Event) (int, error) {
		q.PurgeByDomain(context.Background(), domains.NewExceptionSet([]string{"blocked.com"}))
		return 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, []string{"b.com", "c.com"}, queuedDomains(q))
}

func TestConcurrentDrainIsRejected(t *testing.T) {
	t.Parallel()

	q := newTestQueue(0)
	fill(q, "a.com", "b.com", "c.com")

	entered := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = q.Drain(context.Background(), func(_ context.Context, events []models.Event) (int, error) {
			close(entered)
			<-release
			return len(events), nil
		})
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first drain never reached the sender")
	}
	assert.True(t, q.Draining())

	secondCalled := false
	result, err := q.Drain(context.Background(), func(context.Context, []models.Event) (int, error) {
		secondCalled = true
		return 0, nil
	})
	require.ErrorIs(t, err, ErrDrainInProgress)
	assert.False(t, secondCalled)
	assert.Equal(t, 3, result.Remaining)

	close(release)
	wg.Wait()
	assert.Equal(t, 0, q.Size())
	assert.False(t, q.Draining())
}

func TestPurgeByDomain(t *testing.T) {
	t.Parallel()

	q := newTestQueue(0)
	q.Enqueue(context.Background(), models.KindActive, "blocked.com")
	q.Enqueue(context.Background(), models.KindInactive, "blocked.com")
	q.Enqueue(context.Background(), models.KindActive, "ok.com")
	q.Enqueue(context.Background(), models.KindActive, "blocked.com")
	q.Enqueue(context.Background(), models.KindInactive, "ok.com")

	removed := q.PurgeByDomain(context.Background(), domains.NewExceptionSet([]string{"blocked.com"}))

	assert.Equal(t, 3, removed)
	events := q.Snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, models.KindActive, events[0].Kind)
	assert.Equal(t, models.KindInactive, events[1].Kind)
	assert.Equal(t, []string{"ok.com", "ok.com"}, queuedDomains(q))

	assert.Equal(t, 0, q.PurgeByDomain(context.Background(), domains.ExceptionSet{}))
}

func TestOverflowDropsOldest(t *testing.T) {
	t.Parallel()

	q := newTestQueue(3)
	fill(q, "1.com", "2.com", "3.com", "4.com", "5.com")

	assert.Equal(t, []string{"3.com", "4.com", "5.com"}, queuedDomains(q))
}

func TestOpenRestoresAndPersists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &memStore{}
	first, err := Open(ctx, store, Options{})
	require.NoError(t, err)
	fill(first, "a.com", "b.com", "c.com")

	_, err = first.Drain(ctx, acceptFirst(1))
	require.NoError(t, err)

	second, err := Open(ctx, store, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b.com", "c.com"}, queuedDomains(second))

	second.PurgeByDomain(ctx, domains.NewExceptionSet([]string{"c.com"}))
	third, err := Open(ctx, store, Options{MaxSize: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"b.com"}, queuedDomains(third))
}

func TestOpenTrimsRestoredOverflow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &memStore{}
	full, err := Open(ctx, store, Options{MaxSize: 10})
	require.NoError(t, err)
	fill(full, "1.com", "2.com", "3.com", "4.com")

	small, err := Open(ctx, store, Options{MaxSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"3.com", "4.com"}, queuedDomains(small))
	assert.Len(t, store.events, 2)
}

func TestOpenFailsWhenStoreFails(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), &memStore{loadErr: errors.New("corrupt")}, Options{})
	require.Error(t, err)
}

type memStore struct {
	mu      sync.Mutex
	events  []models.Event
	loadErr error
}

func (m *memStore) Append(_ context.Context, event models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memStore) Remove(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.events[:0:0]
	for _, event := range m.events {
		if !drop[event.ID] {
			kept = append(kept, event)
		}
	}
	m.events = kept
	return nil
}

func (m *memStore) Load(context.Context) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]models.Event, len(m.events))
	copy(out, m.events)
	return out, nil
}
