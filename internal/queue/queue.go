// Package queue buffers activity events until the collector acknowledges
// them.
//
// Enqueue only ever appends and Drain only ever removes the prefix the sender
// acknowledged, identified by event id. Events enqueued while a drain is in
// flight are therefore kept for the next drain, and purges or overflow
// evictions during a drain never shift what gets removed.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vincentbai/mindfulweb-agent/internal/domains"
	"github.com/vincentbai/mindfulweb-agent/internal/logx"
	"github.com/vincentbai/mindfulweb-agent/internal/models"
	"pkt.systems/pslog"
)

// DefaultMaxSize bounds the queue when Options.MaxSize is not set.
const DefaultMaxSize = 10000

const storeTimeout = 5 * time.Second

var ErrDrainInProgress = errors.New("queue drain already in progress")

// Store persists the queue contents. The in-memory queue stays authoritative
// when the store fails; failures are logged.
type Store interface {
	Append(ctx context.Context, event models.Event) error
	Remove(ctx context.Context, ids []string) error
	Load(ctx context.Context) ([]models.Event, error)
}

// SendFunc delivers events in order and reports how many of them, counted
// from the first, the receiver acknowledged.
type SendFunc func(ctx context.Context, events []models.Event) (int, error)

type DrainResult struct {
	Sent      int `json:"sentEvents"`
	Remaining int `json:"remainingInQueue"`
}

type Options struct {
	MaxSize int
	Logger  pslog.Logger
	Now     func() time.Time
}

type Queue struct {
	mu       sync.Mutex
	events   []models.Event
	maxSize  int
	store    Store
	draining atomic.Bool
	log      pslog.Logger
	now      func() time.Time
}

// New returns a memory-only queue.
func New(opts Options) *Queue {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{
		maxSize: opts.MaxSize,
		log:     logx.OrDefault(opts.Logger).With("component", "queue"),
		now:     opts.Now,
	}
}

// Open returns a queue backed by store, restored with the events the store
// still holds.
func Open(ctx context.Context, store Store, opts Options) (*Queue, error) {
	q := New(opts)
	if store == nil {
		return q, nil
	}
	restored, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load queued events: %w", err)
	}
	q.store = store
	q.events = restored
	if overflow := len(q.events) - q.maxSize; overflow > 0 {
		q.evictLocked(overflow)
	}
	if len(q.events) > 0 {
		q.log.Info("queue restored", "events", len(q.events))
	}
	return q, nil
}

// Enqueue appends an event stamped with the current time. It never rejects;
// a full queue drops its oldest event instead.
func (q *Queue) Enqueue(ctx context.Context, kind models.EventKind, domain string) models.Event {
	event := models.NewEvent(kind, domain, q.now())
	q.Push(ctx, event)
	return event
}

// Push appends an already built event.
func (q *Queue) Push(ctx context.Context, event models.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if overflow := len(q.events) + 1 - q.maxSize; overflow > 0 {
		q.evictLocked(overflow)
	}
	q.events = append(q.events, event)
	if q.store != nil {
		storeCtx, cancel := storeContext(ctx)
		defer cancel()
		if err := q.store.Append(storeCtx, event); err != nil {
			q.log.Warn("queue persist failed", "event", event.ID, "err", err)
		}
	}
	q.log.Trace("queue enqueue", "kind", event.Kind, "domain", event.Domain, "size", len(q.events))
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Snapshot returns a copy of the queued events, oldest first.
func (q *Queue) Snapshot() []models.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.Event, len(q.events))
	copy(out, q.events)
	return out
}

// Drain hands the whole queue to send and removes the acknowledged prefix.
// Only one drain runs at a time; a concurrent call fails with
// ErrDrainInProgress without touching the queue. A send error is returned
// alongside the counts of the partial delivery.
func (q *Queue) Drain(ctx context.Context, send SendFunc) (DrainResult, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return DrainResult{Remaining: q.Size()}, ErrDrainInProgress
	}
	defer q.draining.Store(false)

	batch := q.Snapshot()
	if len(batch) == 0 {
		return DrainResult{}, nil
	}

	sent, sendErr := send(ctx, batch)
	sent = min(max(sent, 0), len(batch))
	if sent > 0 {
		ids := make([]string, sent)
		for i, event := range batch[:sent] {
			ids[i] = event.ID
		}
		q.remove(ctx, ids)
	}

	result := DrainResult{Sent: sent, Remaining: q.Size()}
	switch {
	case sendErr != nil:
		q.log.Warn("queue drain failed", "sent", result.Sent, "remaining", result.Remaining, "err", sendErr)
		return result, fmt.Errorf("send queued events: %w", sendErr)
	case sent < len(batch):
		q.log.Info("queue drain partial", "sent", result.Sent, "remaining", result.Remaining)
	default:
		q.log.Debug("queue drain ok", "sent", result.Sent, "remaining", result.Remaining)
	}
	return result, nil
}

// Draining reports whether a drain is in flight.
func (q *Queue) Draining() bool {
	return q.draining.Load()
}

// PurgeByDomain removes every queued event whose domain is in set and
// returns how many were removed. The order of the rest is unchanged.
func (q *Queue) PurgeByDomain(ctx context.Context, set domains.ExceptionSet) int {
	if set.Len() == 0 {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.events[:0:0]
	var removed []string
	for _, event := range q.events {
		if set.Contains(event.Domain) {
			removed = append(removed, event.ID)
			continue
		}
		kept = append(kept, event)
	}
	if len(removed) == 0 {
		return 0
	}
	q.events = kept
	q.removeFromStoreLocked(ctx, removed)
	q.log.Info("queue purge", "removed", len(removed), "remaining", len(q.events))
	return len(removed)
}

func (q *Queue) remove(ctx context.Context, ids []string) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.events[:0:0]
	for _, event := range q.events {
		if _, ok := drop[event.ID]; ok {
			continue
		}
		kept = append(kept, event)
	}
	q.events = kept
	q.removeFromStoreLocked(ctx, ids)
}

func (q *Queue) evictLocked(n int) {
	n = min(n, len(q.events))
	if n <= 0 {
		return
	}
	ids := make([]string, n)
	for i, event := range q.events[:n] {
		ids[i] = event.ID
	}
	q.events = append(q.events[:0:0], q.events[n:]...)
	q.removeFromStoreLocked(context.Background(), ids)
	q.log.Warn("queue overflow dropped oldest events", "dropped", n, "max_size", q.maxSize)
}

func (q *Queue) removeFromStoreLocked(ctx context.Context, ids []string) {
	if q.store == nil || len(ids) == 0 {
		return
	}
	storeCtx, cancel := storeContext(ctx)
	defer cancel()
	if err := q.store.Remove(storeCtx, ids); err != nil {
		q.log.Warn("queue persist remove failed", "events", len(ids), "err", err)
	}
}

// storeContext keeps persistence alive when the caller's context is already
// done, e.g. a command that timed out after its events were acknowledged.
func storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
}
