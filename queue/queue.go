// Package queue implements the ordered, persisted list of pending local
// mutations awaiting transmission to the remote store.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerufuyo/nerulibrary-sub001/entity"
	syncerrors "github.com/nerufuyo/nerulibrary-sub001/errors"
)

// Operation is the kind of local mutation a queue item carries.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Item is one pending local mutation. Items are owned exclusively by
// the queue: they are mutated only to increment RetryCount or record a
// terminal failure, and removed once successfully pushed.
type Item struct {
	ID         string
	EntityType entity.Type
	EntityID   string
	Operation  Operation
	Payload    map[string]any
	CreatedAt  time.Time
	RetryCount int
	Priority   int

	// NotBefore defers the item after a failed push; zero means ready.
	NotBefore time.Time

	// LastError records the most recent push failure.
	LastError string
}

// Store persists queue items. Implementations must tolerate Put being
// called again for an existing ID (retry bookkeeping updates in place).
type Store interface {
	Put(ctx context.Context, item Item) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Item, error)
	Clear(ctx context.Context) error
}

// RetryConfig bounds how often a failing item is retried and how the
// delay between attempts grows.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the standard retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Queue holds pending local mutations in creation order, reordered by
// priority, with retry accounting. Safe for concurrent use.
type Queue struct {
	mu        sync.Mutex
	store     Store
	retry     RetryConfig
	now       func() time.Time
	permanent []Item
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(rc RetryConfig) QueueOption {
	return func(q *Queue) { q.retry = rc }
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

// New creates a Queue backed by the given store.
func New(store Store, opts ...QueueOption) *Queue {
	q := &Queue{
		store: store,
		retry: DefaultRetryConfig(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue records a pending mutation. A missing ID or CreatedAt is
// filled in; the stored item is returned.
func (q *Queue) Enqueue(ctx context.Context, item Item) (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = q.now()
	}
	if err := q.store.Put(ctx, item); err != nil {
		return Item{}, syncerrors.NewStorageError(syncerrors.OpQueue, err)
	}
	return item, nil
}

// Drain removes and returns every item that is ready for processing,
// ordered by priority (higher first) then creation time. Items deferred
// by retry backoff stay queued until their NotBefore passes.
func (q *Queue) Drain(ctx context.Context) ([]Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.store.List(ctx)
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.OpQueue, err)
	}

	now := q.now()
	ready := items[:0]
	for _, item := range items {
		if item.NotBefore.After(now) {
			continue
		}
		ready = append(ready, item)
	}
	sortItems(ready)

	for _, item := range ready {
		if err := q.store.Delete(ctx, item.ID); err != nil {
			return nil, syncerrors.NewStorageError(syncerrors.OpQueue, err)
		}
	}
	return ready, nil
}

// List returns a snapshot of all pending items in processing order.
func (q *Queue) List(ctx context.Context) ([]Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.store.List(ctx)
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.OpQueue, err)
	}
	sortItems(items)
	return items, nil
}

// Clear removes every pending item.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Clear(ctx); err != nil {
		return syncerrors.NewStorageError(syncerrors.OpQueue, err)
	}
	return nil
}

// Requeue puts a failed item back with its retry count incremented and a
// backoff-deferred NotBefore. Once the retry ceiling is exceeded the
// item becomes a permanent failure instead: it is kept on the permanent
// list for the caller to surface, never silently dropped. Returns true
// when the item was requeued for another attempt.
func (q *Queue) Requeue(ctx context.Context, item Item, cause error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item.RetryCount++
	if cause != nil {
		item.LastError = cause.Error()
	}

	if item.RetryCount >= q.retry.MaxAttempts {
		q.permanent = append(q.permanent, item)
		return false, nil
	}

	delay := q.backoffDelay(item.RetryCount)
	// Rate-limited pushes must wait out the server-mandated interval.
	if retryAfter := syncerrors.RetryAfterOf(cause); retryAfter > delay {
		delay = retryAfter
	}
	item.NotBefore = q.now().Add(delay)

	if err := q.store.Put(ctx, item); err != nil {
		return false, syncerrors.NewStorageError(syncerrors.OpQueue, err)
	}
	return true, nil
}

// PermanentFailures returns the items that exhausted their retries.
func (q *Queue) PermanentFailures() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, len(q.permanent))
	copy(out, q.permanent)
	return out
}

// backoffDelay grows exponentially with the attempt number, capped at
// MaxDelay.
func (q *Queue) backoffDelay(attempt int) time.Duration {
	delay := q.retry.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * q.retry.Multiplier)
		if delay >= q.retry.MaxDelay {
			return q.retry.MaxDelay
		}
	}
	if delay > q.retry.MaxDelay {
		delay = q.retry.MaxDelay
	}
	return delay
}

// sortItems orders by priority descending, then FIFO by creation time.
func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
