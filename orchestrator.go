// Package librarysync is the offline-first synchronization core for a
// personal library application. It reconciles locally mutated entities
// against an authoritative remote store through per-type adapters,
// detects and resolves conflicts by entity-specific policy, and drives
// the whole run through a single-session orchestrator.
package librarysync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerufuyo/nerulibrary-sub001/adapter"
	"github.com/nerufuyo/nerulibrary-sub001/config"
	"github.com/nerufuyo/nerulibrary-sub001/conflict"
	"github.com/nerufuyo/nerulibrary-sub001/entity"
	syncerrors "github.com/nerufuyo/nerulibrary-sub001/errors"
	"github.com/nerufuyo/nerulibrary-sub001/logging"
	"github.com/nerufuyo/nerulibrary-sub001/queue"
)

var (
	// ErrSyncInProgress is returned when a session is started while
	// another is still running. The active session is untouched.
	ErrSyncInProgress = errors.New("a sync session is already running")

	// ErrUnknownConflict is returned when resolving a conflict id that
	// is not pending.
	ErrUnknownConflict = errors.New("no pending conflict with that id")

	// ErrNoAdapter is returned for entity types without a registered
	// adapter.
	ErrNoAdapter = errors.New("no adapter registered for entity type")
)

// historyLimit bounds how many finished sessions are kept for status
// reporting.
const historyLimit = 10

// Orchestrator coordinates full, incremental, and queue-only sync runs
// across the registered adapters. At most one session runs at a time.
type Orchestrator struct {
	adapters map[entity.Type]*adapter.Adapter
	order    []entity.Type
	queue    *queue.Queue
	meta     MetaStore
	cfg      config.Config
	logger   *logging.Logger
	now      func() time.Time

	// available reports remote reachability, injected by the host app.
	available func() bool

	statusStream   *stream[SessionStatus]
	progressStream *stream[Progress]
	conflictStream *stream[conflict.SyncConflict]

	mu      sync.Mutex
	current *SyncSession
	token   *CancellationToken
	history []SyncSession
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAdapter registers an adapter. Sync runs visit adapters in
// registration order.
func WithAdapter(a *adapter.Adapter) Option {
	return func(o *Orchestrator) {
		t := a.EntityType()
		if _, ok := o.adapters[t]; !ok {
			o.order = append(o.order, t)
		}
		o.adapters[t] = a
	}
}

// WithQueue replaces the sync queue.
func WithQueue(q *queue.Queue) Option {
	return func(o *Orchestrator) { o.queue = q }
}

// WithMetaStore replaces the metadata and conflict persistence.
func WithMetaStore(m MetaStore) Option {
	return func(o *Orchestrator) { o.meta = m }
}

// WithConfig replaces the configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithAvailabilityCheck injects the connectivity probe backing
// IsSyncAvailable.
func WithAvailabilityCheck(fn func() bool) Option {
	return func(o *Orchestrator) { o.available = fn }
}

// New creates an Orchestrator. Without options it runs with an
// in-memory queue and meta store and the default configuration.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		adapters:       make(map[entity.Type]*adapter.Adapter),
		cfg:            config.Default(),
		now:            time.Now,
		available:      func() bool { return true },
		statusStream:   newStream[SessionStatus](),
		progressStream: newStream[Progress](),
		conflictStream: newStream[conflict.SyncConflict](),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.queue == nil {
		o.queue = queue.New(queue.NewMemoryStore(),
			queue.WithRetryConfig(queue.RetryConfig{
				MaxAttempts:  o.cfg.Retry.MaxAttempts,
				InitialDelay: o.cfg.Retry.InitialDelay.Std(),
				MaxDelay:     o.cfg.Retry.MaxDelay.Std(),
				Multiplier:   o.cfg.Retry.Multiplier,
			}))
	}
	if o.meta == nil {
		o.meta = NewMemoryMetaStore()
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}
	o.logger = o.logger.WithComponent("orchestrator")
	return o
}

// StartFullSync pulls everything from the remote store and then pushes
// the pending queue, per entity type strictly pull-then-push.
func (o *Orchestrator) StartFullSync(ctx context.Context) (*SyncSession, error) {
	return o.run(ctx, time.Time{}, true)
}

// StartIncrementalSync restricts the pull to changes at or after since.
// A zero since falls back to the persisted last sync time.
func (o *Orchestrator) StartIncrementalSync(ctx context.Context, since time.Time) (*SyncSession, error) {
	if since.IsZero() {
		last, err := o.meta.LastSyncTime(ctx)
		if err != nil {
			return nil, syncerrors.NewStorageError(syncerrors.OpSync, err)
		}
		since = last
	}
	return o.run(ctx, since, true)
}

// ProcessSyncQueue pushes the pending queue. Entity types with queued
// items are pulled and reconciled first, the same pull-then-push
// ordering as a sync run; pushing first could overwrite a remote change
// the client has not seen. Runs as a session, so it is subject to the
// same single-run and cancellation rules.
func (o *Orchestrator) ProcessSyncQueue(ctx context.Context) (*SyncSession, error) {
	last, err := o.meta.LastSyncTime(ctx)
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.OpSync, err)
	}
	return o.run(ctx, last, false)
}

// AddToSyncQueue records a pending local mutation.
func (o *Orchestrator) AddToSyncQueue(ctx context.Context, item queue.Item) (queue.Item, error) {
	return o.queue.Enqueue(ctx, item)
}

// GetSyncQueue returns the pending items in processing order.
func (o *Orchestrator) GetSyncQueue(ctx context.Context) ([]queue.Item, error) {
	return o.queue.List(ctx)
}

// ClearSyncQueue drops every pending item.
func (o *Orchestrator) ClearSyncQueue(ctx context.Context) error {
	return o.queue.Clear(ctx)
}

// GetPermanentFailures returns the queue items that exhausted their
// retries. They are reported here rather than silently dropped.
func (o *Orchestrator) GetPermanentFailures() []queue.Item {
	return o.queue.PermanentFailures()
}

// GetSyncConflicts returns the conflicts awaiting manual resolution.
func (o *Orchestrator) GetSyncConflicts(ctx context.Context) ([]conflict.SyncConflict, error) {
	return o.meta.ListConflicts(ctx)
}

// ResolveConflict applies the given strategy to a pending conflict and
// removes it once resolved. Choosing Manual fails with the typed
// conflict error and leaves the conflict pending.
func (o *Orchestrator) ResolveConflict(ctx context.Context, id string, strategy conflict.Resolution) (map[string]any, error) {
	conflicts, err := o.meta.ListConflicts(ctx)
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.OpResolve, err)
	}
	var found *conflict.SyncConflict
	for i := range conflicts {
		if conflicts[i].ID == id {
			found = &conflicts[i]
			break
		}
	}
	if found == nil {
		return nil, ErrUnknownConflict
	}
	a, ok := o.adapters[found.EntityType]
	if !ok {
		return nil, ErrNoAdapter
	}
	resolved, err := a.ResolveConflict(ctx, found, strategy)
	if err != nil {
		return nil, err
	}
	if err := o.meta.DeleteConflict(ctx, id); err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.OpResolve, err)
	}
	return resolved, nil
}

// Status is a point-in-time view of the sync core.
type Status struct {
	State            SessionStatus
	Session          *SyncSession
	History          []SyncSession
	QueueLength      int
	PendingConflicts int
}

// GetSyncStatus reports the current state, the active or most recent
// session, and the queue and conflict backlogs.
func (o *Orchestrator) GetSyncStatus(ctx context.Context) (Status, error) {
	items, err := o.queue.List(ctx)
	if err != nil {
		return Status{}, err
	}
	conflicts, err := o.meta.ListConflicts(ctx)
	if err != nil {
		return Status{}, syncerrors.NewStorageError(syncerrors.OpStore, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	status := Status{
		State:            StatusIdle,
		QueueLength:      len(items),
		PendingConflicts: len(conflicts),
		History:          make([]SyncSession, len(o.history)),
	}
	copy(status.History, o.history)

	if o.current != nil {
		snap := o.current.snapshot()
		status.State = StatusRunning
		status.Session = &snap
	} else if n := len(o.history); n > 0 {
		last := o.history[n-1]
		status.Session = &last
	}
	return status, nil
}

// GetLastSyncTime returns when the last session completed, zero if
// never.
func (o *Orchestrator) GetLastSyncTime(ctx context.Context) (time.Time, error) {
	return o.meta.LastSyncTime(ctx)
}

// CancelSync requests cooperative cancellation of the running session.
// Returns false when no session is running.
func (o *Orchestrator) CancelSync() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.token == nil {
		return false
	}
	o.token.Cancel()
	return true
}

// IsSyncAvailable reports whether a new session could start now.
func (o *Orchestrator) IsSyncAvailable() bool {
	o.mu.Lock()
	running := o.current != nil
	o.mu.Unlock()
	return !running && o.available()
}

// SubscribeStatus streams session state transitions.
func (o *Orchestrator) SubscribeStatus() (<-chan SessionStatus, func()) {
	return o.statusStream.Subscribe()
}

// SubscribeProgress streams per-entity-type completion fractions.
func (o *Orchestrator) SubscribeProgress() (<-chan Progress, func()) {
	return o.progressStream.Subscribe()
}

// SubscribeConflicts streams conflicts as they are detected and left
// pending.
func (o *Orchestrator) SubscribeConflicts() (<-chan conflict.SyncConflict, func()) {
	return o.conflictStream.Subscribe()
}

// begin claims the single running-session slot.
func (o *Orchestrator) begin() (*SyncSession, *CancellationToken, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		return nil, nil, ErrSyncInProgress
	}
	session := &SyncSession{
		ID:        uuid.NewString(),
		StartedAt: o.now(),
		Status:    StatusRunning,
	}
	o.current = session
	o.token = NewCancellationToken()
	return session, o.token, nil
}

// runStats accumulates a session's counters outside the shared session
// struct, so GetSyncStatus can snapshot a running session without racing
// the sync loop. finish folds them in under the lock.
type runStats struct {
	items    int
	detected int
	resolved int
	errs     []string
}

// finish releases the slot, records the session, and publishes the
// terminal status. The returned snapshot is safe to hand to callers.
func (o *Orchestrator) finish(session *SyncSession, status SessionStatus, stats *runStats) *SyncSession {
	o.mu.Lock()
	session.Status = status
	session.EndedAt = o.now()
	session.ItemsProcessed = stats.items
	session.ConflictsDetected = stats.detected
	session.ConflictsResolved = stats.resolved
	session.Errors = stats.errs
	o.current = nil
	o.token = nil
	o.history = append(o.history, session.snapshot())
	if len(o.history) > historyLimit {
		o.history = o.history[len(o.history)-historyLimit:]
	}
	o.mu.Unlock()

	o.statusStream.Publish(status)
	snap := session.snapshot()
	return &snap
}

func (o *Orchestrator) run(ctx context.Context, since time.Time, pull bool) (*SyncSession, error) {
	session, token, err := o.begin()
	if err != nil {
		return nil, err
	}
	o.statusStream.Publish(StatusRunning)
	log := o.logger.WithSession(session.ID)
	log.Info("sync session started")
	stats := &runStats{}

	ready, err := o.queue.Drain(ctx)
	if err != nil {
		return o.finish(session, StatusFailed, stats), err
	}
	byType := make(map[entity.Type][]queue.Item)
	for _, item := range ready {
		byType[item.EntityType] = append(byType[item.EntityType], item)
	}

	total := len(o.order)
	for i, entityType := range o.order {
		if token.Cancelled() {
			o.requeueGroups(ctx, byType)
			log.Info("sync session cancelled")
			return o.finish(session, StatusCancelled, stats), nil
		}
		a := o.adapters[entityType]
		items := byType[entityType]
		delete(byType, entityType)

		// Queue-only runs still pull for the types they are about to
		// push, so a push never overwrites an unseen remote change.
		if pull || len(items) > 0 {
			res, err := a.Reconcile(ctx, since)
			stats.detected += res.ConflictsDetected
			stats.resolved += res.ConflictsResolved
			for _, c := range res.Pending {
				if err := o.meta.SaveConflict(ctx, *c); err != nil {
					stats.errs = append(stats.errs, fmt.Sprintf("persist conflict %s: %v", c.Key(), err))
				}
				o.conflictStream.Publish(*c)
			}
			if err != nil {
				if syncerrors.IsFatal(err) {
					o.requeueItems(ctx, items)
					o.requeueGroups(ctx, byType)
					log.LogError(ctx, err, "sync session failed during pull")
					return o.finish(session, StatusFailed, stats), err
				}
				stats.errs = append(stats.errs, err.Error())
			}
		}

		cancelled, fatal := o.pushBatch(ctx, stats, token, a, items)
		if fatal != nil {
			o.requeueGroups(ctx, byType)
			log.LogError(ctx, fatal, "sync session failed during push")
			return o.finish(session, StatusFailed, stats), fatal
		}
		if cancelled {
			o.requeueGroups(ctx, byType)
			log.Info("sync session cancelled")
			return o.finish(session, StatusCancelled, stats), nil
		}

		o.progressStream.Publish(Progress{
			EntityType: string(entityType),
			Fraction:   float64(i+1) / float64(total),
		})
	}

	// Items for entity types without an adapter stay queued.
	for t, items := range byType {
		stats.errs = append(stats.errs,
			fmt.Sprintf("no adapter for %s, %d items left queued", t, len(items)))
		o.requeueItems(ctx, items)
	}

	// Queue-only runs never pulled, so the watermark stays put.
	if pull {
		if err := o.meta.SetLastSyncTime(ctx, o.now()); err != nil {
			stats.errs = append(stats.errs, fmt.Sprintf("record last sync time: %v", err))
		}
	}
	log.Info("sync session completed")
	return o.finish(session, StatusCompleted, stats), nil
}

// pushBatch pushes one entity type's drained items, capped at the
// configured batch size; the overflow goes straight back to the queue.
// The token is checked between items.
func (o *Orchestrator) pushBatch(ctx context.Context, stats *runStats, token *CancellationToken, a *adapter.Adapter, items []queue.Item) (cancelled bool, fatal error) {
	if limit := o.cfg.BatchSize; limit > 0 && len(items) > limit {
		o.requeueItems(ctx, items[limit:])
		items = items[:limit]
	}

	for i, item := range items {
		if token.Cancelled() {
			o.requeueItems(ctx, items[i:])
			return true, nil
		}

		err := o.pushItem(ctx, a, item)
		if err == nil {
			stats.items++
			continue
		}
		if syncerrors.IsFatal(err) {
			// The failed item and the rest of the batch survive for
			// the next session.
			if _, rqErr := o.queue.Requeue(ctx, item, err); rqErr != nil {
				stats.errs = append(stats.errs, rqErr.Error())
			}
			o.requeueItems(ctx, items[i+1:])
			return false, err
		}

		switch syncerrors.CodeOf(err) {
		case syncerrors.CodeValidation, syncerrors.CodeData:
			// Per-entity failure: blocks only this entity, never retried.
			stats.errs = append(stats.errs, err.Error())
		default:
			retried, rqErr := o.queue.Requeue(ctx, item, err)
			if rqErr != nil {
				stats.errs = append(stats.errs, rqErr.Error())
				continue
			}
			if !retried {
				stats.errs = append(stats.errs, fmt.Sprintf(
					"%s/%s: retries exhausted: %v", item.EntityType, item.EntityID, err))
			}
		}
	}
	return false, nil
}

func (o *Orchestrator) pushItem(ctx context.Context, a *adapter.Adapter, item queue.Item) error {
	switch item.Operation {
	case queue.OpDelete:
		return a.DeleteFromCloud(ctx, item.EntityID)
	default:
		if item.Payload == nil {
			return syncerrors.NewDataError(syncerrors.OpPush,
				string(item.EntityType), item.EntityID, errors.New("queue item has no payload"))
		}
		return a.PushPayload(ctx, item.Payload)
	}
}

// requeueItems puts drained items back untouched, preserving their
// identity and retry accounting.
func (o *Orchestrator) requeueItems(ctx context.Context, items []queue.Item) {
	for _, item := range items {
		if _, err := o.queue.Enqueue(ctx, item); err != nil {
			o.logger.LogError(ctx, err, "failed to requeue item")
		}
	}
}

func (o *Orchestrator) requeueGroups(ctx context.Context, byType map[entity.Type][]queue.Item) {
	for _, items := range byType {
		o.requeueItems(ctx, items)
	}
}
