// Package adapter bridges one entity type between the local store and
// the remote store: push, pull, validation, cloud transforms, and
// conflict delegation.
package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nerufuyo/nerulibrary-sub001/cache"
	"github.com/nerufuyo/nerulibrary-sub001/conflict"
	"github.com/nerufuyo/nerulibrary-sub001/entity"
	syncerrors "github.com/nerufuyo/nerulibrary-sub001/errors"
	"github.com/nerufuyo/nerulibrary-sub001/logging"
)

// LocalStore provides access to locally persisted entities of one type.
type LocalStore interface {
	// Get returns the stored payload, or a nil map without error when
	// the entity is not present locally.
	Get(ctx context.Context, id string) (map[string]any, error)
	// List returns entities modified at or after since; a zero since
	// returns everything.
	List(ctx context.Context, since time.Time) ([]map[string]any, error)
	Save(ctx context.Context, id string, data map[string]any) error
	Delete(ctx context.Context, id string) error
}

// RemoteClient talks to the authoritative remote store for one entity
// type. Implementations surface failures as *errors.SyncError so the
// adapter can classify them.
type RemoteClient interface {
	Fetch(ctx context.Context, id string) (map[string]any, error)
	Pull(ctx context.Context, since time.Time) ([]map[string]any, error)
	Push(ctx context.Context, data map[string]any) error
	Delete(ctx context.Context, id string) error
}

// Validator inspects an entity payload before it is pushed and returns
// the list of problems found, empty when the payload is acceptable.
type Validator func(data map[string]any) []string

// Transform rewrites a payload on its way to or from the cloud.
type Transform func(data map[string]any) map[string]any

// DefaultTimeout bounds a single remote call.
const DefaultTimeout = 30 * time.Second

// Adapter synchronizes one entity type. All remote calls are bounded by
// the configured timeout; a timeout aborts only the call it bounds.
type Adapter struct {
	entityType entity.Type
	local      LocalStore
	remote     RemoteClient

	validator Validator
	toCloud   Transform
	fromCloud Transform
	cache     *cache.Cache[[]map[string]any]
	timeout   time.Duration
	detector  *conflict.Detector
	resolver  *conflict.Resolver
	logger    *logging.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithValidator sets the pre-push payload validator.
func WithValidator(v Validator) Option {
	return func(a *Adapter) { a.validator = v }
}

// WithTransforms sets the to-cloud and from-cloud payload rewrites.
func WithTransforms(toCloud, fromCloud Transform) Option {
	return func(a *Adapter) {
		a.toCloud = toCloud
		a.fromCloud = fromCloud
	}
}

// WithCache injects the pull-response cache for incremental pulls.
// Without one, every GetCloudChanges call hits the remote; full pulls
// (zero since) hit the remote regardless.
func WithCache(c *cache.Cache[[]map[string]any]) Option {
	return func(a *Adapter) { a.cache = c }
}

// WithTimeout bounds each remote call.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// WithDetector replaces the conflict detector.
func WithDetector(d *conflict.Detector) Option {
	return func(a *Adapter) { a.detector = d }
}

// WithResolver replaces the conflict resolver.
func WithResolver(r *conflict.Resolver) Option {
	return func(a *Adapter) { a.resolver = r }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// New creates an adapter for one entity type.
func New(t entity.Type, local LocalStore, remote RemoteClient, opts ...Option) *Adapter {
	a := &Adapter{
		entityType: t,
		local:      local,
		remote:     remote,
		timeout:    DefaultTimeout,
		detector:   conflict.NewDetector(),
		resolver:   conflict.NewResolver(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.Default()
	}
	a.logger = a.logger.WithComponent(logging.Component("adapter:" + string(t)))
	return a
}

// EntityType returns the type this adapter synchronizes.
func (a *Adapter) EntityType() entity.Type {
	return a.entityType
}

// ValidateEntity checks a payload against the configured validator.
// Without a validator every payload passes.
func (a *Adapter) ValidateEntity(data map[string]any) error {
	if a.validator == nil {
		return nil
	}
	problems := a.validator(data)
	if len(problems) == 0 {
		return nil
	}
	return syncerrors.NewValidationError(
		syncerrors.OpPush, string(a.entityType), idOf(data), problems)
}

// TransformForCloud rewrites a payload for transmission.
func (a *Adapter) TransformForCloud(data map[string]any) map[string]any {
	if a.toCloud == nil {
		return data
	}
	return a.toCloud(data)
}

// TransformFromCloud rewrites a received payload into local shape.
func (a *Adapter) TransformFromCloud(data map[string]any) map[string]any {
	if a.fromCloud == nil {
		return data
	}
	return a.fromCloud(data)
}

// SyncToCloud validates, transforms, and pushes one entity.
func (a *Adapter) SyncToCloud(ctx context.Context, e entity.Syncable) error {
	return a.PushPayload(ctx, e.ToMap())
}

// PushPayload validates, transforms, and pushes one raw payload.
func (a *Adapter) PushPayload(ctx context.Context, data map[string]any) error {
	if err := a.ValidateEntity(data); err != nil {
		return err
	}
	err := a.callRemote(ctx, func(ctx context.Context) error {
		return a.remote.Push(ctx, a.TransformForCloud(data))
	})
	if err != nil {
		return syncerrors.WithEntity(
			syncerrors.WrapOp(err, syncerrors.OpPush, "adapter"),
			string(a.entityType), idOf(data))
	}
	return nil
}

// DeleteFromCloud removes one entity from the remote store.
func (a *Adapter) DeleteFromCloud(ctx context.Context, id string) error {
	err := a.callRemote(ctx, func(ctx context.Context) error {
		return a.remote.Delete(ctx, id)
	})
	if err != nil {
		return syncerrors.WithEntity(
			syncerrors.WrapOp(err, syncerrors.OpPush, "adapter"),
			string(a.entityType), id)
	}
	return nil
}

// SyncFromCloud fetches one entity by id, transforms it, and saves it
// into the local store. The applied payload is returned.
func (a *Adapter) SyncFromCloud(ctx context.Context, id string) (map[string]any, error) {
	var fetched map[string]any
	err := a.callRemote(ctx, func(ctx context.Context) error {
		var err error
		fetched, err = a.remote.Fetch(ctx, id)
		return err
	})
	if err != nil {
		return nil, syncerrors.WithEntity(
			syncerrors.WrapOp(err, syncerrors.OpPull, "adapter"),
			string(a.entityType), id)
	}
	data := a.TransformFromCloud(fetched)
	if err := a.local.Save(ctx, id, data); err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.OpPull, err)
	}
	return data, nil
}

// GetCloudChanges pulls everything modified at or after since, serving
// repeated requests from the injected cache while fresh. Full pulls
// (zero since) bypass the cache and always see the latest state.
func (a *Adapter) GetCloudChanges(ctx context.Context, since time.Time) ([]map[string]any, error) {
	useCache := a.cache != nil && !since.IsZero()
	key := pullKey(a.entityType, since)
	if useCache {
		if cached, ok := a.cache.Get(key); ok {
			return cached, nil
		}
	}

	var pulled []map[string]any
	err := a.callRemote(ctx, func(ctx context.Context) error {
		var err error
		pulled, err = a.remote.Pull(ctx, since)
		return err
	})
	if err != nil {
		return nil, syncerrors.WrapOp(err, syncerrors.OpPull, "adapter")
	}

	if useCache {
		a.cache.Set(key, pulled)
	}
	return pulled, nil
}

// PullChangesFromCloud returns the remote changes since the given time,
// each transformed into local shape. Nothing is written to the local
// store; Reconcile applies.
func (a *Adapter) PullChangesFromCloud(ctx context.Context, since time.Time) ([]map[string]any, error) {
	pulled, err := a.GetCloudChanges(ctx, since)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(pulled))
	for _, data := range pulled {
		out = append(out, a.TransformFromCloud(data))
	}
	return out, nil
}

// PushChangesToCloud pushes a batch of payloads and returns how many
// were accepted. A payload that fails validation is skipped without
// affecting the rest of the batch. A fatal remote failure aborts the
// batch; any other push failure skips just that payload.
func (a *Adapter) PushChangesToCloud(ctx context.Context, batch []map[string]any) (int, error) {
	pushed := 0
	for _, data := range batch {
		if err := a.ValidateEntity(data); err != nil {
			a.logger.Warn("skipping invalid entity",
				slog.String("entity_id", idOf(data)),
				slog.String("reason", err.Error()))
			continue
		}
		err := a.callRemote(ctx, func(ctx context.Context) error {
			return a.remote.Push(ctx, a.TransformForCloud(data))
		})
		if err != nil {
			if syncerrors.IsFatal(err) {
				return pushed, syncerrors.WithEntity(
					syncerrors.WrapOp(err, syncerrors.OpPush, "adapter"),
					string(a.entityType), idOf(data))
			}
			a.logger.LogError(ctx, err, "push failed",
				slog.String("entity_id", idOf(data)))
			continue
		}
		pushed++
	}
	return pushed, nil
}

// DetectConflict compares a local and remote payload.
func (a *Adapter) DetectConflict(local, remote map[string]any) *conflict.SyncConflict {
	return a.detector.Detect(local, remote, a.entityType)
}

// ResolveConflictAutomatically resolves a conflict with the recommended
// strategy when policy allows. The second return reports whether the
// conflict was handled; false means it needs user involvement.
func (a *Adapter) ResolveConflictAutomatically(c *conflict.SyncConflict) (map[string]any, bool, error) {
	if c == nil {
		return nil, false, syncerrors.NewDataError(
			syncerrors.OpResolve, string(a.entityType), "", fmt.Errorf("nil conflict"))
	}
	if !a.resolver.CanResolveAutomatically(c) {
		return nil, false, nil
	}
	resolved, err := a.resolver.Resolve(c, a.resolver.Recommend(c))
	if err != nil {
		return nil, false, err
	}
	return resolved, true, nil
}

// ResolveConflict resolves a conflict with an explicit strategy and
// applies the outcome to the local store.
func (a *Adapter) ResolveConflict(ctx context.Context, c *conflict.SyncConflict, strategy conflict.Resolution) (map[string]any, error) {
	resolved, err := a.resolver.Resolve(c, strategy)
	if err != nil {
		return nil, err
	}
	if err := a.local.Save(ctx, c.EntityID, resolved); err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.OpResolve, err)
	}
	return resolved, nil
}

// Result summarizes one Reconcile pass.
type Result struct {
	Pulled            int
	Applied           int
	ConflictsDetected int
	ConflictsResolved int

	// Pending holds the conflicts that need manual resolution.
	Pending []*conflict.SyncConflict
}

// Reconcile pulls remote changes since the given time and applies them
// to the local store. A remote payload that conflicts with its local
// counterpart is auto-resolved when policy allows; otherwise it is left
// unapplied and reported as pending.
func (a *Adapter) Reconcile(ctx context.Context, since time.Time) (Result, error) {
	var res Result

	changes, err := a.PullChangesFromCloud(ctx, since)
	if err != nil {
		return res, err
	}
	res.Pulled = len(changes)

	for _, remote := range changes {
		id := idOf(remote)
		if id == "" {
			a.logger.Warn("dropping remote change without id")
			continue
		}
		local, err := a.local.Get(ctx, id)
		if err != nil {
			return res, syncerrors.NewStorageError(syncerrors.OpPull, err)
		}

		if local != nil {
			if c := a.DetectConflict(local, remote); c != nil {
				res.ConflictsDetected++
				resolved, ok, err := a.ResolveConflictAutomatically(c)
				if err != nil {
					return res, err
				}
				if !ok {
					res.Pending = append(res.Pending, c)
					continue
				}
				remote = resolved
				res.ConflictsResolved++
			} else if staleRemote(local, remote) {
				// Outside the concurrency window the newer side is
				// authoritative; an older remote record never clobbers
				// a fresher local edit.
				continue
			}
		}

		if err := a.local.Save(ctx, id, remote); err != nil {
			return res, syncerrors.NewStorageError(syncerrors.OpPull, err)
		}
		res.Applied++
	}
	return res, nil
}

// callRemote runs fn under the configured timeout and maps a deadline
// hit onto the timeout failure code.
func (a *Adapter) callRemote(ctx context.Context, fn func(ctx context.Context) error) error {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	err := fn(ctx)
	if err == nil {
		return nil
	}
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return syncerrors.NewTimeoutError(syncerrors.OpSync, err)
	case context.Canceled:
		return syncerrors.NewCancelledError(syncerrors.OpSync)
	}
	return err
}

// staleRemote reports whether the remote payload is strictly older than
// the local one. Missing timestamps on either side disable the check.
func staleRemote(local, remote map[string]any) bool {
	localTS, lok := conflict.ExtractUpdatedAt(local)
	remoteTS, rok := conflict.ExtractUpdatedAt(remote)
	return lok && rok && remoteTS.Before(localTS)
}

func pullKey(t entity.Type, since time.Time) string {
	return "pull:" + string(t) + ":" + strconv.FormatInt(since.UnixMilli(), 10)
}

func idOf(data map[string]any) string {
	if id, ok := data["id"].(string); ok {
		return id
	}
	return ""
}
