package conflict

import (
	"fmt"
	"time"

	"github.com/nerufuyo/nerulibrary-sub001/entity"
	syncerrors "github.com/nerufuyo/nerulibrary-sub001/errors"
)

// MergeFunc reconciles the two sides of a conflict into a single
// payload. Implementations must be pure: no I/O, and identical inputs
// yield identical output. The payloads passed in are already copies, so
// a MergeFunc may mutate and return its local argument.
type MergeFunc func(local, remote map[string]any, c *SyncConflict) map[string]any

// stalenessThreshold is the timestamp gap beyond which a pair is treated
// as high-confidence staleness and safe to resolve automatically, even
// when the conflict was sourced outside the detector's window.
const stalenessThreshold = 5 * time.Minute

// Resolver reconciles detected conflicts according to a chosen strategy.
// Merge dispatch goes through a registry of per-entity-type rules with a
// single fallback, so new entity types are added by registration rather
// than editing a switch.
type Resolver struct {
	merges    map[entity.Type]MergeFunc
	fallback  MergeFunc
	autoTypes map[entity.Type]struct{}
	staleness time.Duration
}

// ResolverOption configures a Resolver at construction time.
type ResolverOption func(*Resolver)

// WithMergeRule registers the merge function for one entity type.
func WithMergeRule(t entity.Type, fn MergeFunc) ResolverOption {
	return func(r *Resolver) { r.merges[t] = fn }
}

// WithFallback replaces the default merge fallback used for
// unregistered entity types.
func WithFallback(fn MergeFunc) ResolverOption {
	return func(r *Resolver) { r.fallback = fn }
}

// WithAutoResolvableTypes replaces the set of entity types that are
// always safe to resolve without user involvement.
func WithAutoResolvableTypes(types ...entity.Type) ResolverOption {
	return func(r *Resolver) {
		r.autoTypes = make(map[entity.Type]struct{}, len(types))
		for _, t := range types {
			r.autoTypes[t] = struct{}{}
		}
	}
}

// WithStalenessThreshold overrides the gap beyond which any conflict is
// considered automatically resolvable.
func WithStalenessThreshold(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.staleness = d }
}

// NewResolver creates a Resolver with the library's standard merge
// registry. Options may override individual rules, the fallback, and
// the auto-resolution policy.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		merges: map[entity.Type]MergeFunc{
			entity.TypeReadingProgress: MergeReadingProgress,
			entity.TypeBookmark:        MergeLatestWins,
			entity.TypeNote:            MergeLongerContent,
			entity.TypeCollection:      MergeCollection,
		},
		fallback: MergeLatestWins,
		autoTypes: map[entity.Type]struct{}{
			entity.TypeReadingProgress: {},
			entity.TypeBook:            {},
			entity.TypeAuthor:          {},
			entity.TypeCategory:        {},
		},
		staleness: stalenessThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces the reconciled payload for a conflict under the given
// strategy. Manual always fails with the typed "manual resolution
// required" error; the caller surfaces the conflict and resubmits later
// with a concrete strategy.
func (r *Resolver) Resolve(c *SyncConflict, strategy Resolution) (map[string]any, error) {
	if c == nil {
		return nil, syncerrors.NewDataError(syncerrors.OpResolve, "", "", fmt.Errorf("nil conflict"))
	}
	switch strategy {
	case UseLocal:
		return deepCopy(c.LocalData), nil
	case UseRemote:
		return deepCopy(c.RemoteData), nil
	case Merge:
		fn, ok := r.merges[c.EntityType]
		if !ok {
			fn = r.fallback
		}
		return fn(deepCopy(c.LocalData), deepCopy(c.RemoteData), c), nil
	case Manual:
		return nil, syncerrors.NewConflictError(
			syncerrors.OpResolve, string(c.EntityType), c.EntityID, deepCopy(c.RemoteData))
	default:
		return nil, syncerrors.NewDataError(
			syncerrors.OpResolve, string(c.EntityType), c.EntityID,
			fmt.Errorf("unknown resolution strategy %q", strategy))
	}
}

// Recommend returns the policy-preferred strategy for a conflict,
// evaluated per entity type.
func (r *Resolver) Recommend(c *SyncConflict) Resolution {
	switch c.EntityType {
	case entity.TypeReadingProgress:
		if c.RemoteUpdatedAt.After(c.LocalUpdatedAt) {
			return UseRemote
		}
		return UseLocal
	case entity.TypeBookmark, entity.TypeNote:
		return Merge
	case entity.TypeBook, entity.TypeAuthor, entity.TypeCategory:
		// Remote metadata is authoritative.
		return UseRemote
	case entity.TypeCollection:
		// User-owned organizational data.
		return UseLocal
	default:
		if c.RemoteUpdatedAt.After(c.LocalUpdatedAt) {
			return UseRemote
		}
		return UseLocal
	}
}

// CanResolveAutomatically reports whether a conflict may be reconciled
// without user involvement: either its entity type is registered as
// auto-resolvable, or the two timestamps are far enough apart that one
// side is high-confidence stale. The staleness check is defensive; the
// detector never flags such pairs, but conflicts sourced elsewhere may
// carry them.
func (r *Resolver) CanResolveAutomatically(c *SyncConflict) bool {
	if _, ok := r.autoTypes[c.EntityType]; ok {
		return true
	}
	return c.TimestampGap() > r.staleness
}
