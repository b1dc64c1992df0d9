// Package conflict implements divergence detection and policy-driven
// reconciliation between local and remote representations of the same
// entity.
//
// Detection and resolution are pure: identical inputs always produce
// identical output, and no function in this package performs I/O. The
// orchestrator owns persistence of pending conflicts and application of
// reconciled payloads.
package conflict

import (
	"time"

	"github.com/nerufuyo/nerulibrary-sub001/entity"
)

// Resolution is the policy tag selecting how a conflict is reconciled.
type Resolution string

const (
	UseLocal  Resolution = "useLocal"
	UseRemote Resolution = "useRemote"
	Merge     Resolution = "merge"
	Manual    Resolution = "manual"
)

// SyncConflict records a detected divergence between the local and
// remote representation of one entity. It is immutable once created;
// resolution produces a new reconciled payload rather than editing the
// record. A fresh detection for the same (EntityType, EntityID) pair
// supersedes any prior record.
type SyncConflict struct {
	ID              string
	EntityType      entity.Type
	EntityID        string
	LocalData       map[string]any
	RemoteData      map[string]any
	LocalUpdatedAt  time.Time
	RemoteUpdatedAt time.Time
	DetectedAt      time.Time
}

// Key returns the identity under which conflicts supersede each other.
func (c *SyncConflict) Key() string {
	return string(c.EntityType) + "/" + c.EntityID
}

// TimestampGap returns the absolute difference between the two sides'
// last-modified timestamps.
func (c *SyncConflict) TimestampGap() time.Duration {
	gap := c.LocalUpdatedAt.Sub(c.RemoteUpdatedAt)
	if gap < 0 {
		gap = -gap
	}
	return gap
}

// deepCopy clones a flat payload so resolution output never aliases the
// conflict record.
func deepCopy(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return deepCopy(tv)
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = deepCopyValue(e)
		}
		return out
	case []string:
		out := make([]string, len(tv))
		copy(out, tv)
		return out
	default:
		return v
	}
}
