package conflict

import (
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/nerufuyo/nerulibrary-sub001/entity"
)

// ConflictWindow is the maximum timestamp gap within which two edits are
// treated as concurrent. Pairs further apart are not conflicts: the
// caller treats the newer side as authoritative without reconciliation.
const ConflictWindow = time.Second

// updatedAtKeys are the accepted spellings of the last-modified field.
var updatedAtKeys = []string{"updatedAt", "updated_at"}

// ignoredFields are timestamp-ish fields excluded from the structural
// diff, in both camel and snake spellings.
var ignoredFields = map[string]struct{}{
	"updatedAt":    {},
	"updated_at":   {},
	"createdAt":    {},
	"created_at":   {},
	"lastSyncAt":   {},
	"last_sync_at": {},
}

// Detector decides whether a local and remote representation of the same
// entity have truly diverged.
type Detector struct {
	window time.Duration
	now    func() time.Time
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithWindow overrides the concurrency window. Widening it changes which
// pairs count as conflicts; keep the default unless the policy changes.
func WithWindow(d time.Duration) DetectorOption {
	return func(det *Detector) { det.window = d }
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) DetectorOption {
	return func(det *Detector) { det.now = now }
}

// NewDetector creates a Detector with the standard one-second window.
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{
		window: ConflictWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect compares a local and remote representation of the same entity
// and returns a SyncConflict when they have concurrently diverged, nil
// otherwise.
//
// If either side lacks a last-modified timestamp, no conflict is raised;
// nothing is discarded but divergence goes unnoticed (known weak point).
// If the timestamps differ by more than the window, no conflict is
// raised regardless of data divergence and no structural diff is run:
// the newer side is authoritative. Only near-simultaneous edits get the
// structural diff, which ignores timestamp-ish bookkeeping fields.
func (d *Detector) Detect(local, remote map[string]any, entityType entity.Type) *SyncConflict {
	localTS, ok := ExtractUpdatedAt(local)
	if !ok {
		return nil
	}
	remoteTS, ok := ExtractUpdatedAt(remote)
	if !ok {
		return nil
	}

	gap := localTS.Sub(remoteTS)
	if gap < 0 {
		gap = -gap
	}
	if gap > d.window {
		return nil
	}

	if !structurallyDiffer(local, remote) {
		return nil
	}

	return &SyncConflict{
		ID:              uuid.NewString(),
		EntityType:      entityType,
		EntityID:        entityIDOf(local, remote),
		LocalData:       deepCopy(local),
		RemoteData:      deepCopy(remote),
		LocalUpdatedAt:  localTS,
		RemoteUpdatedAt: remoteTS,
		DetectedAt:      d.now(),
	}
}

// ExtractUpdatedAt reads the last-modified timestamp from a flat
// payload, accepting either conventional key spelling.
func ExtractUpdatedAt(m map[string]any) (time.Time, bool) {
	for _, key := range updatedAtKeys {
		if v, ok := m[key]; ok {
			if t, ok := entity.ParseTimestamp(v); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// structurallyDiffer reports whether any non-ignored field differs, or
// either side has a field the other lacks.
func structurallyDiffer(local, remote map[string]any) bool {
	for key, lv := range local {
		if _, skip := ignoredFields[key]; skip {
			continue
		}
		rv, ok := remote[key]
		if !ok {
			return true
		}
		if !valuesEqual(lv, rv) {
			return true
		}
	}
	for key := range remote {
		if _, skip := ignoredFields[key]; skip {
			continue
		}
		if _, ok := local[key]; !ok {
			return true
		}
	}
	return false
}

// valuesEqual compares two field values, normalizing numeric types so a
// JSON-decoded float64 equals the int it was written from.
func valuesEqual(a, b any) bool {
	if na, ok := asFloat(a); ok {
		if nb, ok := asFloat(b); ok {
			return na == nb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// entityIDOf extracts the entity identity, preferring local.
func entityIDOf(local, remote map[string]any) string {
	for _, m := range []map[string]any{local, remote} {
		if id, ok := m["id"].(string); ok && id != "" {
			return id
		}
	}
	return ""
}
