// Package entity defines the syncable entity types of the library
// application and their flat key-value representations.
//
// Every type that participates in synchronization satisfies the Syncable
// capability: a stable identity, a last-modified timestamp, and a
// bidirectional transform to a plain map. The map form is what flows
// through conflict detection, the sync queue, and the remote store.
package entity

import (
	"time"
)

// Type identifies an entity type. The (Type, entity id) pair is the sole
// join key between local and remote representations.
type Type string

const (
	TypeReadingProgress Type = "reading_progress"
	TypeBookmark        Type = "bookmark"
	TypeNote            Type = "note"
	TypeCollection      Type = "collection"
	TypeBook            Type = "book"
	TypeAuthor          Type = "author"
	TypeCategory        Type = "category"
)

// AllTypes returns every registered entity type in sync processing order.
func AllTypes() []Type {
	return []Type{
		TypeBook,
		TypeAuthor,
		TypeCategory,
		TypeReadingProgress,
		TypeBookmark,
		TypeNote,
		TypeCollection,
	}
}

// Syncable is the capability contract any entity must satisfy to
// participate in synchronization.
type Syncable interface {
	// EntityID returns the stable identity of the entity.
	EntityID() string

	// EntityType returns the entity type identifier.
	EntityType() Type

	// UpdatedAt returns the last-modified timestamp.
	UpdatedAt() time.Time

	// ToMap returns the flat key-value representation.
	ToMap() map[string]any
}

// Timestamp formats a time for the flat map representation.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp reads a timestamp value from a flat map field. It
// accepts time.Time, RFC3339 strings, and epoch milliseconds, the three
// encodings seen from the local store and the remote store.
func ParseTimestamp(v any) (time.Time, bool) {
	switch tv := v.(type) {
	case time.Time:
		return tv, true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, tv); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339, tv); err == nil {
			return t, true
		}
	case int64:
		return time.UnixMilli(tv), true
	case float64:
		return time.UnixMilli(int64(tv)), true
	case int:
		return time.UnixMilli(int64(tv)), true
	}
	return time.Time{}, false
}

// stringField reads a string field from a flat map, empty when absent.
func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// intField reads an integer field, tolerating float64 from JSON decoding.
func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// floatField reads a numeric field as float64.
func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// timeField reads a timestamp field, zero time when absent or malformed.
func timeField(m map[string]any, key string) time.Time {
	if v, ok := m[key]; ok {
		if t, ok := ParseTimestamp(v); ok {
			return t
		}
	}
	return time.Time{}
}
