package conflict

import (
	"testing"
	"time"

	"github.com/nerufuyo/nerulibrary-sub001/entity"
)

var baseTime = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func payload(fields map[string]any, updated time.Time) map[string]any {
	m := map[string]any{
		"id":        "e1",
		"updatedAt": entity.Timestamp(updated),
	}
	for k, v := range fields {
		m[k] = v
	}
	return m
}

func TestDetectWithinWindow(t *testing.T) {
	d := NewDetector()
	local := payload(map[string]any{"page": 10}, baseTime)
	remote := payload(map[string]any{"page": 12}, baseTime.Add(400*time.Millisecond))

	c := d.Detect(local, remote, entity.TypeBookmark)
	if c == nil {
		t.Fatal("expected a conflict for divergent data within the window")
	}
	if c.EntityType != entity.TypeBookmark || c.EntityID != "e1" {
		t.Fatalf("conflict identity wrong: %+v", c)
	}
	if c.ID == "" {
		t.Fatal("conflict must have an id")
	}
	if c.TimestampGap() != 400*time.Millisecond {
		t.Fatalf("gap = %v", c.TimestampGap())
	}
}

func TestDetectOutsideWindowNeverConflicts(t *testing.T) {
	d := NewDetector()
	// Every non-timestamp field differs, but the gap exceeds one second:
	// the newer side is authoritative and no conflict is raised.
	local := payload(map[string]any{"page": 10, "title": "a"}, baseTime)
	remote := payload(map[string]any{"page": 99, "title": "b"}, baseTime.Add(1500*time.Millisecond))

	if c := d.Detect(local, remote, entity.TypeBookmark); c != nil {
		t.Fatalf("expected nil, got %+v", c)
	}
}

func TestDetectBoundaryExactlyOneSecond(t *testing.T) {
	d := NewDetector()
	local := payload(map[string]any{"page": 10}, baseTime)
	remote := payload(map[string]any{"page": 11}, baseTime.Add(time.Second))

	if c := d.Detect(local, remote, entity.TypeBookmark); c == nil {
		t.Fatal("a gap of exactly one second is inside the window")
	}
}

func TestDetectIdenticalDataNoConflict(t *testing.T) {
	d := NewDetector()
	local := payload(map[string]any{"page": 10}, baseTime)
	remote := payload(map[string]any{"page": 10}, baseTime.Add(200*time.Millisecond))

	if c := d.Detect(local, remote, entity.TypeBookmark); c != nil {
		t.Fatalf("identical payloads must not conflict, got %+v", c)
	}
}

func TestDetectIgnoresTimestampishFields(t *testing.T) {
	d := NewDetector()
	local := payload(map[string]any{"page": 10, "createdAt": "2026-01-01T00:00:00Z"}, baseTime)
	remote := payload(map[string]any{"page": 10, "created_at": "2026-02-02T00:00:00Z", "lastSyncAt": "x"}, baseTime)

	if c := d.Detect(local, remote, entity.TypeBookmark); c != nil {
		t.Fatalf("timestamp bookkeeping fields must be ignored, got %+v", c)
	}
}

func TestDetectAsymmetricKeysConflict(t *testing.T) {
	d := NewDetector()
	local := payload(map[string]any{"page": 10}, baseTime)
	remote := payload(map[string]any{"page": 10, "color": "red"}, baseTime)

	if c := d.Detect(local, remote, entity.TypeBookmark); c == nil {
		t.Fatal("a field present on only one side is a conflict")
	}
}

func TestDetectMissingTimestampAssumesNoConflict(t *testing.T) {
	d := NewDetector()
	local := map[string]any{"id": "e1", "page": 10}
	remote := payload(map[string]any{"page": 99}, baseTime)

	if c := d.Detect(local, remote, entity.TypeBookmark); c != nil {
		t.Fatal("missing local timestamp must not raise a conflict")
	}
	if c := d.Detect(remote, local, entity.TypeBookmark); c != nil {
		t.Fatal("missing remote timestamp must not raise a conflict")
	}
}

func TestDetectAcceptsSnakeCaseTimestamp(t *testing.T) {
	d := NewDetector()
	local := map[string]any{"id": "e1", "page": 10, "updated_at": entity.Timestamp(baseTime)}
	remote := payload(map[string]any{"page": 12}, baseTime.Add(300*time.Millisecond))

	if c := d.Detect(local, remote, entity.TypeBookmark); c == nil {
		t.Fatal("snake_case updated_at spelling must be accepted")
	}
}

func TestDetectNumericEncodingNormalized(t *testing.T) {
	d := NewDetector()
	// Local store hands back int, remote JSON decodes to float64.
	local := payload(map[string]any{"page": 10}, baseTime)
	remote := payload(map[string]any{"page": float64(10)}, baseTime)

	if c := d.Detect(local, remote, entity.TypeBookmark); c != nil {
		t.Fatal("int and float encodings of the same number must be equal")
	}
}

func TestDetectCopiesPayloads(t *testing.T) {
	d := NewDetector()
	local := payload(map[string]any{"page": 10}, baseTime)
	remote := payload(map[string]any{"page": 12}, baseTime)

	c := d.Detect(local, remote, entity.TypeBookmark)
	if c == nil {
		t.Fatal("expected conflict")
	}
	local["page"] = 777
	if c.LocalData["page"] != 10 {
		t.Fatal("conflict record must not alias caller maps")
	}
}
