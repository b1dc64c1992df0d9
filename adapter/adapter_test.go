package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerufuyo/nerulibrary-sub001/cache"
	"github.com/nerufuyo/nerulibrary-sub001/entity"
	syncerrors "github.com/nerufuyo/nerulibrary-sub001/errors"
)

type memLocal struct {
	data map[string]map[string]any
}

func newMemLocal() *memLocal {
	return &memLocal{data: make(map[string]map[string]any)}
}

func (m *memLocal) Get(ctx context.Context, id string) (map[string]any, error) {
	return m.data[id], nil
}

func (m *memLocal) List(ctx context.Context, since time.Time) ([]map[string]any, error) {
	var out []map[string]any
	for _, d := range m.data {
		out = append(out, d)
	}
	return out, nil
}

func (m *memLocal) Save(ctx context.Context, id string, data map[string]any) error {
	m.data[id] = data
	return nil
}

func (m *memLocal) Delete(ctx context.Context, id string) error {
	delete(m.data, id)
	return nil
}

type fakeRemote struct {
	pullResult []map[string]any
	pullCalls  int
	pushed     []map[string]any
	pushErr    func(data map[string]any) error
	fetchByID  map[string]map[string]any
}

func (f *fakeRemote) Fetch(ctx context.Context, id string) (map[string]any, error) {
	if d, ok := f.fetchByID[id]; ok {
		return d, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeRemote) Pull(ctx context.Context, since time.Time) ([]map[string]any, error) {
	f.pullCalls++
	return f.pullResult, nil
}

func (f *fakeRemote) Push(ctx context.Context, data map[string]any) error {
	if f.pushErr != nil {
		if err := f.pushErr(data); err != nil {
			return err
		}
	}
	f.pushed = append(f.pushed, data)
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	return nil
}

func TestSyncToCloudAppliesTransform(t *testing.T) {
	remote := &fakeRemote{}
	a := New(entity.TypeNote, newMemLocal(), remote,
		WithTransforms(
			func(d map[string]any) map[string]any {
				d["cloudShaped"] = true
				return d
			},
			nil,
		))

	note := entity.Note{ID: "n1", BookID: "b1", Content: "x", Updated: time.Now()}
	if err := a.SyncToCloud(context.Background(), note); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(remote.pushed) != 1 {
		t.Fatalf("expected one push, got %d", len(remote.pushed))
	}
	if remote.pushed[0]["cloudShaped"] != true {
		t.Fatal("to-cloud transform not applied")
	}
}

func TestSyncToCloudBlocksInvalidEntity(t *testing.T) {
	remote := &fakeRemote{}
	a := New(entity.TypeNote, newMemLocal(), remote,
		WithValidator(func(data map[string]any) []string {
			return []string{"content is required"}
		}))

	err := a.SyncToCloud(context.Background(), entity.Note{ID: "n1"})
	if syncerrors.CodeOf(err) != syncerrors.CodeValidation {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if len(remote.pushed) != 0 {
		t.Fatal("invalid entity must not be pushed")
	}
}

func TestSyncFromCloudSavesLocally(t *testing.T) {
	local := newMemLocal()
	remote := &fakeRemote{fetchByID: map[string]map[string]any{
		"n1": {"id": "n1", "content": "remote"},
	}}
	a := New(entity.TypeNote, local, remote)

	got, err := a.SyncFromCloud(context.Background(), "n1")
	if err != nil {
		t.Fatalf("sync from cloud: %v", err)
	}
	if got["content"] != "remote" {
		t.Fatalf("unexpected payload: %v", got)
	}
	if local.data["n1"] == nil {
		t.Fatal("payload not saved locally")
	}
}

func TestPushChangesSkipsInvalidEntities(t *testing.T) {
	remote := &fakeRemote{}
	a := New(entity.TypeNote, newMemLocal(), remote,
		WithValidator(func(data map[string]any) []string {
			if data["content"] == "" {
				return []string{"content is required"}
			}
			return nil
		}))

	batch := []map[string]any{
		{"id": "good-1", "content": "hello"},
		{"id": "bad", "content": ""},
		{"id": "good-2", "content": "world"},
	}
	pushed, err := a.PushChangesToCloud(context.Background(), batch)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if pushed != 2 {
		t.Fatalf("pushed = %d, want 2", pushed)
	}
	if len(remote.pushed) != 2 {
		t.Fatalf("remote received %d payloads, want 2", len(remote.pushed))
	}
}

func TestPushChangesAbortsOnFatalFailure(t *testing.T) {
	remote := &fakeRemote{
		pushErr: func(data map[string]any) error {
			if data["id"] == "second" {
				return syncerrors.NewAuthError(syncerrors.OpPush, errors.New("expired token"))
			}
			return nil
		},
	}
	a := New(entity.TypeNote, newMemLocal(), remote)

	batch := []map[string]any{
		{"id": "first"},
		{"id": "second"},
		{"id": "third"},
	}
	pushed, err := a.PushChangesToCloud(context.Background(), batch)
	if syncerrors.CodeOf(err) != syncerrors.CodeAuth {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if pushed != 1 {
		t.Fatalf("pushed = %d, want 1 before the abort", pushed)
	}
}

func TestPushChangesSkipsNonFatalFailure(t *testing.T) {
	remote := &fakeRemote{
		pushErr: func(data map[string]any) error {
			if data["id"] == "flaky" {
				return syncerrors.NewDataError(syncerrors.OpPush, "note", "flaky", errors.New("bad payload"))
			}
			return nil
		},
	}
	a := New(entity.TypeNote, newMemLocal(), remote)

	pushed, err := a.PushChangesToCloud(context.Background(), []map[string]any{
		{"id": "flaky"},
		{"id": "fine"},
	})
	if err != nil {
		t.Fatalf("non-fatal failure must not abort the batch: %v", err)
	}
	if pushed != 1 {
		t.Fatalf("pushed = %d, want 1", pushed)
	}
}

func TestGetCloudChangesUsesCache(t *testing.T) {
	remote := &fakeRemote{pullResult: []map[string]any{{"id": "n1"}}}
	a := New(entity.TypeNote, newMemLocal(), remote,
		WithCache(cache.New[[]map[string]any](8, time.Minute)))
	ctx := context.Background()
	since := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	if _, err := a.GetCloudChanges(ctx, since); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if _, err := a.GetCloudChanges(ctx, since); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if remote.pullCalls != 1 {
		t.Fatalf("remote pulled %d times, want 1 (cache hit)", remote.pullCalls)
	}

	// A different window is a different cache key.
	if _, err := a.GetCloudChanges(ctx, since.Add(time.Hour)); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if remote.pullCalls != 2 {
		t.Fatalf("remote pulled %d times, want 2", remote.pullCalls)
	}
}

func TestGetCloudChangesFullPullBypassesCache(t *testing.T) {
	remote := &fakeRemote{pullResult: []map[string]any{{"id": "n1"}}}
	a := New(entity.TypeNote, newMemLocal(), remote,
		WithCache(cache.New[[]map[string]any](8, time.Minute)))
	ctx := context.Background()

	if _, err := a.GetCloudChanges(ctx, time.Time{}); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if _, err := a.GetCloudChanges(ctx, time.Time{}); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if remote.pullCalls != 2 {
		t.Fatalf("remote pulled %d times, want 2 (full pulls skip the cache)", remote.pullCalls)
	}
}

func TestReconcileAppliesNewEntities(t *testing.T) {
	local := newMemLocal()
	remote := &fakeRemote{pullResult: []map[string]any{
		{"id": "n1", "content": "fresh", "updatedAt": entity.Timestamp(time.Now())},
	}}
	a := New(entity.TypeNote, local, remote)

	res, err := a.Reconcile(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Pulled != 1 || res.Applied != 1 || res.ConflictsDetected != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if local.data["n1"] == nil {
		t.Fatal("remote entity not applied")
	}
}

func TestReconcileAutoResolvesReadingProgress(t *testing.T) {
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	local := newMemLocal()
	local.data["rp1"] = map[string]any{
		"id": "rp1", "progressPercentage": 40.0, "currentPage": 100,
		"updatedAt": entity.Timestamp(base),
	}
	remote := &fakeRemote{pullResult: []map[string]any{{
		"id": "rp1", "progressPercentage": 55.0, "currentPage": 140,
		"updatedAt": entity.Timestamp(base.Add(400 * time.Millisecond)),
	}}}
	a := New(entity.TypeReadingProgress, local, remote)

	res, err := a.Reconcile(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.ConflictsDetected != 1 || res.ConflictsResolved != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Pending) != 0 {
		t.Fatalf("reading progress should never pend: %+v", res.Pending)
	}
	applied := local.data["rp1"]
	if applied["progressPercentage"] != 55.0 {
		t.Fatalf("merged progress = %v, want 55", applied["progressPercentage"])
	}
}

func TestReconcileKeepsNewerLocalOverStaleRemote(t *testing.T) {
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	local := newMemLocal()
	local.data["n1"] = map[string]any{
		"id": "n1", "content": "fresh local edit",
		"updatedAt": entity.Timestamp(base),
	}
	remote := &fakeRemote{pullResult: []map[string]any{{
		"id": "n1", "content": "stale remote",
		"updatedAt": entity.Timestamp(base.Add(-10 * time.Second)),
	}}}
	a := New(entity.TypeNote, local, remote)

	res, err := a.Reconcile(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.ConflictsDetected != 0 {
		t.Fatalf("a ten-second gap is not a conflict: %+v", res)
	}
	if res.Applied != 0 {
		t.Fatalf("stale remote must not be applied: %+v", res)
	}
	if local.data["n1"]["content"] != "fresh local edit" {
		t.Fatalf("stale remote overwrote the newer local edit: %v", local.data["n1"])
	}
}

func TestReconcileAppliesNewerRemoteOutsideWindow(t *testing.T) {
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	local := newMemLocal()
	local.data["n1"] = map[string]any{
		"id": "n1", "content": "old local",
		"updatedAt": entity.Timestamp(base),
	}
	remote := &fakeRemote{pullResult: []map[string]any{{
		"id": "n1", "content": "newer remote",
		"updatedAt": entity.Timestamp(base.Add(10 * time.Second)),
	}}}
	a := New(entity.TypeNote, local, remote)

	res, err := a.Reconcile(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.ConflictsDetected != 0 || res.Applied != 1 {
		t.Fatalf("newer remote should apply without a conflict: %+v", res)
	}
	if local.data["n1"]["content"] != "newer remote" {
		t.Fatalf("newer remote not applied: %v", local.data["n1"])
	}
}

func TestReconcileLeavesManualConflictsPending(t *testing.T) {
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	local := newMemLocal()
	local.data["n1"] = map[string]any{
		"id": "n1", "content": "local words",
		"updatedAt": entity.Timestamp(base),
	}
	remote := &fakeRemote{pullResult: []map[string]any{{
		"id": "n1", "content": "remote words",
		"updatedAt": entity.Timestamp(base.Add(300 * time.Millisecond)),
	}}}
	a := New(entity.TypeNote, local, remote)

	res, err := a.Reconcile(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.ConflictsDetected != 1 || res.ConflictsResolved != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Pending) != 1 {
		t.Fatalf("expected one pending conflict, got %d", len(res.Pending))
	}
	// The conflicting remote payload must not clobber the local entity.
	if local.data["n1"]["content"] != "local words" {
		t.Fatal("pending conflict overwrote local data")
	}
}
