package trackdb_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"trackreel/internal/trackdb"
)

func openCheckpoints(t *testing.T, opts ...trackdb.Option) *trackdb.CheckpointStore {
	t.Helper()
	store, err := trackdb.OpenCheckpoints(filepath.Join(t.TempDir(), "checkpoint.json"), opts...)
	if err != nil {
		t.Fatalf("OpenCheckpoints: %v", err)
	}
	return store
}

func TestCheckpointRoundTrip(t *testing.T) {
	store := openCheckpoints(t)
	ctx := context.Background()

	if err := store.Save(ctx, "image", "t5", []string{"t1", "t2"}, []string{"t3", "t4"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cp, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load = %v, %v", ok, err)
	}
	if !cp.IsRunning || cp.CurrentStage != "image" || cp.CurrentTrackID != "t5" {
		t.Fatalf("unexpected checkpoint %#v", cp)
	}
	if !slices.Equal(cp.CompletedTracks, []string{"t1", "t2"}) || !slices.Equal(cp.PendingTracks, []string{"t3", "t4"}) {
		t.Fatalf("unexpected id lists %#v", cp)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("Load after clear = %v, %v", ok, err)
	}
	if _, err := os.Stat(store.Path()); err != nil {
		t.Fatalf("expected checkpoint file retained: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestCheckpointAbsentFile(t *testing.T) {
	store := openCheckpoints(t)
	has, err := store.Has(context.Background())
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if has {
		t.Fatal("expected no checkpoint")
	}
	if err := store.Clear(context.Background()); err != nil {
		t.Fatalf("Clear on absent: %v", err)
	}
}

func TestCheckpointSaveKeepsStartedAt(t *testing.T) {
	start := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	clock := start
	store := openCheckpoints(t, trackdb.WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	if err := store.Save(ctx, "images", "t1", nil, []string{"t1", "t2"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	clock = clock.Add(10 * time.Minute)
	if err := store.Save(ctx, "images", "t2", []string{"t1"}, []string{"t2"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cp, _, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cp.StartedAt.Equal(start) {
		t.Fatalf("expected started_at %v, got %v", start, cp.StartedAt.Time)
	}
	if !cp.LastUpdated.Equal(clock) {
		t.Fatalf("expected last_updated %v, got %v", clock, cp.LastUpdated.Time)
	}
	if cp.CompletedTracks == nil {
		t.Fatal("expected completed list to be non-nil")
	}
}

func TestCheckpointRemainingSkipsCompleted(t *testing.T) {
	cp := trackdb.Checkpoint{
		CompletedTracks: []string{"t1"},
		PendingTracks:   []string{"t1", "t2", "t2", "t3"},
	}
	got := cp.Remaining()
	if !slices.Equal(got, []string{"t2", "t3"}) {
		t.Fatalf("unexpected remaining %v", got)
	}
}
