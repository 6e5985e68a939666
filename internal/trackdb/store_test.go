package trackdb_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"trackreel/internal/services"
	"trackreel/internal/trackdb"
)

func openStore(t *testing.T, opts ...trackdb.Option) *trackdb.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "tracks.json")
	store, err := trackdb.Open(path, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func TestLoadInitialisesMissingFile(t *testing.T) {
	store := openStore(t)
	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Tracks) != 0 || snap.Metadata.Version != trackdb.SchemaVersion {
		t.Fatalf("unexpected snapshot %#v", snap)
	}
	if _, err := os.Stat(store.Path()); err != nil {
		t.Fatalf("expected tracks file to be persisted: %v", err)
	}
}

func TestAddIsIdempotent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	added, err := store.Add(ctx, "t1", nil)
	if err != nil || !added {
		t.Fatalf("first Add = %v, %v", added, err)
	}
	added, err = store.Add(ctx, "t1", nil)
	if err != nil {
		t.Fatalf("second Add: %v", err)
	}
	if added {
		t.Fatal("expected second Add to report no-op")
	}
	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 record, got %d", len(all))
	}
	rec := all[0]
	for _, stage := range []trackdb.Stage{trackdb.StageMusic, trackdb.StageImage, trackdb.StageVideo, trackdb.StageThumbnail} {
		if rec.Status(stage) != trackdb.StatusPending {
			t.Fatalf("expected %s pending, got %q", stage, rec.Status(stage))
		}
	}
}

func TestUpdateMergesNestedFields(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := openStore(t, trackdb.WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	if _, err := store.Add(ctx, "t1", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := store.Update(ctx, "t1", trackdb.Patch{Image: &trackdb.ImagePatch{PromptUsed: trackdb.Ptr("misty forest")}}); err != nil {
		t.Fatalf("Update prompt: %v", err)
	}
	clock = clock.Add(time.Minute)
	ok, err := store.Update(ctx, "t1", trackdb.StatusPatch(trackdb.StageImage, trackdb.StatusCompleted))
	if err != nil || !ok {
		t.Fatalf("Update status = %v, %v", ok, err)
	}

	rec, _, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Image.PromptUsed != "misty forest" {
		t.Fatalf("expected prompt to survive merge, got %q", rec.Image.PromptUsed)
	}
	if rec.Image.Status != trackdb.StatusCompleted {
		t.Fatalf("expected image completed, got %q", rec.Image.Status)
	}
	if !rec.UpdatedAt.Equal(clock) {
		t.Fatalf("expected updated_at %v, got %v", clock, rec.UpdatedAt.Time)
	}
	if rec.CreatedAt.Equal(clock) {
		t.Fatal("expected created_at to stay at insertion time")
	}
}

func TestUpdateUnknownTrackReportsFalse(t *testing.T) {
	store := openStore(t)
	ok, err := store.Update(context.Background(), "missing", trackdb.StatusPatch(trackdb.StageVideo, trackdb.StatusFailed))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ok {
		t.Fatal("expected Update on unknown id to report false")
	}
}

func TestAppendErrorKeepsNewestTen(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if _, err := store.Add(ctx, "t1", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	for i := 0; i < 15; i++ {
		if _, err := store.AppendError(ctx, "t1", "image", fmt.Sprintf("error %d", i)); err != nil {
			t.Fatalf("AppendError %d: %v", i, err)
		}
	}
	log, err := store.ErrorLog(ctx, "t1")
	if err != nil {
		t.Fatalf("ErrorLog: %v", err)
	}
	if len(log) != trackdb.MaxErrorLog {
		t.Fatalf("expected %d entries, got %d", trackdb.MaxErrorLog, len(log))
	}
	for i, entry := range log {
		want := fmt.Sprintf("error %d", i+5)
		if entry.Message != want {
			t.Fatalf("entry %d: expected %q, got %q", i, want, entry.Message)
		}
	}

	if _, err := store.ClearErrors(ctx, "t1"); err != nil {
		t.Fatalf("ClearErrors: %v", err)
	}
	log, err = store.ErrorLog(ctx, "t1")
	if err != nil {
		t.Fatalf("ErrorLog after clear: %v", err)
	}
	if len(log) != 0 {
		t.Fatalf("expected empty log, got %d entries", len(log))
	}
}

func TestStatisticsCountsFullyCompleted(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	done := trackdb.StatusCompleted
	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Add(ctx, id, nil); err != nil {
			t.Fatalf("Add %s: %v", id, err)
		}
	}
	full := trackdb.Patch{
		Music: &trackdb.MusicPatch{Status: &done},
		Image: &trackdb.ImagePatch{Status: &done},
		Video: &trackdb.VideoPatch{Status: &done},
	}
	if _, err := store.Update(ctx, "a", full); err != nil {
		t.Fatalf("Update a: %v", err)
	}
	partial := trackdb.Patch{
		Music: &trackdb.MusicPatch{Status: &done},
		Image: &trackdb.ImagePatch{Status: &done},
	}
	if _, err := store.Update(ctx, "b", partial); err != nil {
		t.Fatalf("Update b: %v", err)
	}
	if _, err := store.UpdateStageStatus(ctx, "c", trackdb.StageVideo, trackdb.StatusFailed); err != nil {
		t.Fatalf("UpdateStageStatus c: %v", err)
	}

	stats, err := store.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalTracks != 3 || stats.FullyCompleted != 1 {
		t.Fatalf("unexpected totals %#v", stats)
	}
	if stats.Image.Completed != 2 || stats.Image.Pending != 1 {
		t.Fatalf("unexpected image counts %#v", stats.Image)
	}
	if stats.Video.Failed != 1 || stats.Video.Completed != 1 || stats.Video.Pending != 1 {
		t.Fatalf("unexpected video counts %#v", stats.Video)
	}
}

func TestQueryByStageStatusSortsByID(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	for _, id := range []string{"t3", "t1", "t2"} {
		if _, err := store.Add(ctx, id, nil); err != nil {
			t.Fatalf("Add %s: %v", id, err)
		}
	}
	if _, err := store.UpdateStageStatus(ctx, "t2", trackdb.StageImage, trackdb.StatusCompleted); err != nil {
		t.Fatalf("UpdateStageStatus: %v", err)
	}
	if _, err := store.UpdateStageStatus(ctx, "t3", trackdb.StageImage, trackdb.StatusFailed); err != nil {
		t.Fatalf("UpdateStageStatus: %v", err)
	}
	recs, err := store.QueryByStageStatus(ctx, trackdb.StageImage, trackdb.StatusPending, trackdb.StatusFailed)
	if err != nil {
		t.Fatalf("QueryByStageStatus: %v", err)
	}
	if len(recs) != 2 || recs[0].TrackID != "t1" || recs[1].TrackID != "t3" {
		t.Fatalf("unexpected query result %#v", recs)
	}
}

func TestSaveWritesBackupAndMetadata(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if _, err := store.Add(ctx, "t1", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	before, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read tracks: %v", err)
	}
	if _, err := store.Add(ctx, "t2", nil); err != nil {
		t.Fatalf("Add t2: %v", err)
	}
	backup, err := os.ReadFile(store.Path() + ".bak")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(backup) != string(before) {
		t.Fatal("expected .bak to hold the previous file content")
	}
	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Metadata.TotalTracks != 2 {
		t.Fatalf("expected total_tracks 2, got %d", snap.Metadata.TotalTracks)
	}
}

func TestCorruptFileIsBackedUpAndReset(t *testing.T) {
	store := openStore(t)
	if err := os.MkdirAll(filepath.Dir(store.Path()), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Tracks) != 0 {
		t.Fatalf("expected empty store, got %d tracks", len(snap.Tracks))
	}
	backup, err := os.ReadFile(store.Path() + ".bak")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(backup) != "{not json" {
		t.Fatalf("expected corrupt content in backup, got %q", backup)
	}
}

func TestLoadReadsLegacyTimestamps(t *testing.T) {
	store := openStore(t)
	legacy := `{
  "tracks": {
    "track_001": {
      "track_id": "track_001",
      "created_at": "2024-03-01T10:00:00.123456",
      "updated_at": "2024-03-01T10:00:00.123456",
      "music": {"status": "completed", "file_path": "/music/track_001.mp3", "suno_task_id": null, "generated_at": null},
      "image": {"status": "pending", "file_path": null},
      "video": {"status": "pending", "file_path": null},
      "thumbnail": {"status": "pending", "file_path": null},
      "error_log": [],
      "retry_count": 0
    }
  },
  "metadata": {"total_tracks": 1, "last_updated": "2024-03-01T10:00:00.123456", "version": "1.0"}
}`
	if err := os.MkdirAll(filepath.Dir(store.Path()), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(store.Path(), []byte(legacy), 0o644); err != nil {
		t.Fatalf("write legacy: %v", err)
	}
	rec, ok, err := store.Get(context.Background(), "track_001")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if rec.Music.FilePath != "/music/track_001.mp3" || rec.Music.Status != trackdb.StatusCompleted {
		t.Fatalf("unexpected music stage %#v", rec.Music)
	}
	if rec.CreatedAt.IsZero() {
		t.Fatal("expected created_at to parse")
	}
}

func TestLockTimeoutReportsStoreUnavailable(t *testing.T) {
	store := openStore(t, trackdb.WithLockTimeout(100*time.Millisecond))
	if err := os.MkdirAll(filepath.Dir(store.Path()), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	holder := flock.New(store.Path() + ".lock")
	locked, err := holder.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock = %v, %v", locked, err)
	}
	defer func() { _ = holder.Unlock() }()

	_, err = store.Load(context.Background())
	if !errors.Is(err, trackdb.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if services.KindOf(err) != services.KindStore {
		t.Fatalf("expected store kind, got %q", services.KindOf(err))
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if _, err := store.Add(ctx, "t1", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	deleted, err := store.Delete(ctx, "t1")
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v", deleted, err)
	}
	deleted, err = store.Delete(ctx, "t1")
	if err != nil || deleted {
		t.Fatalf("second Delete = %v, %v", deleted, err)
	}
}

func TestIncrementRetry(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if _, err := store.Add(ctx, "t1", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	for want := 1; want <= 2; want++ {
		got, err := store.IncrementRetry(ctx, "t1")
		if err != nil {
			t.Fatalf("IncrementRetry: %v", err)
		}
		if got != want {
			t.Fatalf("expected retry count %d, got %d", want, got)
		}
	}
	if _, err := store.IncrementRetry(ctx, "missing"); err == nil {
		t.Fatal("expected error for unknown track")
	}
}
