package trackdb_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"trackreel/internal/trackdb"
)

func openLedger(t *testing.T, opts ...trackdb.Option) *trackdb.Ledger {
	t.Helper()
	ledger, err := trackdb.OpenLedger(filepath.Join(t.TempDir(), "failed_tasks.json"), opts...)
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	return ledger
}

func TestLedgerRecordUpserts(t *testing.T) {
	clock := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	ledger := openLedger(t, trackdb.WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	if err := ledger.Record(ctx, "t1", "images", "rate limited"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	clock = clock.Add(time.Hour)
	if err := ledger.Record(ctx, "t1", "images", "content policy"); err != nil {
		t.Fatalf("Record again: %v", err)
	}
	tasks, err := ledger.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected one entry, got %d", len(tasks))
	}
	task := tasks[0]
	if task.ErrorMessage != "content policy" || !task.FailedAt.Equal(clock) || task.RetryCount != 1 {
		t.Fatalf("unexpected entry %#v", task)
	}
}

func TestLedgerRemoveIsIdempotent(t *testing.T) {
	ledger := openLedger(t)
	ctx := context.Background()
	if err := ledger.Record(ctx, "t1", "images", "boom"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := ledger.Record(ctx, "t1", "videos", "boom"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	removed, err := ledger.Remove(ctx, "t1", "images")
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	removed, err = ledger.Remove(ctx, "t1", "images")
	if err != nil || removed {
		t.Fatalf("second Remove = %v, %v", removed, err)
	}
	videos, err := ledger.ListStage(ctx, "videos")
	if err != nil {
		t.Fatalf("ListStage: %v", err)
	}
	if len(videos) != 1 || videos[0].TrackID != "t1" {
		t.Fatalf("unexpected video entries %#v", videos)
	}
}

func TestLedgerDrainAllEmpties(t *testing.T) {
	ledger := openLedger(t)
	ctx := context.Background()
	for _, id := range []string{"t1", "t2"} {
		if err := ledger.Record(ctx, id, "videos", "encode failed"); err != nil {
			t.Fatalf("Record %s: %v", id, err)
		}
	}
	drained, err := ledger.DrainAll(ctx)
	if err != nil {
		t.Fatalf("DrainAll: %v", err)
	}
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained entries, got %d", len(drained))
	}
	remaining, err := ledger.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected empty ledger, got %d", len(remaining))
	}
}

func TestLedgerSummary(t *testing.T) {
	ledger := openLedger(t)
	ctx := context.Background()
	entries := [][2]string{{"t1", "images"}, {"t2", "images"}, {"t3", "videos"}}
	for _, e := range entries {
		if err := ledger.Record(ctx, e[0], e[1], "failed"); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	summary, err := ledger.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Total != 3 || summary.ByStage["images"] != 2 || summary.ByStage["videos"] != 1 {
		t.Fatalf("unexpected summary %#v", summary)
	}
}
