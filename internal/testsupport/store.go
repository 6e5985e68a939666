package testsupport

import (
	"context"
	"testing"

	"trackreel/internal/config"
	"trackreel/internal/trackdb"
)

// Stores bundles the three state files opened against one config.
type Stores struct {
	Tracks      *trackdb.Store
	Failures    *trackdb.Ledger
	Checkpoints *trackdb.CheckpointStore
}

// MustOpenStores opens the tracks, failure, and checkpoint stores for tests.
func MustOpenStores(t testing.TB, cfg *config.Config) Stores {
	t.Helper()

	opt := trackdb.WithLockTimeout(cfg.LockTimeout())
	tracks, err := trackdb.Open(cfg.TracksDBPath(), opt)
	if err != nil {
		t.Fatalf("trackdb.Open: %v", err)
	}
	failures, err := trackdb.OpenLedger(cfg.FailedTasksDBPath(), opt)
	if err != nil {
		t.Fatalf("trackdb.OpenLedger: %v", err)
	}
	checkpoints, err := trackdb.OpenCheckpoints(cfg.CheckpointDBPath(), opt)
	if err != nil {
		t.Fatalf("trackdb.OpenCheckpoints: %v", err)
	}
	return Stores{Tracks: tracks, Failures: failures, Checkpoints: checkpoints}
}

// AddTrack registers id with the given record mutations applied.
func AddTrack(t testing.TB, store *trackdb.Store, id string, patch trackdb.Patch) trackdb.Record {
	t.Helper()

	ctx := context.Background()
	if _, err := store.Add(ctx, id, nil); err != nil {
		t.Fatalf("store.Add(%s): %v", id, err)
	}
	if _, err := store.Update(ctx, id, patch); err != nil {
		t.Fatalf("store.Update(%s): %v", id, err)
	}
	rec, ok, err := store.Get(ctx, id)
	if err != nil || !ok {
		t.Fatalf("store.Get(%s): ok=%v err=%v", id, ok, err)
	}
	return rec
}
