package scanner_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"trackreel/internal/config"
	"trackreel/internal/scanner"
	"trackreel/internal/testsupport"
	"trackreel/internal/trackdb"
)

func newScanner(t *testing.T, missingAction string) (*scanner.Scanner, *trackdb.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	stores := testsupport.MustOpenStores(t, cfg)
	dirs := scanner.Dirs{Music: cfg.Paths.MusicDir, Image: cfg.Paths.ImageDir, Video: cfg.Paths.VideoDir}
	return scanner.New(dirs, stores.Tracks, missingAction, nil), stores.Tracks, cfg
}

func TestScanPrefersFirstExtensionAndSkipsHidden(t *testing.T) {
	sc, _, cfg := newScanner(t, "")
	music := cfg.Paths.MusicDir
	testsupport.WriteFile(t, filepath.Join(music, "b_track.flac"), 10)
	testsupport.WriteFile(t, filepath.Join(music, "b_track.mp3"), 20)
	testsupport.WriteFile(t, filepath.Join(music, "a_track.wav"), 30)
	testsupport.WriteFile(t, filepath.Join(music, ".hidden.mp3"), 5)
	testsupport.WriteFile(t, filepath.Join(music, "notes.txt"), 5)

	files, err := sc.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %#v", files)
	}
	if files[0].ID != "a_track" || files[1].ID != "b_track" {
		t.Fatalf("unexpected order %#v", files)
	}
	if files[1].Extension != ".mp3" || files[1].Size != 20 {
		t.Fatalf("expected mp3 to win for b_track, got %#v", files[1])
	}
}

func TestFullScanAndSyncRegistersNewTracks(t *testing.T) {
	sc, store, cfg := newScanner(t, "")
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.MusicDir, "track_001.mp3"), 100)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.MusicDir, "track_002.mp3"), 100)
	ctx := context.Background()

	summary, err := sc.FullScanAndSync(ctx)
	if err != nil {
		t.Fatalf("FullScanAndSync: %v", err)
	}
	if summary.FilesFound != 2 || summary.NewRegistered != 2 || summary.MissingFound != 0 || summary.Synced != 2 {
		t.Fatalf("unexpected summary %#v", summary)
	}
	for _, id := range []string{"track_001", "track_002"} {
		rec, ok, err := store.Get(ctx, id)
		if err != nil || !ok {
			t.Fatalf("Get(%s) = %v, %v", id, ok, err)
		}
		if rec.Music.Status != trackdb.StatusCompleted || rec.Image.Status != trackdb.StatusPending {
			t.Fatalf("unexpected statuses for %s: %#v", id, rec)
		}
		if rec.Music.FilePath != filepath.Join(cfg.Paths.MusicDir, id+".mp3") {
			t.Fatalf("unexpected music path %q", rec.Music.FilePath)
		}
	}
	stats, err := store.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalTracks != 2 || stats.FullyCompleted != 0 {
		t.Fatalf("unexpected stats %#v", stats)
	}

	again, err := sc.FullScanAndSync(ctx)
	if err != nil {
		t.Fatalf("second FullScanAndSync: %v", err)
	}
	if again.NewRegistered != 0 || again.Changed != 0 {
		t.Fatalf("expected idempotent rescan, got %#v", again)
	}
}

func TestFullScanAndSyncMatchesUppercaseExtensions(t *testing.T) {
	sc, store, cfg := newScanner(t, "")
	ctx := context.Background()
	audio := filepath.Join(cfg.Paths.MusicDir, "Song.MP3")
	cover := filepath.Join(cfg.Paths.ImageDir, "Song.JPG")
	video := filepath.Join(cfg.Paths.VideoDir, "Song.Mp4")
	testsupport.WriteFile(t, audio, 100)
	testsupport.WriteFile(t, cover, 10)
	testsupport.WriteFile(t, video, 10)

	summary, err := sc.FullScanAndSync(ctx)
	if err != nil {
		t.Fatalf("FullScanAndSync: %v", err)
	}
	if summary.NewRegistered != 1 || summary.MissingFound != 0 {
		t.Fatalf("unexpected summary %#v", summary)
	}
	rec, ok, err := store.Get(ctx, "Song")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if rec.Music.Status != trackdb.StatusCompleted || rec.Music.FilePath != audio {
		t.Fatalf("music stage should stay completed, got %#v", rec.Music)
	}
	if rec.Image.Status != trackdb.StatusCompleted || rec.Image.FilePath != cover {
		t.Fatalf("unexpected image stage %#v", rec.Image)
	}
	if rec.Video.Status != trackdb.StatusCompleted || rec.Video.FilePath != video {
		t.Fatalf("unexpected video stage %#v", rec.Video)
	}
	stats, err := store.Statistics(ctx)
	if err != nil || stats.FullyCompleted != 1 {
		t.Fatalf("expected one fully completed track, got %#v (%v)", stats, err)
	}

	again, err := sc.FullScanAndSync(ctx)
	if err != nil {
		t.Fatalf("second FullScanAndSync: %v", err)
	}
	if again.Changed != 0 {
		t.Fatalf("rescan should not change anything, got %#v", again)
	}
}

func TestSyncItemDemotesDeletedImage(t *testing.T) {
	sc, store, cfg := newScanner(t, "")
	ctx := context.Background()
	imagePath := filepath.Join(cfg.Paths.ImageDir, "t9.png")
	testsupport.WriteFile(t, imagePath, 10)
	testsupport.AddTrack(t, store, "t9", trackdb.PathPatch(trackdb.StageImage, trackdb.StatusCompleted, imagePath))
	if _, err := store.Update(ctx, "t9", trackdb.Patch{Image: &trackdb.ImagePatch{PromptUsed: trackdb.Ptr("sunset")}}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := os.Remove(imagePath); err != nil {
		t.Fatalf("remove image: %v", err)
	}
	ok, err := sc.SyncItem(ctx, "t9", sc.CheckFileStatus("t9"))
	if err != nil || !ok {
		t.Fatalf("SyncItem = %v, %v", ok, err)
	}
	rec, _, err := store.Get(ctx, "t9")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Image.Status != trackdb.StatusPending {
		t.Fatalf("expected image demoted to pending, got %q", rec.Image.Status)
	}
	if rec.Image.PromptUsed != "sunset" {
		t.Fatalf("expected prompt to be preserved, got %q", rec.Image.PromptUsed)
	}
}

func TestSyncItemAdoptsExistingFiles(t *testing.T) {
	sc, store, cfg := newScanner(t, "")
	ctx := context.Background()
	testsupport.AddTrack(t, store, "t1", trackdb.Patch{})
	jpg := filepath.Join(cfg.Paths.ImageDir, "t1.jpg")
	video := filepath.Join(cfg.Paths.VideoDir, "t1.mp4")
	testsupport.WriteFile(t, jpg, 10)
	testsupport.WriteFile(t, video, 10)

	if _, err := sc.SyncItem(ctx, "t1", sc.CheckFileStatus("t1")); err != nil {
		t.Fatalf("SyncItem: %v", err)
	}
	rec, _, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Image.Status != trackdb.StatusCompleted || rec.Image.FilePath != jpg {
		t.Fatalf("unexpected image stage %#v", rec.Image)
	}
	if rec.Video.Status != trackdb.StatusCompleted || rec.Video.FilePath != video {
		t.Fatalf("unexpected video stage %#v", rec.Video)
	}
	if rec.Music.Status != trackdb.StatusPending {
		t.Fatalf("expected music untouched, got %q", rec.Music.Status)
	}
}

func TestSyncItemUnknownTrack(t *testing.T) {
	sc, _, _ := newScanner(t, "")
	ok, err := sc.SyncItem(context.Background(), "ghost", scanner.FileStatus{TrackID: "ghost"})
	if err != nil || ok {
		t.Fatalf("SyncItem = %v, %v", ok, err)
	}
}

func TestMissingActions(t *testing.T) {
	cases := []struct {
		action     string
		wantExists bool
		wantStatus trackdb.Status
	}{
		{scanner.MissingWarn, true, trackdb.StatusPending},
		{scanner.MissingMark, true, trackdb.StatusMissing},
		{scanner.MissingRemove, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.action, func(t *testing.T) {
			sc, store, cfg := newScanner(t, tc.action)
			ctx := context.Background()
			audio := filepath.Join(cfg.Paths.MusicDir, "gone.mp3")
			testsupport.WriteFile(t, audio, 10)
			if _, err := sc.FullScanAndSync(ctx); err != nil {
				t.Fatalf("first scan: %v", err)
			}
			if err := os.Remove(audio); err != nil {
				t.Fatalf("remove audio: %v", err)
			}
			summary, err := sc.FullScanAndSync(ctx)
			if err != nil {
				t.Fatalf("second scan: %v", err)
			}
			if summary.MissingFound != 1 {
				t.Fatalf("expected 1 missing, got %#v", summary)
			}
			rec, ok, err := store.Get(ctx, "gone")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if ok != tc.wantExists {
				t.Fatalf("expected exists=%v, got %v", tc.wantExists, ok)
			}
			if ok && rec.Music.Status != tc.wantStatus {
				t.Fatalf("expected music %q, got %q", tc.wantStatus, rec.Music.Status)
			}
		})
	}
}

func TestTrackQueries(t *testing.T) {
	sc, store, _ := newScanner(t, "")
	ctx := context.Background()
	done := trackdb.StatusCompleted
	testsupport.AddTrack(t, store, "needs_image", trackdb.Patch{})
	testsupport.AddTrack(t, store, "needs_video", trackdb.Patch{
		Image: &trackdb.ImagePatch{Status: &done, Style: trackdb.Ptr("lofi")},
		Video: &trackdb.VideoPatch{Status: trackdb.Ptr(trackdb.StatusFailed)},
	})
	testsupport.AddTrack(t, store, "done", trackdb.Patch{
		Music: &trackdb.MusicPatch{Status: &done},
		Image: &trackdb.ImagePatch{Status: &done, Style: trackdb.Ptr("lofi")},
		Video: &trackdb.VideoPatch{Status: &done},
	})

	images, err := sc.TracksNeedingImage(ctx)
	if err != nil {
		t.Fatalf("TracksNeedingImage: %v", err)
	}
	if ids := scanner.IDs(images); len(ids) != 1 || ids[0] != "needs_image" {
		t.Fatalf("unexpected image queue %v", ids)
	}
	videos, err := sc.TracksNeedingVideo(ctx)
	if err != nil {
		t.Fatalf("TracksNeedingVideo: %v", err)
	}
	if ids := scanner.IDs(videos); len(ids) != 1 || ids[0] != "needs_video" {
		t.Fatalf("unexpected video queue %v", ids)
	}
	complete, err := sc.FullyCompleted(ctx)
	if err != nil {
		t.Fatalf("FullyCompleted: %v", err)
	}
	if ids := scanner.IDs(complete); len(ids) != 1 || ids[0] != "done" {
		t.Fatalf("unexpected completed %v", ids)
	}
	lofi, err := sc.TracksByStyle(ctx, "lofi")
	if err != nil {
		t.Fatalf("TracksByStyle: %v", err)
	}
	if len(lofi) != 2 {
		t.Fatalf("expected 2 lofi tracks, got %d", len(lofi))
	}
}
