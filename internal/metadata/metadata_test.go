package metadata_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"trackreel/internal/media/ffprobe"
	"trackreel/internal/metadata"
	"trackreel/internal/services"
	"trackreel/internal/testsupport"
	"trackreel/internal/trackdb"
)

func TestUpdateAllSkipsKnownDurations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stores := testsupport.MustOpenStores(t, cfg)
	ctx := context.Background()

	fresh := filepath.Join(cfg.Paths.MusicDir, "fresh.mp3")
	known := filepath.Join(cfg.Paths.MusicDir, "known.mp3")
	broken := filepath.Join(cfg.Paths.MusicDir, "broken.mp3")
	for _, p := range []string{fresh, known, broken} {
		testsupport.WriteFile(t, p, 10)
	}
	done := trackdb.StatusCompleted
	testsupport.AddTrack(t, stores.Tracks, "fresh", trackdb.PathPatch(trackdb.StageMusic, done, fresh))
	testsupport.AddTrack(t, stores.Tracks, "broken", trackdb.PathPatch(trackdb.StageMusic, done, broken))
	testsupport.AddTrack(t, stores.Tracks, "known", trackdb.Patch{Music: &trackdb.MusicPatch{
		Status: &done, FilePath: &known, DurationSeconds: trackdb.Ptr(10.0),
	}})

	probe := func(_ context.Context, _ string, path string) (ffprobe.Result, error) {
		if path == broken {
			return ffprobe.Result{}, services.Classify(services.KindFormat, "scan", "ffprobe", "bad file", errors.New("exit 1"))
		}
		return ffprobe.Result{Format: ffprobe.Format{
			Duration: "185.5",
			Tags:     map[string]string{"title": "Fresh Title", "artist": "Someone"},
		}}, nil
	}
	enricher := metadata.NewEnricher(stores.Tracks, "ffprobe", nil).WithInspector(probe)

	res, err := enricher.UpdateAll(ctx)
	if err != nil {
		t.Fatalf("UpdateAll: %v", err)
	}
	if res.Updated != 1 || res.Skipped != 1 || res.Failed != 1 {
		t.Fatalf("unexpected result %#v", res)
	}
	rec, _, err := stores.Tracks.Get(ctx, "fresh")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Music.DurationSeconds != 185.5 || rec.Music.DurationFormatted != "03:05" {
		t.Fatalf("unexpected duration fields %#v", rec.Music)
	}
	if rec.Music.Title != "Fresh Title" || rec.Music.Artist != "Someone" {
		t.Fatalf("unexpected tags %#v", rec.Music)
	}
}

func TestTimeFormatting(t *testing.T) {
	if got := metadata.FormatMMSS(185.5); got != "03:05" {
		t.Fatalf("FormatMMSS = %q", got)
	}
	if got := metadata.FormatHHMMSS(3725.5); got != "01:02:05" {
		t.Fatalf("FormatHHMMSS = %q", got)
	}
	if got := metadata.FFmpegTimestamp(185.5); got != "00:03:05.500" {
		t.Fatalf("FFmpegTimestamp = %q", got)
	}
	for input, want := range map[string]float64{"03:05": 185, "01:02:05": 3725} {
		got, err := metadata.ParseClock(input)
		if err != nil || got != want {
			t.Fatalf("ParseClock(%q) = %v, %v", input, got, err)
		}
	}
	if _, err := metadata.ParseClock("5"); err == nil {
		t.Fatal("expected error for bare seconds")
	}
}
