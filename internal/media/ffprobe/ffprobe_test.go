package ffprobe_test

import (
	"context"
	"path/filepath"
	"testing"

	"trackreel/internal/media/ffprobe"
	"trackreel/internal/services"
	"trackreel/internal/testsupport"
)

func TestResultHelpers(t *testing.T) {
	result := ffprobe.Result{
		Streams: []ffprobe.Stream{
			{CodecType: "video"},
			{CodecType: "audio", Duration: "99.5", Tags: map[string]string{"ARTIST": "Stream Artist"}},
		},
		Format: ffprobe.Format{
			Duration: "185.52",
			Size:     "4096",
			Tags:     map[string]string{"title": "Night Drive", "date": "2024-05-01"},
		},
	}
	if result.DurationSeconds() != 185.52 {
		t.Fatalf("unexpected duration %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 4096 {
		t.Fatalf("unexpected size %d", result.SizeBytes())
	}
	if got := result.Tag("TITLE"); got != "Night Drive" {
		t.Fatalf("unexpected title %q", got)
	}
	if got := result.Tag("artist"); got != "Stream Artist" {
		t.Fatalf("expected stream tag fallback, got %q", got)
	}
	if result.Year() != 2024 {
		t.Fatalf("unexpected year %d", result.Year())
	}
}

func TestDurationFallsBackToStream(t *testing.T) {
	result := ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "audio", Duration: "42.0"}},
		Format:  ffprobe.Format{Duration: "N/A", Size: "-1"},
	}
	if result.DurationSeconds() != 42 {
		t.Fatalf("unexpected duration %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
}

func TestInspectDecodesStubOutput(t *testing.T) {
	dir := t.TempDir()
	payload := `{"streams":[{"index":0,"codec_type":"audio","codec_name":"mp3"}],"format":{"duration":"120.0","tags":{"title":"Stub"}}}`
	bin := testsupport.WriteStubBinary(t, dir, "ffprobe", "cat <<'JSON'\n"+payload+"\nJSON\n")

	result, err := ffprobe.Inspect(context.Background(), bin, filepath.Join(dir, "track.mp3"))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if result.DurationSeconds() != 120 || result.Tag("title") != "Stub" {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestInspectClassifiesFailure(t *testing.T) {
	dir := t.TempDir()
	bin := testsupport.WriteStubBinary(t, dir, "ffprobe", "echo 'Invalid data found' >&2\nexit 1\n")

	_, err := ffprobe.Inspect(context.Background(), bin, filepath.Join(dir, "broken.mp3"))
	if err == nil {
		t.Fatal("expected error")
	}
	if services.KindOf(err) != services.KindFormat {
		t.Fatalf("expected format kind, got %q", services.KindOf(err))
	}
}
