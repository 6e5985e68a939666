package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"trackreel/internal/config"
	"trackreel/internal/pipeline"
	"trackreel/internal/testsupport"
	"trackreel/internal/trackdb"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	t.Setenv("HOME", testsupport.BaseDir(cfg))
	t.Setenv("OPENAI_API_KEY", "")

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestFlagValidation(t *testing.T) {
	env := setupCLITestEnv(t)

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"negative limit", []string{"--limit", "-1"}, "--limit"},
		{"unknown quality", []string{"--quality", "ultra"}, "--quality"},
		{"stage without retry", []string{"--stage", "images"}, "--retry-failed"},
		{"scan stage", []string{"--retry-failed", "--stage", "scan"}, "images or videos"},
		{"exclusive modes", []string{"--only-images", "--only-videos"}, "only-images"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.run(t, tc.args...)
			if err == nil {
				t.Fatalf("expected error for %v", tc.args)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	stores := testsupport.MustOpenStores(t, env.cfg)
	testsupport.AddTrack(t, stores.Tracks, "track_001", trackdb.Patch{})
	if err := stores.Failures.Record(context.Background(), "track_001", "image", "boom"); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	out, err := env.run(t, "--status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var report pipeline.StatusReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if report.Summary.TotalTracks != 1 {
		t.Fatalf("expected 1 track, got %d", report.Summary.TotalTracks)
	}
	if report.Failures.Total != 1 || report.Failures.ByStage["image"] != 1 {
		t.Fatalf("unexpected failure summary %+v", report.Failures)
	}
	if report.Checkpoint != nil {
		t.Fatalf("expected no checkpoint, got %+v", report.Checkpoint)
	}
}

func TestDryRunListsNewTracks(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteTrack(t, env.cfg.Paths.MusicDir, "song.mp3")

	out, err := env.run(t, "--dry-run", "--json")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	var res pipeline.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode result: %v\n%s", err, out)
	}
	if res.Status != pipeline.StatusDryRun {
		t.Fatalf("expected dry_run status, got %q", res.Status)
	}
	found := false
	for _, s := range res.Stages {
		if s.Name == "images" {
			found = len(s.Planned) == 1 && s.Planned[0] == "song"
		}
	}
	if !found {
		t.Fatalf("expected song planned for images, got %+v", res.Stages)
	}

	stores := testsupport.MustOpenStores(t, env.cfg)
	all, err := stores.Tracks.All(context.Background())
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("dry run registered %d tracks", len(all))
	}
}

func TestFailedListAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	stores := testsupport.MustOpenStores(t, env.cfg)
	ctx := context.Background()
	for _, f := range []struct{ id, stage string }{
		{"track_001", "image"},
		{"track_002", "video"},
	} {
		if err := stores.Failures.Record(ctx, f.id, f.stage, "render failed"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	out, err := env.run(t, "failed", "list", "--stage", "videos")
	if err != nil {
		t.Fatalf("failed list: %v", err)
	}
	if !strings.Contains(out, "track_002") || strings.Contains(out, "track_001") {
		t.Fatalf("unexpected list output:\n%s", out)
	}

	out, err = env.run(t, "failed", "clear", "--stage", "image")
	if err != nil {
		t.Fatalf("failed clear: %v", err)
	}
	if !strings.Contains(out, "Cleared 1 failed task(s)") {
		t.Fatalf("unexpected clear output: %q", out)
	}
	remaining, err := stores.Failures.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 1 || remaining[0].TrackID != "track_002" {
		t.Fatalf("unexpected remaining tasks %+v", remaining)
	}

	out, err = env.run(t, "failed", "clear")
	if err != nil {
		t.Fatalf("failed clear all: %v", err)
	}
	if !strings.Contains(out, "Cleared 1 failed task(s)") {
		t.Fatalf("unexpected clear output: %q", out)
	}
}

func TestCheckpointShowAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	stores := testsupport.MustOpenStores(t, env.cfg)
	ctx := context.Background()

	out, err := env.run(t, "checkpoint", "show")
	if err != nil {
		t.Fatalf("checkpoint show: %v", err)
	}
	if !strings.Contains(out, "No interrupted run") {
		t.Fatalf("unexpected output: %q", out)
	}

	if err := stores.Checkpoints.Save(ctx, "video", "track_002",
		[]string{"track_001"}, []string{"track_001", "track_002", "track_003"}); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	out, err = env.run(t, "checkpoint", "show", "--json")
	if err != nil {
		t.Fatalf("checkpoint show json: %v", err)
	}
	var cp trackdb.Checkpoint
	if err := json.Unmarshal([]byte(out), &cp); err != nil {
		t.Fatalf("decode checkpoint: %v\n%s", err, out)
	}
	if cp.CurrentStage != "video" || len(cp.Remaining()) != 2 {
		t.Fatalf("unexpected checkpoint %+v", cp)
	}

	out, err = env.run(t, "--resume", "--dry-run")
	if err == nil {
		t.Fatalf("expected --resume and --dry-run to conflict, got %q", out)
	}

	if _, err := env.run(t, "checkpoint", "clear"); err != nil {
		t.Fatalf("checkpoint clear: %v", err)
	}
	if ok, err := stores.Checkpoints.Has(ctx); err != nil || ok {
		t.Fatalf("expected checkpoint cleared, ok=%v err=%v", ok, err)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	target := filepath.Join(dir, "nested", "config.toml")

	run := func(args ...string) (string, error) {
		cmd := newRootCommand()
		var stdout bytes.Buffer
		cmd.SetOut(&stdout)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		err := cmd.Execute()
		return stdout.String(), err
	}

	out, err := run("config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("expected path in output, got %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file: %v", err)
	}

	if _, err := run("config", "init", "--path", target); err == nil || !strings.Contains(err.Error(), "--overwrite") {
		t.Fatalf("expected overwrite hint, got %v", err)
	}
	if _, err := run("config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigShowRedactsAPIKey(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "<redacted>") {
		t.Fatalf("expected redacted key in output:\n%s", out)
	}
	if strings.Contains(out, "'test'") || strings.Contains(out, `"test"`) {
		t.Fatalf("api key leaked:\n%s", out)
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("TRACKREEL_NTFY_TOPIC", "")

	out, err := env.run(t, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	if !strings.Contains(out, "Notifications disabled") {
		t.Fatalf("unexpected output %q", out)
	}
}
