package prompt_test

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"trackreel/internal/prompt"
)

func TestBuildUsesTemplateKeywordsAndSuffix(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "style_celtic.txt"), []byte("An ancient landscape\n"), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	b := prompt.NewBuilder(dir)

	got, err := b.Build("celtic", "Celtic folk music with violin")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := "An ancient landscape, rolling green hills, ancient stone circles, misty forest, " + prompt.QualitySuffix
	if got != want {
		t.Fatalf("unexpected prompt\n got: %s\nwant: %s", got, want)
	}
}

func TestBuildFallsBackToDefaultTemplate(t *testing.T) {
	b := prompt.NewBuilder(t.TempDir())
	got, err := b.Build("missing", "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got != prompt.DefaultTemplate+", "+prompt.QualitySuffix {
		t.Fatalf("unexpected prompt %q", got)
	}
}

func TestExtractKeywordsCapsAtFive(t *testing.T) {
	got := prompt.ExtractKeywords("lofi acoustic synth beat")
	if len(got) != 5 {
		t.Fatalf("expected 5 keywords, got %v", got)
	}
	if got[0] != "cozy room" {
		t.Fatalf("expected genre keywords first, got %v", got)
	}
	if len(prompt.ExtractKeywords("untagged")) != 0 {
		t.Fatal("expected no keywords for unknown prompt")
	}
}

func TestAvailableStyles(t *testing.T) {
	dir := t.TempDir()
	b := prompt.NewBuilder(dir)
	if got := b.AvailableStyles(); !slices.Equal(got, []string{"default"}) {
		t.Fatalf("expected default only, got %v", got)
	}
	for _, name := range []string{"style_lofi.txt", "style_jazz.txt", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if got := b.AvailableStyles(); !slices.Equal(got, []string{"jazz", "lofi"}) {
		t.Fatalf("unexpected styles %v", got)
	}
}

func TestLoadStyleTemplateRejectsTraversal(t *testing.T) {
	b := prompt.NewBuilder(t.TempDir())
	got, err := b.LoadStyleTemplate("../../etc/passwd")
	if err != nil {
		t.Fatalf("LoadStyleTemplate: %v", err)
	}
	if !strings.HasPrefix(got, "A beautiful") {
		t.Fatalf("expected default template, got %q", got)
	}
}
