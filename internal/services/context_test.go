package services_test

import (
	"context"
	"testing"

	"trackreel/internal/services"
)

func TestContextTagsRoundTrip(t *testing.T) {
	ctx := services.WithRunID(context.Background(), "run-1")
	ctx = services.WithStage(ctx, "images")
	ctx = services.WithItemID(ctx, "track_001")

	checks := []struct {
		name string
		get  func(context.Context) (string, bool)
		want string
	}{
		{"run", services.RunIDFromContext, "run-1"},
		{"stage", services.StageFromContext, "images"},
		{"item", services.ItemIDFromContext, "track_001"},
	}
	for _, c := range checks {
		if got, ok := c.get(ctx); !ok || got != c.want {
			t.Fatalf("%s: got %q ok=%v, want %q", c.name, got, ok, c.want)
		}
	}
}

func TestEmptyTagsAreIgnored(t *testing.T) {
	parent := services.WithStage(context.Background(), "videos")
	ctx := services.WithStage(parent, "")
	if ctx != parent {
		t.Fatal("expected empty stage to return the parent context")
	}
	if _, ok := services.ItemIDFromContext(ctx); ok {
		t.Fatal("expected no item id")
	}
}
