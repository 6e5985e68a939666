package stage_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"trackreel/internal/services"
	"trackreel/internal/stage"
	"trackreel/internal/trackdb"
)

type scriptedHandler struct {
	outcomes map[string]stage.ItemResult
	seen     []string
	onItem   func(id string)
}

func (h *scriptedHandler) Name() stage.Name { return stage.Images }

func (h *scriptedHandler) Process(ctx context.Context, id string, _ stage.Options) stage.ItemResult {
	h.seen = append(h.seen, id)
	if h.onItem != nil {
		h.onItem(id)
	}
	if ctx.Err() != nil {
		return stage.Failed(stage.Images, id, ctx.Err())
	}
	if res, ok := h.outcomes[id]; ok {
		return res
	}
	return stage.Completed(stage.Images, id, "/out/"+id)
}

func (h *scriptedHandler) HealthCheck(context.Context) stage.Health { return stage.Healthy(stage.Images) }

func TestRunBatchTalliesAndEmitsEvents(t *testing.T) {
	h := &scriptedHandler{outcomes: map[string]stage.ItemResult{
		"b": stage.Skipped(stage.Images, "b", "/out/b"),
		"c": stage.Failed(stage.Images, "c", errors.New("boom")),
	}}
	events := make(chan stage.ProgressEvent, 3)
	result, err := stage.RunBatch(context.Background(), h, []string{"a", "b", "c"}, stage.Options{}, events)
	close(events)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if result.Total != 3 || result.Succeeded != 1 || result.Skipped != 1 || result.Failed != 1 {
		t.Fatalf("unexpected tallies %+v", result)
	}
	var got []stage.ProgressEvent
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[2].Current != 3 || got[2].Total != 3 || got[2].Outcome != stage.OutcomeFailed || got[2].Err == nil {
		t.Fatalf("unexpected final event %+v", got[2])
	}
}

func TestRunBatchStopsAtItemBoundaryOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := &scriptedHandler{onItem: func(id string) {
		if id == "a" {
			cancel()
		}
	}}
	result, err := stage.RunBatch(ctx, h, []string{"a", "b"}, stage.Options{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(h.seen) != 1 || result.Succeeded != 1 {
		t.Fatalf("in-flight item should finish and no further items start: seen=%v result=%+v", h.seen, result)
	}
}

func TestRunBatchAbortsOnStoreError(t *testing.T) {
	storeErr := stage.StoreError("update", errors.New("disk full"))
	h := &scriptedHandler{outcomes: map[string]stage.ItemResult{
		"a": stage.Failed(stage.Images, "a", storeErr),
	}}
	_, err := stage.RunBatch(context.Background(), h, []string{"a", "b"}, stage.Options{}, nil)
	if services.KindOf(err) != services.KindStore {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(h.seen) != 1 {
		t.Fatalf("expected batch to stop after store error, saw %v", h.seen)
	}
}

func TestRunBatchFuncFinishesCallbackBeforeNextItem(t *testing.T) {
	var order []string
	h := &scriptedHandler{onItem: func(id string) { order = append(order, "process:"+id) }}
	_, err := stage.RunBatchFunc(context.Background(), h, []string{"a", "b"}, stage.Options{}, func(ev stage.ProgressEvent) error {
		order = append(order, "done:"+ev.ItemID)
		return nil
	})
	if err != nil {
		t.Fatalf("RunBatchFunc: %v", err)
	}
	want := []string{"process:a", "done:a", "process:b", "done:b"}
	if !slices.Equal(order, want) {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestRunBatchFuncStopsOnCallbackError(t *testing.T) {
	h := &scriptedHandler{}
	stop := errors.New("ledger unavailable")
	result, err := stage.RunBatchFunc(context.Background(), h, []string{"a", "b"}, stage.Options{}, func(stage.ProgressEvent) error {
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if len(h.seen) != 1 || result.Succeeded != 1 {
		t.Fatalf("batch should stop after the first item: seen=%v result=%+v", h.seen, result)
	}
}

func TestParseName(t *testing.T) {
	cases := map[string]stage.Name{
		"image":  stage.Images,
		"Images": stage.Images,
		"video":  stage.Videos,
		"scan":   stage.Scan,
		"music":  stage.Music,
	}
	for input, want := range cases {
		got, err := stage.ParseName(input)
		if err != nil || got != want {
			t.Fatalf("ParseName(%q) = %q, %v", input, got, err)
		}
	}
	if _, err := stage.ParseName("thumbnails"); err == nil {
		t.Fatal("expected error for unknown stage")
	}
	if stage.Videos.TrackStage() != trackdb.StageVideo || stage.Scan.TrackStage() != "" {
		t.Fatal("unexpected track stage mapping")
	}
}
