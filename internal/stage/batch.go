package stage

import (
	"context"
)

// ProgressEvent is emitted once per processed item.
type ProgressEvent struct {
	Stage   Name
	Current int
	Total   int
	ItemID  string
	Outcome Outcome
	Err     error
}

// BatchResult tallies a batch run.
type BatchResult struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Results   []ItemResult `json:"results"`
}

// Add records one item result.
func (b *BatchResult) Add(result ItemResult) {
	switch result.Outcome {
	case OutcomeCompleted:
		b.Succeeded++
	case OutcomeSkipped:
		b.Skipped++
	default:
		b.Failed++
	}
	b.Results = append(b.Results, result)
}

// RunBatch processes ids sequentially with h. Cancellation of ctx is checked
// before each item; an item already started runs to completion. Each item
// produces one event on events (which may be nil). RunBatch does not close
// events.
//
// The returned error is ctx.Err() when the batch stopped early, or the first
// fatal store error reported by an item.
func RunBatch(ctx context.Context, h Handler, ids []string, opts Options, events chan<- ProgressEvent) (BatchResult, error) {
	var emit func(ProgressEvent) error
	if events != nil {
		emit = func(ev ProgressEvent) error {
			events <- ev
			return nil
		}
	}
	return RunBatchFunc(ctx, h, ids, opts, emit)
}

// RunBatchFunc is RunBatch with a synchronous per-item callback. The next item
// starts only after onItem returns; a non-nil error from onItem stops the
// batch and is returned as is.
func RunBatchFunc(ctx context.Context, h Handler, ids []string, opts Options, onItem func(ProgressEvent) error) (BatchResult, error) {
	result := BatchResult{Total: len(ids), Results: make([]ItemResult, 0, len(ids))}
	itemCtx := context.WithoutCancel(ctx)
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		item := h.Process(itemCtx, id, opts)
		if item.TrackID == "" {
			item.TrackID = id
		}
		if item.Stage == "" {
			item.Stage = h.Name()
		}
		result.Add(item)
		if onItem != nil {
			err := onItem(ProgressEvent{
				Stage:   h.Name(),
				Current: i + 1,
				Total:   len(ids),
				ItemID:  id,
				Outcome: item.Outcome,
				Err:     item.Err,
			})
			if err != nil {
				return result, err
			}
		}
		if IsFatal(item.Err) {
			return result, item.Err
		}
	}
	return result, nil
}
