package pipeline

import (
	"context"
	"log/slog"

	"trackreel/internal/logging"
	"trackreel/internal/services"
	"trackreel/internal/stage"
	"trackreel/internal/trackdb"
)

// snapshot tracks which ids of a stage have completed. Failed items stay
// pending so a resumed run retries them.
type snapshot struct {
	ids       []string
	completed []string
	done      map[string]struct{}
	current   string
	seen      int
}

func newSnapshot(ids, completed []string) *snapshot {
	s := &snapshot{ids: ids, done: make(map[string]struct{}, len(ids)+len(completed))}
	for _, id := range completed {
		if _, ok := s.done[id]; ok {
			continue
		}
		s.done[id] = struct{}{}
		s.completed = append(s.completed, id)
	}
	return s
}

func (s *snapshot) observe(id string, outcome stage.Outcome) {
	s.current = id
	s.seen++
	if outcome == stage.OutcomeFailed {
		return
	}
	if _, ok := s.done[id]; ok {
		return
	}
	s.done[id] = struct{}{}
	s.completed = append(s.completed, id)
}

func (s *snapshot) pending() []string {
	out := make([]string, 0, len(s.ids))
	for _, id := range s.ids {
		if _, ok := s.done[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (s *snapshot) save(ctx context.Context, store *trackdb.CheckpointStore, name stage.Name) error {
	return store.Save(ctx, string(name), s.current, s.completed, s.pending())
}

// processStage runs one item stage over ids. Bookkeeping for an item (status,
// ledger, checkpoint) finishes before the next item starts.
func (p *Pipeline) processStage(ctx context.Context, name stage.Name, ids, completed []string, opts Options, checkpoint bool) (StageReport, error) {
	report := StageReport{Name: name, Total: len(ids)}
	ctx = services.WithStage(ctx, string(name))
	logger := logging.WithContext(ctx, p.logger)

	if len(ids) == 0 {
		logger.Info("no tracks need processing", logging.EventType("stage_empty"))
		return report, nil
	}
	h, ok := p.handlers[name]
	if !ok {
		return report, services.WithHint(
			services.Classify(services.KindConfiguration, string(name), "process", "no handler configured for stage", nil),
			"check the stage configuration and run 'trackreel doctor'")
	}
	report.Ran = true

	bookCtx := context.WithoutCancel(ctx)
	snap := newSnapshot(ids, completed)
	if checkpoint {
		if err := snap.save(bookCtx, p.checkpoints, name); err != nil {
			return report, stage.StoreError("save_checkpoint", err)
		}
	}

	logger.Info("stage started",
		logging.Int("tracks", len(ids)),
		logging.Bool("force", opts.Force),
		logging.EventType("stage_start"),
	)
	if p.sink != nil {
		p.sink.StageStarted(name, len(ids))
	}

	sampler := logging.NewProgressSampler(10)
	result, err := stage.RunBatchFunc(ctx, h, ids, opts.itemOptions(), func(ev stage.ProgressEvent) error {
		if err := p.handleEvent(bookCtx, logger, ev, snap, checkpoint); err != nil {
			return err
		}
		if sampler.ShouldLog(string(name), ev.Current, ev.Total) {
			logger.Info("stage progress",
				logging.Int("current", ev.Current),
				logging.Int("total", ev.Total),
				logging.EventType("stage_progress"),
			)
		}
		if p.sink != nil {
			p.sink.Progress(ev)
		}
		return nil
	})
	report.absorb(result)
	if p.sink != nil {
		p.sink.StageFinished(name, result)
	}
	if err != nil {
		if checkpoint && interrupted(ctx, err) {
			if err := snap.save(bookCtx, p.checkpoints, name); err != nil {
				logging.ErrorWithContext(logger, "checkpoint save failed after interrupt", "checkpoint_failed",
					logging.Error(err),
					logging.Impact("resume may reprocess tracks finished since the last snapshot"),
					logging.Hint("check the state directory permissions"),
				)
			}
		}
		return report, err
	}

	logger.Info("stage finished",
		logging.Int("succeeded", result.Succeeded),
		logging.Int("skipped", result.Skipped),
		logging.Int("failed", result.Failed),
		logging.EventType("stage_complete"),
	)
	return report, nil
}

// handleEvent applies the bookkeeping for one processed item. Only store
// errors are returned; they abort the stage.
func (p *Pipeline) handleEvent(ctx context.Context, logger *slog.Logger, ev stage.ProgressEvent, snap *snapshot, checkpoint bool) error {
	if stage.IsFatal(ev.Err) {
		return ev.Err
	}
	snap.observe(ev.ItemID, ev.Outcome)

	if ev.Outcome == stage.OutcomeFailed {
		if err := p.recordFailure(ctx, ev.Stage, ev.ItemID, ev.Err); err != nil {
			return err
		}
		logging.WarnWithContext(logger, "track failed", "item_failed",
			append(logging.Failure(ev.Err),
				logging.ItemID(ev.ItemID),
				logging.Impact("track recorded in the failure ledger"),
			)...,
		)
	} else if _, err := p.ledger.Remove(ctx, ev.ItemID, string(ev.Stage.TrackStage())); err != nil {
		return stage.StoreError("ledger_remove", err)
	}

	if checkpoint && (snap.seen%p.interval == 0 || ev.Current == ev.Total) {
		if err := snap.save(ctx, p.checkpoints, ev.Stage); err != nil {
			return stage.StoreError("save_checkpoint", err)
		}
	}
	return nil
}

// recordFailure writes the error log entry, flips the stage status to failed,
// bumps the retry counter, and upserts the ledger entry.
func (p *Pipeline) recordFailure(ctx context.Context, name stage.Name, id string, cause error) error {
	trackStage := name.TrackStage()
	message := failureMessage(cause)
	if _, err := p.store.AppendError(ctx, id, string(trackStage), message); err != nil {
		return stage.StoreError("append_error", err)
	}
	if _, err := p.store.UpdateStageStatus(ctx, id, trackStage, trackdb.StatusFailed); err != nil {
		return stage.StoreError("update_status", err)
	}
	if _, err := p.store.IncrementRetry(ctx, id); err != nil {
		return stage.StoreError("increment_retry", err)
	}
	if err := p.ledger.Record(ctx, id, string(trackStage), message); err != nil {
		return stage.StoreError("ledger_record", err)
	}
	return nil
}

func failureMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
