package pipeline

import (
	"context"
	"fmt"

	"trackreel/internal/logging"
	"trackreel/internal/notifications"
	"trackreel/internal/services"
	"trackreel/internal/stage"
	"trackreel/internal/trackdb"
)

// RetryFailed reprocesses ledger entries with force enabled. When only is
// non-empty, entries of other stages are left alone. Successful entries are
// removed from the ledger; failures are recorded again. The checkpoint is not
// consulted.
func (p *Pipeline) RetryFailed(ctx context.Context, only string, opts Options) Result {
	inv := p.begin(ctx, "retry_failed")
	bookCtx := inv.bookkeeping()

	var (
		tasks []trackdb.FailedTask
		err   error
	)
	if only == "" {
		tasks, err = p.ledger.List(inv.ctx)
	} else {
		name, perr := stage.ParseName(only)
		if perr != nil {
			return p.fail(inv, services.Classify(services.KindValidation, "pipeline", "retry_failed", perr.Error(), nil))
		}
		tasks, err = p.ledger.ListStage(inv.ctx, string(name.TrackStage()))
	}
	if err != nil {
		return p.fail(inv, stage.StoreError("list_failures", err))
	}

	retry := &RetryReport{Total: len(tasks), Results: []stage.ItemResult{}}
	inv.result.Retry = retry
	if len(tasks) == 0 {
		inv.logger.Info("no failed tasks to retry", logging.EventType("retry_empty"))
	}

	itemOpts := opts.itemOptions()
	itemOpts.Force = true
	for _, task := range tasks {
		if inv.ctx.Err() != nil {
			return p.interrupt(inv, stage.Name("retry"), false)
		}
		logger := inv.logger.With(logging.Args(logging.ItemID(task.TrackID), logging.Stage(task.Stage))...)

		name, err := stage.ParseName(task.Stage)
		h, ok := p.handlers[name]
		if err != nil || !ok {
			inv.result.Warnings = append(inv.result.Warnings,
				fmt.Sprintf("%s/%s: no handler can retry this stage", task.TrackID, task.Stage))
			logging.WarnWithContext(logger, "failed task has no retry handler", "retry_unsupported",
				logging.Impact("ledger entry left in place"),
				logging.Hint("clear it with 'trackreel failed clear'"),
			)
			continue
		}

		retry.Attempted++
		itemCtx := services.WithItemID(services.WithStage(bookCtx, string(name)), task.TrackID)
		item := h.Process(itemCtx, task.TrackID, itemOpts)
		if item.TrackID == "" {
			item.TrackID = task.TrackID
		}
		if item.Stage == "" {
			item.Stage = name
		}
		retry.Results = append(retry.Results, item)

		if item.Succeeded() {
			retry.Succeeded++
			if _, err := p.ledger.Remove(bookCtx, task.TrackID, task.Stage); err != nil {
				return p.fail(inv, stage.StoreError("ledger_remove", err))
			}
			logger.Info("retry succeeded", logging.EventType("retry_succeeded"))
			continue
		}
		if stage.IsFatal(item.Err) {
			return p.fail(inv, item.Err)
		}
		if err := p.recordFailure(bookCtx, name, task.TrackID, item.Err); err != nil {
			return p.fail(inv, err)
		}
		logging.WarnWithContext(logger, "retry failed", "retry_failed",
			logging.Error(item.Err),
			logging.Int("previous_retries", task.RetryCount),
			logging.Impact("ledger entry kept for another retry"),
			logging.Hint(services.Details(item.Err).Hint),
		)
	}

	summary, stats, _, err := p.summarize(bookCtx)
	if err != nil {
		return p.fail(inv, err)
	}
	inv.result.Summary = &summary
	inv.result.Statistics = &stats
	inv.result.Success = true
	inv.result.Status = StatusCompleted
	inv.result.FinishedAt = p.now()
	inv.logger.Info("retry complete",
		logging.Int("total", retry.Total),
		logging.Int("attempted", retry.Attempted),
		logging.Int("succeeded", retry.Succeeded),
		logging.EventType("retry_complete"),
	)
	if retry.Attempted > 0 {
		p.notify(inv, notifications.EventRetryCompleted, notifications.Payload{
			"retried":   retry.Attempted,
			"succeeded": retry.Succeeded,
		})
	}
	return inv.result
}
