package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"trackreel/internal/logging"
	"trackreel/internal/notifications"
	"trackreel/internal/preflight"
	"trackreel/internal/scanner"
	"trackreel/internal/services"
	"trackreel/internal/stage"
	"trackreel/internal/trackdb"
)

// invocation carries the state of one public call.
type invocation struct {
	ctx    context.Context
	logger *slog.Logger
	result Result
}

func (inv *invocation) addStage(report StageReport) {
	inv.result.Stages = append(inv.result.Stages, report)
}

// bookkeeping returns a context for state writes that must land even after
// the operator cancelled the run.
func (inv *invocation) bookkeeping() context.Context {
	return context.WithoutCancel(inv.ctx)
}

type resumePoint struct {
	stage     stage.Name
	ids       []string
	completed []string
}

func (p *Pipeline) begin(ctx context.Context, operation string) *invocation {
	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	return &invocation{
		ctx:    ctx,
		logger: logging.WithContext(ctx, p.logger),
		result: Result{
			Operation: operation,
			RunID:     runID,
			StartedAt: p.now(),
			Stages:    []StageReport{},
		},
	}
}

// Run executes scan, music, images, and videos in order. An active
// checkpoint blocks the run unless opts.AutoResume is set, in which case the
// interrupted run is resumed instead.
func (p *Pipeline) Run(ctx context.Context, opts Options) Result {
	inv := p.begin(ctx, "run")
	cp, active, err := p.checkpoints.Load(inv.ctx)
	if err != nil {
		return p.fail(inv, stage.StoreError("load_checkpoint", err))
	}
	if active {
		if opts.AutoResume {
			return p.resume(inv, cp, opts)
		}
		return p.blocked(inv, cp)
	}
	p.healthCheck(inv)
	return p.execute(inv, opts, nil)
}

// Resume continues the run recorded in the checkpoint.
func (p *Pipeline) Resume(ctx context.Context, opts Options) Result {
	inv := p.begin(ctx, "resume")
	cp, active, err := p.checkpoints.Load(inv.ctx)
	if err != nil {
		return p.fail(inv, stage.StoreError("load_checkpoint", err))
	}
	if !active {
		inv.result.Status = StatusNothingToResume
		inv.result.FinishedAt = p.now()
		inv.result.Error = errorDetails(services.WithHint(
			services.Classify(services.KindNotFound, "pipeline", "resume", "no interrupted run to resume", nil),
			"start a new run without --resume"))
		inv.logger.Info("nothing to resume", logging.EventType("resume_empty"))
		return inv.result
	}
	return p.resume(inv, cp, opts)
}

func (p *Pipeline) resume(inv *invocation, cp trackdb.Checkpoint, opts Options) Result {
	inv.result.Operation = "resume"
	p.healthCheck(inv)

	name, err := stage.ParseName(cp.CurrentStage)
	if err != nil || (name != stage.Images && name != stage.Videos) {
		inv.logger.Info("checkpoint predates item processing; restarting full run",
			logging.String("checkpoint_stage", cp.CurrentStage),
			logging.EventType("resume_restart"),
		)
		if err := p.checkpoints.Clear(inv.ctx); err != nil {
			return p.fail(inv, stage.StoreError("clear_checkpoint", err))
		}
		return p.execute(inv, opts, nil)
	}

	remaining := cp.Remaining()
	inv.logger.Info("resuming interrupted run",
		logging.Stage(string(name)),
		logging.String("started_at", cp.StartedAt.String()),
		logging.Int("completed", len(cp.CompletedTracks)),
		logging.Int("remaining", len(remaining)),
		logging.EventType("resume_start"),
	)
	return p.execute(inv, opts, &resumePoint{stage: name, ids: remaining, completed: cp.CompletedTracks})
}

func (p *Pipeline) execute(inv *invocation, opts Options, from *resumePoint) Result {
	ctx := inv.ctx
	filesFound := 0
	if from == nil {
		if !opts.SkipScan {
			report, err := p.scanStage(ctx, true)
			inv.addStage(report)
			if err != nil {
				return p.stop(inv, stage.Scan, err, true)
			}
			filesFound = report.Total
		}
		inv.addStage(musicReport(opts, filesFound))
	}

	for _, name := range []stage.Name{stage.Images, stage.Videos} {
		var ids, done []string
		switch {
		case from != nil && from.stage == name:
			ids, done = from.ids, from.completed
		case from != nil && from.stage == stage.Videos:
			continue
		case name == stage.Images && opts.SkipImages, name == stage.Videos && opts.SkipVideos:
			continue
		default:
			var err error
			ids, err = p.pendingIDs(ctx, name, opts.Limit)
			if err != nil {
				return p.stop(inv, name, stage.StoreError("query", err), true)
			}
		}
		report, err := p.processStage(ctx, name, ids, done, opts, true)
		inv.addStage(report)
		if err != nil {
			return p.stop(inv, name, err, true)
		}
	}
	return p.complete(inv)
}

func (p *Pipeline) pendingIDs(ctx context.Context, name stage.Name, limit int) ([]string, error) {
	var (
		recs []trackdb.Record
		err  error
	)
	switch name {
	case stage.Images:
		recs, err = p.scanner.TracksNeedingImage(ctx)
	case stage.Videos:
		recs, err = p.scanner.TracksNeedingVideo(ctx)
	default:
		return nil, fmt.Errorf("stage %s has no item query", name)
	}
	if err != nil {
		return nil, err
	}
	ids := scanner.IDs(recs)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func musicReport(opts Options, filesFound int) StageReport {
	report := StageReport{Name: stage.Music, Note: "music generation is not integrated"}
	if opts.SkipMusic {
		report.Skipped = filesFound
	}
	return report
}

// stop ends an invocation after a stage error: cancellation becomes an
// interrupted result, anything else a failed one.
func (p *Pipeline) stop(inv *invocation, name stage.Name, err error, checkpointed bool) Result {
	if interrupted(inv.ctx, err) {
		return p.interrupt(inv, name, checkpointed)
	}
	return p.fail(inv, err)
}

func (p *Pipeline) complete(inv *invocation) Result {
	ctx := inv.bookkeeping()
	if err := p.checkpoints.Clear(ctx); err != nil {
		return p.fail(inv, stage.StoreError("clear_checkpoint", err))
	}
	summary, stats, failures, err := p.summarize(ctx)
	if err != nil {
		return p.fail(inv, err)
	}
	inv.result.Summary = &summary
	inv.result.Statistics = &stats
	inv.result.Success = true
	inv.result.Status = StatusCompleted
	inv.result.FinishedAt = p.now()

	path, err := p.writeReport(inv.result, failures)
	if err != nil {
		logging.WarnWithContext(inv.logger, "report write failed", "report_failed",
			logging.Error(err),
			logging.Impact("run results only available in logs"),
			logging.Hint("check paths.log_dir permissions"),
		)
	} else {
		inv.result.ReportPath = path
	}

	ok, failed := inv.result.processed()
	inv.logger.Info("pipeline complete",
		logging.Int("processed", ok),
		logging.Int("failed", failed),
		logging.Int("fully_completed", summary.FullyCompleted),
		logging.Duration("elapsed", inv.result.Duration()),
		logging.EventType("pipeline_complete"),
	)
	p.notify(inv, notifications.EventRunCompleted, notifications.Payload{
		"processed": ok,
		"failed":    failed,
		"duration":  inv.result.Duration(),
	})
	return inv.result
}

func (p *Pipeline) blocked(inv *invocation, cp trackdb.Checkpoint) Result {
	err := services.WithCode(services.WithHint(
		services.Classify(services.KindValidation, "pipeline", "guard",
			fmt.Sprintf("an interrupted run exists at stage %s", cp.CurrentStage), nil),
		"rerun with --resume, or discard it with 'trackreel checkpoint clear'"), "checkpoint_active")
	inv.result.Status = StatusBlocked
	inv.result.Checkpoint = &cp
	inv.result.Error = errorDetails(err)
	inv.result.FinishedAt = p.now()
	logging.WarnWithContext(inv.logger, "interrupted run found; refusing to start a new one", "pipeline_blocked",
		logging.String("checkpoint_stage", cp.CurrentStage),
		logging.Int("remaining", len(cp.Remaining())),
		logging.Impact("no tracks processed"),
		logging.Hint(inv.result.Error.Hint),
	)
	return inv.result
}

func (p *Pipeline) interrupt(inv *invocation, name stage.Name, checkpointed bool) Result {
	inv.result.Status = StatusInterrupted
	inv.result.FinishedAt = p.now()
	remaining := 0
	if checkpointed {
		if cp, ok, err := p.checkpoints.Load(inv.bookkeeping()); err == nil && ok {
			inv.result.Checkpoint = &cp
			remaining = len(cp.Remaining())
		}
	}
	logging.WarnWithContext(inv.logger, "pipeline interrupted", "pipeline_interrupted",
		logging.Stage(string(name)),
		logging.Int("remaining", remaining),
		logging.Impact("remaining tracks left pending"),
		logging.Hint("run with --resume to continue"),
	)
	if checkpointed {
		p.notify(inv, notifications.EventRunInterrupted, notifications.Payload{
			"stage":     string(name),
			"remaining": remaining,
		})
	}
	return inv.result
}

func (p *Pipeline) fail(inv *invocation, err error) Result {
	inv.result.Success = false
	inv.result.Status = StatusFailed
	inv.result.Error = errorDetails(err)
	inv.result.FinishedAt = p.now()
	logging.ErrorWithContext(inv.logger, "pipeline failed", "pipeline_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorKind, string(inv.result.Error.Kind)),
		logging.Hint(inv.result.Error.Hint),
		logging.Impact("checkpoint retained for --resume"),
	)
	p.notify(inv, notifications.EventError, notifications.Payload{
		"context": inv.result.Operation,
		"error":   inv.result.Error.Message,
	})
	return inv.result
}

func (p *Pipeline) notify(inv *invocation, event notifications.Event, payload notifications.Payload) {
	if err := p.notifier.Publish(inv.bookkeeping(), event, payload); err != nil {
		logging.WarnWithContext(inv.logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.Impact("push notification not delivered"),
			logging.Hint("check notifications.ntfy_topic"),
		)
	}
}

// healthCheck logs failed preflight checks as warnings. A missing dependency
// never blocks the run; affected tracks fail individually.
func (p *Pipeline) healthCheck(inv *invocation) {
	for _, r := range preflight.Failed(p.preflight(p.cfg)) {
		inv.result.Warnings = append(inv.result.Warnings, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		logging.WarnWithContext(inv.logger, "preflight check failed", "preflight_warning",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.Impact("affected tracks will fail individually"),
			logging.Hint("run 'trackreel doctor' for details"),
		)
	}
}

func (p *Pipeline) summarize(ctx context.Context) (Summary, trackdb.Statistics, []trackdb.FailedTask, error) {
	stats, err := p.store.Statistics(ctx)
	if err != nil {
		return Summary{}, stats, nil, stage.StoreError("statistics", err)
	}
	failures, err := p.ledger.List(ctx)
	if err != nil {
		return Summary{}, stats, nil, stage.StoreError("list_failures", err)
	}
	return Summary{
		TotalTracks:    stats.TotalTracks,
		FullyCompleted: stats.FullyCompleted,
		Pending:        stats.TotalTracks - stats.FullyCompleted,
		Failed:         len(failures),
	}, stats, failures, nil
}
