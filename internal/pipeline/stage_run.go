package pipeline

import (
	"context"
	"slices"
	"time"

	"trackreel/internal/logging"
	"trackreel/internal/scanner"
	"trackreel/internal/services"
	"trackreel/internal/stage"
	"trackreel/internal/trackdb"
)

// scanStage registers new audio files, reconciles stored tracks with the
// filesystem, and enriches durations.
func (p *Pipeline) scanStage(ctx context.Context, checkpoint bool) (StageReport, error) {
	report := StageReport{Name: stage.Scan, Ran: true}
	ctx = services.WithStage(ctx, string(stage.Scan))
	logger := logging.WithContext(ctx, p.logger)

	if checkpoint {
		if err := p.checkpoints.Save(ctx, string(stage.Scan), "", nil, nil); err != nil {
			return report, stage.StoreError("save_checkpoint", err)
		}
	}
	logger.Info("scan started", logging.EventType("scan_start"))

	summary, err := p.scanner.FullScanAndSync(ctx)
	report.Scan = &summary
	report.Total = summary.FilesFound
	report.Succeeded = summary.NewRegistered
	if err != nil {
		return report, scanError(ctx, "sync", err)
	}

	if p.enricher != nil {
		meta, err := p.enricher.UpdateAll(ctx)
		report.Metadata = &meta
		if err != nil {
			return report, scanError(ctx, "metadata", err)
		}
	}

	if checkpoint {
		records, err := p.store.All(ctx)
		if err != nil {
			return report, stage.StoreError("list", err)
		}
		if err := p.checkpoints.Save(ctx, string(stage.Scan), "", scanner.IDs(records), []string{}); err != nil {
			return report, stage.StoreError("save_checkpoint", err)
		}
	}
	return report, nil
}

func scanError(ctx context.Context, operation string, err error) error {
	if interrupted(ctx, err) || services.KindOf(err) != services.KindUnknown {
		return err
	}
	return services.Classify(services.KindUnknown, string(stage.Scan), operation, "scan failed", err)
}

// RunStage runs a single stage outside the full run. It neither consults nor
// writes the checkpoint, so it works while an interrupted run is pending.
func (p *Pipeline) RunStage(ctx context.Context, name stage.Name, opts Options) Result {
	inv := p.begin(ctx, "stage:"+string(name))
	p.healthCheck(inv)

	var (
		report StageReport
		err    error
	)
	switch name {
	case stage.Scan:
		report, err = p.scanStage(inv.ctx, false)
	case stage.Music:
		report = musicReport(Options{}, 0)
	case stage.Images, stage.Videos:
		var ids []string
		ids, err = p.pendingIDs(inv.ctx, name, opts.Limit)
		if err != nil {
			return p.fail(inv, stage.StoreError("query", err))
		}
		report, err = p.processStage(inv.ctx, name, ids, nil, opts, false)
	default:
		return p.fail(inv, services.Classify(services.KindValidation, "pipeline", "run_stage", "unknown stage "+string(name), nil))
	}
	inv.addStage(report)
	if err != nil {
		return p.stop(inv, name, err, false)
	}

	bookCtx := inv.bookkeeping()
	summary, stats, _, err := p.summarize(bookCtx)
	if err != nil {
		return p.fail(inv, err)
	}
	inv.result.Summary = &summary
	inv.result.Statistics = &stats
	inv.result.Success = true
	inv.result.Status = StatusCompleted
	inv.result.FinishedAt = p.now()
	inv.logger.Info("stage run complete",
		logging.Stage(string(name)),
		logging.Int("succeeded", report.Succeeded),
		logging.Int("failed", report.Failed),
		logging.EventType("stage_run_complete"),
	)
	return inv.result
}

// DryRun reports what a run would process without invoking any stage handler.
// Newly discovered files are counted as image candidates even though they are
// not registered yet.
func (p *Pipeline) DryRun(ctx context.Context, opts Options) Result {
	inv := p.begin(ctx, "dry_run")
	p.healthCheck(inv)

	if cp, active, err := p.checkpoints.Load(inv.ctx); err != nil {
		return p.fail(inv, stage.StoreError("load_checkpoint", err))
	} else if active {
		inv.result.Checkpoint = &cp
		inv.result.Warnings = append(inv.result.Warnings,
			"an interrupted run exists at stage "+cp.CurrentStage+"; a plain run would be blocked")
	}

	files, err := p.scanner.Scan()
	if err != nil {
		return p.fail(inv, scanError(inv.ctx, "scan", err))
	}
	fresh, err := p.scanner.DetectNew(inv.ctx)
	if err != nil {
		return p.fail(inv, stage.StoreError("detect_new", err))
	}
	inv.addStage(StageReport{
		Name:  stage.Scan,
		Total: len(files),
		Scan:  &scanner.Summary{FilesFound: len(files), NewRegistered: len(fresh)},
	})
	inv.addStage(musicReport(opts, len(files)))

	if !opts.SkipImages {
		needing, err := p.scanner.TracksNeedingImage(inv.ctx)
		if err != nil {
			return p.fail(inv, stage.StoreError("query", err))
		}
		ids := scanner.IDs(needing)
		for _, f := range fresh {
			ids = append(ids, f.ID)
		}
		slices.Sort(ids)
		ids = slices.Compact(ids)
		inv.addStage(plannedReport(stage.Images, ids, opts.Limit))
	}
	if !opts.SkipVideos {
		needing, err := p.scanner.TracksNeedingVideo(inv.ctx)
		if err != nil {
			return p.fail(inv, stage.StoreError("query", err))
		}
		report := plannedReport(stage.Videos, scanner.IDs(needing), opts.Limit)
		if est, ok := p.handlers[stage.Videos].(renderEstimator); ok && len(report.Planned) > 0 {
			if d, err := est.EstimateRenderTime(inv.ctx, report.Planned); err == nil && d > 0 {
				report.Note = "estimated render time " + d.Round(time.Second).String()
			}
		}
		inv.addStage(report)
	}

	inv.result.Success = true
	inv.result.Status = StatusDryRun
	inv.result.FinishedAt = p.now()
	return inv.result
}

// renderEstimator is implemented by video handlers that can predict their
// wall time from recorded audio durations.
type renderEstimator interface {
	EstimateRenderTime(ctx context.Context, ids []string) (time.Duration, error)
}

func plannedReport(name stage.Name, ids []string, limit int) StageReport {
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return StageReport{Name: name, Total: len(ids), Planned: ids}
}

// StatusReport is the read-only view behind --status.
type StatusReport struct {
	Statistics trackdb.Statistics     `json:"statistics"`
	Summary    Summary                `json:"summary"`
	Failures   trackdb.FailureSummary `json:"failures"`
	Checkpoint *trackdb.Checkpoint    `json:"checkpoint,omitempty"`
}

// Status reads statistics, failure counts, and the checkpoint.
func (p *Pipeline) Status(ctx context.Context) (StatusReport, error) {
	summary, stats, _, err := p.summarize(ctx)
	if err != nil {
		return StatusReport{}, err
	}
	failures, err := p.ledger.Summary(ctx)
	if err != nil {
		return StatusReport{}, stage.StoreError("failure_summary", err)
	}
	report := StatusReport{Statistics: stats, Summary: summary, Failures: failures}
	cp, active, err := p.checkpoints.Load(ctx)
	if err != nil {
		return StatusReport{}, stage.StoreError("load_checkpoint", err)
	}
	if active {
		report.Checkpoint = &cp
	}
	return report, nil
}
