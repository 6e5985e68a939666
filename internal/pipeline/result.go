package pipeline

import (
	"context"
	"errors"
	"time"

	"trackreel/internal/metadata"
	"trackreel/internal/scanner"
	"trackreel/internal/services"
	"trackreel/internal/stage"
	"trackreel/internal/trackdb"
)

// Status is the terminal state of one invocation.
type Status string

const (
	StatusCompleted       Status = "completed"
	StatusInterrupted     Status = "interrupted"
	StatusBlocked         Status = "blocked"
	StatusFailed          Status = "failed"
	StatusNothingToResume Status = "nothing_to_resume"
	StatusDryRun          Status = "dry_run"
)

// StageReport summarises one stage of an invocation.
type StageReport struct {
	Name      stage.Name       `json:"name"`
	Ran       bool             `json:"ran"`
	Note      string           `json:"note,omitempty"`
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	FailedIDs []string         `json:"failed_ids,omitempty"`
	Planned   []string         `json:"planned,omitempty"`
	Scan      *scanner.Summary `json:"scan,omitempty"`
	Metadata  *metadata.Result `json:"metadata,omitempty"`
}

func (r *StageReport) absorb(batch stage.BatchResult) {
	r.Succeeded = batch.Succeeded
	r.Skipped = batch.Skipped
	r.Failed = batch.Failed
	for _, item := range batch.Results {
		if item.Outcome == stage.OutcomeFailed {
			r.FailedIDs = append(r.FailedIDs, item.TrackID)
		}
	}
}

// Summary is the end-of-run overview.
type Summary struct {
	TotalTracks    int `json:"total_tracks"`
	FullyCompleted int `json:"fully_completed"`
	Pending        int `json:"pending"`
	Failed         int `json:"failed"`
}

// RetryReport describes a RetryFailed pass.
type RetryReport struct {
	Total     int                `json:"total"`
	Attempted int                `json:"attempted"`
	Succeeded int                `json:"succeeded"`
	Results   []stage.ItemResult `json:"results"`
}

// Result is the envelope every public operation returns.
type Result struct {
	Success    bool                   `json:"success"`
	Status     Status                 `json:"status"`
	Operation  string                 `json:"operation"`
	RunID      string                 `json:"run_id"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Stages     []StageReport          `json:"stages"`
	Summary    *Summary               `json:"summary,omitempty"`
	Statistics *trackdb.Statistics    `json:"statistics,omitempty"`
	Checkpoint *trackdb.Checkpoint    `json:"checkpoint,omitempty"`
	Retry      *RetryReport           `json:"retry,omitempty"`
	Warnings   []string               `json:"warnings,omitempty"`
	ReportPath string                 `json:"report_path,omitempty"`
	Error      *services.ErrorDetails `json:"error,omitempty"`
}

// Duration returns the wall time of the invocation.
func (r Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stage returns the report for name, if the invocation produced one.
func (r Result) Stage(name stage.Name) (StageReport, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageReport{}, false
}

// Fatal reports whether the invocation ended in an orchestration failure
// that should produce a non-zero exit code. Interruptions and per-item
// failures are not fatal.
func (r Result) Fatal() bool {
	return r.Status == StatusFailed || r.Status == StatusBlocked
}

// processed totals succeeded and skipped items across stages.
func (r Result) processed() (ok int, failed int) {
	for _, s := range r.Stages {
		ok += s.Succeeded + s.Skipped
		failed += s.Failed
	}
	return ok, failed
}

func errorDetails(err error) *services.ErrorDetails {
	if err == nil {
		return nil
	}
	details := services.Details(err)
	return &details
}

// interrupted reports whether err stems from cancellation of ctx.
func interrupted(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
