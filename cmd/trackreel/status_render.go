package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"trackreel/internal/pipeline"
	"trackreel/internal/trackdb"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 18
	statusIndent     = "  "
)

var titleCase = cases.Title(language.English)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	tag := "[" + statusKindLabel(kind) + "]"
	if message != "" {
		tag += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", tag)
	if color := statusKindColor(kind); colorize && color != "" {
		return color + line + ansiReset
	}
	return line
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := "== " + strings.TrimSpace(title) + " =="
	rule := strings.Repeat("-", len(line))
	if colorize {
		return []string{ansiBlue + line + ansiReset, ansiBlue + rule + ansiReset}
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func resultKind(status pipeline.Status) statusKind {
	switch status {
	case pipeline.StatusCompleted, pipeline.StatusDryRun:
		return statusOK
	case pipeline.StatusInterrupted, pipeline.StatusNothingToResume:
		return statusWarn
	default:
		return statusError
	}
}

func renderResult(out io.Writer, res pipeline.Result, colorize bool) {
	for _, line := range renderSectionHeader(titleCase.String(strings.ReplaceAll(res.Operation, "_", " ")), colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Status", resultKind(res.Status), string(res.Status), colorize))
	if d := res.Duration(); d > 0 {
		fmt.Fprintln(out, renderStatusLine("Elapsed", statusInfo, d.Round(time.Second).String(), colorize))
	}
	for _, w := range res.Warnings {
		fmt.Fprintln(out, renderStatusLine("Warning", statusWarn, w, colorize))
	}

	if len(res.Stages) > 0 {
		fmt.Fprintln(out)
		rows := make([][]string, 0, len(res.Stages))
		for _, s := range res.Stages {
			note := s.Note
			if len(s.Planned) > 0 {
				note = strings.Join(s.Planned, ", ")
			}
			rows = append(rows, []string{
				titleCase.String(string(s.Name)),
				humanize.Comma(int64(s.Total)),
				humanize.Comma(int64(s.Succeeded)),
				humanize.Comma(int64(s.Skipped)),
				humanize.Comma(int64(s.Failed)),
				note,
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Stage", "Total", "Succeeded", "Skipped", "Failed", "Note"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
		))
	}

	if r := res.Retry; r != nil {
		fmt.Fprintln(out, renderStatusLine("Retried", statusInfo,
			fmt.Sprintf("%d of %d tasks, %d succeeded", r.Attempted, r.Total, r.Succeeded), colorize))
	}
	if s := res.Summary; s != nil {
		fmt.Fprintln(out, renderStatusLine("Tracks", statusInfo,
			fmt.Sprintf("%s total, %s complete, %s pending, %s failed",
				humanize.Comma(int64(s.TotalTracks)), humanize.Comma(int64(s.FullyCompleted)),
				humanize.Comma(int64(s.Pending)), humanize.Comma(int64(s.Failed))), colorize))
	}
	if cp := res.Checkpoint; cp != nil {
		fmt.Fprintln(out, renderStatusLine("Checkpoint", statusWarn, checkpointSummary(*cp), colorize))
	}
	if res.ReportPath != "" {
		fmt.Fprintln(out, renderStatusLine("Report", statusInfo, res.ReportPath, colorize))
	}
	if e := res.Error; e != nil {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, e.Message, colorize))
		if e.Hint != "" {
			fmt.Fprintln(out, renderStatusLine("Next step", statusInfo, e.Hint, colorize))
		}
	}
}

func checkpointSummary(cp trackdb.Checkpoint) string {
	started := "unknown start"
	if !cp.StartedAt.IsZero() {
		started = "started " + humanize.Time(cp.StartedAt.Time)
	}
	return fmt.Sprintf("%s stage, %d done, %d remaining (%s)",
		cp.CurrentStage, len(cp.CompletedTracks), len(cp.Remaining()), started)
}

func renderStatusReport(out io.Writer, report pipeline.StatusReport, colorize bool) {
	for _, line := range renderSectionHeader("Library", colorize) {
		fmt.Fprintln(out, line)
	}
	s := report.Summary
	fmt.Fprintln(out, renderStatusLine("Tracks", statusInfo, humanize.Comma(int64(s.TotalTracks)), colorize))
	completeKind := statusOK
	if s.Pending > 0 {
		completeKind = statusInfo
	}
	fmt.Fprintln(out, renderStatusLine("Fully complete", completeKind,
		fmt.Sprintf("%s (%s pending)", humanize.Comma(int64(s.FullyCompleted)), humanize.Comma(int64(s.Pending))), colorize))
	fmt.Fprintln(out)

	stats := report.Statistics
	rows := make([][]string, 0, len(trackdb.Stages))
	for _, st := range trackdb.Stages {
		c := stats.Stage(st)
		rows = append(rows, []string{
			titleCase.String(string(st)),
			humanize.Comma(int64(c.Completed)),
			humanize.Comma(int64(c.Pending)),
			humanize.Comma(int64(c.Processing)),
			humanize.Comma(int64(c.Failed)),
			humanize.Comma(int64(c.Skipped)),
			humanize.Comma(int64(c.Missing)),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Stage", "Completed", "Pending", "Processing", "Failed", "Skipped", "Missing"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Pipeline", colorize) {
		fmt.Fprintln(out, line)
	}
	failKind := statusOK
	if report.Failures.Total > 0 {
		failKind = statusWarn
	}
	detail := "none"
	if report.Failures.Total > 0 {
		parts := make([]string, 0, len(report.Failures.ByStage))
		for _, st := range trackdb.Stages {
			if n := report.Failures.ByStage[string(st)]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s %d", st, n))
			}
		}
		detail = fmt.Sprintf("%d (%s); retry with --retry-failed", report.Failures.Total, strings.Join(parts, ", "))
	}
	fmt.Fprintln(out, renderStatusLine("Failed tasks", failKind, detail, colorize))
	if cp := report.Checkpoint; cp != nil {
		fmt.Fprintln(out, renderStatusLine("Interrupted run", statusWarn, checkpointSummary(*cp)+"; continue with --resume", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Interrupted run", statusOK, "none", colorize))
	}
}
