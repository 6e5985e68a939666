package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"trackreel/internal/fileutil"
	"trackreel/internal/textutil"
	"trackreel/internal/trackdb"
)

const (
	reportFailureLimit = 10
	reportMessageWidth = 50
)

var stageTitle = cases.Title(language.English)

// RenderReport formats a finished run as plain text.
func RenderReport(result Result, failures []trackdb.FailedTask) string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "TRACKREEL PIPELINE REPORT")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Run ID:   %s\n", result.RunID)
	fmt.Fprintf(&b, "Started:  %s\n", result.StartedAt.Format(time.DateTime))
	fmt.Fprintf(&b, "Finished: %s\n", result.FinishedAt.Format(time.DateTime))
	fmt.Fprintf(&b, "Duration: %s\n", result.Duration().Round(time.Second))
	fmt.Fprintf(&b, "Status:   %s\n\n", result.Status)

	fmt.Fprintln(&b, stageTable(result.Stages))

	for _, s := range result.Stages {
		if s.Scan != nil {
			fmt.Fprintf(&b, "\nScan: %s files found, %s new, %s missing, %s synced\n",
				humanize.Comma(int64(s.Scan.FilesFound)),
				humanize.Comma(int64(s.Scan.NewRegistered)),
				humanize.Comma(int64(s.Scan.MissingFound)),
				humanize.Comma(int64(s.Scan.Synced)))
		}
		if s.Metadata != nil {
			fmt.Fprintf(&b, "Metadata: %d updated, %d already known, %d unreadable\n",
				s.Metadata.Updated, s.Metadata.Skipped, s.Metadata.Failed)
		}
	}

	if result.Summary != nil {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "FINAL SUMMARY")
		fmt.Fprintf(&b, "  Total tracks:    %s\n", humanize.Comma(int64(result.Summary.TotalTracks)))
		fmt.Fprintf(&b, "  Fully completed: %s\n", humanize.Comma(int64(result.Summary.FullyCompleted)))
		fmt.Fprintf(&b, "  Pending:         %s\n", humanize.Comma(int64(result.Summary.Pending)))
		fmt.Fprintf(&b, "  Failed tasks:    %s\n", humanize.Comma(int64(result.Summary.Failed)))
	}

	if len(failures) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "FAILED TASKS (%d)\n", len(failures))
		for i, task := range failures {
			if i == reportFailureLimit {
				fmt.Fprintf(&b, "  ... and %d more\n", len(failures)-reportFailureLimit)
				break
			}
			fmt.Fprintf(&b, "  - %s [%s]: %s\n", task.TrackID, task.Stage, textutil.Truncate(task.ErrorMessage, reportMessageWidth))
		}
	}
	fmt.Fprintln(&b, rule)
	return b.String()
}

func stageTable(stages []StageReport) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Stage", "Total", "Succeeded", "Skipped", "Failed", "Note"})
	for _, s := range stages {
		tw.AppendRow(table.Row{
			stageTitle.String(string(s.Name)),
			humanize.Comma(int64(s.Total)),
			humanize.Comma(int64(s.Succeeded)),
			humanize.Comma(int64(s.Skipped)),
			humanize.Comma(int64(s.Failed)),
			s.Note,
		})
	}
	configs := []table.ColumnConfig{{Number: 1, Align: text.AlignLeft}}
	for col := 2; col <= 5; col++ {
		configs = append(configs, table.ColumnConfig{Number: col, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// writeReport persists the run report under the log directory and returns
// its path.
func (p *Pipeline) writeReport(result Result, failures []trackdb.FailedTask) (string, error) {
	dir := strings.TrimSpace(p.cfg.Paths.LogDir)
	if dir == "" {
		return "", fmt.Errorf("log directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}
	name := fmt.Sprintf("pipeline_report_%s.txt", result.FinishedAt.Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := fileutil.WriteFileAtomic(path, []byte(RenderReport(result, failures)), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
