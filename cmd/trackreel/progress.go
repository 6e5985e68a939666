package main

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"trackreel/internal/stage"
)

// progressSink draws one progress bar per item stage.
type progressSink struct {
	out   io.Writer
	bar   *progressbar.ProgressBar
	title cases.Caser
}

func newProgressSink(out io.Writer) *progressSink {
	return &progressSink{out: out, title: cases.Title(language.English)}
}

func (s *progressSink) StageStarted(name stage.Name, total int) {
	s.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(s.out),
		progressbar.OptionSetDescription(s.title.String(string(name))),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(s.out) }),
	)
}

func (s *progressSink) Progress(ev stage.ProgressEvent) {
	if s.bar == nil {
		return
	}
	if ev.Outcome == stage.OutcomeFailed {
		s.bar.Describe(fmt.Sprintf("%s (%s failed)", s.title.String(string(ev.Stage)), ev.ItemID))
	}
	_ = s.bar.Set(ev.Current)
}

func (s *progressSink) StageFinished(name stage.Name, result stage.BatchResult) {
	if s.bar == nil {
		return
	}
	_ = s.bar.Finish()
	s.bar = nil
	fmt.Fprintf(s.out, "%s: %d succeeded, %d skipped, %d failed\n",
		s.title.String(string(name)), result.Succeeded, result.Skipped, result.Failed)
}
