package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"trackreel/internal/pipeline"
	"trackreel/internal/stage"
)

func runPipeline(cmd *cobra.Command, ctx *commandContext, flags runFlags) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	showProgress := !flags.noProgress && !flags.jsonOutput && !flags.status && !flags.dryRun && isTerminal(stderr)
	logger, err := ctx.newLogger(showProgress)
	if err != nil {
		return err
	}
	pruneLogs(cfg, logger)

	var sink pipeline.ProgressSink
	if showProgress {
		sink = newProgressSink(stderr)
	}
	p, _, err := buildPipeline(cfg, logger, sink)
	if err != nil {
		return err
	}

	runCtx := cmd.Context()
	if flags.status {
		report, err := p.Status(runCtx)
		if err != nil {
			return err
		}
		if flags.jsonOutput {
			return writeJSON(cmd, report)
		}
		renderStatusReport(cmd.OutOrStdout(), report, shouldColorize(cmd.OutOrStdout()))
		return nil
	}

	if showProgress {
		release := watchInterrupt(runCtx, stderr)
		defer release()
	}

	opts := flags.options()
	var res pipeline.Result
	switch {
	case flags.retryFailed:
		res = p.RetryFailed(runCtx, flags.stage, opts)
	case flags.resume:
		res = p.Resume(runCtx, opts)
	case flags.dryRun:
		res = p.DryRun(runCtx, opts)
	case flags.onlyScan:
		res = p.RunStage(runCtx, stage.Scan, opts)
	case flags.onlyImages:
		res = p.RunStage(runCtx, stage.Images, opts)
	case flags.onlyVideos:
		res = p.RunStage(runCtx, stage.Videos, opts)
	default:
		res = p.Run(runCtx, opts)
	}

	if err := printResult(cmd, res, flags.jsonOutput); err != nil {
		return err
	}
	if res.Fatal() {
		return errSilentExit
	}
	return nil
}

// watchInterrupt prints the graceful-stop notice when ctx is cancelled while
// the run is still in progress. The returned func ends the watch and waits
// for the watcher to exit.
func watchInterrupt(ctx context.Context, w io.Writer) func() {
	finished := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			fmt.Fprintln(w, "\nInterrupt received; finishing the current track. Press Ctrl+C again to abort.")
		case <-finished:
		}
	}()
	return func() {
		close(finished)
		<-exited
	}
}

func printResult(cmd *cobra.Command, res pipeline.Result, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(cmd, res)
	}
	renderResult(cmd.OutOrStdout(), res, shouldColorize(cmd.OutOrStdout()))
	return nil
}

func isTerminal(w io.Writer) bool {
	return shouldColorize(w)
}
