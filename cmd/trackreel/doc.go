// Package main hosts the trackreel CLI entrypoint and command graph.
//
// The root command runs the pipeline: scan the music directory, generate
// cover art, and render videos. Mode flags narrow a run to one stage, retry
// the failure ledger, resume an interrupted run, or report status. The
// failed, checkpoint, doctor, test-notify, and config subcommands cover
// maintenance.
//
// Orchestration lives in internal/pipeline; this package resolves
// configuration, builds loggers, wires the stores and stage handlers, and
// renders results.
package main
