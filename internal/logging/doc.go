// Package logging assembles structured slog loggers and formatting helpers used
// across trackreel.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code automatically tags
// log lines with run IDs, stages, and track IDs. The package also provides a
// no-op logger for tests, a progress sampler for batch loops, and retention
// pruning for old log and report files.
package logging
