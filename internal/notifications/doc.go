// Package notifications pushes pipeline milestones to ntfy.
//
// NewService returns a no-op when no topic is configured, so callers publish
// unconditionally. Only run-level events are delivered; per-item failures are
// summarised by the run completion message.
package notifications
