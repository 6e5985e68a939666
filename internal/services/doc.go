// Package services defines shared utilities consumed by the pipeline stages
// and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and track IDs for
//     logging.
//   - Structured error markers plus the Wrap and Classify helpers that turn
//     collaborator failures into a Kind, a human message, and a suggested next
//     action.
//
// Collaborator clients live in subpackages (imagegen, ffmpeg) and return
// errors built here so the orchestrator never inspects error text.
package services
