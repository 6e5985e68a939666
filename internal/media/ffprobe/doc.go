// Package ffprobe runs ffprobe against audio files and exposes the fields
// trackreel records: duration and the common text tags.
//
// Inspect failures are classified as services.KindFormat so the scan stage
// can log and move on without aborting.
package ffprobe
