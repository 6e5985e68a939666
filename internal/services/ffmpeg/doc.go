// Package ffmpeg wraps the ffmpeg binary for still-image video rendering.
//
// Render loops a single cover image over an audio file with libx264 and AAC,
// fitting the image into the requested frame with one of three scale modes
// (fit, fill, stretch). Thumbnail grabs one frame from a rendered video and
// HealthCheck reports whether the binary and the required codecs are present.
//
// Every invocation runs under a timeout-bound context and failures are
// returned as services.KindEncoding errors carrying the tail of ffmpeg's
// stderr.
package ffmpeg
