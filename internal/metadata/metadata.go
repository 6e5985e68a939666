// Package metadata enriches track records with audio duration and tags.
package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"trackreel/internal/fileutil"
	"trackreel/internal/logging"
	"trackreel/internal/media/ffprobe"
	"trackreel/internal/services"
	"trackreel/internal/trackdb"
)

// InspectFunc probes one audio file.
type InspectFunc func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// Result counts one UpdateAll pass.
type Result struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Enricher writes duration and tags into the music sub-record.
type Enricher struct {
	store   *trackdb.Store
	binary  string
	inspect InspectFunc
	logger  *slog.Logger
}

// NewEnricher builds an enricher that runs the ffprobe binary.
func NewEnricher(store *trackdb.Store, binary string, logger *slog.Logger) *Enricher {
	return &Enricher{
		store:   store,
		binary:  binary,
		inspect: ffprobe.Inspect,
		logger:  logging.NewComponentLogger(logger, "metadata"),
	}
}

// WithInspector replaces the probe function (tests).
func (e *Enricher) WithInspector(fn InspectFunc) *Enricher {
	if fn != nil {
		e.inspect = fn
	}
	return e
}

// UpdateTrack probes the track's audio file and stores duration, title, and
// artist. It reports false when the track or its file is missing.
func (e *Enricher) UpdateTrack(ctx context.Context, id string) (bool, error) {
	rec, ok, err := e.store.Get(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	path := rec.Music.FilePath
	if path == "" || !fileutil.Exists(path) {
		return false, nil
	}
	result, err := e.inspect(ctx, e.binary, path)
	if err != nil {
		return false, err
	}
	duration := result.DurationSeconds()
	if duration <= 0 {
		return false, services.Classify(services.KindFormat, "scan", "metadata", "no duration reported for "+path, nil)
	}
	patch := trackdb.MusicPatch{
		DurationSeconds:   trackdb.Ptr(duration),
		DurationFormatted: trackdb.Ptr(FormatMMSS(duration)),
	}
	if title := result.Tag("title"); title != "" {
		patch.Title = trackdb.Ptr(title)
	}
	if artist := result.Tag("artist"); artist != "" {
		patch.Artist = trackdb.Ptr(artist)
	}
	return e.store.Update(ctx, id, trackdb.Patch{Music: &patch})
}

// UpdateAll enriches every track that has no duration yet. Per-track probe
// failures are logged and counted; store errors abort.
func (e *Enricher) UpdateAll(ctx context.Context) (Result, error) {
	var res Result
	records, err := e.store.All(ctx)
	if err != nil {
		return res, err
	}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if rec.Music.DurationSeconds > 0 {
			res.Skipped++
			continue
		}
		ok, err := e.UpdateTrack(ctx, rec.TrackID)
		if err != nil && services.KindOf(err) == services.KindStore {
			return res, err
		}
		if err != nil || !ok {
			res.Failed++
			if err != nil {
				logging.WarnWithContext(e.logger, "metadata probe failed", "metadata_failed",
					append(logging.Failure(err),
						logging.ItemID(rec.TrackID),
						logging.Impact("duration left empty; render uses the full audio length"),
					)...,
				)
			}
			continue
		}
		res.Updated++
	}
	return res, nil
}

// FormatMMSS renders seconds as MM:SS.
func FormatMMSS(seconds float64) string {
	total := clampSeconds(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// FormatHHMMSS renders seconds as HH:MM:SS.
func FormatHHMMSS(seconds float64) string {
	total := clampSeconds(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// FFmpegTimestamp renders seconds as HH:MM:SS.mmm.
func FFmpegTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	millis := int((seconds - float64(total)) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", total/3600, (total%3600)/60, total%60, millis)
}

// ParseClock converts MM:SS or HH:MM:SS to seconds.
func ParseClock(value string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("unsupported time format %q", value)
	}
	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("unsupported time format %q", value)
		}
		total = total*60 + n
	}
	return float64(total), nil
}

func clampSeconds(seconds float64) int {
	if seconds < 0 {
		return 0
	}
	return int(seconds)
}
