// Package render implements the video stage: it combines a track's audio and
// cover art into an MP4 and extracts a thumbnail.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"trackreel/internal/config"
	"trackreel/internal/fileutil"
	"trackreel/internal/logging"
	"trackreel/internal/media/ffprobe"
	"trackreel/internal/services"
	"trackreel/internal/services/ffmpeg"
	"trackreel/internal/stage"
	"trackreel/internal/trackdb"
)

// renderSecondsPerAudioMinute is the observed render cost of one minute of audio.
const renderSecondsPerAudioMinute = 10

// Encoder renders videos and thumbnails.
type Encoder interface {
	Render(ctx context.Context, req ffmpeg.RenderRequest) error
	Thumbnail(ctx context.Context, videoPath, outputPath, offset string) error
	HealthCheck(ctx context.Context) ffmpeg.Health
}

// InspectFunc probes audio duration when the record has none.
type InspectFunc func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// Stage renders videos for tracks.
type Stage struct {
	store    *trackdb.Store
	enc      Encoder
	inspect  InspectFunc
	video    config.Video
	videoDir string
	thumbDir string
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs the video stage.
func New(cfg *config.Config, store *trackdb.Store, enc Encoder, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stage{
		store:    store,
		enc:      enc,
		inspect:  ffprobe.Inspect,
		video:    cfg.Video,
		videoDir: cfg.Paths.VideoDir,
		thumbDir: cfg.Paths.ThumbnailDir,
		logger:   logging.NewComponentLogger(logger, "render"),
		now:      time.Now,
	}
}

// WithInspector overrides the audio probe (tests).
func (s *Stage) WithInspector(fn InspectFunc) *Stage {
	if fn != nil {
		s.inspect = fn
	}
	return s
}

// Name implements stage.Handler.
func (s *Stage) Name() stage.Name {
	return stage.Videos
}

// Process implements stage.Handler.
func (s *Stage) Process(ctx context.Context, trackID string, opts stage.Options) stage.ItemResult {
	return s.RenderForTrack(ctx, trackID, opts)
}

// HealthCheck reports ffmpeg readiness.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	if s.enc == nil {
		return stage.Unhealthy(stage.Videos, "renderer not configured")
	}
	health := s.enc.HealthCheck(ctx)
	if !health.Ready {
		detail := health.Detail
		if detail == "" {
			detail = "ffmpeg not ready"
		}
		return stage.Unhealthy(stage.Videos, detail)
	}
	return stage.Healthy(stage.Videos)
}

// VideoPath returns where the video for trackID is written.
func (s *Stage) VideoPath(trackID string) string {
	return filepath.Join(s.videoDir, trackID+".mp4")
}

// ThumbnailPath returns where the thumbnail for trackID is written.
func (s *Stage) ThumbnailPath(trackID string) string {
	return filepath.Join(s.thumbDir, trackID+"_thumb.jpg")
}

// RenderForTrack renders one track. Missing inputs fail the item; an
// existing video is kept unless opts.Force is set.
func (s *Stage) RenderForTrack(ctx context.Context, trackID string, opts stage.Options) stage.ItemResult {
	logger := logging.WithContext(ctx, s.logger).With(logging.ItemID(trackID))

	rec, ok, err := s.store.Get(ctx, trackID)
	if err != nil {
		return stage.Failed(stage.Videos, trackID, stage.StoreError("get", err))
	}
	if !ok {
		return stage.Failed(stage.Videos, trackID,
			services.Classify(services.KindNotFound, "video", "render", fmt.Sprintf("track %s not found", trackID), nil))
	}
	if !fileutil.Exists(rec.Music.FilePath) {
		return stage.Failed(stage.Videos, trackID,
			services.Classify(services.KindNotFound, "video", "render", "music file not found for "+trackID, nil))
	}
	if !fileutil.Exists(rec.Image.FilePath) {
		return stage.Failed(stage.Videos, trackID,
			services.Classify(services.KindNotFound, "video", "render", "image file not found for "+trackID, nil))
	}

	out := s.VideoPath(trackID)
	if !opts.Force && fileutil.Exists(out) {
		if rec.Video.Status != trackdb.StatusCompleted || rec.Video.FilePath != out {
			if _, err := s.store.Update(ctx, trackID, trackdb.PathPatch(trackdb.StageVideo, trackdb.StatusCompleted, out)); err != nil {
				return stage.Failed(stage.Videos, trackID, stage.StoreError("update", err))
			}
		}
		logger.Debug("video exists; skipping", logging.String("path", out))
		return stage.Skipped(stage.Videos, trackID, out)
	}

	resolution := strings.TrimSpace(opts.Resolution)
	if resolution == "" {
		resolution = s.video.Resolution
	}
	width, height, err := config.ParseResolution(resolution)
	if err != nil {
		return stage.Failed(stage.Videos, trackID, services.Classify(services.KindValidation, "video", "render", err.Error(), nil))
	}
	quality := strings.TrimSpace(opts.Quality)
	if quality == "" {
		quality = s.video.Quality
	}
	if s.enc == nil {
		return stage.Failed(stage.Videos, trackID,
			services.Classify(services.KindConfiguration, "video", "render", "renderer not configured", nil))
	}

	started := s.now()
	err = s.enc.Render(ctx, ffmpeg.RenderRequest{
		ImagePath:  rec.Image.FilePath,
		AudioPath:  rec.Music.FilePath,
		OutputPath: out,
		Width:      width,
		Height:     height,
		FitMode:    s.video.FitMode,
		Quality:    quality,
	})
	if err != nil {
		return stage.Failed(stage.Videos, trackID, err)
	}
	sizeMB := math.Round(float64(fileutil.FileSize(out))/(1024*1024)*100) / 100

	thumbStatus := trackdb.StatusPending
	thumbPath := ""
	if s.video.ThumbnailEnabled {
		candidate := s.ThumbnailPath(trackID)
		if err := s.enc.Thumbnail(ctx, out, candidate, s.video.ThumbnailTime); err != nil {
			logging.WarnWithContext(logger, "thumbnail extraction failed", "thumbnail_failed",
				logging.Error(err),
				logging.Impact("video kept without thumbnail"),
				logging.Hint("rerun with --only-videos --force to regenerate"),
			)
		} else {
			thumbStatus = trackdb.StatusCompleted
			thumbPath = candidate
		}
	}

	duration := rec.Music.DurationSeconds
	if duration <= 0 && s.inspect != nil {
		if probe, err := s.inspect(ctx, s.video.FFprobePath, rec.Music.FilePath); err == nil {
			duration = probe.DurationSeconds()
		}
	}

	generatedAt := s.now()
	status := trackdb.StatusCompleted
	patch := trackdb.Patch{
		Video: &trackdb.VideoPatch{
			Status:      &status,
			FilePath:    &out,
			Resolution:  trackdb.Ptr(fmt.Sprintf("%dx%d", width, height)),
			FileSizeMB:  &sizeMB,
			GeneratedAt: &generatedAt,
		},
		Thumbnail: &trackdb.ThumbnailPatch{Status: &thumbStatus, FilePath: &thumbPath},
	}
	if duration > 0 {
		patch.Video.DurationSeconds = &duration
	}
	if _, err := s.store.Update(ctx, trackID, patch); err != nil {
		return stage.Failed(stage.Videos, trackID, stage.StoreError("update", err))
	}
	logger.Info("video rendered",
		logging.String(logging.FieldEventType, "video_rendered"),
		logging.String("path", out),
		logging.Float64("size_mb", sizeMB),
		logging.Duration("elapsed", generatedAt.Sub(started)),
	)
	return stage.Completed(stage.Videos, trackID, out)
}

// RenderBatch runs RenderForTrack over ids, emitting one event per item.
func (s *Stage) RenderBatch(ctx context.Context, ids []string, opts stage.Options, events chan<- stage.ProgressEvent) (stage.BatchResult, error) {
	return stage.RunBatch(ctx, s, ids, opts, events)
}

// EstimateRenderTime approximates the wall time needed to render ids from
// their recorded audio durations.
func (s *Stage) EstimateRenderTime(ctx context.Context, ids []string) (time.Duration, error) {
	var audioSeconds float64
	for _, id := range ids {
		rec, ok, err := s.store.Get(ctx, id)
		if err != nil {
			return 0, err
		}
		if ok {
			audioSeconds += rec.Music.DurationSeconds
		}
	}
	seconds := audioSeconds / 60 * renderSecondsPerAudioMinute
	return time.Duration(seconds * float64(time.Second)), nil
}
