// Package artwork implements the image stage: it builds a prompt for a track,
// requests cover art from the image-generation API, and records the result.
package artwork

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // decoder for API responses
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"trackreel/internal/config"
	"trackreel/internal/fileutil"
	"trackreel/internal/logging"
	"trackreel/internal/prompt"
	"trackreel/internal/services"
	"trackreel/internal/services/imagegen"
	"trackreel/internal/stage"
	"trackreel/internal/trackdb"
)

// ImageExtensions are checked, in order, when looking for existing artwork.
var ImageExtensions = []string{".png", ".jpg", ".jpeg"}

// Generator produces image bytes for a prompt.
type Generator interface {
	Generate(ctx context.Context, req imagegen.Request) ([]byte, error)
}

// Stage generates cover art for tracks.
type Stage struct {
	store   *trackdb.Store
	gen     Generator
	prompts *prompt.Builder
	dir     string
	image   config.Image
	style   string
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs the image stage.
func New(cfg *config.Config, store *trackdb.Store, gen Generator, prompts *prompt.Builder, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	if prompts == nil {
		prompts = prompt.NewBuilder(cfg.Paths.PromptDir)
	}
	return &Stage{
		store:   store,
		gen:     gen,
		prompts: prompts,
		dir:     cfg.Paths.ImageDir,
		image:   cfg.Image,
		style:   cfg.Pipeline.DefaultStyle,
		logger:  logging.NewComponentLogger(logger, "artwork"),
		now:     time.Now,
	}
}

// Name implements stage.Handler.
func (s *Stage) Name() stage.Name {
	return stage.Images
}

// Process implements stage.Handler.
func (s *Stage) Process(ctx context.Context, trackID string, opts stage.Options) stage.ItemResult {
	return s.GenerateForTrack(ctx, trackID, opts)
}

// HealthCheck reports whether image generation can be attempted.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.gen == nil {
		return stage.Unhealthy(stage.Images, "image generator not configured")
	}
	if strings.TrimSpace(s.image.APIKey) == "" {
		return stage.Unhealthy(stage.Images, "image.api_key is not set")
	}
	return stage.Healthy(stage.Images)
}

// ExistingImage returns the first artwork file present for trackID.
func ExistingImage(dir, trackID string) (string, bool) {
	for _, ext := range ImageExtensions {
		candidate := filepath.Join(dir, trackID+ext)
		if fileutil.Exists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// OutputPath returns where artwork for trackID is written.
func (s *Stage) OutputPath(trackID string) string {
	return filepath.Join(s.dir, trackID+"."+s.format())
}

func (s *Stage) format() string {
	switch format := strings.ToLower(strings.TrimSpace(s.image.Format)); format {
	case "":
		return "png"
	case "jpeg":
		return "jpg"
	default:
		return format
	}
}

// GenerateForTrack produces artwork for one track. Existing artwork is kept
// unless opts.Force is set. Failures are returned in the result; recording
// them is left to the caller.
func (s *Stage) GenerateForTrack(ctx context.Context, trackID string, opts stage.Options) stage.ItemResult {
	logger := logging.WithContext(ctx, s.logger).With(logging.ItemID(trackID))

	rec, ok, err := s.store.Get(ctx, trackID)
	if err != nil {
		return stage.Failed(stage.Images, trackID, stage.StoreError("get", err))
	}
	if !ok {
		return stage.Failed(stage.Images, trackID,
			services.Classify(services.KindNotFound, "image", "generate", fmt.Sprintf("track %s not found", trackID), nil))
	}

	if !opts.Force {
		if existing, found := ExistingImage(s.dir, trackID); found {
			if rec.Image.Status != trackdb.StatusCompleted || rec.Image.FilePath != existing {
				if _, err := s.store.Update(ctx, trackID, trackdb.PathPatch(trackdb.StageImage, trackdb.StatusCompleted, existing)); err != nil {
					return stage.Failed(stage.Images, trackID, stage.StoreError("update", err))
				}
			}
			logger.Debug("artwork exists; skipping", logging.String("path", existing))
			return stage.Skipped(stage.Images, trackID, existing)
		}
	}

	style := strings.TrimSpace(opts.Style)
	if style == "" {
		style = s.style
	}
	musicPrompt := strings.TrimSpace(rec.Music.SunoPrompt)
	if musicPrompt == "" {
		musicPrompt = "Music track " + trackID
	}
	imagePrompt, err := s.prompts.Build(style, musicPrompt)
	if err != nil {
		return stage.Failed(stage.Images, trackID,
			services.Classify(services.KindConfiguration, "image", "prompt", "load style template", err))
	}

	if s.gen == nil {
		return stage.Failed(stage.Images, trackID,
			services.Classify(services.KindConfiguration, "image", "generate", "image generator not configured", nil))
	}
	started := s.now()
	data, err := s.gen.Generate(ctx, imagegen.Request{
		Prompt:  imagePrompt,
		Size:    s.image.Size,
		Quality: s.image.Quality,
		Style:   s.image.Style,
	})
	if err != nil {
		return stage.Failed(stage.Images, trackID, err)
	}

	path := s.OutputPath(trackID)
	if err := s.save(path, data); err != nil {
		return stage.Failed(stage.Images, trackID, err)
	}

	generatedAt := s.now()
	status := trackdb.StatusCompleted
	_, err = s.store.Update(ctx, trackID, trackdb.Patch{Image: &trackdb.ImagePatch{
		Status:      &status,
		FilePath:    &path,
		PromptUsed:  &imagePrompt,
		Style:       &style,
		Resolution:  trackdb.Ptr(s.image.Size),
		Format:      trackdb.Ptr(s.format()),
		GeneratedAt: &generatedAt,
	}})
	if err != nil {
		return stage.Failed(stage.Images, trackID, stage.StoreError("update", err))
	}
	logger.Info("artwork generated",
		logging.String(logging.FieldEventType, "artwork_generated"),
		logging.String("path", path),
		logging.String("style", style),
		logging.Duration("elapsed", generatedAt.Sub(started)),
	)
	return stage.Completed(stage.Images, trackID, path)
}

// GenerateBatch runs GenerateForTrack over ids, emitting one event per item.
func (s *Stage) GenerateBatch(ctx context.Context, ids []string, opts stage.Options, events chan<- stage.ProgressEvent) (stage.BatchResult, error) {
	return stage.RunBatch(ctx, s, ids, opts, events)
}

func (s *Stage) save(path string, data []byte) error {
	if s.format() == "jpg" && !isJPEG(data) {
		converted, err := toJPEG(data)
		if err != nil {
			return services.Classify(services.KindFormat, "image", "save", "convert image to jpeg", err)
		}
		data = converted
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return services.Classify(services.KindUnknown, "image", "save", "create image directory", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return services.Classify(services.KindUnknown, "image", "save", "write image file", err)
	}
	return nil
}

func isJPEG(data []byte) bool {
	return len(data) > 2 && data[0] == 0xFF && data[1] == 0xD8
}

func toJPEG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
