package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"trackreel/internal/services"
)

const (
	// DefaultTimeout bounds one render.
	DefaultTimeout = 10 * time.Minute
	// DefaultThumbnailTime is the seek offset used for thumbnails.
	DefaultThumbnailTime = "00:00:05"
	// ThumbnailWidth and ThumbnailHeight size extracted thumbnails.
	ThumbnailWidth  = 1280
	ThumbnailHeight = 720

	probeTimeout  = 5 * time.Second
	stderrTailLen = 600
	stageName     = "video"
)

var commandContext = exec.CommandContext

// Quality pairs an x264 CRF value with its speed preset.
type Quality struct {
	CRF    int
	Preset string
}

// QualityPresets lists the supported render qualities.
var QualityPresets = map[string]Quality{
	"fast":   {CRF: 28, Preset: "ultrafast"},
	"normal": {CRF: 23, Preset: "medium"},
	"high":   {CRF: 18, Preset: "slow"},
}

// QualityFor returns the named preset, falling back to normal.
func QualityFor(name string) Quality {
	if q, ok := QualityPresets[strings.ToLower(strings.TrimSpace(name))]; ok {
		return q
	}
	return QualityPresets["normal"]
}

// Scale modes for fitting the image into the output frame.
const (
	FitModeFit     = "fit"
	FitModeFill    = "fill"
	FitModeStretch = "stretch"
)

// ScaleFilter returns the -vf expression placing the image in a width x height frame.
func ScaleFilter(mode string, width, height int) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case FitModeStretch:
		return fmt.Sprintf("scale=%d:%d", width, height)
	case FitModeFill:
		return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d", width, height, width, height)
	default:
		return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black",
			width, height, width, height)
	}
}

// Config holds the encoder settings shared by every render.
type Config struct {
	Binary       string
	VideoCodec   string
	AudioCodec   string
	AudioBitrate string
	Timeout      time.Duration
}

// Renderer invokes ffmpeg.
type Renderer struct {
	cfg Config
}

// NewRenderer returns a renderer with defaults filled in.
func NewRenderer(cfg Config) *Renderer {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "ffmpeg"
	}
	if strings.TrimSpace(cfg.VideoCodec) == "" {
		cfg.VideoCodec = "libx264"
	}
	if strings.TrimSpace(cfg.AudioCodec) == "" {
		cfg.AudioCodec = "aac"
	}
	if strings.TrimSpace(cfg.AudioBitrate) == "" {
		cfg.AudioBitrate = "192k"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Renderer{cfg: cfg}
}

// Binary returns the configured ffmpeg executable.
func (r *Renderer) Binary() string {
	return r.cfg.Binary
}

// RenderRequest describes one still-image render.
type RenderRequest struct {
	ImagePath       string
	AudioPath       string
	OutputPath      string
	Width           int
	Height          int
	FitMode         string
	Quality         string
	DurationSeconds float64
}

// BuildArgs returns the ffmpeg argument list for req.
func (r *Renderer) BuildArgs(req RenderRequest) ([]string, error) {
	if strings.TrimSpace(req.ImagePath) == "" || strings.TrimSpace(req.AudioPath) == "" {
		return nil, services.Classify(services.KindValidation, stageName, "render", "image and audio paths are required", nil)
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return nil, services.Classify(services.KindValidation, stageName, "render", "output path is required", nil)
	}
	if req.Width <= 0 || req.Height <= 0 {
		return nil, services.Classify(services.KindValidation, stageName, "render",
			fmt.Sprintf("invalid resolution %dx%d", req.Width, req.Height), nil)
	}
	quality := QualityFor(req.Quality)
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-loop", "1",
		"-i", req.ImagePath,
		"-i", req.AudioPath,
		"-c:v", r.cfg.VideoCodec,
		"-tune", "stillimage",
		"-crf", strconv.Itoa(quality.CRF),
		"-preset", quality.Preset,
		"-vf", ScaleFilter(req.FitMode, req.Width, req.Height),
		"-c:a", r.cfg.AudioCodec,
		"-b:a", r.cfg.AudioBitrate,
	}
	if req.DurationSeconds > 0 {
		args = append(args, "-t", strconv.FormatFloat(req.DurationSeconds, 'f', 3, 64))
	}
	args = append(args,
		"-shortest",
		"-pix_fmt", "yuv420p",
		"-y", req.OutputPath,
	)
	return args, nil
}

// Render encodes req.OutputPath. A failed render leaves no partial output.
func (r *Renderer) Render(ctx context.Context, req RenderRequest) error {
	args, err := r.BuildArgs(req)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return services.Classify(services.KindEncoding, stageName, "render", "create output directory", err)
	}
	if err := r.run(ctx, r.cfg.Timeout, "render", args); err != nil {
		_ = os.Remove(req.OutputPath)
		return err
	}
	info, err := os.Stat(req.OutputPath)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(req.OutputPath)
		return services.Classify(services.KindEncoding, stageName, "render", "ffmpeg produced no output", err)
	}
	return nil
}

// Thumbnail writes a single JPEG frame from videoPath taken at offset.
func (r *Renderer) Thumbnail(ctx context.Context, videoPath, outputPath, offset string) error {
	if strings.TrimSpace(offset) == "" {
		offset = DefaultThumbnailTime
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return services.Classify(services.KindEncoding, "thumbnail", "extract", "create output directory", err)
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-ss", offset,
		"-i", videoPath,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:%d", ThumbnailWidth, ThumbnailHeight),
		"-y", outputPath,
	}
	if err := r.run(ctx, time.Minute, "thumbnail", args); err != nil {
		_ = os.Remove(outputPath)
		return err
	}
	return nil
}

func (r *Renderer) run(ctx context.Context, timeout time.Duration, op string, args []string) error {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := commandContext(runCtx, r.cfg.Binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return services.Classify(services.KindTimeout, stageName, op,
			fmt.Sprintf("ffmpeg exceeded %s", timeout), err)
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return services.WithHint(
			services.Classify(services.KindEncoding, stageName, op, fmt.Sprintf("ffmpeg binary %q not found", r.cfg.Binary), err),
			"install ffmpeg or set video.ffmpeg_path",
		)
	}
	return services.Classify(services.KindEncoding, stageName, op, tail(string(output)), err)
}

func tail(output string) string {
	output = strings.TrimSpace(output)
	if len(output) <= stderrTailLen {
		return output
	}
	return "..." + output[len(output)-stderrTailLen:]
}
