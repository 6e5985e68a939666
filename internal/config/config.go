package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the working directories for audio input and generated output.
type Paths struct {
	MusicDir     string `toml:"music_dir"`
	ImageDir     string `toml:"image_dir"`
	VideoDir     string `toml:"video_dir"`
	ThumbnailDir string `toml:"thumbnail_dir"`
	PromptDir    string `toml:"prompt_dir"`
	LogDir       string `toml:"log_dir"`
	DBDir        string `toml:"db_dir"`
}

// Image contains configuration for the image-generation API.
type Image struct {
	Provider               string `toml:"provider"`
	APIKey                 string `toml:"api_key"`
	BaseURL                string `toml:"base_url"`
	Model                  string `toml:"model"`
	Size                   string `toml:"size"`
	Quality                string `toml:"quality"`
	Style                  string `toml:"style"`
	Format                 string `toml:"format"`
	TimeoutSeconds         int    `toml:"timeout_seconds"`
	DownloadTimeoutSeconds int    `toml:"download_timeout_seconds"`
}

// Video contains configuration for ffmpeg rendering.
type Video struct {
	FFmpegPath       string `toml:"ffmpeg_path"`
	FFprobePath      string `toml:"ffprobe_path"`
	Codec            string `toml:"codec"`
	AudioCodec       string `toml:"audio_codec"`
	AudioBitrate     string `toml:"audio_bitrate"`
	Resolution       string `toml:"resolution"`
	Quality          string `toml:"quality"`
	FitMode          string `toml:"fit_mode"`
	ThumbnailEnabled bool   `toml:"thumbnail_enabled"`
	ThumbnailTime    string `toml:"thumbnail_time"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// Pipeline contains orchestration settings.
type Pipeline struct {
	CheckpointInterval int    `toml:"checkpoint_interval"`
	LockTimeoutSeconds int    `toml:"lock_timeout_seconds"`
	MissingAction      string `toml:"missing_action"`
	DefaultStyle       string `toml:"default_style"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for trackreel.
//
// Configuration sections by subsystem:
//   - Paths: audio input, generated output, logs, and the JSON state directory
//   - Image: image-generation API credentials and request defaults
//   - Video: ffmpeg binaries, codecs, presets, and thumbnails
//   - Pipeline: checkpoint cadence, store lock timeout, missing-file policy
//   - Notifications: optional ntfy push notifications
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Image         Image         `toml:"image"`
	Video         Video         `toml:"video"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file in the working directory is
// loaded first so credentials can live outside the TOML file.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	loadDotEnv()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads ./.env without overriding variables already set in the environment.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	_ = godotenv.Load(".env")
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("trackreel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output, log, and state directories. The music
// directory is only created when missing so an empty library scans cleanly.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.MusicDir,
		c.Paths.ImageDir,
		c.Paths.VideoDir,
		c.Paths.ThumbnailDir,
		c.Paths.LogDir,
		c.Paths.DBDir,
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// TracksDBPath returns the Record Store file path.
func (c *Config) TracksDBPath() string {
	return filepath.Join(c.Paths.DBDir, "tracks.json")
}

// FailedTasksDBPath returns the Failure Ledger file path.
func (c *Config) FailedTasksDBPath() string {
	return filepath.Join(c.Paths.DBDir, "failed_tasks.json")
}

// CheckpointDBPath returns the Checkpoint Store file path.
func (c *Config) CheckpointDBPath() string {
	return filepath.Join(c.Paths.DBDir, "checkpoint.json")
}

// LockTimeout returns the store lock acquisition timeout.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Pipeline.LockTimeoutSeconds) * time.Second
}

// ImageTimeout returns the per-request timeout for image generation.
func (c *Config) ImageTimeout() time.Duration {
	return time.Duration(c.Image.TimeoutSeconds) * time.Second
}

// VideoTimeout returns the per-render ffmpeg timeout.
func (c *Config) VideoTimeout() time.Duration {
	return time.Duration(c.Video.TimeoutSeconds) * time.Second
}

// FFmpegBinary returns the ffmpeg executable used for rendering.
func (c *Config) FFmpegBinary() string {
	if strings.TrimSpace(c.Video.FFmpegPath) == "" {
		return "ffmpeg"
	}
	return c.Video.FFmpegPath
}

// FFprobeBinary returns the ffprobe executable used for audio inspection.
func (c *Config) FFprobeBinary() string {
	if strings.TrimSpace(c.Video.FFprobePath) == "" {
		return "ffprobe"
	}
	return c.Video.FFprobePath
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists: %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
