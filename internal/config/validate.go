package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	validImageSizes     = []string{"1024x1024", "1792x1024", "1024x1792"}
	validImageQualities = []string{"standard", "hd"}
	validImageStyles    = []string{"vivid", "natural"}
	validImageFormats   = []string{"png", "jpg"}
	validVideoQualities = []string{"fast", "normal", "high"}
	validFitModes       = []string{"fit", "fill", "stretch"}
	validMissingActions = []string{"warn", "remove", "mark_missing"}
	validLogLevels      = []string{"debug", "info", "warn", "error"}
)

// Validate ensures the configuration is usable. The image API key is checked
// separately by RequireImageAPIKey so scan and status commands work without it.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateImage(); err != nil {
		return err
	}
	if err := c.validateVideo(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if !oneOf(c.Logging.Level, validLogLevels) {
		return fmt.Errorf("logging.level must be one of %s", strings.Join(validLogLevels, ", "))
	}
	return nil
}

// RequireImageAPIKey reports a configuration error when no image API key is set.
func (c *Config) RequireImageAPIKey() error {
	if strings.TrimSpace(c.Image.APIKey) != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	return fmt.Errorf("image.api_key is required for image generation. Set OPENAI_API_KEY or edit %s (create with 'trackreel config init')", defaultPath)
}

func (c *Config) validatePaths() error {
	if c.Paths.MusicDir == "" {
		return errors.New("paths.music_dir must be set")
	}
	if c.Paths.DBDir == "" {
		return errors.New("paths.db_dir must be set")
	}
	return nil
}

func (c *Config) validateImage() error {
	if c.Image.Provider != "openai" {
		return fmt.Errorf("image.provider %q is not supported (supported: openai)", c.Image.Provider)
	}
	if !oneOf(c.Image.Size, validImageSizes) {
		return fmt.Errorf("image.size must be one of %s", strings.Join(validImageSizes, ", "))
	}
	if !oneOf(c.Image.Quality, validImageQualities) {
		return fmt.Errorf("image.quality must be one of %s", strings.Join(validImageQualities, ", "))
	}
	if !oneOf(c.Image.Style, validImageStyles) {
		return fmt.Errorf("image.style must be one of %s", strings.Join(validImageStyles, ", "))
	}
	if !oneOf(c.Image.Format, validImageFormats) {
		return fmt.Errorf("image.format must be one of %s", strings.Join(validImageFormats, ", "))
	}
	return nil
}

func (c *Config) validateVideo() error {
	if _, _, err := ParseResolution(c.Video.Resolution); err != nil {
		return fmt.Errorf("video.resolution: %w", err)
	}
	if !oneOf(c.Video.Quality, validVideoQualities) {
		return fmt.Errorf("video.quality must be one of %s", strings.Join(validVideoQualities, ", "))
	}
	if !oneOf(c.Video.FitMode, validFitModes) {
		return fmt.Errorf("video.fit_mode must be one of %s", strings.Join(validFitModes, ", "))
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if !oneOf(c.Pipeline.MissingAction, validMissingActions) {
		return fmt.Errorf("pipeline.missing_action must be one of %s", strings.Join(validMissingActions, ", "))
	}
	if c.Pipeline.CheckpointInterval < 1 {
		return errors.New("pipeline.checkpoint_interval must be positive")
	}
	return nil
}

// ResolutionPresets maps named output targets to pixel dimensions.
var ResolutionPresets = map[string][2]int{
	"youtube_hd":         {1920, 1080},
	"youtube_4k":         {3840, 2160},
	"shorts":             {1080, 1920},
	"instagram_square":   {1080, 1080},
	"instagram_portrait": {1080, 1350},
}

// ParseResolution parses a WIDTHxHEIGHT string or a named preset.
func ParseResolution(value string) (int, int, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if preset, ok := ResolutionPresets[normalized]; ok {
		return preset[0], preset[1], nil
	}
	parts := strings.Split(normalized, "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid resolution %q (expected WIDTHxHEIGHT)", value)
	}
	width, err := strconv.Atoi(parts[0])
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("invalid resolution width in %q", value)
	}
	height, err := strconv.Atoi(parts[1])
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("invalid resolution height in %q", value)
	}
	return width, height, nil
}

func oneOf(value string, allowed []string) bool {
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}
	return false
}
