package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeImage()
	c.normalizeVideo()
	c.normalizePipeline()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key   string
		value *string
		def   string
	}{
		{"paths.music_dir", &c.Paths.MusicDir, defaultMusicDir},
		{"paths.image_dir", &c.Paths.ImageDir, defaultImageDir},
		{"paths.video_dir", &c.Paths.VideoDir, defaultVideoDir},
		{"paths.thumbnail_dir", &c.Paths.ThumbnailDir, defaultThumbnailDir},
		{"paths.prompt_dir", &c.Paths.PromptDir, defaultPromptDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.db_dir", &c.Paths.DBDir, defaultDBDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.def
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeImage() {
	c.Image.APIKey = strings.TrimSpace(c.Image.APIKey)
	if c.Image.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.Image.APIKey = strings.TrimSpace(value)
		}
	}
	c.Image.Provider = strings.ToLower(strings.TrimSpace(c.Image.Provider))
	if c.Image.Provider == "" {
		c.Image.Provider = defaultImageProvider
	}
	c.Image.BaseURL = strings.TrimRight(strings.TrimSpace(c.Image.BaseURL), "/")
	if c.Image.BaseURL == "" {
		c.Image.BaseURL = defaultImageBaseURL
	}
	c.Image.Model = strings.TrimSpace(c.Image.Model)
	if c.Image.Model == "" {
		c.Image.Model = defaultImageModel
	}
	c.Image.Size = strings.ToLower(strings.TrimSpace(c.Image.Size))
	if c.Image.Size == "" {
		c.Image.Size = defaultImageSize
	}
	c.Image.Quality = strings.ToLower(strings.TrimSpace(c.Image.Quality))
	if c.Image.Quality == "" {
		c.Image.Quality = defaultImageQuality
	}
	c.Image.Style = strings.ToLower(strings.TrimSpace(c.Image.Style))
	if c.Image.Style == "" {
		c.Image.Style = defaultImageStyle
	}
	c.Image.Format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Image.Format), "."))
	switch c.Image.Format {
	case "jpeg":
		c.Image.Format = "jpg"
	case "":
		c.Image.Format = defaultImageFormat
	}
	if c.Image.TimeoutSeconds <= 0 {
		c.Image.TimeoutSeconds = defaultImageTimeoutSeconds
	}
	if c.Image.DownloadTimeoutSeconds <= 0 {
		c.Image.DownloadTimeoutSeconds = defaultImageDownloadTimeout
	}
}

func (c *Config) normalizeVideo() {
	c.Video.FFmpegPath = strings.TrimSpace(c.Video.FFmpegPath)
	if c.Video.FFmpegPath == "" {
		c.Video.FFmpegPath = "ffmpeg"
	}
	c.Video.FFprobePath = strings.TrimSpace(c.Video.FFprobePath)
	if c.Video.FFprobePath == "" {
		c.Video.FFprobePath = "ffprobe"
	}
	c.Video.Codec = strings.TrimSpace(c.Video.Codec)
	if c.Video.Codec == "" {
		c.Video.Codec = defaultVideoCodec
	}
	c.Video.AudioCodec = strings.TrimSpace(c.Video.AudioCodec)
	if c.Video.AudioCodec == "" {
		c.Video.AudioCodec = defaultAudioCodec
	}
	c.Video.AudioBitrate = strings.TrimSpace(c.Video.AudioBitrate)
	if c.Video.AudioBitrate == "" {
		c.Video.AudioBitrate = defaultAudioBitrate
	}
	c.Video.Resolution = strings.ToLower(strings.TrimSpace(c.Video.Resolution))
	if c.Video.Resolution == "" {
		c.Video.Resolution = defaultVideoResolution
	}
	c.Video.Quality = strings.ToLower(strings.TrimSpace(c.Video.Quality))
	if c.Video.Quality == "" {
		c.Video.Quality = defaultVideoQuality
	}
	c.Video.FitMode = strings.ToLower(strings.TrimSpace(c.Video.FitMode))
	if c.Video.FitMode == "" {
		c.Video.FitMode = defaultVideoFitMode
	}
	c.Video.ThumbnailTime = strings.TrimSpace(c.Video.ThumbnailTime)
	if c.Video.ThumbnailTime == "" {
		c.Video.ThumbnailTime = defaultThumbnailTime
	}
	if c.Video.TimeoutSeconds <= 0 {
		c.Video.TimeoutSeconds = defaultVideoTimeoutSeconds
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.CheckpointInterval <= 0 {
		c.Pipeline.CheckpointInterval = defaultCheckpointInterval
	}
	if c.Pipeline.LockTimeoutSeconds <= 0 {
		c.Pipeline.LockTimeoutSeconds = defaultLockTimeoutSeconds
	}
	c.Pipeline.MissingAction = strings.ToLower(strings.TrimSpace(c.Pipeline.MissingAction))
	if c.Pipeline.MissingAction == "" {
		c.Pipeline.MissingAction = defaultMissingAction
	}
	c.Pipeline.DefaultStyle = strings.ToLower(strings.TrimSpace(c.Pipeline.DefaultStyle))
	if c.Pipeline.DefaultStyle == "" {
		c.Pipeline.DefaultStyle = defaultStyle
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("TRACKREEL_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
