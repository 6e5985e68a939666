package config

const (
	defaultConfigPath             = "~/.config/trackreel/config.toml"
	defaultMusicDir               = "~/.local/share/trackreel/music"
	defaultImageDir               = "~/.local/share/trackreel/images"
	defaultVideoDir               = "~/.local/share/trackreel/videos"
	defaultThumbnailDir           = "~/.local/share/trackreel/thumbnails"
	defaultPromptDir              = "~/.config/trackreel/prompts"
	defaultLogDir                 = "~/.local/share/trackreel/logs"
	defaultDBDir                  = "~/.local/share/trackreel/db"
	defaultImageProvider          = "openai"
	defaultImageBaseURL           = "https://api.openai.com/v1"
	defaultImageModel             = "dall-e-3"
	defaultImageSize              = "1792x1024"
	defaultImageQuality           = "hd"
	defaultImageStyle             = "vivid"
	defaultImageFormat            = "png"
	defaultImageTimeoutSeconds    = 300
	defaultImageDownloadTimeout   = 30
	defaultVideoCodec             = "libx264"
	defaultAudioCodec             = "aac"
	defaultAudioBitrate           = "192k"
	defaultVideoResolution        = "1920x1080"
	defaultVideoQuality           = "normal"
	defaultVideoFitMode           = "fit"
	defaultThumbnailTime          = "00:00:05"
	defaultVideoTimeoutSeconds    = 600
	defaultCheckpointInterval     = 5
	defaultLockTimeoutSeconds     = 5
	defaultMissingAction          = "warn"
	defaultStyle                  = "default"
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			MusicDir:     defaultMusicDir,
			ImageDir:     defaultImageDir,
			VideoDir:     defaultVideoDir,
			ThumbnailDir: defaultThumbnailDir,
			PromptDir:    defaultPromptDir,
			LogDir:       defaultLogDir,
			DBDir:        defaultDBDir,
		},
		Image: Image{
			Provider:               defaultImageProvider,
			BaseURL:                defaultImageBaseURL,
			Model:                  defaultImageModel,
			Size:                   defaultImageSize,
			Quality:                defaultImageQuality,
			Style:                  defaultImageStyle,
			Format:                 defaultImageFormat,
			TimeoutSeconds:         defaultImageTimeoutSeconds,
			DownloadTimeoutSeconds: defaultImageDownloadTimeout,
		},
		Video: Video{
			FFmpegPath:       "ffmpeg",
			FFprobePath:      "ffprobe",
			Codec:            defaultVideoCodec,
			AudioCodec:       defaultAudioCodec,
			AudioBitrate:     defaultAudioBitrate,
			Resolution:       defaultVideoResolution,
			Quality:          defaultVideoQuality,
			FitMode:          defaultVideoFitMode,
			ThumbnailEnabled: true,
			ThumbnailTime:    defaultThumbnailTime,
			TimeoutSeconds:   defaultVideoTimeoutSeconds,
		},
		Pipeline: Pipeline{
			CheckpointInterval: defaultCheckpointInterval,
			LockTimeoutSeconds: defaultLockTimeoutSeconds,
			MissingAction:      defaultMissingAction,
			DefaultStyle:       defaultStyle,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
