package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"trackreel/internal/artwork"
	"trackreel/internal/config"
	"trackreel/internal/logging"
	"trackreel/internal/metadata"
	"trackreel/internal/notifications"
	"trackreel/internal/pipeline"
	"trackreel/internal/prompt"
	"trackreel/internal/render"
	"trackreel/internal/scanner"
	"trackreel/internal/services/ffmpeg"
	"trackreel/internal/services/imagegen"
	"trackreel/internal/trackdb"
)

type commandContext struct {
	configFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

// newLogger builds the run logger. When a progress bar owns stderr, logs go
// to the log file only.
func (c *commandContext) newLogger(fileOnly bool) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !fileOnly {
		return logging.NewFromConfig(cfg)
	}
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{filepath.Join(cfg.Paths.LogDir, logging.LogFileName)},
	})
}

func pruneLogs(cfg *config.Config, logger *slog.Logger) {
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, time.Now(),
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "pipeline_report_*.txt"},
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "*.log", Exclude: []string{filepath.Join(cfg.Paths.LogDir, logging.LogFileName)}},
	)
}

type storeSet struct {
	tracks      *trackdb.Store
	failures    *trackdb.Ledger
	checkpoints *trackdb.CheckpointStore
}

func openStores(cfg *config.Config, logger *slog.Logger) (storeSet, error) {
	opts := []trackdb.Option{trackdb.WithLockTimeout(cfg.LockTimeout()), trackdb.WithLogger(logger)}
	tracks, err := trackdb.Open(cfg.TracksDBPath(), opts...)
	if err != nil {
		return storeSet{}, fmt.Errorf("open track store: %w", err)
	}
	failures, err := trackdb.OpenLedger(cfg.FailedTasksDBPath(), opts...)
	if err != nil {
		return storeSet{}, fmt.Errorf("open failure ledger: %w", err)
	}
	checkpoints, err := trackdb.OpenCheckpoints(cfg.CheckpointDBPath(), opts...)
	if err != nil {
		return storeSet{}, fmt.Errorf("open checkpoint store: %w", err)
	}
	return storeSet{tracks: tracks, failures: failures, checkpoints: checkpoints}, nil
}

func newRenderer(cfg *config.Config) *ffmpeg.Renderer {
	return ffmpeg.NewRenderer(ffmpeg.Config{
		Binary:       cfg.FFmpegBinary(),
		VideoCodec:   cfg.Video.Codec,
		AudioCodec:   cfg.Video.AudioCodec,
		AudioBitrate: cfg.Video.AudioBitrate,
		Timeout:      cfg.VideoTimeout(),
	})
}

func newImageClient(cfg *config.Config) *imagegen.Client {
	return imagegen.NewClient(imagegen.Config{
		APIKey:                 cfg.Image.APIKey,
		BaseURL:                cfg.Image.BaseURL,
		Model:                  cfg.Image.Model,
		TimeoutSeconds:         cfg.Image.TimeoutSeconds,
		DownloadTimeoutSeconds: cfg.Image.DownloadTimeoutSeconds,
	})
}

// buildPipeline wires the stores, scanner, and stage handlers for one command.
func buildPipeline(cfg *config.Config, logger *slog.Logger, sink pipeline.ProgressSink) (*pipeline.Pipeline, storeSet, error) {
	stores, err := openStores(cfg, logger)
	if err != nil {
		return nil, storeSet{}, err
	}
	scan := scanner.New(scanner.Dirs{
		Music: cfg.Paths.MusicDir,
		Image: cfg.Paths.ImageDir,
		Video: cfg.Paths.VideoDir,
	}, stores.tracks, cfg.Pipeline.MissingAction, logger)

	deps := pipeline.Dependencies{
		Store:       stores.tracks,
		Ledger:      stores.failures,
		Checkpoints: stores.checkpoints,
		Scanner:     scan,
		Enricher:    metadata.NewEnricher(stores.tracks, cfg.FFprobeBinary(), logger),
		Images:      artwork.New(cfg, stores.tracks, newImageClient(cfg), prompt.NewBuilder(cfg.Paths.PromptDir), logger),
		Videos:      render.New(cfg, stores.tracks, newRenderer(cfg), logger),
		Notifier:    notifications.NewService(cfg),
		Sink:        sink,
		Logger:      logger,
	}
	p, err := pipeline.New(cfg, deps)
	if err != nil {
		return nil, storeSet{}, err
	}
	return p, stores, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
