package pipeline

import (
	"errors"
	"log/slog"
	"time"

	"trackreel/internal/config"
	"trackreel/internal/logging"
	"trackreel/internal/metadata"
	"trackreel/internal/notifications"
	"trackreel/internal/preflight"
	"trackreel/internal/scanner"
	"trackreel/internal/stage"
	"trackreel/internal/trackdb"
)

// ProgressSink receives progress for stages that process items. The CLI
// progress bar implements it.
type ProgressSink interface {
	StageStarted(name stage.Name, total int)
	Progress(ev stage.ProgressEvent)
	StageFinished(name stage.Name, result stage.BatchResult)
}

// Dependencies are the collaborators a Pipeline drives. Store, Ledger,
// Checkpoints, and Scanner are required.
type Dependencies struct {
	Store       *trackdb.Store
	Ledger      *trackdb.Ledger
	Checkpoints *trackdb.CheckpointStore
	Scanner     *scanner.Scanner
	Enricher    *metadata.Enricher
	Images      stage.Handler
	Videos      stage.Handler
	Notifier    notifications.Service
	Sink        ProgressSink
	Logger      *slog.Logger
}

// Options tune one invocation.
type Options struct {
	SkipScan   bool
	SkipMusic  bool
	SkipImages bool
	SkipVideos bool
	Force      bool
	Limit      int
	Style      string
	Quality    string
	Resolution string
	AutoResume bool
}

// DefaultOptions returns the options of a plain full run. Music generation is
// skipped until a music source is integrated.
func DefaultOptions() Options {
	return Options{SkipMusic: true}
}

func (o Options) itemOptions() stage.Options {
	return stage.Options{
		Force:      o.Force,
		Style:      o.Style,
		Quality:    o.Quality,
		Resolution: o.Resolution,
	}
}

// Pipeline sequences scan, music, image, and video stages over the track
// store with checkpointing and failure bookkeeping.
type Pipeline struct {
	cfg         *config.Config
	store       *trackdb.Store
	ledger      *trackdb.Ledger
	checkpoints *trackdb.CheckpointStore
	scanner     *scanner.Scanner
	enricher    *metadata.Enricher
	handlers    map[stage.Name]stage.Handler
	notifier    notifications.Service
	sink        ProgressSink
	logger      *slog.Logger
	interval    int
	now         func() time.Time
	preflight   func(*config.Config) []preflight.Result
}

// New validates deps and returns a pipeline.
func New(cfg *config.Config, deps Dependencies) (*Pipeline, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("pipeline: config is required")
	case deps.Store == nil || deps.Ledger == nil || deps.Checkpoints == nil:
		return nil, errors.New("pipeline: track store, failure ledger, and checkpoint store are required")
	case deps.Scanner == nil:
		return nil, errors.New("pipeline: scanner is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	interval := cfg.Pipeline.CheckpointInterval
	if interval <= 0 {
		interval = 5
	}
	handlers := map[stage.Name]stage.Handler{}
	if deps.Images != nil {
		handlers[stage.Images] = deps.Images
	}
	if deps.Videos != nil {
		handlers[stage.Videos] = deps.Videos
	}
	return &Pipeline{
		cfg:         cfg,
		store:       deps.Store,
		ledger:      deps.Ledger,
		checkpoints: deps.Checkpoints,
		scanner:     deps.Scanner,
		enricher:    deps.Enricher,
		handlers:    handlers,
		notifier:    notifier,
		sink:        deps.Sink,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
		interval:    interval,
		now:         time.Now,
		preflight:   preflight.RunAll,
	}, nil
}

// Handler returns the item handler registered for name.
func (p *Pipeline) Handler(name stage.Name) (stage.Handler, bool) {
	h, ok := p.handlers[name]
	return h, ok
}
