package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"trackreel/internal/pipeline"
	"trackreel/internal/services/ffmpeg"
	"trackreel/internal/stage"
)

// errSilentExit signals a non-zero exit after the result was already printed.
var errSilentExit = errors.New("exit status 1")

type runFlags struct {
	onlyScan    bool
	onlyImages  bool
	onlyVideos  bool
	force       bool
	retryFailed bool
	status      bool
	jsonOutput  bool
	resume      bool
	dryRun      bool
	noProgress  bool
	style       string
	quality     string
	resolution  string
	stage       string
	limit       int
}

func (f runFlags) validate() error {
	if f.limit < 0 {
		return fmt.Errorf("--limit must be zero or positive, got %d", f.limit)
	}
	if q := strings.TrimSpace(f.quality); q != "" {
		if _, ok := ffmpeg.QualityPresets[strings.ToLower(q)]; !ok {
			return fmt.Errorf("--quality must be one of fast, normal, high (got %q)", f.quality)
		}
	}
	if f.stage != "" {
		if !f.retryFailed {
			return errors.New("--stage is only valid with --retry-failed")
		}
		name, err := stage.ParseName(f.stage)
		if err != nil {
			return err
		}
		if name != stage.Images && name != stage.Videos {
			return fmt.Errorf("--stage must be images or videos (got %q)", f.stage)
		}
	}
	return nil
}

func (f runFlags) options() pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.Force = f.force
	opts.Limit = f.limit
	opts.Style = strings.TrimSpace(f.style)
	opts.Quality = strings.ToLower(strings.TrimSpace(f.quality))
	opts.Resolution = strings.TrimSpace(f.resolution)
	return opts
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var flags runFlags

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:   "trackreel",
		Short: "Turn a music library into cover art and videos",
		Long: "trackreel scans the music directory, generates cover art for each track,\n" +
			"and renders a still-image video. Runs checkpoint their progress so an\n" +
			"interrupted run can continue with --resume.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			return runPipeline(cmd, ctx, flags)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	f := rootCmd.Flags()
	f.BoolVar(&flags.onlyScan, "only-scan", false, "Only scan the music directory and sync the track store")
	f.BoolVar(&flags.onlyImages, "only-images", false, "Only generate missing cover art")
	f.BoolVar(&flags.onlyVideos, "only-videos", false, "Only render missing videos")
	f.StringVar(&flags.style, "style", "", "Image style template (defaults to pipeline.default_style)")
	f.BoolVar(&flags.force, "force", false, "Regenerate outputs that already exist")
	f.IntVar(&flags.limit, "limit", 0, "Process at most N tracks per stage (0 = no limit)")
	f.StringVar(&flags.quality, "quality", "", "Video quality: fast, normal, or high")
	f.StringVar(&flags.resolution, "resolution", "", "Video resolution preset or WxH")
	f.BoolVar(&flags.retryFailed, "retry-failed", false, "Retry every task in the failure ledger")
	f.StringVar(&flags.stage, "stage", "", "Restrict --retry-failed to images or videos")
	f.BoolVar(&flags.status, "status", false, "Show library statistics and exit")
	f.BoolVar(&flags.jsonOutput, "json", false, "Print the result as JSON")
	f.BoolVar(&flags.resume, "resume", false, "Continue an interrupted run")
	f.BoolVar(&flags.dryRun, "dry-run", false, "Show what a run would process without changing anything")
	f.BoolVar(&flags.noProgress, "no-progress", false, "Disable the progress bar")
	rootCmd.MarkFlagsMutuallyExclusive("only-scan", "only-images", "only-videos", "retry-failed", "status", "resume", "dry-run")

	rootCmd.AddCommand(newFailedCommand(ctx))
	rootCmd.AddCommand(newCheckpointCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))
	rootCmd.AddCommand(newTestNotifyCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
