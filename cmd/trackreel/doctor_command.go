package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"trackreel/internal/deps"
	"trackreel/internal/logging"
	"trackreel/internal/notifications"
	"trackreel/internal/preflight"
	"trackreel/internal/prompt"
	"trackreel/internal/stage"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, binaries, and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Environment", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Config", statusInfo, configLabel(ctx), colorize))

			blocking := false
			for _, r := range preflight.RunAll(cfg) {
				kind := statusOK
				if !r.Passed {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if missing := deps.MissingRequired(preflight.CheckSystemDeps(cfg)); len(missing) > 0 {
				blocking = true
			}

			if !offline {
				r := preflight.CheckImageAPI(cmd.Context(), cfg.Image.BaseURL, cfg.Image.APIKey)
				kind := statusOK
				if !r.Passed {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			styles := prompt.NewBuilder(cfg.Paths.PromptDir).AvailableStyles()
			fmt.Fprintln(out, renderStatusLine("Image styles", statusInfo, strings.Join(styles, ", "), colorize))

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Stages", colorize) {
				fmt.Fprintln(out, line)
			}
			p, _, err := buildPipeline(cfg, logging.NewNop(), nil)
			if err != nil {
				return err
			}
			for _, name := range []stage.Name{stage.Images, stage.Videos} {
				h, ok := p.Handler(name)
				if !ok {
					fmt.Fprintln(out, renderStatusLine(titleCase.String(string(name)), statusError, "not configured", colorize))
					blocking = true
					continue
				}
				health := h.HealthCheck(cmd.Context())
				kind := statusOK
				if !health.Ready {
					kind = statusError
					blocking = true
				}
				fmt.Fprintln(out, renderStatusLine(titleCase.String(string(name)), kind, health.Detail, colorize))
			}

			if blocking {
				return errSilentExit
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the image API reachability check")
	return cmd
}

func configLabel(ctx *commandContext) string {
	if ctx.configPath == "" {
		return "defaults"
	}
	if !ctx.configExists {
		return ctx.configPath + " (not found; defaults used)"
	}
	return ctx.configPath
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
				fmt.Fprintln(out, "Notifications disabled (set notifications.ntfy_topic)")
				return nil
			}
			svc := notifications.NewService(cfg)
			if err := svc.Publish(cmd.Context(), notifications.EventTest, nil); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(out, "Test notification sent")
			return nil
		},
	}
}
