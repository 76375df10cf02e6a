package main

import (
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"forged/internal/telemetry"
	"forged/pkg/types"
)

func newSnapshotCmd(root *rootOptions) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
		nvml     bool
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print host and accelerator telemetry as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("nvml") {
				cfg.Monitor.NVML = nvml
			}
			level := cfg.LogLevel
			if root.logLevel != "" {
				level = root.logLevel
			}
			log := newLogger(root.logFormat, level)

			mon := telemetry.New(newProvider(cfg.Monitor, log), nil)
			defer func() { _ = mon.Shutdown() }()
			if err := mon.Initialize(cmd.Context()); err != nil {
				log.Warn().Err(err).Msg("no accelerators; reporting host figures only")
			}

			out := cmd.OutOrStdout()
			if !watch {
				return printSnapshot(out, mon.CollectMetrics(cmd.Context()), true)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watchSnapshots(ctx, mon, out, interval)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep printing one JSON line per interval")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Sampling interval with --watch")
	cmd.Flags().BoolVar(&nvml, "nvml", false, "Read accelerator metrics through NVML (requires -tags nvml)")
	return cmd
}

func watchSnapshots(ctx context.Context, mon *telemetry.Monitor, out io.Writer, interval time.Duration) error {
	errCh := make(chan error, 1)
	mon.StartMonitoring(func(s types.SystemSnapshot) {
		if err := printSnapshot(out, s, false); err != nil {
			select {
			case errCh <- err:
			default:
			}
		}
	}, interval)
	defer mon.StopMonitoring()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func printSnapshot(w io.Writer, s types.SystemSnapshot, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(s)
}
