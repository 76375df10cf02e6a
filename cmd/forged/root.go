package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"forged/internal/sink"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "forged",
		Short:         "Accelerator model lifecycle, inference and telemetry service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", os.Getenv("FORGED_CONFIG"), "Path to a YAML, JSON or TOML config file")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	pf.StringVar(&opts.logFormat, "log-format", envOr("FORGED_LOG_FORMAT", "console"), "Log output: console|json")

	cmd.AddCommand(
		newServeCmd(opts),
		newSnapshotCmd(opts),
		newDetectCmd(),
		newScanCmd(opts),
	)
	return cmd
}

// newLogger builds the process logger. Console output goes to stderr so
// commands that print JSON keep stdout clean.
func newLogger(format, level string) zerolog.Logger {
	var l zerolog.Logger
	if strings.EqualFold(format, "json") {
		l = zerolog.New(os.Stderr)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return l.Level(sink.ParseLevel(level)).With().Timestamp().Logger()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// splitCSV splits a comma-separated list, trimming blanks and dropping
// empty items.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
