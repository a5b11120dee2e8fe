package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/standoffalign/internal/config"
)

var (
	cfg        config.Config
	logger     *slog.Logger
	configPath string
	verbose    bool
	silent     bool
)

var rootCmd = &cobra.Command{
	Use:   "standoffalign",
	Short: "Rebuild standoff annotations for aligned sentences",
	Long: `standoffalign relocates the sentences of a sentence aligner output in the
text blocks extracted from HTML and restricts each block's standoff
annotation to the sentence span.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file (overrides "+config.ConfigFileEnv+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug messages")
	rootCmd.PersistentFlags().BoolVarP(&silent, "silent", "s", false, "only log warnings and errors")
}

func setup(cmd *cobra.Command, args []string) error {
	if verbose && silent {
		return fmt.Errorf("--verbose and --silent are mutually exclusive")
	}
	if configPath != "" {
		os.Setenv(config.ConfigFileEnv, configPath)
	}
	c, err := config.Load()
	if err != nil {
		return err
	}
	cfg = c
	logger = newLogger(cmd.ErrOrStderr(), cmd.Name() == "serve", logLevel(cfg.LogLevel))
	return nil
}

func newLogger(w io.Writer, json bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// logLevel maps LOG_LEVEL to a slog level; the verbosity flags win.
func logLevel(name string) slog.Level {
	switch {
	case verbose:
		return slog.LevelDebug
	case silent:
		return slog.LevelWarn
	}
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
