package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/rehearse/internal/config"
	"github.com/felixgeelhaar/rehearse/internal/telemetry"
)

// Version is set at build time via ldflags
var Version = "dev"

const pidFileName = "rehearsed.pid"

var (
	flagPort     int
	flagBind     string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "rehearsed",
	Short: "Rehearse daemon - mock interview backend",
	Long: `rehearsed keeps interview sessions in memory and serves them over HTTP.
Questions and answer scoring come from the configured LLM provider, or from a
built-in question bank when none is configured.

Run without a subcommand to start the HTTP server.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rehearsed %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "listen port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagBind, "bind", "", "listen address (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(serveCmd, mcpCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

// env is the loaded configuration plus everything that must be released on
// exit
type env struct {
	cfg     *config.LocalConfig
	dir     string
	closers []func(context.Context) error
}

// setup loads configuration and installs logging and, when enabled,
// telemetry export
func setup(ctx context.Context) (*env, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	dir, err := config.EnsureDir()
	if err != nil {
		return nil, fmt.Errorf("ensure rehearse dir: %w", err)
	}

	cfg, err := config.LoadLocalConfigFrom(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flagPort != 0 {
		cfg.Daemon.Port = flagPort
	}
	if flagBind != "" {
		cfg.Daemon.Bind = flagBind
	}
	if flagLogLevel != "" {
		cfg.Daemon.LogLevel = flagLogLevel
	}

	e := &env{cfg: cfg, dir: dir}

	_, logFile, err := telemetry.InitLogger(filepath.Join(dir, "logs"), "rehearsed.log", telemetry.ParseLogLevel(cfg.Daemon.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	e.closers = append(e.closers, closeFunc(logFile))

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Options{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: Version,
			Dir:            filepath.Join(dir, "telemetry"),
		})
		if err != nil {
			e.close(ctx)
			return nil, fmt.Errorf("setup telemetry: %w", err)
		}
		// Flush spans before the log file closes.
		e.closers = append([]func(context.Context) error{shutdown}, e.closers...)
	}

	return e, nil
}

func (e *env) close(ctx context.Context) {
	for _, c := range e.closers {
		if err := c(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "cleanup: %v\n", err)
		}
	}
}

func closeFunc(c io.Closer) func(context.Context) error {
	return func(context.Context) error { return c.Close() }
}

func writePIDFile(path string) error {
	pid := os.Getpid()
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0644)
}
