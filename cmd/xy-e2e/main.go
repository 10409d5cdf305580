package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/xychain/xy-e2e/internal/config"
	"github.com/xychain/xy-e2e/internal/xychain"
)

var (
	version   = "0.1.0"
	buildTime = "dev"
)

// errRunFailed marks a run that completed with failing scenarios.
var errRunFailed = errors.New("run failed")

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), getShutdownSignals()...)
	defer stop()

	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return exitCode(err)
	}
	return 0
}

// exitCode is 1 for failing scenarios, 2 when the harness could not reach
// the node and 3 for anything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errRunFailed):
		return 1
	case xychain.IsFatal(err):
		return 2
	default:
		return 3
	}
}

// app holds state shared by every command.
type app struct {
	configPath string
	endpoint   string
	logLevel   string
	jsonOut    bool

	stdout io.Writer
	stderr io.Writer

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "xy-e2e",
		Short:         "End-to-end tests for the XY chain NFT and POD pallets",
		Version:       fmt.Sprintf("%s (built %s)", version, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ./"+config.DefaultFile+" if present)")
	flags.StringVar(&a.endpoint, "endpoint", "", "node WebSocket endpoint")
	flags.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	flags.BoolVar(&a.jsonOut, "json", false, "print JSON instead of text")

	root.AddCommand(
		newRunCmd(a),
		newSoakCmd(a),
		newHistoryCmd(a),
		newAddressCmd(a),
		newSchemaCmd(a),
		newQueryCmd(a),
	)
	return root
}

// setup loads config, then applies flags over it.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.endpoint != "" {
		cfg.Node.Endpoint = a.endpoint
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.cfg = cfg
	a.logger = newLogger(a.stderr, cfg.Log)
	return nil
}

// dial connects to the configured node.
func (a *app) dial(ctx context.Context) (*xychain.Conn, error) {
	return xychain.Connect(ctx, a.cfg.Node, a.logger)
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
