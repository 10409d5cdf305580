package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/xychain/xy-e2e/internal/history"
	"github.com/xychain/xy-e2e/internal/report"
	"github.com/xychain/xy-e2e/internal/scenario"
	"github.com/xychain/xy-e2e/internal/scheduler"
)

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool("parallel", false, "run scenarios concurrently, one connection each")
	f.String("image", "", "image uploaded by nft-download (default the bundled PNG)")
	f.String("output-dir", "", "where downloaded NFT data is written")
	f.Bool("no-history", false, "do not record results")
}

// applyRunFlags copies flags the user set over the config.
func (a *app) applyRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("parallel") {
		a.cfg.Run.Parallel, _ = f.GetBool("parallel")
	}
	if f.Changed("image") {
		a.cfg.Run.ImagePath, _ = f.GetString("image")
	}
	if f.Changed("output-dir") {
		a.cfg.Run.OutputDir, _ = f.GetString("output-dir")
	}
	if noHistory, _ := f.GetBool("no-history"); noHistory {
		a.cfg.History.Enabled = false
	}
}

func (a *app) newRunner() (*scenario.Runner, error) {
	accounts, err := scenario.DevAccounts(a.cfg.Node.SS58Prefix)
	if err != nil {
		return nil, err
	}
	dial := func(ctx context.Context) (scenario.Chain, error) {
		conn, err := a.dial(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	opts := scenario.Options{
		Parallel:  a.cfg.Run.Parallel,
		OutputDir: a.cfg.Run.OutputDir,
		ImagePath: a.cfg.Run.ImagePath,
	}
	return scenario.NewRunner(dial, accounts, opts, a.logger), nil
}

// openHistory opens the history database, creating its directory.
func (a *app) openHistory() (*history.Store, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.History.Path), 0750); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return history.Open(a.cfg.History.Path)
}

// openSinks opens the history store and MQTT publisher the config asks for.
// A broker that cannot be reached is logged and left out.
func (a *app) openSinks(ctx context.Context) ([]scheduler.Sink, func(), error) {
	var (
		sinks   []scheduler.Sink
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	if a.cfg.History.Enabled {
		store, err := a.openHistory()
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, store)
		closers = append(closers, store.Close)
	}

	if a.cfg.MQTT.Broker != "" {
		pub := report.NewPublisher(a.cfg.MQTT, a.logger)
		if err := pub.Connect(ctx); err != nil {
			a.logger.Warn("mqtt publishing disabled", "error", err)
		} else {
			sinks = append(sinks, pub)
			closers = append(closers, pub.Close)
		}
	}
	return sinks, closeAll, nil
}

// printSink writes each run to stdout.
type printSink struct{ a *app }

func (p printSink) Record(_ context.Context, run *scenario.Run) error {
	if p.a.jsonOut {
		return report.JSON(p.a.stdout, run)
	}
	return report.NewPrinter(p.a.stdout).Run(run)
}

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run scenarios once",
		Long: `Run the named scenarios, or all of them, against the node and report the results.

Scenarios: ` + fmt.Sprint(scenario.Names()),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.applyRunFlags(cmd)
			ctx := cmd.Context()

			names := args
			if len(names) == 0 {
				names = a.cfg.Run.Scenarios
			}

			runner, err := a.newRunner()
			if err != nil {
				return err
			}
			sinks, closeSinks, err := a.openSinks(ctx)
			if err != nil {
				return err
			}
			defer closeSinks()

			run, runErr := runner.Run(ctx, names)
			if run == nil {
				return runErr
			}
			for _, s := range sinks {
				if err := s.Record(ctx, run); err != nil {
					a.logger.Warn("record run", "run_id", run.ID, "error", err)
				}
			}
			if err := (printSink{a}).Record(ctx, run); err != nil {
				return err
			}

			if runErr != nil {
				return runErr
			}
			if !run.Passed() {
				return errRunFailed
			}
			return nil
		},
	}
	addRunFlags(cmd)
	return cmd
}

func newSoakCmd(a *app) *cobra.Command {
	var (
		cronExpr string
		interval time.Duration
		maxRuns  int64
	)

	cmd := &cobra.Command{
		Use:   "soak [scenario...]",
		Short: "Run scenarios repeatedly on a schedule",
		Long: `Run the scenarios on the configured schedule until interrupted, recording every
run in the history database. Failing runs do not stop the soak.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.applyRunFlags(cmd)
			ctx := cmd.Context()

			soakCfg := a.cfg.Soak
			if cronExpr != "" {
				soakCfg.Schedule = scheduler.Schedule{Kind: "cron", Expr: cronExpr}
			}
			if interval > 0 {
				soakCfg.Schedule = scheduler.Schedule{Kind: "interval", Interval: interval}
			}
			if cmd.Flags().Changed("max-runs") {
				soakCfg.MaxRuns = maxRuns
			}

			names := args
			if len(names) == 0 {
				names = a.cfg.Run.Scenarios
			}

			runner, err := a.newRunner()
			if err != nil {
				return err
			}
			sinks, closeSinks, err := a.openSinks(ctx)
			if err != nil {
				return err
			}
			defer closeSinks()
			sinks = append(sinks, printSink{a})

			soak, err := scheduler.New(
				soakCfg.Schedule,
				scheduler.Options{MaxRuns: soakCfg.MaxRuns, Immediate: soakCfg.Immediate},
				func(ctx context.Context) (*scenario.Run, error) { return runner.Run(ctx, names) },
				a.logger,
				sinks...,
			)
			if err != nil {
				return fmt.Errorf("soak: %w", err)
			}
			if err := soak.Start(ctx); err != nil {
				return err
			}

			st := soak.State()
			a.logger.Info("soak summary", "runs", st.RunCount, "failed_runs", st.ErrorCount)
			if st.ErrorCount > 0 {
				return errRunFailed
			}
			return nil
		},
	}
	addRunFlags(cmd)
	cmd.Flags().StringVar(&cronExpr, "cron", "", "cron schedule (standard 5 fields), overrides config")
	cmd.Flags().DurationVar(&interval, "interval", 0, "fixed interval between runs, overrides config")
	cmd.Flags().Int64Var(&maxRuns, "max-runs", 0, "stop after this many runs (0 runs until interrupted)")
	return cmd
}
