package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xychain/xy-e2e/internal/xychain"
)

// Status is the outcome of one scenario.
type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"    // an assertion did not hold
	StatusError   Status = "ERROR"   // the scenario could not finish
	StatusSkipped Status = "SKIPPED" // the run aborted before it started
)

// Result is one scenario's outcome within a run.
type Result struct {
	RunID    string        `json:"run_id"`
	Scenario string        `json:"scenario"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`

	Err error `json:"-"`
}

// Run is the record of one invocation of the runner.
type Run struct {
	ID       string        `json:"id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Results  []Result      `json:"results"`
}

// Passed reports whether every scenario passed.
func (r *Run) Passed() bool {
	for _, res := range r.Results {
		if res.Status != StatusPass {
			return false
		}
	}
	return len(r.Results) > 0
}

// Counts tallies results by status.
func (r *Run) Counts() map[Status]int {
	out := make(map[Status]int)
	for _, res := range r.Results {
		out[res.Status]++
	}
	return out
}

// Dialer opens a chain handle. The runner calls it once for a sequential run
// and once per scenario for a parallel one.
type Dialer func(ctx context.Context) (Chain, error)

// Options tune a run.
type Options struct {
	Parallel  bool
	OutputDir string
	ImagePath string
}

// Runner executes scenarios against a node.
type Runner struct {
	dial     Dialer
	accounts *Accounts
	opts     Options
	logger   *slog.Logger
}

// NewRunner creates a runner.
func NewRunner(dial Dialer, accounts *Accounts, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		dial:     dial,
		accounts: accounts,
		opts:     opts,
		logger:   logger.With("component", "scenario"),
	}
}

// Run executes the named scenarios, or all of them when names is empty.
//
// A failing scenario does not stop the others. A connection error does: the
// returned error is non-nil and scenarios that never started are SKIPPED.
func (r *Runner) Run(ctx context.Context, names []string) (*Run, error) {
	selected, err := selectScenarios(names)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:      uuid.NewString(),
		Started: time.Now().UTC(),
		Results: make([]Result, len(selected)),
	}
	for i, s := range selected {
		run.Results[i] = Result{RunID: run.ID, Scenario: s.Name, Status: StatusSkipped}
	}

	logger := r.logger.With("run_id", run.ID)
	logger.Info("run started", "scenarios", len(selected), "parallel", r.opts.Parallel)

	if r.opts.Parallel {
		err = r.runParallel(ctx, run, selected, logger)
	} else {
		err = r.runSequential(ctx, run, selected, logger)
	}
	run.Duration = time.Since(run.Started)

	counts := run.Counts()
	logger.Info("run finished",
		"pass", counts[StatusPass],
		"fail", counts[StatusFail],
		"error", counts[StatusError],
		"skipped", counts[StatusSkipped],
		"duration", run.Duration.Round(time.Millisecond),
	)
	return run, err
}

func selectScenarios(names []string) ([]Scenario, error) {
	if len(names) == 0 {
		names = Names()
	}
	out := make([]Scenario, 0, len(names))
	for _, n := range names {
		s, ok := Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q (have %v)", n, Names())
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *Runner) runSequential(ctx context.Context, run *Run, selected []Scenario, logger *slog.Logger) error {
	chain, err := r.dial(ctx)
	if err != nil {
		return err
	}
	defer chain.Close()

	for i, s := range selected {
		run.Results[i] = r.runOne(ctx, run.ID, chain, s, logger)
		if err := run.Results[i].Err; err != nil && xychain.IsFatal(err) {
			return err
		}
	}
	return nil
}

func (r *Runner) runParallel(ctx context.Context, run *Run, selected []Scenario, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range selected {
		g.Go(func() error {
			chain, err := r.dial(gctx)
			if err != nil {
				run.Results[i].Status = StatusError
				run.Results[i].Error = err.Error()
				run.Results[i].Err = err
				return err
			}
			defer chain.Close()

			run.Results[i] = r.runOne(gctx, run.ID, chain, s, logger)
			if err := run.Results[i].Err; err != nil && xychain.IsFatal(err) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) runOne(ctx context.Context, runID string, chain Chain, s Scenario, logger *slog.Logger) Result {
	logger = logger.With("scenario", s.Name)
	env := &Env{
		Chain:     chain,
		Accounts:  r.accounts,
		Logger:    logger,
		OutputDir: r.opts.OutputDir,
		ImagePath: r.opts.ImagePath,
	}

	res := Result{RunID: runID, Scenario: s.Name, Started: time.Now().UTC()}
	err := s.Run(ctx, env)
	res.Duration = time.Since(res.Started)
	res.Err = err
	res.Status = classify(err)
	if err != nil {
		res.Error = err.Error()
	}

	switch res.Status {
	case StatusPass:
		logger.Info("scenario passed", "duration", res.Duration.Round(time.Millisecond))
	case StatusFail:
		logger.Warn("scenario failed", "error", err)
	default:
		logger.Error("scenario errored", "error", err)
	}
	return res
}

func classify(err error) Status {
	var failure *AssertionFailure
	switch {
	case err == nil:
		return StatusPass
	case errors.As(err, &failure):
		return StatusFail
	default:
		return StatusError
	}
}
