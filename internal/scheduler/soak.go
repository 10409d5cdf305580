package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xychain/xy-e2e/internal/scenario"
)

// RunFunc performs one scenario run.
type RunFunc func(ctx context.Context) (*scenario.Run, error)

// Sink receives every finished run (history store, publisher).
type Sink interface {
	Record(ctx context.Context, run *scenario.Run) error
}

// Options tune a soak.
type Options struct {
	// MaxRuns stops the soak after this many runs. Zero runs until cancelled.
	MaxRuns int64
	// Immediate starts the first run right away instead of waiting for the schedule.
	Immediate bool
}

// State tracks soak progress.
type State struct {
	LastRunAt    time.Time     `json:"lastRunAt,omitempty"`
	NextRunAt    time.Time     `json:"nextRunAt,omitempty"`
	RunCount     int64         `json:"runCount"`
	ErrorCount   int64         `json:"errorCount"`
	LastRunID    string        `json:"lastRunId,omitempty"`
	LastError    string        `json:"lastError,omitempty"`
	LastDuration time.Duration `json:"lastDuration,omitempty"`
}

// Soak runs the scenario set on a schedule until stopped.
type Soak struct {
	schedule Schedule
	opts     Options
	run      RunFunc
	sinks    []Sink
	logger   *slog.Logger

	mu    sync.Mutex
	state State

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a soak. Sinks see runs in the order given.
func New(schedule Schedule, opts Options, run RunFunc, logger *slog.Logger, sinks ...Sink) (*Soak, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run func required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Soak{
		schedule: schedule,
		opts:     opts,
		run:      run,
		sinks:    sinks,
		logger:   logger.With("component", "scheduler"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start runs until ctx is cancelled, Stop is called or MaxRuns is reached.
// A failing or erroring run does not end the soak.
func (s *Soak) Start(ctx context.Context) error {
	defer close(s.doneCh)

	next := time.Now()
	if !s.opts.Immediate {
		var err error
		if next, err = s.schedule.NextRun(next); err != nil {
			return err
		}
	}
	s.setNext(next)
	s.logger.Info("soak started", "schedule", s.schedule.String(), "next_run", next.Format(time.RFC3339))

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("soak stopped (context cancelled)")
			return nil
		case <-s.stopCh:
			s.logger.Info("soak stopped")
			return nil
		case <-timer.C:
		}

		s.execute(ctx)
		if ctx.Err() != nil {
			continue
		}
		if s.opts.MaxRuns > 0 && s.State().RunCount >= s.opts.MaxRuns {
			s.logger.Info("soak finished", "runs", s.opts.MaxRuns)
			return nil
		}

		next, err := s.schedule.NextRun(time.Now())
		if err != nil {
			return err
		}
		s.setNext(next)
		s.logger.Debug("next run scheduled", "next_run", next.Format(time.RFC3339))
		timer.Reset(time.Until(next))
	}
}

// Stop ends the soak and waits for the current run to finish.
func (s *Soak) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

// State returns a snapshot of the soak state.
func (s *Soak) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Soak) setNext(t time.Time) {
	s.mu.Lock()
	s.state.NextRunAt = t
	s.mu.Unlock()
}

func (s *Soak) execute(ctx context.Context) {
	start := time.Now()
	run, err := s.run(ctx)
	duration := time.Since(start)

	if run != nil {
		for _, sink := range s.sinks {
			if serr := sink.Record(ctx, run); serr != nil {
				s.logger.Warn("sink failed", "run_id", run.ID, "error", serr)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastRunAt = start
	s.state.LastDuration = duration
	s.state.RunCount++
	s.state.LastRunID = ""
	if run != nil {
		s.state.LastRunID = run.ID
	}

	failure := ""
	switch {
	case err != nil:
		failure = err.Error()
	case run == nil || !run.Passed():
		failure = summarize(run)
	}

	if failure != "" {
		s.state.ErrorCount++
		s.state.LastError = failure
		s.logger.Error("soak run failed",
			"run_id", s.state.LastRunID,
			"error", failure,
			"duration", duration,
			"run_count", s.state.RunCount,
			"error_count", s.state.ErrorCount)
		return
	}
	s.state.LastError = ""
	s.logger.Info("soak run passed",
		"run_id", s.state.LastRunID,
		"duration", duration,
		"run_count", s.state.RunCount)
}

func summarize(run *scenario.Run) string {
	if run == nil {
		return "no result"
	}
	c := run.Counts()
	return fmt.Sprintf("%d failed, %d errored, %d skipped",
		c[scenario.StatusFail], c[scenario.StatusError], c[scenario.StatusSkipped])
}
