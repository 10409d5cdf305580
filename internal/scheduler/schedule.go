// Package scheduler repeats scenario runs for soak testing.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule says when the next soak run starts.
type Schedule struct {
	Kind     string        `toml:"kind" json:"kind"`                             // "interval" or "cron"
	Interval time.Duration `toml:"interval,omitempty" json:"interval,omitempty"` // between run starts
	Expr     string        `toml:"expr,omitempty" json:"expr,omitempty"`         // standard 5-field cron
}

// Validate checks the schedule.
func (s Schedule) Validate() error {
	switch s.Kind {
	case "interval":
		if s.Interval <= 0 {
			return fmt.Errorf("interval must be positive")
		}
	case "cron":
		if s.Expr == "" {
			return fmt.Errorf("cron expression required")
		}
		if _, err := cron.ParseStandard(s.Expr); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
	default:
		return fmt.Errorf("unknown schedule kind: %s (use interval or cron)", s.Kind)
	}
	return nil
}

// NextRun returns the first start time after from.
func (s Schedule) NextRun(from time.Time) (time.Time, error) {
	switch s.Kind {
	case "interval":
		return from.Add(s.Interval), nil
	case "cron":
		sched, err := cron.ParseStandard(s.Expr)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron: %w", err)
		}
		return sched.Next(from), nil
	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind: %s", s.Kind)
	}
}

func (s Schedule) String() string {
	if s.Kind == "cron" {
		return "cron " + s.Expr
	}
	return "every " + s.Interval.String()
}
