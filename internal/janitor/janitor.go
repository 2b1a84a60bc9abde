// Package janitor periodically removes stale workspaces and archives.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
)

// Pruner removes entries older than a retention period and reports what it
// removed.
type Pruner interface {
	Prune(olderThan time.Duration) ([]string, error)
}

// Target is a named Pruner.
type Target struct {
	Name   string
	Pruner Pruner
}

// Janitor wraps a gocron scheduler running a single sweep job.
type Janitor struct {
	scheduler gocron.Scheduler
	interval  time.Duration
	retention time.Duration
	targets   []Target
}

// New creates a janitor sweeping targets every interval.
func New(interval, retention time.Duration, targets ...Target) (*Janitor, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	j := &Janitor{scheduler: s, interval: interval, retention: retention, targets: targets}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(j.Sweep),
		gocron.WithName("janitor-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to create sweep job: %w", err)
	}
	return j, nil
}

// Start begins the scheduler; the first sweep runs immediately.
func (j *Janitor) Start(context.Context) {
	slog.Info("Starting janitor", slog.Duration("interval", j.interval), slog.Duration("retention", j.retention))
	j.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for a running sweep.
func (j *Janitor) Stop(context.Context) error {
	slog.Info("Stopping janitor")
	return j.scheduler.Shutdown()
}

// Sweep prunes every target once and returns the number of removed entries.
func (j *Janitor) Sweep() int {
	total := 0
	for _, t := range j.targets {
		removed, err := t.Pruner.Prune(j.retention)
		if err != nil {
			slog.Error("Janitor sweep failed", logfields.Name(t.Name), logfields.Error(err))
			continue
		}
		for _, p := range removed {
			slog.Info("Pruned stale entry", logfields.Name(t.Name), logfields.Path(p))
		}
		total += len(removed)
	}
	return total
}
