// Package scheduler runs the trading strategy on a fixed cron schedule.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const jobTimeout = 2 * time.Minute

// Scheduler triggers a job via a cron expression, "0 * * * *" (top of
// every hour) by default.
type Scheduler struct {
	cron *cron.Cron
	job  func(ctx context.Context) error
	log  *slog.Logger
}

// New registers job under the given cron spec. The job receives a context
// that expires after two minutes.
func New(spec string, job func(ctx context.Context) error, log *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		job:  job,
		log:  log,
	}
	if spec == "" {
		spec = "0 * * * *"
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, err
	}
	log.Info("strategy schedule registered", slog.String("spec", spec))
	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.log.Error("scheduled run failed", slog.String("error", err.Error()))
		return
	}
	s.log.Info("scheduled run completed", slog.Duration("elapsed", time.Since(start)))
}

// Start begins the cron loop in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop cancels the cron loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
