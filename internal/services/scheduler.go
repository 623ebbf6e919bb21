// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package services runs the periodic maintenance work around the credit
// ledger.
package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is a unit of periodic work
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
	// RunOnStart runs the job once before the first tick
	RunOnStart bool
}

// Scheduler manages background jobs and periodic tasks
type Scheduler struct {
	logger   *slog.Logger
	jobs     []Job
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// SchedulerOption configures Scheduler behavior
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the logger for the scheduler
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithJobs adds jobs to the scheduler. Jobs with a non-positive interval or
// no function are ignored.
func WithJobs(jobs ...Job) SchedulerOption {
	return func(s *Scheduler) {
		for _, job := range jobs {
			if job.Interval <= 0 || job.Run == nil {
				continue
			}
			s.jobs = append(s.jobs, job)
		}
	}
}

// NewScheduler creates a new Scheduler instance
func NewScheduler(options ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		logger:   slog.Default(),
		stopChan: make(chan struct{}),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Jobs returns the names of the scheduled jobs
func (s *Scheduler) Jobs() []string {
	names := make([]string, len(s.jobs))
	for i, job := range s.jobs {
		names[i] = job.Name
	}
	return names
}

// Start begins the scheduler's background operations
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", "jobs", s.Jobs())

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.run(ctx, job)
	}
}

// Stop gracefully shuts down the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
	s.logger.Info("Background scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	if job.RunOnStart {
		s.execute(ctx, job)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled", "job", job.Name)
			return

		case <-s.stopChan:
			return

		case <-ticker.C:
			s.execute(ctx, job)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("Scheduled job failed", "job", job.Name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("Scheduled job completed", "job", job.Name, "duration", time.Since(start))
}
