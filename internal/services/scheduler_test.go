// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !integration && !acceptance

package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewScheduler_IgnoresInvalidJobs(t *testing.T) {
	noop := func(context.Context) error { return nil }
	s := NewScheduler(
		WithSchedulerLogger(discardLogger()),
		WithJobs(
			Job{Name: "valid", Interval: time.Second, Run: noop},
			Job{Name: "no-interval", Run: noop},
			Job{Name: "no-func", Interval: time.Second},
		),
	)
	assert.Equal(t, []string{"valid"}, s.Jobs())
}

func TestScheduler_RunsJobsUntilStopped(t *testing.T) {
	var runs atomic.Int64
	s := NewScheduler(
		WithSchedulerLogger(discardLogger()),
		WithJobs(Job{
			Name:     "counter",
			Interval: 5 * time.Millisecond,
			Run: func(context.Context) error {
				runs.Add(1)
				return nil
			},
		}),
	)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	s.Stop()

	stopped := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())

	// A second stop is a no-op
	s.Stop()
}

func TestScheduler_RunOnStart(t *testing.T) {
	started := make(chan struct{}, 1)
	s := NewScheduler(
		WithSchedulerLogger(discardLogger()),
		WithJobs(Job{
			Name:       "warmup",
			Interval:   time.Hour,
			RunOnStart: true,
			Run: func(context.Context) error {
				started <- struct{}{}
				return nil
			},
		}),
	)

	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("job did not run on start")
	}
}

func TestScheduler_FailingJobKeepsRunning(t *testing.T) {
	var runs atomic.Int64
	s := NewScheduler(
		WithSchedulerLogger(discardLogger()),
		WithJobs(Job{
			Name:     "flaky",
			Interval: 5 * time.Millisecond,
			Run: func(context.Context) error {
				runs.Add(1)
				return errors.New("boom")
			},
		}),
	)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
	s.Stop()
}

func TestScheduler_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(
		WithSchedulerLogger(discardLogger()),
		WithJobs(Job{Name: "idle", Interval: time.Hour, Run: func(context.Context) error { return nil }}),
	)

	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}
