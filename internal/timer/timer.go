// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package timer runs recurring synchronization jobs with a single-flight policy.
//
// A firing that happens while the previous run is still in progress is skipped, never queued.
// Failures are logged and recorded in the timer status but do not stop the schedule.
// Stop prevents future firings only: a run already in progress is not cancelled and its
// completion still updates the status, jobs needing hard cancellation must watch their context.
package timer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mia-platform/ledgersync/internal/logger"
	"github.com/mia-platform/ledgersync/internal/status"
)

const (
	loggerName = "ledgersync:timer"
)

var (
	// ErrInvalidInterval reports a non positive polling interval.
	ErrInvalidInterval = errors.New("polling interval must be greater than zero")
)

// Job is a unit of recurring work.
type Job func(ctx context.Context) error

// handle binds a job to its schedule for the lifetime of a single Start/Stop cycle.
type handle struct {
	job      Job
	interval time.Duration
	stop     chan struct{}
}

// Timer schedules one job at a fixed interval.
type Timer struct {
	name     string
	onChange func(status.Status)

	handle *handle
	state  status.Status
	lock   sync.Mutex
}

// New returns an idle Timer. onChange, when not nil, is called on every status transition
// while the timer lock is held, so it must not call back into the timer.
func New(name string, onChange func(status.Status)) *Timer {
	return &Timer{
		name:     name,
		onChange: onChange,
	}
}

// Start runs job immediately and then every interval until Stop is called or ctx is done.
// Calling Start on a running timer is a no-op.
func (t *Timer) Start(ctx context.Context, job Job, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	log := logger.FromContext(ctx).WithName(loggerName).With("timer", t.name)
	t.lock.Lock()
	if t.handle != nil {
		t.lock.Unlock()
		log.Debug("timer already started")
		return nil
	}

	h := &handle{
		job:      job,
		interval: interval,
		stop:     make(chan struct{}),
	}
	t.handle = h
	t.lock.Unlock()

	log.Debug("starting timer", "interval", interval.String())
	t.fire(ctx, log, h)
	go t.loop(ctx, log, h)
	return nil
}

// Stop cancels future firings and then calls cleanup when not nil.
func (t *Timer) Stop(cleanup func()) {
	t.lock.Lock()
	h := t.handle
	t.handle = nil
	t.lock.Unlock()

	if h != nil {
		close(h.stop)
	}

	if cleanup != nil {
		cleanup()
	}
}

// Status returns the state of the last run.
func (t *Timer) Status() status.Status {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.state
}

// Running reports whether the timer is scheduled.
func (t *Timer) Running() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.handle != nil
}

func (t *Timer) loop(ctx context.Context, log logger.Logger, h *handle) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			log.Debug("timer stopped")
			return
		case <-ctx.Done():
			log.Debug("timer context done", "error", ctx.Err())
			return
		case <-ticker.C:
			t.fire(ctx, log, h)
		}
	}
}

// fire launches a run of h unless another run is in progress or h has been stopped.
func (t *Timer) fire(ctx context.Context, log logger.Logger, h *handle) {
	t.lock.Lock()
	if t.handle != h {
		t.lock.Unlock()
		return
	}

	if t.state == status.InProgress {
		t.lock.Unlock()
		log.Trace("previous run still in progress, skipping firing")
		return
	}

	t.transition(status.InProgress)
	t.lock.Unlock()

	go func() {
		err := h.job(ctx)

		t.lock.Lock()
		defer t.lock.Unlock()
		if err != nil {
			log.Error("polling job failed", "error", err)
			t.transition(status.Error)
			return
		}

		t.transition(status.Idle)
	}()
}

// transition must be called with the lock held.
func (t *Timer) transition(next status.Status) {
	t.state = next
	if t.onChange != nil {
		t.onChange(next)
	}
}
