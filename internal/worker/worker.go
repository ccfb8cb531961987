// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package worker hosts polling timers inside isolated goroutines.
//
// A Worker owns its timer and whatever state its job captures, and talks to the rest of the
// process only through tagged messages: commands flow in through the inbox, results and status
// changes flow out through the outbox. Messages are delivered in order per direction; when the
// outbox is full the message is dropped, which consumers must read as "no new data".
package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/mia-platform/ledgersync/internal/logger"
	"github.com/mia-platform/ledgersync/internal/status"
	"github.com/mia-platform/ledgersync/internal/timer"
)

const (
	loggerName = "ledgersync:worker"

	defaultBufferSize = 16
)

// Tag discriminates the messages exchanged with a worker.
type Tag string

const (
	TagStart  Tag = "start"
	TagStop   Tag = "stop"
	TagResult Tag = "result"
	TagStatus Tag = "status"
)

var (
	// ErrUnknownTag reports a command the worker cannot handle.
	ErrUnknownTag = errors.New("unknown command tag")
)

// Command is an inbound message. Interval and Params are read only for TagStart.
type Command[P any] struct {
	Tag      Tag
	Interval time.Duration
	Params   P
}

// Message is an outbound message. Payload is set for TagResult, Status for TagStatus.
type Message[R any] struct {
	Tag     Tag
	Payload R
	Status  status.Status
}

// Runner builds the job scheduled by a start command. It is called inside the worker goroutine
// once per start, so the state captured by the returned job is local to the worker. emit never
// blocks.
type Runner[P, R any] func(params P, emit func(R)) timer.Job

// Worker is an actor running one polling timer.
type Worker[P, R any] struct {
	name   string
	runner Runner[P, R]

	inbox   chan Command[P]
	outbox  chan Message[R]
	dropped atomic.Int64
}

// New returns a Worker named name. bufferSize bounds both the inbox and the outbox, zero
// selects the default.
func New[P, R any](name string, runner Runner[P, R], bufferSize int) *Worker[P, R] {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	return &Worker[P, R]{
		name:   name,
		runner: runner,
		inbox:  make(chan Command[P], bufferSize),
		outbox: make(chan Message[R], bufferSize),
	}
}

// Send queues cmd in the worker inbox, blocking until there is room or ctx is done.
func (w *Worker[P, R]) Send(ctx context.Context, cmd Command[P]) error {
	switch cmd.Tag {
	case TagStart, TagStop:
	default:
		return ErrUnknownTag
	}

	select {
	case w.inbox <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages returns the worker outbox. It is never closed.
func (w *Worker[P, R]) Messages() <-chan Message[R] {
	return w.outbox
}

// Dropped returns how many outbound messages were discarded because the outbox was full.
func (w *Worker[P, R]) Dropped() int64 {
	return w.dropped.Load()
}

// Run processes commands until ctx is done, then stops the timer.
func (w *Worker[P, R]) Run(ctx context.Context) {
	log := logger.FromContext(ctx).WithName(loggerName).With("worker", w.name)
	ctx = logger.WithContext(ctx, log)

	t := timer.New(w.name, func(s status.Status) {
		w.post(log, Message[R]{Tag: TagStatus, Status: s})
	})

	log.Debug("worker started")
	for {
		select {
		case <-ctx.Done():
			t.Stop(nil)
			log.Debug("worker terminated")
			return
		case cmd := <-w.inbox:
			w.handle(ctx, log, t, cmd)
		}
	}
}

func (w *Worker[P, R]) handle(ctx context.Context, log logger.Logger, t *timer.Timer, cmd Command[P]) {
	switch cmd.Tag {
	case TagStart:
		if t.Running() {
			log.Debug("worker already running, start ignored")
			return
		}

		job := w.runner(cmd.Params, func(payload R) {
			w.post(log, Message[R]{Tag: TagResult, Payload: payload})
		})
		if err := t.Start(ctx, job, cmd.Interval); err != nil {
			log.Error("cannot start worker timer", "error", err)
			w.post(log, Message[R]{Tag: TagStatus, Status: status.Error})
		}
	case TagStop:
		t.Stop(func() {
			log.Debug("worker timer stopped")
		})
	}
}

func (w *Worker[P, R]) post(log logger.Logger, msg Message[R]) {
	select {
	case w.outbox <- msg:
	default:
		w.dropped.Add(1)
		log.Debug("outbox full, message dropped", "tag", string(msg.Tag))
	}
}
