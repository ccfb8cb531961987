// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package worker

import (
	"context"
	"sync"
	"time"

	"github.com/mia-platform/ledgersync/internal/status"
	"github.com/mia-platform/ledgersync/internal/timer"
)

// Callbacks receive the messages of a worker, dispatched by tag. Nil callbacks are skipped.
type Callbacks[R any] struct {
	OnResult func(R)
	OnStatus func(status.Status)
}

// Facade is the typed foreground handle of a Worker.
type Facade[P, R any] struct {
	name       string
	runner     Runner[P, R]
	bufferSize int

	lock      sync.Mutex
	worker    *Worker[P, R]
	alive     <-chan struct{}
	started   bool
	callbacks Callbacks[R]
	done      chan struct{}
}

// NewFacade returns a Facade launching workers built with name, runner and bufferSize.
func NewFacade[P, R any](name string, runner Runner[P, R], bufferSize int) *Facade[P, R] {
	return &Facade[P, R]{
		name:       name,
		runner:     runner,
		bufferSize: bufferSize,
	}
}

// Start asks the worker to run its job every interval with params, delivering its messages to
// callbacks. A worker lives until the ctx that launched it is done; a Start after that launches
// a new one. Starting a worker that was not stopped is a no-op and keeps the current callbacks.
func (f *Facade[P, R]) Start(ctx context.Context, interval time.Duration, params P, callbacks Callbacks[R]) error {
	if interval <= 0 {
		return timer.ErrInvalidInterval
	}

	f.lock.Lock()
	if f.launched() && f.started {
		f.lock.Unlock()
		return nil
	}

	if !f.launched() {
		f.worker = New(f.name, f.runner, f.bufferSize)
		f.alive = ctx.Done()
		f.done = make(chan struct{})
		go f.worker.Run(ctx)
		go f.dispatch(ctx, f.worker, f.done)
	}
	f.started = true
	f.callbacks = callbacks
	w := f.worker
	f.lock.Unlock()

	return w.Send(ctx, Command[P]{Tag: TagStart, Interval: interval, Params: params})
}

// Stop asks the worker to cancel future runs. A run already in progress completes and its
// messages are still dispatched.
func (f *Facade[P, R]) Stop(ctx context.Context) error {
	f.lock.Lock()
	if !f.launched() {
		f.lock.Unlock()
		return nil
	}
	f.started = false
	w := f.worker
	f.lock.Unlock()

	return w.Send(ctx, Command[P]{Tag: TagStop})
}

// Done is closed when the context of the current worker is done. It is nil before the first
// Start.
func (f *Facade[P, R]) Done() <-chan struct{} {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.done
}

// launched must be called with the lock held.
func (f *Facade[P, R]) launched() bool {
	if f.worker == nil {
		return false
	}

	select {
	case <-f.alive:
		return false
	default:
		return true
	}
}

func (f *Facade[P, R]) dispatch(ctx context.Context, w *Worker[P, R], done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-w.Messages():
			f.lock.Lock()
			callbacks := f.callbacks
			f.lock.Unlock()

			switch msg.Tag {
			case TagResult:
				if callbacks.OnResult != nil {
					callbacks.OnResult(msg.Payload)
				}
			case TagStatus:
				if callbacks.OnStatus != nil {
					callbacks.OnStatus(msg.Status)
				}
			}
		}
	}
}
