// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package publisher

import (
	"context"
	"sync/atomic"

	"github.com/mia-platform/ledgersync/internal/ledger"
	"github.com/mia-platform/ledgersync/internal/logger"
	"github.com/mia-platform/ledgersync/internal/sink"
)

const (
	loggerName = "ledgersync:publisher"

	defaultQueueSize = 256
)

// Forwarder decouples the sink subscribers from the Sender: sink notifications only enqueue
// updates, a single goroutine delivers them in order.
type Forwarder struct {
	sender Sender
	queue  chan Update

	dropped atomic.Int64
}

// NewForwarder returns a Forwarder delivering to sender. A non positive size selects the default
// queue size.
func NewForwarder(sender Sender, size int) *Forwarder {
	if size <= 0 {
		size = defaultQueueSize
	}

	return &Forwarder{
		sender: sender,
		queue:  make(chan Update, size),
	}
}

// Enqueue schedules update for delivery. It never blocks: updates exceeding the queue size are
// dropped and counted.
func (f *Forwarder) Enqueue(update Update) {
	select {
	case f.queue <- update:
	default:
		f.dropped.Add(1)
	}
}

// Dropped returns how many updates did not fit in the queue.
func (f *Forwarder) Dropped() int64 {
	return f.dropped.Load()
}

// Subscribe forwards every change of the two sinks until the returned function is called.
func (f *Forwarder) Subscribe(balances *sink.Store[ledger.AccountKey, ledger.Balance], transactions *sink.Store[ledger.AccountKey, []ledger.Transaction]) func() {
	unsubscribeBalances := balances.Subscribe(func(update sink.Update[ledger.AccountKey, ledger.Balance]) {
		f.Enqueue(FromBalance(update))
	})
	unsubscribeTransactions := transactions.Subscribe(func(update sink.Update[ledger.AccountKey, []ledger.Transaction]) {
		f.Enqueue(FromHistory(update))
	})

	return func() {
		unsubscribeBalances()
		unsubscribeTransactions()
	}
}

// Run delivers the queued updates until ctx is done, then closes the sender. Delivery failures
// are logged and do not stop the loop.
func (f *Forwarder) Run(ctx context.Context) error {
	log := logger.FromContext(ctx).WithName(loggerName)
	defer func() {
		if err := f.sender.Close(); err != nil {
			log.Error("error closing sender", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if dropped := f.Dropped(); dropped > 0 {
				log.Warn("updates dropped because the queue was full", "dropped", dropped)
			}
			return nil
		case update := <-f.queue:
			if err := f.sender.Send(ctx, update); err != nil {
				log.Error("error publishing update",
					"resource", update.Resource,
					"ledger", update.Ledger,
					"account", update.Account,
					"error", err,
				)
				continue
			}
			log.Trace("update published", "resource", update.Resource, "operation", update.Operation())
		}
	}
}
