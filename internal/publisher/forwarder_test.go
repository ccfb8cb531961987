// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/ledgersync/internal/ledger"
	"github.com/mia-platform/ledgersync/internal/sink"
	"github.com/mia-platform/ledgersync/internal/trust"
)

type fakeSender struct {
	lock    sync.Mutex
	sent    []Update
	closed  bool
	failFor string
}

func (f *fakeSender) Send(_ context.Context, update Update) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if update.Account == f.failFor {
		return &PublisherError{err: assert.AnError}
	}
	f.sent = append(f.sent, update)
	return nil
}

func (f *fakeSender) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSender) snapshot() ([]Update, bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]Update(nil), f.sent...), f.closed
}

func TestForwarder(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{failFor: "bob"}
	forwarder := NewForwarder(sender, 0)
	balances := sink.New[ledger.AccountKey, ledger.Balance]()
	transactions := sink.New[ledger.AccountKey, []ledger.Transaction]()
	unsubscribe := forwarder.Subscribe(balances, transactions)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error)
	go func() { done <- forwarder.Run(ctx) }()

	balances.Set(alice, ledger.Balance{Amount: 1}, trust.Unverified)
	balances.Set(ledger.AccountKey{Ledger: "icp", Account: "bob"}, ledger.Balance{Amount: 2}, trust.Unverified)
	transactions.Set(alice, []ledger.Transaction{{ID: 1}}, trust.Certified)
	balances.Reset(alice)

	require.Eventually(t, func() bool {
		sent, _ := sender.snapshot()
		return len(sent) == 3
	}, time.Second, 5*time.Millisecond)

	unsubscribe()
	balances.Set(alice, ledger.Balance{Amount: 5}, trust.Certified)

	cancel()
	require.NoError(t, <-done)

	sent, closed := sender.snapshot()
	assert.True(t, closed)
	assert.Equal(t, []Update{
		{Resource: BalanceResource, Ledger: "icp", Account: "alice", TrustLevel: trust.Unverified, Value: ledger.Balance{Amount: 1}},
		{Resource: TransactionsResource, Ledger: "icp", Account: "alice", TrustLevel: trust.Certified, Value: []ledger.Transaction{{ID: 1}}},
		{Resource: BalanceResource, Ledger: "icp", Account: "alice", Removed: true},
	}, sent)
}

func TestForwarderDropsWhenFull(t *testing.T) {
	t.Parallel()

	forwarder := NewForwarder(&fakeSender{}, 1)
	forwarder.Enqueue(Update{Account: "alice"})
	forwarder.Enqueue(Update{Account: "bob"})
	forwarder.Enqueue(Update{Account: "carol"})

	assert.Equal(t, int64(2), forwarder.Dropped())
}
