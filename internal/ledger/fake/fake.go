// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package fake

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/mia-platform/ledgersync/internal/ledger"
	"github.com/mia-platform/ledgersync/internal/trust"
)

var _ ledger.Client = &FakeLedger{}

// FakeLedger is a scriptable in-memory ledger.Client.
type FakeLedger struct {
	tb testing.TB

	lock     sync.Mutex
	balances map[trust.Level]map[ledger.AccountKey]ledger.Balance
	history  map[ledger.AccountKey][]ledger.Transaction
	errs     map[trust.Level]error
	gates    map[trust.Level]chan struct{}

	transactionsBudget int
	transactionsErr    error

	balanceCalls      map[trust.Level]int
	transactionsCalls map[trust.Level]int
}

func NewFakeLedger(tb testing.TB) *FakeLedger {
	tb.Helper()

	return &FakeLedger{
		tb:                 tb,
		balances:           make(map[trust.Level]map[ledger.AccountKey]ledger.Balance),
		history:            make(map[ledger.AccountKey][]ledger.Transaction),
		errs:               make(map[trust.Level]error),
		gates:              make(map[trust.Level]chan struct{}),
		transactionsBudget: -1,
		balanceCalls:       make(map[trust.Level]int),
		transactionsCalls:  make(map[trust.Level]int),
	}
}

// SetBalance sets the amount returned for account at level.
func (f *FakeLedger) SetBalance(account ledger.AccountKey, level trust.Level, amount uint64) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.balances[level] == nil {
		f.balances[level] = make(map[ledger.AccountKey]ledger.Balance)
	}
	f.balances[level][account] = ledger.Balance{Amount: amount}
}

// SetHistory replaces the history of account. Transactions are served newest first.
func (f *FakeLedger) SetHistory(account ledger.AccountKey, transactions ...ledger.Transaction) {
	f.lock.Lock()
	defer f.lock.Unlock()

	history := slices.Clone(transactions)
	slices.SortFunc(history, func(a, b ledger.Transaction) int {
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		default:
			return 0
		}
	})
	f.history[account] = history
}

// FailWith makes every call at level return err. A nil err clears the failure.
func (f *FakeLedger) FailWith(level trust.Level, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.errs[level] = err
}

// FailTransactionsAfter lets n transactions calls succeed, then returns err for the following ones.
// A negative n removes the limit.
func (f *FakeLedger) FailTransactionsAfter(n int, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.transactionsBudget = n
	f.transactionsErr = err
}

// Hold blocks every call at level until the returned function is invoked.
func (f *FakeLedger) Hold(level trust.Level) func() {
	f.lock.Lock()
	defer f.lock.Unlock()

	gate := make(chan struct{})
	f.gates[level] = gate

	var once sync.Once
	return func() {
		once.Do(func() {
			f.lock.Lock()
			if f.gates[level] == gate {
				delete(f.gates, level)
			}
			f.lock.Unlock()
			close(gate)
		})
	}
}

// BalanceCalls returns how many balance calls were received at level.
func (f *FakeLedger) BalanceCalls(level trust.Level) int {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.balanceCalls[level]
}

// TransactionsCalls returns how many transactions calls were received at level.
func (f *FakeLedger) TransactionsCalls(level trust.Level) int {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.transactionsCalls[level]
}

// Balance implements ledger.Client.
func (f *FakeLedger) Balance(ctx context.Context, account ledger.AccountKey, level trust.Level) (ledger.Balance, error) {
	f.tb.Helper()

	f.lock.Lock()
	f.balanceCalls[level]++
	gate := f.gates[level]
	f.lock.Unlock()

	if err := wait(ctx, gate); err != nil {
		return ledger.Balance{}, err
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	if err := f.errs[level]; err != nil {
		return ledger.Balance{}, err
	}
	return f.balances[level][account], nil
}

// Transactions implements ledger.Client.
func (f *FakeLedger) Transactions(ctx context.Context, req ledger.TransactionsRequest, level trust.Level) (ledger.TransactionsPage, error) {
	f.tb.Helper()

	f.lock.Lock()
	f.transactionsCalls[level]++
	gate := f.gates[level]
	f.lock.Unlock()

	if err := wait(ctx, gate); err != nil {
		return ledger.TransactionsPage{}, err
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	if err := f.errs[level]; err != nil {
		return ledger.TransactionsPage{}, err
	}

	if f.transactionsBudget == 0 {
		return ledger.TransactionsPage{}, f.transactionsErr
	}
	if f.transactionsBudget > 0 {
		f.transactionsBudget--
	}

	history := f.history[req.Account]
	page := ledger.TransactionsPage{}
	if len(history) == 0 {
		return page, nil
	}

	oldest := history[len(history)-1].ID
	page.OldestTxID = &oldest
	for _, tx := range history {
		if req.Start != nil && tx.ID >= *req.Start {
			continue
		}
		if req.MaxResults > 0 && len(page.Transactions) == req.MaxResults {
			break
		}
		page.Transactions = append(page.Transactions, tx)
	}
	return page, nil
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
