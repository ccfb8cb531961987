// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package accounts

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/ledgersync/internal/ledger"
	"github.com/mia-platform/ledgersync/internal/ledger/fake"
	"github.com/mia-platform/ledgersync/internal/pager"
	"github.com/mia-platform/ledgersync/internal/requester"
	"github.com/mia-platform/ledgersync/internal/sink"
	"github.com/mia-platform/ledgersync/internal/status"
	"github.com/mia-platform/ledgersync/internal/trust"
)

var (
	alice = ledger.AccountKey{Ledger: "icp", Account: "alice"}
	bob   = ledger.AccountKey{Ledger: "icp", Account: "bob"}
)

type failures struct {
	lock     sync.Mutex
	accounts []ledger.AccountKey
	errs     []error
}

func (f *failures) record(account ledger.AccountKey, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.accounts = append(f.accounts, account)
	f.errs = append(f.errs, err)
}

func (f *failures) list() []ledger.AccountKey {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]ledger.AccountKey(nil), f.accounts...)
}

func newSynchronizer(t *testing.T, fakeLedger *fake.FakeLedger, f *failures) *Synchronizer {
	t.Helper()

	s, err := New(fakeLedger, Options{
		CacheTTL:  time.Minute,
		History:   pager.Options{PageSize: 2, MaxIterations: 10},
		OnFailure: f.record,
	})
	require.NoError(t, err)
	return s
}

func waitAll(t *testing.T, calls []*requester.Call) {
	t.Helper()
	for _, call := range calls {
		require.NoError(t, call.Wait(t.Context()))
	}
}

func TestLoadBalances(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		setup            func(*fake.FakeLedger)
		expectedBalances map[ledger.AccountKey]sink.Entry[ledger.Balance]
		expectedFailures []ledger.AccountKey
	}{
		"both channels succeed": {
			setup: func(f *fake.FakeLedger) {
				f.SetBalance(alice, trust.Unverified, 10)
				f.SetBalance(alice, trust.Certified, 10)
				f.SetBalance(bob, trust.Unverified, 5)
				f.SetBalance(bob, trust.Certified, 7)
			},
			expectedBalances: map[ledger.AccountKey]sink.Entry[ledger.Balance]{
				alice: {Value: ledger.Balance{Amount: 10}, Level: trust.Certified},
				bob:   {Value: ledger.Balance{Amount: 7}, Level: trust.Certified},
			},
		},
		"unverified failure is swallowed": {
			setup: func(f *fake.FakeLedger) {
				f.SetBalance(alice, trust.Certified, 10)
				f.SetBalance(bob, trust.Certified, 7)
				f.FailWith(trust.Unverified, assert.AnError)
			},
			expectedBalances: map[ledger.AccountKey]sink.Entry[ledger.Balance]{
				alice: {Value: ledger.Balance{Amount: 10}, Level: trust.Certified},
				bob:   {Value: ledger.Balance{Amount: 7}, Level: trust.Certified},
			},
		},
		"certified failure clears the value and is reported": {
			setup: func(f *fake.FakeLedger) {
				f.SetBalance(alice, trust.Unverified, 10)
				f.FailWith(trust.Certified, assert.AnError)
			},
			expectedBalances: map[ledger.AccountKey]sink.Entry[ledger.Balance]{},
			expectedFailures: []ledger.AccountKey{alice, bob},
		},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fakeLedger := fake.NewFakeLedger(t)
			test.setup(fakeLedger)
			f := &failures{}
			s := newSynchronizer(t, fakeLedger, f)

			if test.expectedFailures != nil {
				// the certified failure must land after the unverified result to be observable
				release := fakeLedger.Hold(trust.Certified)
				calls := s.LoadBalances(t.Context(), alice, bob)
				require.Eventually(t, func() bool {
					_, ok := s.Balances().Get(alice)
					return ok
				}, time.Second, time.Millisecond)
				release()
				waitAll(t, calls)
			} else {
				waitAll(t, s.LoadBalances(t.Context(), alice, bob))
			}

			assert.Equal(t, test.expectedBalances, s.Balances().Snapshot())
			assert.ElementsMatch(t, test.expectedFailures, f.list())
			for _, err := range f.errs {
				assert.ErrorIs(t, err, assert.AnError)
			}
		})
	}
}

func TestLoadBalancesOncePerSession(t *testing.T) {
	t.Parallel()

	fakeLedger := fake.NewFakeLedger(t)
	fakeLedger.SetBalance(alice, trust.Unverified, 10)
	fakeLedger.SetBalance(alice, trust.Certified, 10)
	s := newSynchronizer(t, fakeLedger, &failures{})

	waitAll(t, s.LoadBalances(t.Context(), alice))
	assert.Empty(t, s.LoadBalances(t.Context(), alice))
	assert.Equal(t, 1, fakeLedger.BalanceCalls(trust.Certified))

	// a failed load keeps the account admitted
	fakeLedger.FailWith(trust.Certified, assert.AnError)
	waitAll(t, s.LoadBalances(t.Context(), bob))
	assert.Empty(t, s.LoadBalances(t.Context(), bob))
	assert.Equal(t, 2, fakeLedger.BalanceCalls(trust.Certified))

	s.ResetSession()
	fakeLedger.FailWith(trust.Certified, nil)
	assert.Empty(t, s.Balances().Snapshot())
	waitAll(t, s.LoadBalances(t.Context(), alice, bob))
	assert.Equal(t, 4, fakeLedger.BalanceCalls(trust.Certified))
}

func TestReloadBalancesUsesCertifiedCache(t *testing.T) {
	t.Parallel()

	fakeLedger := fake.NewFakeLedger(t)
	fakeLedger.SetBalance(alice, trust.Certified, 10)
	s := newSynchronizer(t, fakeLedger, &failures{})

	waitAll(t, s.LoadBalances(t.Context(), alice))
	s.Balances().Reset(alice)

	assert.Empty(t, s.ReloadBalances(t.Context(), alice))
	assert.Equal(t, 1, fakeLedger.BalanceCalls(trust.Certified))
	entry, ok := s.Balances().Get(alice)
	require.True(t, ok)
	assert.Equal(t, sink.Entry[ledger.Balance]{Value: ledger.Balance{Amount: 10}, Level: trust.Certified}, entry)
}

func TestLoadHistory(t *testing.T) {
	t.Parallel()

	history := []ledger.Transaction{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 5}}

	testCases := map[string]struct {
		failAfter     int
		expectedIDs   []ledger.TxID
		expectedLevel trust.Level
	}{
		"complete history is certified": {
			failAfter:     -1,
			expectedIDs:   []ledger.TxID{5, 4, 3, 2, 1},
			expectedLevel: trust.Certified,
		},
		"partial history is unverified": {
			failAfter:     2,
			expectedIDs:   []ledger.TxID{5, 4, 3, 2},
			expectedLevel: trust.Unverified,
		},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fakeLedger := fake.NewFakeLedger(t)
			fakeLedger.SetHistory(alice, history...)
			fakeLedger.FailTransactionsAfter(test.failAfter, assert.AnError)
			s := newSynchronizer(t, fakeLedger, &failures{})

			result := s.LoadHistory(t.Context(), alice)
			assert.Equal(t, test.expectedLevel == trust.Certified, result.Completed)

			entry, ok := s.Transactions().Get(alice)
			require.True(t, ok)
			assert.Equal(t, test.expectedLevel, entry.Level)
			assert.Equal(t, test.expectedIDs, transactionIDs(entry.Value))
			assert.Positive(t, fakeLedger.TransactionsCalls(trust.Certified))
			assert.Zero(t, fakeLedger.TransactionsCalls(trust.Unverified))
		})
	}
}

func TestLoadHistoryKeepsCertifiedValue(t *testing.T) {
	t.Parallel()

	fakeLedger := fake.NewFakeLedger(t)
	fakeLedger.SetHistory(alice, ledger.Transaction{ID: 1}, ledger.Transaction{ID: 2})
	s := newSynchronizer(t, fakeLedger, &failures{})

	require.True(t, s.LoadHistory(t.Context(), alice).Completed)

	fakeLedger.FailTransactionsAfter(0, assert.AnError)
	assert.False(t, s.LoadHistory(t.Context(), alice).Completed)

	entry, ok := s.Transactions().Get(alice)
	require.True(t, ok)
	assert.Equal(t, trust.Certified, entry.Level)
	assert.Equal(t, []ledger.TxID{2, 1}, transactionIDs(entry.Value))
}

func TestStartWorkers(t *testing.T) {
	t.Parallel()

	fakeLedger := fake.NewFakeLedger(t)
	fakeLedger.SetBalance(alice, trust.Unverified, 10)
	fakeLedger.SetBalance(alice, trust.Certified, 10)
	fakeLedger.SetHistory(alice, ledger.Transaction{ID: 1}, ledger.Transaction{ID: 2}, ledger.Transaction{ID: 3})
	s := newSynchronizer(t, fakeLedger, &failures{})

	assert.ErrorIs(t, s.StartWorkers(t.Context(), time.Hour, nil), ErrNoAccounts)
	require.NoError(t, s.StartWorkers(t.Context(), time.Hour, []ledger.AccountKey{alice}))

	require.Eventually(t, func() bool {
		balance, okBalance := s.Balances().Get(alice)
		history, okHistory := s.Transactions().Get(alice)
		return okBalance && balance.Level == trust.Certified &&
			okHistory && history.Level == trust.Certified &&
			s.Tracker().Overall() == status.Idle &&
			s.Tracker().Get(BalancesChannel) == status.Idle
	}, time.Second, 5*time.Millisecond)

	history, _ := s.Transactions().Get(alice)
	assert.Equal(t, []ledger.TxID{3, 2, 1}, transactionIDs(history.Value))
	assert.NoError(t, s.StopWorkers(t.Context()))
}

func TestStartWorkersReportsFailures(t *testing.T) {
	t.Parallel()

	fakeLedger := fake.NewFakeLedger(t)
	fakeLedger.FailWith(trust.Unverified, assert.AnError)
	fakeLedger.FailWith(trust.Certified, assert.AnError)
	f := &failures{}
	s := newSynchronizer(t, fakeLedger, f)

	require.NoError(t, s.StartWorkers(t.Context(), time.Hour, []ledger.AccountKey{alice}))
	require.Eventually(t, func() bool {
		return s.Tracker().Get(BalancesChannel) == status.Error && len(f.list()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, status.Error, s.Tracker().Overall())
	_, ok := s.Balances().Get(alice)
	assert.False(t, ok)
}

func TestMergeTransactions(t *testing.T) {
	t.Parallel()

	merged := mergeTransactions(
		[]ledger.Transaction{{ID: 3, Memo: "old"}, {ID: 1}},
		[]ledger.Transaction{{ID: 4}, {ID: 3, Memo: "new"}, {ID: 2}},
	)
	assert.Equal(t, []ledger.Transaction{{ID: 4}, {ID: 3, Memo: "new"}, {ID: 2}, {ID: 1}}, merged)
}

func TestBalanceAndHistoryOnDemand(t *testing.T) {
	t.Parallel()

	fakeLedger := fake.NewFakeLedger(t)
	fakeLedger.SetBalance(alice, trust.Certified, 42)
	fakeLedger.SetHistory(alice, ledger.Transaction{ID: 7})
	s := newSynchronizer(t, fakeLedger, &failures{})

	balance, ok, err := s.Balance(t.Context(), alice)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sink.Entry[ledger.Balance]{Value: ledger.Balance{Amount: 42}, Level: trust.Certified}, balance)

	_, _, err = s.Balance(t.Context(), alice)
	require.NoError(t, err)
	assert.Equal(t, 1, fakeLedger.BalanceCalls(trust.Certified))

	history, ok, err := s.History(t.Context(), alice)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, trust.Certified, history.Level)
	assert.Equal(t, []ledger.TxID{7}, transactionIDs(history.Value))

	fakeLedger.FailWith(trust.Unverified, assert.AnError)
	fakeLedger.FailWith(trust.Certified, assert.AnError)
	_, ok, err = s.Balance(t.Context(), bob)
	require.NoError(t, err)
	assert.False(t, ok)

	overall, channels := s.SyncStatus()
	assert.Equal(t, status.Idle, overall)
	assert.Equal(t, map[string]status.Status{BalancesChannel: status.Idle, TransactionsChannel: status.Idle}, channels)
}
