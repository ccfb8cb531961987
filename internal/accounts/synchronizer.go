// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package accounts

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/mia-platform/ledgersync/internal/cache"
	"github.com/mia-platform/ledgersync/internal/ledger"
	"github.com/mia-platform/ledgersync/internal/loadguard"
	"github.com/mia-platform/ledgersync/internal/logger"
	"github.com/mia-platform/ledgersync/internal/pager"
	"github.com/mia-platform/ledgersync/internal/requester"
	"github.com/mia-platform/ledgersync/internal/sink"
	"github.com/mia-platform/ledgersync/internal/status"
	"github.com/mia-platform/ledgersync/internal/trust"
	"github.com/mia-platform/ledgersync/internal/worker"
)

const (
	loggerName = "ledgersync:accounts"

	BalancesChannel     = "balances"
	TransactionsChannel = "transactions"
)

var (
	ErrNoAccounts = errors.New("at least one account is required")
)

// Options configures a Synchronizer.
type Options struct {
	CacheTTL time.Duration
	History  pager.Options

	// OnFailure is called for every certified balance failure, after the sink value of the
	// account has been reset.
	OnFailure func(account ledger.AccountKey, err error)
}

// Synchronizer loads account data on demand and keeps it fresh in background.
type Synchronizer struct {
	client    ledger.Client
	options   Options
	guard     *loadguard.Guard[ledger.AccountKey]
	requester *requester.Requester[ledger.AccountKey, ledger.Balance]
	pager     *pager.Pager
	tracker   *status.Tracker

	balances     *sink.Store[ledger.AccountKey, ledger.Balance]
	transactions *sink.Store[ledger.AccountKey, []ledger.Transaction]
	historyLock  sync.Mutex

	balancesWorker     *worker.Facade[[]ledger.AccountKey, BalanceUpdate]
	transactionsWorker *worker.Facade[[]ledger.AccountKey, HistoryUpdate]
}

// New returns a Synchronizer reading from client.
func New(client ledger.Client, options Options) (*Synchronizer, error) {
	if options.CacheTTL <= 0 {
		options.CacheTTL = cache.DefaultTTL
	}

	historyPager, err := pager.New(certifiedTransactions(client), options.History)
	if err != nil {
		return nil, err
	}

	return &Synchronizer{
		client:             client,
		options:            options,
		guard:              loadguard.New[ledger.AccountKey](),
		requester:          requester.New(cache.New[ledger.AccountKey, ledger.Balance](options.CacheTTL)),
		pager:              historyPager,
		tracker:            status.NewTracker(BalancesChannel, TransactionsChannel),
		balances:           sink.New[ledger.AccountKey, ledger.Balance](),
		transactions:       sink.New[ledger.AccountKey, []ledger.Transaction](),
		balancesWorker:     worker.NewFacade(BalancesChannel, BalancesRunner(client, options.CacheTTL), 0),
		transactionsWorker: worker.NewFacade(TransactionsChannel, TransactionsRunner(client, options.History), 0),
	}, nil
}

// Balances returns the sink holding the account balances.
func (s *Synchronizer) Balances() *sink.Store[ledger.AccountKey, ledger.Balance] {
	return s.balances
}

// Transactions returns the sink holding the account histories, newest transaction first.
func (s *Synchronizer) Transactions() *sink.Store[ledger.AccountKey, []ledger.Transaction] {
	return s.transactions
}

// Tracker returns the status of the background channels.
func (s *Synchronizer) Tracker() *status.Tracker {
	return s.tracker
}

// LoadBalances loads the balances of the accounts never loaded in this session. It returns the
// handles of the issued calls, one per account not served by the certified cache.
func (s *Synchronizer) LoadBalances(ctx context.Context, accounts ...ledger.AccountKey) []*requester.Call {
	admitted := s.guard.Admit(accounts...)
	if len(admitted) == 0 {
		logger.FromContext(ctx).WithName(loggerName).Trace("balances already loaded in this session", "accounts", len(accounts))
		return nil
	}
	return s.ReloadBalances(ctx, admitted...)
}

// ReloadBalances loads the balances of accounts skipping the load guard. Accounts with a
// certified value still in cache are published from it without reaching the ledger.
func (s *Synchronizer) ReloadBalances(ctx context.Context, accounts ...ledger.AccountKey) []*requester.Call {
	log := logger.FromContext(ctx).WithName(loggerName)

	calls := make([]*requester.Call, 0, len(accounts))
	for _, account := range accounts {
		if balance, ok := s.requester.Cache().Get(account, trust.Certified); ok {
			log.Trace("certified balance served from cache", "account", account.String())
			s.balances.Set(account, balance, trust.Certified)
			continue
		}

		call, err := s.requester.Do(ctx, s.balanceRequest(log, account))
		if err != nil {
			log.Error("cannot request balance", "account", account.String(), "error", err)
			continue
		}
		calls = append(calls, call)
	}

	return calls
}

func (s *Synchronizer) balanceRequest(log logger.Logger, account ledger.AccountKey) requester.Request[ledger.AccountKey, ledger.Balance] {
	return requester.Request[ledger.AccountKey, ledger.Balance]{
		Key:      account,
		Strategy: requester.QueryAndUpdate,
		Unverified: func(ctx context.Context) (ledger.Balance, error) {
			return s.client.Balance(ctx, account, trust.Unverified)
		},
		Certified: func(ctx context.Context) (ledger.Balance, error) {
			return s.client.Balance(ctx, account, trust.Certified)
		},
		OnResult: func(balance ledger.Balance, level trust.Level) {
			s.balances.Set(account, balance, level)
		},
		OnError: func(err error, level trust.Level) {
			if level == trust.Unverified {
				log.Debug("unverified balance failed, waiting for certified one", "account", account.String(), "error", err)
				return
			}

			s.failBalance(log, account, err)
		},
	}
}

// failBalance discards the balance of account after a certified failure.
func (s *Synchronizer) failBalance(log logger.Logger, account ledger.AccountKey, err error) {
	log.Error("certified balance failed", "account", account.String(), "error", err)
	s.requester.Cache().Invalidate(account, trust.Certified)
	s.balances.Reset(account)
	if s.options.OnFailure != nil {
		s.options.OnFailure(account, err)
	}
}

// LoadHistory fetches the whole history of account and merges it into the transactions sink.
// The merged value is certified only when the walk reached the oldest transaction.
func (s *Synchronizer) LoadHistory(ctx context.Context, account ledger.AccountKey) pager.Result {
	result := s.pager.Fetch(ctx, account)
	s.mergeHistory(ctx, HistoryUpdate{
		Account:      account,
		Transactions: result.Transactions,
		Completed:    result.Completed,
	})
	return result
}

func (s *Synchronizer) mergeHistory(ctx context.Context, update HistoryUpdate) {
	s.historyLock.Lock()
	defer s.historyLock.Unlock()

	level := trust.Unverified
	if update.Completed {
		level = trust.Certified
	}

	var current []ledger.Transaction
	if entry, ok := s.transactions.Get(update.Account); ok {
		current = entry.Value
	}

	if !s.transactions.Set(update.Account, mergeTransactions(current, update.Transactions), level) {
		logger.FromContext(ctx).WithName(loggerName).Debug("partial history not merged over certified one", "account", update.Account.String())
	}
}

// ResetSession forgets every loaded account: the load guard, the balance cache and both sinks
// are cleared.
func (s *Synchronizer) ResetSession() {
	s.guard.ResetAll()
	s.requester.Cache().Purge()
	s.balances.ResetAll()
	s.transactions.ResetAll()
}

// StartWorkers starts the background synchronization of accounts every interval. The workers
// live until ctx is done.
func (s *Synchronizer) StartWorkers(ctx context.Context, interval time.Duration, accounts []ledger.AccountKey) error {
	if len(accounts) == 0 {
		return ErrNoAccounts
	}

	log := logger.FromContext(ctx).WithName(loggerName)
	log.Info("starting background synchronization", "accounts", len(accounts), "interval", interval.String())

	err := s.balancesWorker.Start(ctx, interval, slices.Clone(accounts), worker.Callbacks[BalanceUpdate]{
		OnResult: func(update BalanceUpdate) {
			if update.Err != nil {
				s.failBalance(log, update.Account, update.Err)
				return
			}
			s.balances.Set(update.Account, update.Balance, update.Level)
		},
		OnStatus: func(st status.Status) {
			s.tracker.Set(BalancesChannel, st)
		},
	})
	if err != nil {
		return err
	}

	return s.transactionsWorker.Start(ctx, interval, slices.Clone(accounts), worker.Callbacks[HistoryUpdate]{
		OnResult: func(update HistoryUpdate) {
			s.mergeHistory(ctx, update)
		},
		OnStatus: func(st status.Status) {
			s.tracker.Set(TransactionsChannel, st)
		},
	})
}

// StopWorkers cancels the future runs of both background workers.
func (s *Synchronizer) StopWorkers(ctx context.Context) error {
	return errors.Join(
		s.balancesWorker.Stop(ctx),
		s.transactionsWorker.Stop(ctx),
	)
}

// mergeTransactions returns the union of current and incoming, newest first.
func mergeTransactions(current, incoming []ledger.Transaction) []ledger.Transaction {
	byID := make(map[ledger.TxID]ledger.Transaction, len(current)+len(incoming))
	for _, tx := range current {
		byID[tx.ID] = tx
	}
	for _, tx := range incoming {
		byID[tx.ID] = tx
	}

	merged := make([]ledger.Transaction, 0, len(byID))
	for _, tx := range byID {
		merged = append(merged, tx)
	}
	slices.SortFunc(merged, func(a, b ledger.Transaction) int {
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		default:
			return 0
		}
	})
	return merged
}

func certifiedTransactions(client ledger.Client) pager.FetchFunc {
	return func(ctx context.Context, req ledger.TransactionsRequest) (ledger.TransactionsPage, error) {
		return client.Transactions(ctx, req, trust.Certified)
	}
}

// Balance returns the balance of account, loading it when the sink does not hold it yet. It
// waits for both channels of the load, so the returned entry is the most trusted one obtained.
func (s *Synchronizer) Balance(ctx context.Context, account ledger.AccountKey) (sink.Entry[ledger.Balance], bool, error) {
	if entry, ok := s.balances.Get(account); ok {
		return entry, true, nil
	}

	for _, call := range s.LoadBalances(ctx, account) {
		if err := call.Wait(ctx); err != nil {
			return sink.Entry[ledger.Balance]{}, false, err
		}
	}

	entry, ok := s.balances.Get(account)
	return entry, ok, nil
}

// History returns the history of account, walking it when the sink does not hold it yet.
func (s *Synchronizer) History(ctx context.Context, account ledger.AccountKey) (sink.Entry[[]ledger.Transaction], bool, error) {
	if entry, ok := s.transactions.Get(account); ok {
		return entry, true, nil
	}

	s.LoadHistory(ctx, account)
	if err := ctx.Err(); err != nil {
		return sink.Entry[[]ledger.Transaction]{}, false, err
	}

	entry, ok := s.transactions.Get(account)
	return entry, ok, nil
}

// SyncStatus returns the overall status together with the status of every channel.
func (s *Synchronizer) SyncStatus() (status.Status, map[string]status.Status) {
	channels := s.tracker.Snapshot()
	return status.Aggregate(channels), channels
}
