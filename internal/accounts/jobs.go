// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package accounts

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mia-platform/ledgersync/internal/cache"
	"github.com/mia-platform/ledgersync/internal/ledger"
	"github.com/mia-platform/ledgersync/internal/logger"
	"github.com/mia-platform/ledgersync/internal/pager"
	"github.com/mia-platform/ledgersync/internal/requester"
	"github.com/mia-platform/ledgersync/internal/timer"
	"github.com/mia-platform/ledgersync/internal/trust"
	"github.com/mia-platform/ledgersync/internal/worker"
)

// BalanceUpdate is emitted by the balances worker when an account balance changes. Err is set
// when the certified read failed and the balance must be discarded.
type BalanceUpdate struct {
	Account ledger.AccountKey
	Balance ledger.Balance
	Level   trust.Level
	Err     error
}

// HistoryUpdate is emitted by the transactions worker when an account history changes.
type HistoryUpdate struct {
	Account      ledger.AccountKey
	Transactions []ledger.Transaction
	Completed    bool
}

// BalancesRunner returns the runner of the balances worker. Every run reads all the accounts
// through both channels and emits only the values differing from the last emitted ones; a run
// fails when at least one certified read fails.
func BalancesRunner(client ledger.Client, ttl time.Duration) worker.Runner[[]ledger.AccountKey, BalanceUpdate] {
	return func(accounts []ledger.AccountKey, emit func(BalanceUpdate)) timer.Job {
		local := requester.New(cache.New[ledger.AccountKey, ledger.Balance](ttl))
		var lock sync.Mutex
		emitted := make(map[ledger.AccountKey]BalanceUpdate, len(accounts))

		return func(ctx context.Context) error {
			log := logger.FromContext(ctx).WithName(loggerName).With("channel", BalancesChannel)

			var errs []error
			calls := make([]*requester.Call, 0, len(accounts))
			for _, account := range accounts {
				call, err := local.Do(ctx, requester.Request[ledger.AccountKey, ledger.Balance]{
					Key: account,
					Unverified: func(ctx context.Context) (ledger.Balance, error) {
						return client.Balance(ctx, account, trust.Unverified)
					},
					Certified: func(ctx context.Context) (ledger.Balance, error) {
						return client.Balance(ctx, account, trust.Certified)
					},
					OnResult: func(balance ledger.Balance, level trust.Level) {
						lock.Lock()
						defer lock.Unlock()

						last, ok := emitted[account]
						if ok && last.Balance == balance && last.Level.AtLeast(level) {
							return
						}

						update := BalanceUpdate{Account: account, Balance: balance, Level: level}
						emitted[account] = update
						emit(update)
					},
					OnError: func(err error, level trust.Level) {
						if level == trust.Unverified {
							log.Trace("unverified balance failed", "account", account.String(), "error", err)
							return
						}

						lock.Lock()
						defer lock.Unlock()
						delete(emitted, account)
						errs = append(errs, fmt.Errorf("%s: %w", account, err))
						emit(BalanceUpdate{Account: account, Err: err})
					},
				})
				if err != nil {
					return err
				}
				calls = append(calls, call)
			}

			for _, call := range calls {
				if err := call.Wait(ctx); err != nil {
					return err
				}
			}

			lock.Lock()
			defer lock.Unlock()
			return errors.Join(errs...)
		}
	}
}

// TransactionsRunner returns the runner of the transactions worker. Every run walks the history
// of all the accounts and emits the ones whose content or completion changed.
func TransactionsRunner(client ledger.Client, options pager.Options) worker.Runner[[]ledger.AccountKey, HistoryUpdate] {
	return func(accounts []ledger.AccountKey, emit func(HistoryUpdate)) timer.Job {
		type digest struct {
			ids       []ledger.TxID
			completed bool
		}
		emitted := make(map[ledger.AccountKey]digest, len(accounts))

		return func(ctx context.Context) error {
			historyPager, err := pager.New(certifiedTransactions(client), options)
			if err != nil {
				return err
			}

			incomplete := 0
			for _, account := range accounts {
				result := historyPager.Fetch(ctx, account)
				if !result.Completed {
					incomplete++
				}

				current := digest{ids: transactionIDs(result.Transactions), completed: result.Completed}
				if last, ok := emitted[account]; ok && last.completed == current.completed && slices.Equal(last.ids, current.ids) {
					continue
				}

				emitted[account] = current
				emit(HistoryUpdate{
					Account:      account,
					Transactions: result.Transactions,
					Completed:    result.Completed,
				})
			}

			if incomplete > 0 {
				logger.FromContext(ctx).WithName(loggerName).Warn("some histories are incomplete", "channel", TransactionsChannel, "accounts", incomplete)
			}
			return nil
		}
	}
}

func transactionIDs(transactions []ledger.Transaction) []ledger.TxID {
	ids := make([]ledger.TxID, 0, len(transactions))
	for _, tx := range transactions {
		ids = append(ids, tx.ID)
	}
	return ids
}
