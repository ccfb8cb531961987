// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package pager walks an account history backward from the newest transaction until the
// oldest one recorded by the ledger is reached or the iteration cap is hit.
package pager

import (
	"context"
	"errors"

	"github.com/mia-platform/ledgersync/internal/ledger"
	"github.com/mia-platform/ledgersync/internal/logger"
)

const (
	loggerName = "ledgersync:pager"

	DefaultPageSize      = 100
	DefaultMaxIterations = 20
)

var (
	// ErrInvalidOptions reports a non positive page size or iteration cap.
	ErrInvalidOptions = errors.New("page size and max iterations must be greater than zero")
)

// FetchFunc reads one page of history.
type FetchFunc func(ctx context.Context, req ledger.TransactionsRequest) (ledger.TransactionsPage, error)

// Options bounds a single Fetch.
type Options struct {
	PageSize      int
	MaxIterations int
}

// Result is the history accumulated by a Fetch. Completed is false when the walk stopped
// before reaching the oldest transaction, either for a failure or for the iteration cap.
type Result struct {
	Transactions []ledger.Transaction `json:"transactions"`
	Completed    bool                 `json:"completed"`
	Iterations   int                  `json:"iterations"`
}

// Pager fetches full account histories.
type Pager struct {
	fetch   FetchFunc
	options Options
}

// New returns a Pager reading pages with fetch. Zero values in options are replaced by defaults.
func New(fetch FetchFunc, options Options) (*Pager, error) {
	if options.PageSize == 0 {
		options.PageSize = DefaultPageSize
	}
	if options.MaxIterations == 0 {
		options.MaxIterations = DefaultMaxIterations
	}
	if options.PageSize < 0 || options.MaxIterations < 0 {
		return nil, ErrInvalidOptions
	}

	return &Pager{
		fetch:   fetch,
		options: options,
	}, nil
}

// Fetch returns the history of account, newest first. It never fails: a page error is
// logged and the transactions accumulated so far are returned with Completed set to false.
func (p *Pager) Fetch(ctx context.Context, account ledger.AccountKey) Result {
	log := logger.FromContext(ctx).WithName(loggerName).With("account", account.String())

	result := Result{}
	seen := make(map[ledger.TxID]struct{})
	var cursor *ledger.TxID

	for {
		req := ledger.TransactionsRequest{
			Account:    account,
			Start:      cursor,
			MaxResults: p.options.PageSize,
		}

		page, err := p.fetch(ctx, req)
		result.Iterations++
		if err != nil {
			log.Error("history page fetch failed", "iteration", result.Iterations, "error", err)
			return result
		}

		if len(page.Transactions) == 0 {
			log.Trace("empty history page", "iteration", result.Iterations)
			result.Completed = true
			return result
		}

		oldestInPage := page.Transactions[0].ID
		for _, tx := range page.Transactions {
			if tx.ID < oldestInPage {
				oldestInPage = tx.ID
			}
			if _, ok := seen[tx.ID]; ok {
				continue
			}
			seen[tx.ID] = struct{}{}
			result.Transactions = append(result.Transactions, tx)
		}

		if page.OldestTxID == nil || page.Contains(*page.OldestTxID) {
			result.Completed = true
			log.Debug("history completed", "transactions", len(result.Transactions), "iterations", result.Iterations)
			return result
		}

		if result.Iterations >= p.options.MaxIterations {
			log.Warn("history iteration cap reached, returning partial result",
				"transactions", len(result.Transactions),
				"maxIterations", p.options.MaxIterations,
			)
			return result
		}

		if cursor != nil && oldestInPage >= *cursor {
			log.Warn("history cursor did not move backward, returning partial result", "cursor", uint64(*cursor))
			return result
		}
		cursor = &oldestInPage
	}
}
