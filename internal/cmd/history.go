// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mia-platform/ledgersync/internal/ledger"
	"github.com/mia-platform/ledgersync/internal/pager"
	"github.com/mia-platform/ledgersync/internal/trust"
)

// historyOptions holds the options set for the current history function.
type historyOptions struct {
	account       ledger.AccountKey
	pageSize      int
	maxIterations int
	writer        io.Writer

	clientGetter func() (ledger.Client, error)
}

type historyOutput struct {
	Ledger       string               `json:"ledger"`
	Account      string               `json:"account"`
	Completed    bool                 `json:"completed"`
	Iterations   int                  `json:"iterations"`
	Transactions []ledger.Transaction `json:"transactions"`
}

func (o *historyOptions) validate() error {
	if o.pageSize < 0 {
		return fmt.Errorf("%w: --%s cannot be negative", pager.ErrInvalidOptions, pageSizeFlagName)
	}
	if o.maxIterations < 0 {
		return fmt.Errorf("%w: --%s cannot be negative", pager.ErrInvalidOptions, maxIterationsFlagName)
	}
	return nil
}

// execute walks the certified history of the account and prints it as json.
func (o *historyOptions) execute(ctx context.Context) error {
	client, err := o.clientGetter()
	if err != nil {
		return err
	}

	fetch := func(ctx context.Context, req ledger.TransactionsRequest) (ledger.TransactionsPage, error) {
		return client.Transactions(ctx, req, trust.Certified)
	}

	historyPager, err := pager.New(fetch, pager.Options{PageSize: o.pageSize, MaxIterations: o.maxIterations})
	if err != nil {
		return err
	}

	result := historyPager.Fetch(ctx, o.account)
	output := historyOutput{
		Ledger:       o.account.Ledger,
		Account:      o.account.Account,
		Completed:    result.Completed,
		Iterations:   result.Iterations,
		Transactions: result.Transactions,
	}
	if output.Transactions == nil {
		output.Transactions = []ledger.Transaction{}
	}

	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
