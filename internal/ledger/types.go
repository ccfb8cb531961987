// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package ledger

import (
	"context"
	"slices"
	"time"

	"github.com/mia-platform/ledgersync/internal/trust"
)

// AccountKey identifies an account on a given ledger.
type AccountKey struct {
	Ledger  string `json:"ledger" yaml:"ledger"`
	Account string `json:"account" yaml:"account"`
}

func (k AccountKey) String() string {
	return k.Ledger + "/" + k.Account
}

// TxID is the index of a transaction in the ledger log.
type TxID uint64

// Transaction is a single entry of an account history.
type Transaction struct {
	ID        TxID      `json:"id"`
	Kind      string    `json:"kind"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Amount    uint64    `json:"amount"`
	Fee       uint64    `json:"fee,omitempty"`
	Memo      string    `json:"memo,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Balance is the amount held by an account.
type Balance struct {
	Amount uint64 `json:"amount"`
}

// TransactionsRequest selects a page of an account history. Start is exclusive: the page
// contains transactions strictly older than Start, or the newest ones when Start is nil.
type TransactionsRequest struct {
	Account    AccountKey `json:"account"`
	Start      *TxID      `json:"start,omitempty"`
	MaxResults int        `json:"maxResults"`
}

// TransactionsPage is a page of an account history ordered from newest to oldest.
type TransactionsPage struct {
	Transactions []Transaction `json:"transactions"`
	// OldestTxID is the id of the first transaction ever recorded for the account, nil when
	// the account has no history.
	OldestTxID *TxID `json:"oldestTxId,omitempty"`
}

// Contains reports whether the page includes the transaction id.
func (p TransactionsPage) Contains(id TxID) bool {
	return slices.ContainsFunc(p.Transactions, func(tx Transaction) bool {
		return tx.ID == id
	})
}

// Client reads ledger resources at the requested trust level: trust.Unverified selects the
// query channel, trust.Certified the update one.
type Client interface {
	Balance(ctx context.Context, account AccountKey, level trust.Level) (Balance, error)
	Transactions(ctx context.Context, req TransactionsRequest, level trust.Level) (TransactionsPage, error)
}
