// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package publisher

import (
	"context"
	"errors"

	"github.com/mia-platform/ledgersync/internal/ledger"
	"github.com/mia-platform/ledgersync/internal/sink"
	"github.com/mia-platform/ledgersync/internal/trust"
)

const (
	BalanceResource      = "balance"
	TransactionsResource = "transactions"

	upsertOperation = "upsert"
	deleteOperation = "delete"
)

var (
	// ErrPublisher wraps every failure of a Sender.
	ErrPublisher = errors.New("publisher")
)

// Sender delivers updates to a destination.
type Sender interface {
	Send(ctx context.Context, update Update) error
	Close() error
}

// Update is the message published for every sink change.
type Update struct {
	Resource   string      `json:"resource"`
	Ledger     string      `json:"ledger"`
	Account    string      `json:"account"`
	Removed    bool        `json:"removed,omitempty"`
	TrustLevel trust.Level `json:"trustLevel"`
	Value      any         `json:"value,omitempty"`
}

// Operation returns the kind of change carried by the update.
func (u Update) Operation() string {
	if u.Removed {
		return deleteOperation
	}
	return upsertOperation
}

// FromBalance converts a balances sink change.
func FromBalance(update sink.Update[ledger.AccountKey, ledger.Balance]) Update {
	return fromSink(BalanceResource, update)
}

// FromHistory converts a transactions sink change.
func FromHistory(update sink.Update[ledger.AccountKey, []ledger.Transaction]) Update {
	return fromSink(TransactionsResource, update)
}

func fromSink[V any](resource string, update sink.Update[ledger.AccountKey, V]) Update {
	converted := Update{
		Resource: resource,
		Ledger:   update.Key.Ledger,
		Account:  update.Key.Account,
		Removed:  update.Removed,
	}
	if !update.Removed {
		converted.TrustLevel = update.Entry.Level
		converted.Value = update.Entry.Value
	}
	return converted
}

// PublisherError reports a delivery failure.
type PublisherError struct {
	err error
}

func (e *PublisherError) Error() string {
	return ErrPublisher.Error() + ": " + e.err.Error()
}

func (e *PublisherError) Unwrap() error {
	return e.err
}

func (e *PublisherError) Is(target error) bool {
	return target == ErrPublisher
}
