// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package accounts keeps account balances and histories synchronized with the ledger.
//
// Explicit loads are gated by a session wide load guard and go through the dual channel
// requester, publishing every accepted value into the balances and transactions sinks.
// Freshness after the first load is owned by two background workers, one per channel, whose
// status feeds the tracker exposed by the synchronizer.
package accounts
