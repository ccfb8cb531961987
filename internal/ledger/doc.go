// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package ledger defines the ledger RPC contract consumed by the synchronization engine and an
// HTTP JSON implementation of it.
//
// Every resource can be read through two channels: the query channel answers fast without any
// proof, the update channel answers slowly with a certificate and is treated as authoritative.
package ledger
