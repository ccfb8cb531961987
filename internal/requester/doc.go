// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package requester fetches one logical resource through the two ledger channels and
// reconciles their trust levels.
//
// With the QueryAndUpdate strategy the unverified query and the certified update race each
// other. Their completions are delivered independently, but trust never goes backward within
// a call: once the certified channel has settled, a late unverified completion is dropped
// instead of overwriting the authoritative answer.
package requester
