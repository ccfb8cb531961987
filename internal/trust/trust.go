// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package trust defines the trust levels attached to every value read from the ledger.
package trust

import "strings"

//go:generate ${TOOLS_BIN}/stringer -type=Level
type Level int

const (
	// Unverified marks data returned by a query call, fast but without a certificate.
	Unverified Level = iota
	// Certified marks data returned by an update call together with a verifiable certificate.
	Certified
)

// Levels lists every trust level in ascending order.
var Levels = []Level{Unverified, Certified}

// AtLeast reports whether l is as trustworthy as other.
func (l Level) AtLeast(other Level) bool {
	return l >= other
}

// MarshalText renders the level as a lowercase name, used by the JSON encoders of the
// status server and of the update publisher.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(l.String())), nil
}
