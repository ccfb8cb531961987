// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package loadguard keeps track of the resources already requested during a session.
//
// Admission is deliberately neither a TTL nor an in-flight lock: a key stays admitted for the
// whole session whatever the outcome of the load it gated, because freshness after the first
// load is owned by the background polling workers. Only ResetAll, called when the session
// identity changes, re-enables explicit loads.
package loadguard

import "sync"

// Guard is a session scoped registry of admitted keys. Create one per session and pass it
// to the components that must share it.
type Guard[K comparable] struct {
	admitted map[K]struct{}

	lock sync.Mutex
}

// New returns an empty Guard.
func New[K comparable]() *Guard[K] {
	return &Guard[K]{
		admitted: make(map[K]struct{}),
	}
}

// Admit returns, in input order, the keys never admitted before and marks them as admitted.
// The check and the mark happen in a single critical section so concurrent callers racing on
// the same key cannot both receive it.
func (g *Guard[K]) Admit(keys ...K) []K {
	g.lock.Lock()
	defer g.lock.Unlock()

	admitted := make([]K, 0, len(keys))
	for _, key := range keys {
		if _, found := g.admitted[key]; found {
			continue
		}

		g.admitted[key] = struct{}{}
		admitted = append(admitted, key)
	}

	return admitted
}

// Admitted reports whether key has already been admitted in this session.
func (g *Guard[K]) Admitted(key K) bool {
	g.lock.Lock()
	defer g.lock.Unlock()

	_, found := g.admitted[key]
	return found
}

// ResetAll forgets every admitted key.
func (g *Guard[K]) ResetAll() {
	g.lock.Lock()
	defer g.lock.Unlock()

	clear(g.admitted)
}
