// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package sink implements the reactive state store consumed by the user facing layers.
// The engine only writes to it; subscribers are notified of every accepted change.
package sink

import (
	"maps"
	"sync"

	"github.com/mia-platform/ledgersync/internal/trust"
)

// Entry is the value currently exposed for a key.
type Entry[V any] struct {
	Value V           `json:"value"`
	Level trust.Level `json:"trustLevel"`
}

// Update is delivered to subscribers on every accepted change. Removed is true for resets.
type Update[K comparable, V any] struct {
	Key     K
	Entry   Entry[V]
	Removed bool
}

// Store keeps the last value per key. The trust level recorded for a key never decreases
// until the key is reset. Subscribers observe the changes in the order they were applied and
// must not write to the store they are notified by.
type Store[K comparable, V any] struct {
	entries     map[K]Entry[V]
	subscribers map[int]func(Update[K, V])
	nextID      int

	lock sync.Mutex

	// writeLock serialises every change together with its notification.
	writeLock sync.Mutex
}

// New returns an empty Store.
func New[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{
		entries:     make(map[K]Entry[V]),
		subscribers: make(map[int]func(Update[K, V])),
	}
}

// Set stores value for key at level. It returns false, leaving the store untouched, when the
// key already holds a value with a higher trust level.
func (s *Store[K, V]) Set(key K, value V, level trust.Level) bool {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	s.lock.Lock()
	current, found := s.entries[key]
	if found && !level.AtLeast(current.Level) {
		s.lock.Unlock()
		return false
	}

	entry := Entry[V]{Value: value, Level: level}
	s.entries[key] = entry
	subscribers := s.subscriberList()
	s.lock.Unlock()

	notify(subscribers, Update[K, V]{Key: key, Entry: entry})
	return true
}

// Reset removes the value of key, allowing a lower trust level to be stored again.
func (s *Store[K, V]) Reset(key K) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	s.lock.Lock()
	if _, found := s.entries[key]; !found {
		s.lock.Unlock()
		return
	}

	delete(s.entries, key)
	subscribers := s.subscriberList()
	s.lock.Unlock()

	notify(subscribers, Update[K, V]{Key: key, Removed: true})
}

// ResetAll removes every stored value.
func (s *Store[K, V]) ResetAll() {
	s.lock.Lock()
	keys := make([]K, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	s.lock.Unlock()

	for _, key := range keys {
		s.Reset(key)
	}
}

// Get returns the entry stored for key.
func (s *Store[K, V]) Get(key K) (Entry[V], bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	entry, found := s.entries[key]
	return entry, found
}

// Snapshot returns a copy of every stored entry.
func (s *Store[K, V]) Snapshot() map[K]Entry[V] {
	s.lock.Lock()
	defer s.lock.Unlock()
	return maps.Clone(s.entries)
}

// Subscribe registers fn for every future update and returns the function removing it.
// Updates are delivered synchronously on the goroutine that caused them.
func (s *Store[K, V]) Subscribe(fn func(Update[K, V])) func() {
	s.lock.Lock()
	defer s.lock.Unlock()

	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn

	return func() {
		s.lock.Lock()
		defer s.lock.Unlock()
		delete(s.subscribers, id)
	}
}

// subscriberList must be called with the lock held.
func (s *Store[K, V]) subscriberList() []func(Update[K, V]) {
	subscribers := make([]func(Update[K, V]), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	return subscribers
}

func notify[K comparable, V any](subscribers []func(Update[K, V]), update Update[K, V]) {
	for _, fn := range subscribers {
		fn(update)
	}
}
