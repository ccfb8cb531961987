// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package status models the state of the synchronization channels and derives the overall
// synchronization status from them.
package status

import (
	"maps"
	"strings"
	"sync"
)

//go:generate ${TOOLS_BIN}/stringer -type=Status
type Status int

const (
	// Idle is the state of a channel that is not running a job.
	Idle Status = iota
	// InProgress is the state of a channel running a job.
	InProgress
	// Error is the state of a channel whose last job failed. Only a new successful run clears it.
	Error
)

// MarshalText renders the status as a snake case name.
func (s Status) MarshalText() ([]byte, error) {
	if s == InProgress {
		return []byte("in_progress"), nil
	}
	return []byte(strings.ToLower(s.String())), nil
}

// Aggregate derives the overall status of a set of channels: any Error wins, then any
// InProgress, otherwise Idle. An empty set is Idle.
func Aggregate(channels map[string]Status) Status {
	overall := Idle
	for _, s := range channels {
		switch s {
		case Error:
			return Error
		case InProgress:
			overall = InProgress
		}
	}

	return overall
}

// Tracker holds the status of named channels. Channels are created Idle the first time they
// are referenced.
type Tracker struct {
	channels map[string]Status

	lock sync.RWMutex
}

// NewTracker returns a Tracker with the given channels already registered as Idle.
func NewTracker(names ...string) *Tracker {
	channels := make(map[string]Status, len(names))
	for _, name := range names {
		channels[name] = Idle
	}

	return &Tracker{
		channels: channels,
	}
}

// Set records the status of the named channel.
func (t *Tracker) Set(name string, s Status) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.channels[name] = s
}

// Get returns the status of the named channel, Idle if unknown.
func (t *Tracker) Get(name string) Status {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.channels[name]
}

// Snapshot returns a copy of every channel status.
func (t *Tracker) Snapshot() map[string]Status {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return maps.Clone(t.channels)
}

// Overall aggregates the current channel statuses.
func (t *Tracker) Overall() Status {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return Aggregate(t.channels)
}
