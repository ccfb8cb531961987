// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package requester

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mia-platform/ledgersync/internal/cache"
	"github.com/mia-platform/ledgersync/internal/logger"
	"github.com/mia-platform/ledgersync/internal/trust"
)

const (
	loggerName = "ledgersync:requester"
)

var (
	// ErrInvalidRequest reports a request missing the fetch function required by its strategy.
	ErrInvalidRequest = errors.New("invalid request")
)

// Strategy selects which channels a request uses.
type Strategy int

const (
	// QueryAndUpdate starts both channels at once; it is the default.
	QueryAndUpdate Strategy = iota
	// QueryOnly runs only the unverified channel.
	QueryOnly
	// UpdateOnly runs only the certified channel.
	UpdateOnly
)

func (s Strategy) String() string {
	switch s {
	case QueryAndUpdate:
		return "query_and_update"
	case QueryOnly:
		return "query"
	case UpdateOnly:
		return "update"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

func (s Strategy) levels() []trust.Level {
	switch s {
	case QueryOnly:
		return []trust.Level{trust.Unverified}
	case UpdateOnly:
		return []trust.Level{trust.Certified}
	default:
		return []trust.Level{trust.Unverified, trust.Certified}
	}
}

// FetchFunc reads a value from one ledger channel.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// Request describes a single dual channel read.
type Request[K comparable, V any] struct {
	Key      K
	Strategy Strategy

	// Unverified is the fast query call.
	Unverified FetchFunc[V]
	// Certified is the slow update call returning certified data.
	Certified FetchFunc[V]

	// OnResult receives every delivered value tagged with its trust level.
	OnResult func(value V, level trust.Level)
	// OnError receives every channel failure tagged with the trust level of the failed channel.
	// Callers usually ignore unverified failures while the certified channel is pending and
	// surface certified ones to the user.
	OnError func(err error, level trust.Level)
}

func (r Request[K, V]) fetcher(level trust.Level) FetchFunc[V] {
	if level == trust.Certified {
		return r.Certified
	}
	return r.Unverified
}

func (r Request[K, V]) validate() error {
	for _, level := range r.Strategy.levels() {
		if r.fetcher(level) == nil {
			return fmt.Errorf("%w: missing %s fetch function for strategy %s", ErrInvalidRequest, level, r.Strategy)
		}
	}
	return nil
}

// Requester issues dual channel reads and keeps the response cache in sync with them.
type Requester[K comparable, V any] struct {
	cache *cache.Cache[K, V]
}

// New returns a Requester writing every successful completion into c.
func New[K comparable, V any](c *cache.Cache[K, V]) *Requester[K, V] {
	return &Requester[K, V]{
		cache: c,
	}
}

// Cache returns the response cache backing the requester.
func (r *Requester[K, V]) Cache() *cache.Cache[K, V] {
	return r.cache
}

// Do starts the channels selected by req.Strategy and returns without waiting for them.
// Completions are delivered through req.OnResult and req.OnError, one at a time.
func (r *Requester[K, V]) Do(ctx context.Context, req Request[K, V]) (*Call, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	call := newCall()
	log := logger.FromContext(ctx).WithName(loggerName).With("callId", call.id, "key", fmt.Sprint(req.Key))
	log.Trace("starting request", "strategy", req.Strategy.String())

	levels := req.Strategy.levels()
	call.pending.Add(len(levels))
	for _, level := range levels {
		go func() {
			defer call.pending.Done()
			value, err := req.fetcher(level)(ctx)
			r.complete(log, call, req, level, value, err)
		}()
	}

	go func() {
		call.pending.Wait()
		close(call.done)
		log.Trace("request completed", "suppressed", call.Suppressed())
	}()

	return call, nil
}

// complete delivers a single channel completion. The call lock serialises deliveries so the
// cache write and the callback of one channel never interleave with the other one.
func (r *Requester[K, V]) complete(log logger.Logger, call *Call, req Request[K, V], level trust.Level, value V, err error) {
	call.lock.Lock()
	defer call.lock.Unlock()

	if level == trust.Unverified && call.certifiedDelivered {
		call.suppressed++
		log.Debug("stale unverified completion suppressed", "failed", err != nil)
		return
	}

	if err != nil {
		if level == trust.Certified {
			r.cache.Invalidate(req.Key, trust.Certified)
		}

		log.Debug("channel failed", "trustLevel", level.String(), "error", err)
		if req.OnError != nil {
			req.OnError(err, level)
		}
		return
	}

	r.cache.Put(req.Key, value, level)
	if level == trust.Certified {
		call.certifiedDelivered = true
	}
	log.Trace("channel completed", "trustLevel", level.String())
	if req.OnResult != nil {
		req.OnResult(value, level)
	}
}

// Call is the handle of an issued request.
type Call struct {
	id      string
	pending sync.WaitGroup
	done    chan struct{}

	lock               sync.Mutex
	certifiedDelivered bool
	suppressed         int
}

func newCall() *Call {
	return &Call{
		id:   uuid.NewString(),
		done: make(chan struct{}),
	}
}

// ID returns the identifier used to correlate the call logs.
func (c *Call) ID() string {
	return c.id
}

// Done is closed once every channel of the call has completed and been delivered.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call is done or ctx expires.
func (c *Call) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Suppressed returns how many stale completions have been dropped so far.
func (c *Call) Suppressed() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.suppressed
}
