package stream

import (
	"math"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kbukum/pushflow/errors"
)

// MaxDemand is the unbounded-demand sentinel. Once a counter reaches it,
// it is never decremented.
const MaxDemand int64 = math.MaxInt64

// Subscription is the consumer's handle on an active stream.
type Subscription interface {
	// Request adds n to the outstanding demand. n <= 0 is a protocol
	// violation and is signalled as an INVALID_DEMAND error.
	Request(n int64)
	// Cancel stops delivery. It is idempotent and may race with emission.
	Cancel()
	// IsActive reports whether neither a terminal signal nor a cancel has
	// happened.
	IsActive() bool
	// Requested returns the current outstanding demand.
	Requested() int64
}

// addDemand adds n to counter, saturating at MaxDemand, and returns the
// previous value.
func addDemand(counter *atomic.Int64, n int64) int64 {
	for {
		cur := counter.Load()
		if cur == MaxDemand {
			return cur
		}
		next := cur + n
		if next < 0 {
			next = MaxDemand
		}
		if counter.CompareAndSwap(cur, next) {
			return cur
		}
	}
}

// produced subtracts k from counter unless it is unbounded and returns the
// new value. The counter never goes below zero.
func produced(counter *atomic.Int64, k int64) int64 {
	for {
		cur := counter.Load()
		if cur == MaxDemand {
			return cur
		}
		next := cur - k
		if next < 0 {
			next = 0
		}
		if counter.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// SubscriptionHooks connects a StreamSubscription to the producer behind it.
type SubscriptionHooks struct {
	// Drain emits as much as the outstanding demand allows. It is never run
	// concurrently with itself; calls arriving while it runs are folded
	// into another pass.
	Drain func()
	// Cancel runs once, on the first Cancel.
	Cancel func()
	// Invalid receives the INVALID_DEMAND error for a non-positive request.
	Invalid func(error)
}

// StreamSubscription is the standard Subscription: atomic demand and
// cancellation state plus a work-in-progress counter that serializes
// emission onto whichever goroutine currently holds the drain loop.
type StreamSubscription struct {
	id        string
	requested atomic.Int64
	cancelled atomic.Bool
	done      atomic.Bool
	wip       atomic.Int64
	hooks     SubscriptionHooks
}

// NewStreamSubscription creates a subscription with the given hooks.
func NewStreamSubscription(hooks SubscriptionHooks) *StreamSubscription {
	return &StreamSubscription{
		id:    uuid.NewString(),
		hooks: hooks,
	}
}

// ID returns the subscription's unique identifier, used in logs and spans.
func (s *StreamSubscription) ID() string { return s.id }

// Request adds n to the outstanding demand and runs the drain loop.
func (s *StreamSubscription) Request(n int64) {
	if n <= 0 {
		if !s.IsActive() {
			return
		}
		err := errors.InvalidDemand(n).WithDetail("subscription_id", s.id)
		s.Cancel()
		if s.hooks.Invalid != nil {
			s.hooks.Invalid(err)
		}
		return
	}
	if !s.IsActive() {
		return
	}
	addDemand(&s.requested, n)
	s.Drain()
}

// Cancel marks the subscription cancelled and runs the cancel hook once.
func (s *StreamSubscription) Cancel() {
	if !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	if s.hooks.Cancel != nil {
		s.hooks.Cancel()
	}
}

// IsActive reports whether the subscription is neither cancelled nor
// terminated.
func (s *StreamSubscription) IsActive() bool {
	return !s.cancelled.Load() && !s.done.Load()
}

// IsCancelled reports whether Cancel has been called.
func (s *StreamSubscription) IsCancelled() bool { return s.cancelled.Load() }

// Requested returns the outstanding demand.
func (s *StreamSubscription) Requested() int64 { return s.requested.Load() }

// Produced records k emitted elements against the outstanding demand and
// returns what is left.
func (s *StreamSubscription) Produced(k int64) int64 {
	return produced(&s.requested, k)
}

// Terminate marks the subscription done. Only the first call returns true;
// the caller that gets true owns the terminal signal.
func (s *StreamSubscription) Terminate() bool {
	return s.done.CompareAndSwap(false, true)
}

// Drain runs the drain hook, or schedules another pass if a goroutine is
// already inside it.
func (s *StreamSubscription) Drain() {
	if s.hooks.Drain == nil || s.wip.Add(1) != 1 {
		return
	}
	missed := int64(1)
	for {
		s.hooks.Drain()
		missed = s.wip.Add(-missed)
		if missed == 0 {
			return
		}
	}
}
