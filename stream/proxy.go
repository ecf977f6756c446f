package stream

import (
	"sync"
	"sync/atomic"

	"github.com/kbukum/pushflow/errors"
)

// proxyState is replaced as a whole so readers never observe a delegate
// without its matching swapped flag.
type proxyState struct {
	sub     Subscription
	swapped bool
}

// ProxySubscription is the consumer-facing handle of an operator whose
// upstream can be replaced once while the consumer keeps requesting.
//
// Before the swap, requests are forwarded to the primary and also
// accumulated. On Swap the accumulated demand is forwarded to the new
// delegate, so every unit requested before the swap reaches it exactly once
// and every unit requested after goes to it directly. Unbounded demand is
// forwarded as is.
type ProxySubscription struct {
	state     atomic.Pointer[proxyState]
	installed chan struct{}
	release   sync.Once
	demand    atomic.Int64
	cancelled atomic.Bool
	onInvalid func(error)
}

// NewProxySubscription creates a proxy with no delegate. Calls that need the
// delegate wait until Install or Swap provides one. onInvalid receives the
// INVALID_DEMAND error for non-positive requests.
func NewProxySubscription(onInvalid func(error)) *ProxySubscription {
	return &ProxySubscription{
		installed: make(chan struct{}),
		onInvalid: onInvalid,
	}
}

// Install sets the primary delegate. If Swap already ran, because the primary
// finished while it was still being subscribed, the primary is stale and
// Install does nothing.
func (p *ProxySubscription) Install(sub Subscription) {
	if p.state.CompareAndSwap(nil, &proxyState{sub: sub}) && p.cancelled.Load() {
		sub.Cancel()
	}
	p.release.Do(func() { close(p.installed) })
}

// Swap replaces the delegate and forwards the demand accumulated so far.
// It does not block waiting for Install.
func (p *ProxySubscription) Swap(next Subscription) {
	p.state.Store(&proxyState{sub: next, swapped: true})
	p.release.Do(func() { close(p.installed) })
	if p.cancelled.Load() {
		next.Cancel()
		return
	}
	p.drain()
}

// Swapped reports whether the fallback delegate is in place.
func (p *ProxySubscription) Swapped() bool {
	st := p.state.Load()
	return st != nil && st.swapped
}

func (p *ProxySubscription) current() *proxyState {
	if st := p.state.Load(); st != nil {
		return st
	}
	<-p.installed
	return p.state.Load()
}

// Request forwards demand to the current delegate.
func (p *ProxySubscription) Request(n int64) {
	if n <= 0 {
		if p.cancelled.Load() {
			return
		}
		err := errors.InvalidDemand(n)
		p.Cancel()
		if p.onInvalid != nil {
			p.onInvalid(err)
		}
		return
	}
	if p.cancelled.Load() {
		return
	}

	st := p.current()
	if !st.swapped {
		addDemand(&p.demand, n)
		// Forward to the primary only if it is still in place; either way
		// the accumulated amount reaches the fallback through drain.
		if p.state.Load() == st {
			st.sub.Request(n)
		}
		p.drain()
		return
	}
	p.drain()
	st.sub.Request(n)
}

// drain moves accumulated demand to the swapped-in delegate.
func (p *ProxySubscription) drain() {
	st := p.state.Load()
	if st == nil || !st.swapped {
		return
	}
	for {
		d := p.demand.Load()
		if d <= 0 {
			return
		}
		if d == MaxDemand {
			st.sub.Request(d)
			return
		}
		if p.demand.CompareAndSwap(d, 0) {
			st.sub.Request(d)
			return
		}
	}
}

// Cancel cancels the current delegate and any delegate swapped in later.
func (p *ProxySubscription) Cancel() {
	if !p.cancelled.CompareAndSwap(false, true) {
		return
	}
	if st := p.state.Load(); st != nil {
		st.sub.Cancel()
	}
}

// IsCancelled reports whether the consumer cancelled.
func (p *ProxySubscription) IsCancelled() bool { return p.cancelled.Load() }

// IsActive delegates to the current delegate. Before one is installed the
// proxy is active unless cancelled.
func (p *ProxySubscription) IsActive() bool {
	if p.cancelled.Load() {
		return false
	}
	st := p.state.Load()
	if st == nil {
		return true
	}
	return st.sub.IsActive()
}

// Requested returns the current delegate's outstanding demand, or 0 before
// one is installed.
func (p *ProxySubscription) Requested() int64 {
	st := p.state.Load()
	if st == nil {
		return 0
	}
	return st.sub.Requested()
}
