package stream

import (
	"context"
	"sync/atomic"

	"github.com/kbukum/pushflow/errors"
	"github.com/kbukum/pushflow/logger"
)

// switchState is the per-subscription state of an empty-switch activation.
type switchState struct {
	emitted  atomic.Bool
	switched atomic.Bool
}

func (s *switchState) markEmitted() {
	if !s.emitted.Load() {
		s.emitted.Store(true)
	}
}

type emptySwitch[T any] struct {
	source   Operator[T]
	fallback func() Operator[T]
	opts     options
}

// OnEmptySwitch emits everything source emits. If source completes without
// emitting, the stream continues with the operator returned by fallback,
// which is invoked at most once per subscription and only in that case.
// Errors from source are propagated as is.
func OnEmptySwitch[T any](source Operator[T], fallback func() Operator[T], opts ...Option) Operator[T] {
	return &emptySwitch[T]{
		source:   source,
		fallback: fallback,
		opts:     newOptions("on_empty_switch", opts),
	}
}

// Subscribe subscribes to source and returns a ProxySubscription that moves
// to the fallback if source turns out to be empty.
func (e *emptySwitch[T]) Subscribe(onNext func(T), onError func(error), onComplete func()) Subscription {
	sig := newSignals(&e.opts, onNext, onError, onComplete)
	st := &switchState{}
	proxy := NewProxySubscription(func(err error) { sig.fail(err) })

	forward := func(v T) {
		if !sig.next(v) {
			proxy.Cancel()
		}
	}

	primary := e.source.Subscribe(
		func(v T) {
			st.markEmitted()
			forward(v)
		},
		func(err error) { sig.fail(err) },
		func() {
			if st.emitted.Load() {
				sig.complete()
				return
			}
			if !st.switched.CompareAndSwap(false, true) {
				return
			}
			if proxy.IsCancelled() {
				return
			}
			next, err := e.openFallback()
			if err != nil {
				sig.fail(err)
				return
			}
			e.opts.log.Debug("source completed empty, switching to fallback", logger.Fields(
				logger.FieldOperator, e.opts.name,
				logger.FieldDemand, proxy.demand.Load(),
			))
			e.opts.metrics.RecordSwap(context.Background(), e.opts.name)
			proxy.Swap(next.Subscribe(forward, func(err error) { sig.fail(err) }, func() { sig.complete() }))
		},
	)
	proxy.Install(primary)
	return proxy
}

// SubscribeAll takes the direct path: with unbounded demand there is
// nothing to carry across the switch, so no proxy is needed.
func (e *emptySwitch[T]) SubscribeAll(onNext func(T), onError func(error), onComplete func()) {
	sig := newSignals(&e.opts, onNext, onError, onComplete)
	st := &switchState{}

	e.source.SubscribeAll(
		func(v T) {
			st.markEmitted()
			sig.next(v)
		},
		func(err error) { sig.fail(err) },
		func() {
			if st.emitted.Load() {
				sig.complete()
				return
			}
			if !st.switched.CompareAndSwap(false, true) {
				return
			}
			next, err := e.openFallback()
			if err != nil {
				sig.fail(err)
				return
			}
			e.opts.metrics.RecordSwap(context.Background(), e.opts.name)
			next.SubscribeAll(
				func(v T) { sig.next(v) },
				func(err error) { sig.fail(err) },
				func() { sig.complete() },
			)
		},
	)
}

// openFallback runs the fallback supplier, converting a panic or a nil
// result into an error.
func (e *emptySwitch[T]) openFallback() (op Operator[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			op, err = nil, errors.CallbackFailed("fallback", r)
		}
	}()
	op = e.fallback()
	if op == nil {
		return nil, errors.Internal(nil).WithDetail("reason", "fallback supplier returned nil")
	}
	return op, nil
}
