package stream

import (
	"github.com/kbukum/pushflow/errors"
)

type mapOp[T, R any] struct {
	source Operator[T]
	fn     func(T) (R, error)
	opts   options
}

// Map applies fn to every element. An error from fn cancels the source and
// is signalled as CALLBACK_FAILED.
func Map[T, R any](source Operator[T], fn func(T) (R, error), opts ...Option) Operator[R] {
	return &mapOp[T, R]{source: source, fn: fn, opts: newOptions("map", opts)}
}

func (m *mapOp[T, R]) Subscribe(onNext func(R), onError func(error), onComplete func()) Subscription {
	sig := newSignals(&m.opts, onNext, onError, onComplete)
	upstream := &subscriptionRef{}
	sub := m.source.Subscribe(
		func(v T) {
			if sig.isTerminated() {
				return
			}
			r, err := m.fn(v)
			if err != nil {
				upstream.cancel()
				sig.fail(errors.CallbackFailed("map", err))
				return
			}
			if !sig.next(r) {
				upstream.cancel()
			}
		},
		func(err error) { sig.fail(err) },
		func() { sig.complete() },
	)
	upstream.set(sub)
	return sub
}

func (m *mapOp[T, R]) SubscribeAll(onNext func(R), onError func(error), onComplete func()) {
	subscribeAll[R](m, onNext, onError, onComplete)
}

type filterOp[T any] struct {
	source    Operator[T]
	predicate func(T) bool
	opts      options
}

// Filter emits the elements for which predicate returns true. Each dropped
// element is replaced by requesting one more from the source, so consumer
// demand is counted in emitted elements.
func Filter[T any](source Operator[T], predicate func(T) bool, opts ...Option) Operator[T] {
	return &filterOp[T]{source: source, predicate: predicate, opts: newOptions("filter", opts)}
}

func (f *filterOp[T]) Subscribe(onNext func(T), onError func(error), onComplete func()) Subscription {
	sig := newSignals(&f.opts, onNext, onError, onComplete)
	upstream := &subscriptionRef{}
	sub := f.source.Subscribe(
		func(v T) {
			if sig.isTerminated() {
				return
			}
			if !f.predicate(v) {
				if b := upstream.sub.Load(); b != nil {
					b.Request(1)
				}
				return
			}
			if !sig.next(v) {
				upstream.cancel()
			}
		},
		func(err error) { sig.fail(err) },
		func() { sig.complete() },
	)
	upstream.set(sub)
	return sub
}

func (f *filterOp[T]) SubscribeAll(onNext func(T), onError func(error), onComplete func()) {
	subscribeAll[T](f, onNext, onError, onComplete)
}

type peekOp[T any] struct {
	source Operator[T]
	fn     func(T)
}

// Peek calls fn with every element before passing it on.
func Peek[T any](source Operator[T], fn func(T)) Operator[T] {
	return &peekOp[T]{source: source, fn: fn}
}

func (p *peekOp[T]) Subscribe(onNext func(T), onError func(error), onComplete func()) Subscription {
	return p.source.Subscribe(func(v T) {
		p.fn(v)
		if onNext != nil {
			onNext(v)
		}
	}, onError, onComplete)
}

func (p *peekOp[T]) SubscribeAll(onNext func(T), onError func(error), onComplete func()) {
	p.source.SubscribeAll(func(v T) {
		p.fn(v)
		if onNext != nil {
			onNext(v)
		}
	}, onError, onComplete)
}
