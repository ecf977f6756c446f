package stream

import (
	"context"
	"sync/atomic"

	"github.com/kbukum/pushflow/logger"
)

type concat[T any] struct {
	sources []Operator[T]
	opts    options
}

// Concat emits every element of each source in order, subscribing to the
// next source only after the previous one completes. An error from any
// source ends the stream and later sources are never subscribed.
func Concat[T any](sources ...Operator[T]) Operator[T] {
	return NewConcat(sources)
}

// NewConcat is Concat with options.
func NewConcat[T any](sources []Operator[T], opts ...Option) Operator[T] {
	return &concat[T]{
		sources: append([]Operator[T](nil), sources...),
		opts:    newOptions("concat", opts),
	}
}

// concatRun is the state of one subscription to a concat.
//
// Outstanding demand lives on the outward subscription. The active source
// is pulled one element at a time: inflight is set when a unit has been
// requested from it and cleared when that element arrives.
type concatRun[T any] struct {
	c     *concat[T]
	sig   *signals[T]
	outer *StreamSubscription

	// index is only written from the drain loop.
	index    atomic.Int64
	finished atomic.Int64
	inflight atomic.Bool
	active   subscriptionRef
}

// Subscribe returns the outward subscription. The first source is
// subscribed on the first request.
func (c *concat[T]) Subscribe(onNext func(T), onError func(error), onComplete func()) Subscription {
	r := &concatRun[T]{c: c}
	r.sig = newSignals(&c.opts, onNext, onError, onComplete)
	r.index.Store(-1)
	r.finished.Store(-1)
	r.outer = NewStreamSubscription(SubscriptionHooks{
		Drain:   r.drain,
		Cancel:  r.active.cancel,
		Invalid: func(err error) { r.sig.fail(err) },
	})
	return r.outer
}

// SubscribeAll subscribes with unbounded demand.
func (c *concat[T]) SubscribeAll(onNext func(T), onError func(error), onComplete func()) {
	subscribeAll[T](c, onNext, onError, onComplete)
}

func (r *concatRun[T]) drain() {
	for {
		if !r.outer.IsActive() {
			return
		}
		idx := r.index.Load()
		if r.finished.Load() == idx {
			idx++
			if int(idx) >= len(r.c.sources) {
				if r.outer.Terminate() {
					r.sig.complete()
				}
				return
			}
			if r.outer.Requested() == 0 {
				return
			}
			r.index.Store(idx)
			r.inflight.Store(false)
			r.subscribe(int(idx))
			continue
		}
		if r.inflight.Load() || r.outer.Requested() == 0 {
			return
		}
		r.inflight.Store(true)
		if b := r.active.sub.Load(); b != nil {
			b.Request(1)
		}
	}
}

func (r *concatRun[T]) subscribe(idx int) {
	r.c.opts.log.Debug("concat advancing", logger.Fields(
		logger.FieldOperator, r.c.opts.name,
		logger.FieldSubscriptionID, r.outer.ID(),
		logger.FieldSourceIndex, idx,
	))
	r.c.opts.metrics.RecordAdvance(context.Background(), r.c.opts.name, idx)

	sub := r.c.sources[idx].Subscribe(
		func(v T) { r.onNext(idx, v) },
		func(err error) { r.onError(idx, err) },
		func() { r.onComplete(idx) },
	)
	r.active.set(sub)
}

func (r *concatRun[T]) onNext(idx int, v T) {
	if int64(idx) != r.index.Load() || !r.outer.IsActive() {
		return
	}
	r.outer.Produced(1)
	ok := r.sig.next(v)
	r.inflight.Store(false)
	if !ok {
		r.outer.Cancel()
		return
	}
	r.outer.Drain()
}

func (r *concatRun[T]) onError(idx int, err error) {
	if int64(idx) != r.index.Load() || r.outer.IsCancelled() {
		return
	}
	if r.outer.Terminate() {
		r.sig.fail(err)
	}
}

func (r *concatRun[T]) onComplete(idx int) {
	for {
		f := r.finished.Load()
		if int64(idx) <= f {
			return
		}
		if r.finished.CompareAndSwap(f, int64(idx)) {
			break
		}
	}
	r.outer.Drain()
}
