package stream

import (
	"math"

	"github.com/kbukum/pushflow/errors"
)

// cursor is the pull side of a source. It is only touched from the drain
// loop of one subscription, so it needs no locking.
type cursor[T any] interface {
	// peek reports a terminal state known without consuming anything:
	// done when exhausted, or a non-nil error when the source has failed.
	peek() (done bool, err error)
	// next returns the next element, false when exhausted, or an error.
	next() (T, bool, error)
	close()
}

// cursorSource adapts a cursor factory to Operator. Each subscription opens
// its own cursor, so sources can be subscribed more than once.
type cursorSource[T any] struct {
	open func() cursor[T]
	opts options
}

func newCursorSource[T any](name string, open func() cursor[T], opts []Option) *cursorSource[T] {
	return &cursorSource[T]{open: open, opts: newOptions(name, opts)}
}

type cursorRun[T any] struct {
	sub    *StreamSubscription
	sig    *signals[T]
	cur    cursor[T]
	closed bool
}

// Subscribe opens a cursor. Nothing is pulled until the first Request.
func (s *cursorSource[T]) Subscribe(onNext func(T), onError func(error), onComplete func()) Subscription {
	r := &cursorRun[T]{sig: newSignals(&s.opts, onNext, onError, onComplete)}
	r.sub = NewStreamSubscription(SubscriptionHooks{
		Drain: func() { r.drain(s.open) },
		// Release the cursor from inside the drain loop so close never races
		// with next.
		Cancel:  func() { r.sub.Drain() },
		Invalid: func(err error) { r.sig.fail(err) },
	})
	return r.sub
}

// SubscribeAll subscribes with unbounded demand.
func (s *cursorSource[T]) SubscribeAll(onNext func(T), onError func(error), onComplete func()) {
	subscribeAll[T](s, onNext, onError, onComplete)
}

func (r *cursorRun[T]) release() {
	if !r.closed {
		r.closed = true
		if r.cur != nil {
			r.cur.close()
		}
	}
}

func (r *cursorRun[T]) drain(open func() cursor[T]) {
	for {
		if !r.sub.IsActive() {
			r.release()
			return
		}
		if r.cur == nil {
			r.cur = open()
		}
		if done, err := r.cur.peek(); done || err != nil {
			r.finish(err)
			return
		}
		if r.sub.Requested() == 0 {
			return
		}
		v, ok, err := r.cur.next()
		if err != nil || !ok {
			r.finish(err)
			return
		}
		r.sub.Produced(1)
		if !r.sig.next(v) {
			r.sub.Cancel()
			r.release()
			return
		}
	}
}

func (r *cursorRun[T]) finish(err error) {
	if !r.sub.Terminate() {
		return
	}
	r.release()
	if err != nil {
		r.sig.fail(err)
		return
	}
	r.sig.complete()
}

type sliceCursor[T any] struct {
	items []T
	pos   int
}

func (c *sliceCursor[T]) peek() (bool, error) { return c.pos >= len(c.items), nil }

func (c *sliceCursor[T]) next() (T, bool, error) {
	if c.pos >= len(c.items) {
		var zero T
		return zero, false, nil
	}
	v := c.items[c.pos]
	c.pos++
	return v, true, nil
}

func (c *sliceCursor[T]) close() {}

// FromSlice emits the items in order, then completes. The slice is copied.
func FromSlice[T any](items []T, opts ...Option) Operator[T] {
	owned := append([]T(nil), items...)
	return newCursorSource("from_slice", func() cursor[T] {
		return &sliceCursor[T]{items: owned}
	}, opts)
}

// Of emits its arguments in order, then completes.
func Of[T any](items ...T) Operator[T] {
	return FromSlice(items)
}

// Empty completes on the first request without emitting.
func Empty[T any]() Operator[T] {
	return newCursorSource("empty", func() cursor[T] {
		return &sliceCursor[T]{}
	}, nil)
}

type rangeCursor struct {
	pos, left int64
}

func (c *rangeCursor) peek() (bool, error) { return c.left == 0, nil }

func (c *rangeCursor) next() (int64, bool, error) {
	if c.left == 0 {
		return 0, false, nil
	}
	v := c.pos
	c.left--
	if c.left > 0 {
		c.pos++
	}
	return v, true, nil
}

func (c *rangeCursor) close() {}

// Range emits start, start+1, ... for count elements, stopping early at
// math.MaxInt64.
func Range(start, count int64, opts ...Option) Operator[int64] {
	if count < 0 {
		count = 0
	}
	// Stop at MaxInt64 rather than wrap around.
	if start > 0 && count > math.MaxInt64-start {
		count = math.MaxInt64 - start + 1
	}
	return newCursorSource("range", func() cursor[int64] {
		return &rangeCursor{pos: start, left: count}
	}, opts)
}

type failCursor[T any] struct{ err error }

func (c failCursor[T]) peek() (bool, error) { return false, c.err }

func (c failCursor[T]) next() (T, bool, error) {
	var zero T
	return zero, false, c.err
}

func (c failCursor[T]) close() {}

// Fail signals err on the first request without emitting.
func Fail[T any](err error) Operator[T] {
	if err == nil {
		err = errors.Internal(nil)
	}
	return newCursorSource("fail", func() cursor[T] {
		return failCursor[T]{err: err}
	}, nil)
}

type deferred[T any] struct {
	supplier func() Operator[T]
}

// Defer calls supplier on every Subscribe and subscribes to the operator it
// returns. A panicking supplier fails the subscription.
func Defer[T any](supplier func() Operator[T]) Operator[T] {
	return &deferred[T]{supplier: supplier}
}

func (d *deferred[T]) resolve() (op Operator[T]) {
	defer func() {
		if r := recover(); r != nil {
			op = Fail[T](errors.CallbackFailed("defer", r))
		}
	}()
	if op = d.supplier(); op == nil {
		op = Empty[T]()
	}
	return op
}

func (d *deferred[T]) Subscribe(onNext func(T), onError func(error), onComplete func()) Subscription {
	return d.resolve().Subscribe(onNext, onError, onComplete)
}

func (d *deferred[T]) SubscribeAll(onNext func(T), onError func(error), onComplete func()) {
	d.resolve().SubscribeAll(onNext, onError, onComplete)
}
