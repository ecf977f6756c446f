package stream

import (
	"context"
	"sync"

	"github.com/kbukum/pushflow/errors"
	"github.com/kbukum/pushflow/logger"
)

// Iterator provides pull-based sequential access to a stream of values.
type Iterator[T any] interface {
	// Next returns the next value. Returns (zero, false, nil) when exhausted.
	Next(ctx context.Context) (T, bool, error)
	// Close releases any resources held by the iterator.
	Close() error
}

type iteratorCursor[T any] struct {
	ctx  context.Context
	iter Iterator[T]
	log  *logger.Logger
}

func (c *iteratorCursor[T]) peek() (bool, error) {
	if err := c.ctx.Err(); err != nil {
		return false, errors.Cancelled(err)
	}
	return false, nil
}

func (c *iteratorCursor[T]) next() (T, bool, error) {
	return c.iter.Next(c.ctx)
}

func (c *iteratorCursor[T]) close() {
	if err := c.iter.Close(); err != nil {
		c.log.Warn("iterator close failed", logger.ErrorFields("close", err))
	}
}

// FromIterator turns a pull iterator into an Operator. factory runs once per
// subscription, on the first request, and Next is called once per unit of
// demand. A panicking factory fails the subscription with CALLBACK_FAILED. An error from Next is propagated as is. The iterator is closed on
// completion, error or cancel.
//
// Next runs on the goroutine that holds the drain loop, usually the one that
// called Request, so a blocking iterator blocks that caller.
func FromIterator[T any](ctx context.Context, factory func(ctx context.Context) Iterator[T], opts ...Option) Operator[T] {
	src := newCursorSource[T]("from_iterator", nil, opts)
	src.open = func() (cur cursor[T]) {
		defer func() {
			if r := recover(); r != nil {
				cur = failCursor[T]{err: errors.CallbackFailed("iterator factory", r)}
			}
		}()
		iter := factory(ctx)
		if iter == nil {
			return failCursor[T]{err: errors.Internal(nil).WithDetail("reason", "iterator factory returned nil")}
		}
		return &iteratorCursor[T]{ctx: ctx, iter: iter, log: src.opts.log}
	}
	return src
}

// ToIterator subscribes to op and exposes it as a pull iterator with a
// buffer of prefetch elements. It requests prefetch up front and one more
// for every element taken, so the buffer never overflows.
func ToIterator[T any](op Operator[T], prefetch int) Iterator[T] {
	if prefetch < 1 {
		prefetch = 1
	}
	it := &pushIterator[T]{
		ch:   make(chan T, prefetch),
		done: make(chan struct{}),
	}
	it.sub = op.Subscribe(
		func(v T) { it.ch <- v },
		func(err error) { it.finish(err) },
		func() { it.finish(nil) },
	)
	it.sub.Request(int64(prefetch))
	return it
}

type pushIterator[T any] struct {
	sub  Subscription
	ch   chan T
	done chan struct{}
	once sync.Once
	err  error
}

func (it *pushIterator[T]) finish(err error) {
	it.once.Do(func() {
		it.err = err
		close(it.done)
	})
}

func (it *pushIterator[T]) take(v T) (T, bool, error) {
	it.sub.Request(1)
	return v, true, nil
}

// Next returns buffered elements first, then the terminal outcome.
func (it *pushIterator[T]) Next(ctx context.Context) (T, bool, error) {
	select {
	case v := <-it.ch:
		return it.take(v)
	default:
	}
	var zero T
	select {
	case v := <-it.ch:
		return it.take(v)
	case <-it.done:
		select {
		case v := <-it.ch:
			return it.take(v)
		default:
		}
		return zero, false, it.err
	case <-ctx.Done():
		return zero, false, errors.Cancelled(ctx.Err())
	}
}

// Close cancels the subscription.
func (it *pushIterator[T]) Close() error {
	it.sub.Cancel()
	return nil
}
