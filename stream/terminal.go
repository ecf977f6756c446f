package stream

import (
	"context"
	"sync"

	"github.com/kbukum/pushflow/errors"
)

// outcome carries the terminal signal of a subscription to a blocked caller.
type outcome struct {
	ch chan error
}

func newOutcome() *outcome { return &outcome{ch: make(chan error, 1)} }

func (o *outcome) signal(err error) {
	select {
	case o.ch <- err:
	default:
	}
}

// wait blocks for the terminal signal or ctx. On ctx end it cancels sub.
func (o *outcome) wait(ctx context.Context, sub Subscription) error {
	select {
	case err := <-o.ch:
		return err
	case <-ctx.Done():
		sub.Cancel()
		return errors.Cancelled(ctx.Err())
	}
}

// Collect subscribes with unbounded demand and returns every element once
// op completes. On error it returns the elements received so far together
// with the error.
func Collect[T any](ctx context.Context, op Operator[T]) ([]T, error) {
	var (
		mu    sync.Mutex
		items []T
	)
	out := newOutcome()
	sub := op.Subscribe(
		func(v T) {
			mu.Lock()
			items = append(items, v)
			mu.Unlock()
		},
		out.signal,
		func() { out.signal(nil) },
	)
	sub.Request(MaxDemand)
	err := out.wait(ctx, sub)

	mu.Lock()
	defer mu.Unlock()
	return items, err
}

// ForEach calls fn for every element, requesting batch elements at a time.
// An error from fn cancels the subscription and is returned as
// CALLBACK_FAILED.
func ForEach[T any](ctx context.Context, op Operator[T], batch int64, fn func(T) error) error {
	if batch < 1 {
		return errors.InvalidDemand(batch)
	}
	out := newOutcome()
	var (
		sub     Subscription
		pending = batch
	)
	sub = op.Subscribe(
		func(v T) {
			if err := fn(v); err != nil {
				sub.Cancel()
				out.signal(errors.CallbackFailed("for_each", err))
				return
			}
			// Elements are delivered serially, so pending needs no lock.
			if pending--; pending == 0 {
				pending = batch
				sub.Request(batch)
			}
		},
		out.signal,
		func() { out.signal(nil) },
	)
	sub.Request(batch)
	return out.wait(ctx, sub)
}

// First requests one element and returns it. ok is false when op completes
// empty.
func First[T any](ctx context.Context, op Operator[T]) (value T, ok bool, err error) {
	out := newOutcome()
	var (
		mu  sync.Mutex
		got bool
		v   T
		sub Subscription
	)
	sub = op.Subscribe(
		func(x T) {
			mu.Lock()
			if !got {
				got, v = true, x
			}
			mu.Unlock()
			sub.Cancel()
			out.signal(nil)
		},
		out.signal,
		func() { out.signal(nil) },
	)
	sub.Request(1)
	err = out.wait(ctx, sub)

	mu.Lock()
	defer mu.Unlock()
	if got {
		return v, true, nil
	}
	return value, false, err
}
