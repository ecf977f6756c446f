package stream

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recorder captures every signal a consumer receives.
type recorder[T any] struct {
	mu        sync.Mutex
	items     []T
	errs      []error
	completes int
	done      chan struct{}
	once      sync.Once
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{done: make(chan struct{})}
}

func (r *recorder[T]) onNext(v T) {
	r.mu.Lock()
	r.items = append(r.items, v)
	r.mu.Unlock()
}

func (r *recorder[T]) onError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
}

func (r *recorder[T]) onComplete() {
	r.mu.Lock()
	r.completes++
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
}

func (r *recorder[T]) subscribe(op Operator[T]) Subscription {
	return op.Subscribe(r.onNext, r.onError, r.onComplete)
}

func (r *recorder[T]) snapshot() (items []T, errs []error, completes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.items...), append([]error(nil), r.errs...), r.completes
}

func (r *recorder[T]) terminals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs) + r.completes
}

func (r *recorder[T]) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal signal")
	}
}

// manualSource is an Operator driven by hand: tests push signals through
// the subscriptions it hands out.
type manualSource[T any] struct {
	mu   sync.Mutex
	subs []*manualSub[T]
}

func (m *manualSource[T]) Subscribe(onNext func(T), onError func(error), onComplete func()) Subscription {
	s := &manualSub[T]{onNext: onNext, onError: onError, onComplete: onComplete}
	m.mu.Lock()
	m.subs = append(m.subs, s)
	m.mu.Unlock()
	return s
}

func (m *manualSource[T]) SubscribeAll(onNext func(T), onError func(error), onComplete func()) {
	subscribeAll[T](m, onNext, onError, onComplete)
}

func (m *manualSource[T]) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *manualSource[T]) last() *manualSub[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.subs) == 0 {
		return nil
	}
	return m.subs[len(m.subs)-1]
}

// manualSub records the demand it receives and never emits on its own.
type manualSub[T any] struct {
	onNext     func(T)
	onError    func(error)
	onComplete func()
	total      atomic.Int64
	requests   atomic.Int64
	cancelled  atomic.Bool
}

func (s *manualSub[T]) Request(n int64) {
	s.requests.Add(1)
	addDemand(&s.total, n)
}

func (s *manualSub[T]) Cancel()          { s.cancelled.Store(true) }
func (s *manualSub[T]) IsActive() bool   { return !s.cancelled.Load() }
func (s *manualSub[T]) Requested() int64 { return s.total.Load() }

func (s *manualSub[T]) emit(v T)       { s.onNext(v) }
func (s *manualSub[T]) complete()      { s.onComplete() }
func (s *manualSub[T]) fail(err error) { s.onError(err) }

func equalSlices[T comparable](got, want []T) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
