package stream

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/kbukum/pushflow/errors"
	"github.com/kbukum/pushflow/logger"
	"github.com/kbukum/pushflow/observability"
)

// Operator is a subscribable, lazily evaluated producer of T.
//
// Subscribe returns a handle; no element flows until the consumer calls
// Request. SubscribeAll subscribes with unbounded demand and returns nothing.
// A nil callback is treated as a no-op.
type Operator[T any] interface {
	Subscribe(onNext func(T), onError func(error), onComplete func()) Subscription
	SubscribeAll(onNext func(T), onError func(error), onComplete func())
}

// subscribeAll is the SubscribeAll path shared by operators that have no
// cheaper unbounded mode.
func subscribeAll[T any](op Operator[T], onNext func(T), onError func(error), onComplete func()) {
	op.Subscribe(onNext, onError, onComplete).Request(MaxDemand)
}

// Option configures an operator.
type Option func(*options)

type options struct {
	name    string
	log     *logger.Logger
	metrics *observability.StreamMetrics
}

// WithName sets the name used in logs and metric attributes.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger used for debug logs and recovered panics.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records swaps, advances and callback failures on m.
func WithMetrics(m *observability.StreamMetrics) Option {
	return func(o *options) { o.metrics = m }
}

func newOptions(name string, opts []Option) options {
	o := options{name: name}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Get("stream")
	}
	return o
}

// signals delivers callbacks to one consumer. It owns the terminal latch:
// at most one of onError/onComplete runs, and nothing runs after it.
// A panic in onNext is converted into a CALLBACK_FAILED error.
type signals[T any] struct {
	onNext     func(T)
	onError    func(error)
	onComplete func()
	terminated atomic.Bool
	opts       *options
}

func newSignals[T any](opts *options, onNext func(T), onError func(error), onComplete func()) *signals[T] {
	if onNext == nil {
		onNext = func(T) {}
	}
	if onError == nil {
		onError = func(error) {}
	}
	if onComplete == nil {
		onComplete = func() {}
	}
	return &signals[T]{onNext: onNext, onError: onError, onComplete: onComplete, opts: opts}
}

// next delivers v. It returns false when the stream is already terminated
// or the callback panicked; in the latter case the error has been signalled
// and the caller must cancel its upstream.
func (s *signals[T]) next(v T) (ok bool) {
	if s.terminated.Load() {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err := errors.CallbackFailed("onNext", r)
			s.opts.log.Warn("recovered panic in onNext", logger.MergeWithError(logger.Fields(
				logger.FieldOperator, s.opts.name,
			), err))
			s.opts.metrics.RecordCallbackFailure(context.Background(), s.opts.name, "onNext")
			s.fail(err)
		}
	}()
	s.onNext(v)
	return true
}

// fail delivers the error unless a terminal signal has already been sent.
func (s *signals[T]) fail(err error) bool {
	if !s.terminated.CompareAndSwap(false, true) {
		s.dropped("error", err)
		return false
	}
	defer s.recoverTerminal("onError")
	s.onError(err)
	return true
}

// complete delivers completion unless a terminal signal has already been sent.
func (s *signals[T]) complete() bool {
	if !s.terminated.CompareAndSwap(false, true) {
		s.dropped("complete", nil)
		return false
	}
	defer s.recoverTerminal("onComplete")
	s.onComplete()
	return true
}

func (s *signals[T]) isTerminated() bool { return s.terminated.Load() }

// recoverTerminal swallows a panic from a terminal callback. There is no
// channel left to report it on.
func (s *signals[T]) recoverTerminal(callback string) {
	if r := recover(); r != nil {
		err := errors.CallbackFailed(callback, r)
		s.opts.log.Warn("recovered panic in terminal callback", logger.MergeWithError(logger.Fields(
			logger.FieldOperator, s.opts.name,
		), err))
		s.opts.metrics.RecordCallbackFailure(context.Background(), s.opts.name, callback)
	}
}

func (s *signals[T]) dropped(signal string, err error) {
	if !s.opts.log.Enabled(zerolog.DebugLevel) {
		return
	}
	fields := logger.Fields(logger.FieldOperator, s.opts.name, logger.FieldSignal, signal)
	if err != nil {
		fields = logger.MergeWithError(fields, err)
	}
	s.opts.log.Debug("dropped signal after terminal", fields)
}

// subscriptionRef holds an upstream subscription that may be cancelled
// before Subscribe has returned it.
type subscriptionRef struct {
	sub       atomic.Pointer[subscriptionBox]
	cancelled atomic.Bool
}

type subscriptionBox struct{ Subscription }

func (r *subscriptionRef) set(s Subscription) {
	r.sub.Store(&subscriptionBox{s})
	if r.cancelled.Load() {
		s.Cancel()
	}
}

func (r *subscriptionRef) cancel() {
	r.cancelled.Store(true)
	if b := r.sub.Load(); b != nil {
		b.Cancel()
	}
}
