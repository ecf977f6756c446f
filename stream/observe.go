package stream

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/pushflow/logger"
	"github.com/kbukum/pushflow/observability"
)

type observed[T any] struct {
	ctx     context.Context
	name    string
	source  Operator[T]
	metrics *observability.StreamMetrics
	log     *logger.Logger
}

// Observe wraps op so that every subscription gets a "stream.subscribe"
// span and is counted on metrics. The span ends on the terminal signal or
// on cancel, whichever comes first. metrics may be nil.
func Observe[T any](ctx context.Context, name string, op Operator[T], metrics *observability.StreamMetrics) Operator[T] {
	return &observed[T]{
		ctx:     ctx,
		name:    name,
		source:  op,
		metrics: metrics,
		log:     logger.Get("stream").WithContext(ctx),
	}
}

type observedSubscription struct {
	Subscription
	ctx     context.Context
	name    string
	metrics *observability.StreamMetrics
	span    trace.Span
	start   time.Time
	once    sync.Once
}

func (s *observedSubscription) end(signal string, err error) {
	s.once.Do(func() {
		if err != nil {
			observability.SetSpanError(s.ctx, err)
		}
		observability.SetSpanAttribute(s.ctx, observability.AttrSignal, signal)
		s.span.End()
		s.metrics.RecordEnd(s.ctx, s.name, signal, time.Since(s.start))
	})
}

// Request records the demand, then forwards it.
func (s *observedSubscription) Request(n int64) {
	s.metrics.RecordDemand(s.ctx, s.name, n)
	s.Subscription.Request(n)
}

// Cancel ends the span as cancelled, then forwards.
func (s *observedSubscription) Cancel() {
	s.end(observability.SignalCancel, nil)
	s.Subscription.Cancel()
}

func (o *observed[T]) Subscribe(onNext func(T), onError func(error), onComplete func()) Subscription {
	ctx, span := observability.StartSpan(o.ctx, observability.SpanSubscribe,
		trace.WithAttributes(attribute.String(observability.AttrStream, o.name)))
	o.metrics.RecordSubscribe(ctx, o.name)

	s := &observedSubscription{
		ctx:     ctx,
		name:    o.name,
		metrics: o.metrics,
		span:    span,
		start:   time.Now(),
	}
	s.Subscription = o.source.Subscribe(
		func(v T) {
			o.metrics.RecordElement(ctx, o.name)
			if onNext != nil {
				onNext(v)
			}
		},
		func(err error) {
			s.end(observability.SignalError, err)
			o.log.Debug("stream failed", logger.MergeWithError(logger.Fields(logger.FieldStream, o.name), err))
			if onError != nil {
				onError(err)
			}
		},
		func() {
			s.end(observability.SignalComplete, nil)
			if onComplete != nil {
				onComplete()
			}
		},
	)
	if sub, ok := s.Subscription.(*StreamSubscription); ok {
		observability.SetSpanAttribute(ctx, observability.AttrSubscriptionID, sub.ID())
	}
	return s
}

func (o *observed[T]) SubscribeAll(onNext func(T), onError func(error), onComplete func()) {
	subscribeAll[T](o, onNext, onError, onComplete)
}
