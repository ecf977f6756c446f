package observability

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/pushflow/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Get("observability").Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Terminal signal kinds recorded by StreamMetrics.RecordEnd.
const (
	SignalComplete = "complete"
	SignalError    = "error"
	SignalCancel   = "cancel"
)

// StreamMetrics holds the instruments for subscriptions flowing through the
// engine. A nil *StreamMetrics is valid and records nothing, so operators can
// carry one unconditionally.
type StreamMetrics struct {
	subscriptions    metric.Int64Counter
	active           metric.Int64UpDownCounter
	duration         metric.Float64Histogram
	demand           metric.Int64Counter
	unbounded        metric.Int64Counter
	elements         metric.Int64Counter
	terminals        metric.Int64Counter
	swaps            metric.Int64Counter
	advances         metric.Int64Counter
	callbackFailures metric.Int64Counter
	rejections       metric.Int64Counter

	activeCount atomic.Int64
}

// NewStreamMetrics creates the stream instruments on the given meter.
func NewStreamMetrics(meter metric.Meter) (*StreamMetrics, error) {
	m := &StreamMetrics{}
	var err error

	if m.subscriptions, err = meter.Int64Counter("stream.subscriptions",
		metric.WithDescription("Total number of subscriptions opened"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.subscriptions counter: %w", err)
	}
	if m.active, err = meter.Int64UpDownCounter("stream.subscriptions.active",
		metric.WithDescription("Number of subscriptions that have not terminated"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.subscriptions.active gauge: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("stream.subscription.duration",
		metric.WithDescription("Lifetime of subscriptions in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.subscription.duration histogram: %w", err)
	}
	if m.demand, err = meter.Int64Counter("stream.demand",
		metric.WithDescription("Sum of finite demand requested by consumers"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.demand counter: %w", err)
	}
	if m.unbounded, err = meter.Int64Counter("stream.demand.unbounded",
		metric.WithDescription("Number of unbounded demand requests"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.demand.unbounded counter: %w", err)
	}
	if m.elements, err = meter.Int64Counter("stream.elements",
		metric.WithDescription("Number of elements delivered to consumers"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.elements counter: %w", err)
	}
	if m.terminals, err = meter.Int64Counter("stream.terminals",
		metric.WithDescription("Terminal signals by kind"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.terminals counter: %w", err)
	}
	if m.swaps, err = meter.Int64Counter("stream.proxy.swaps",
		metric.WithDescription("Number of empty-source fallbacks taken"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.proxy.swaps counter: %w", err)
	}
	if m.advances, err = meter.Int64Counter("stream.concat.advances",
		metric.WithDescription("Number of concat source subscriptions"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.concat.advances counter: %w", err)
	}
	if m.callbackFailures, err = meter.Int64Counter("stream.callback.failures",
		metric.WithDescription("Consumer callbacks that panicked or returned an error"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.callback.failures counter: %w", err)
	}
	if m.rejections, err = meter.Int64Counter("stream.rejections",
		metric.WithDescription("Stream requests refused by a concurrency or rate limit"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.rejections counter: %w", err)
	}

	return m, nil
}

func streamAttr(stream string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String(AttrStream, stream))
}

// RecordSubscribe counts a new subscription and marks it active.
func (m *StreamMetrics) RecordSubscribe(ctx context.Context, stream string) {
	if m == nil {
		return
	}
	m.activeCount.Add(1)
	m.subscriptions.Add(ctx, 1, streamAttr(stream))
	m.active.Add(ctx, 1, streamAttr(stream))
}

// RecordEnd records the terminal signal (or cancellation) of a subscription.
func (m *StreamMetrics) RecordEnd(ctx context.Context, stream, signal string, lifetime time.Duration) {
	if m == nil {
		return
	}
	m.activeCount.Add(-1)
	m.active.Add(ctx, -1, streamAttr(stream))
	m.terminals.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStream, stream),
		attribute.String(AttrSignal, signal),
	))
	m.duration.Record(ctx, lifetime.Seconds(), streamAttr(stream))
}

// RecordDemand records a Request(n). Unbounded demand is counted apart so it
// does not swamp the finite sum.
func (m *StreamMetrics) RecordDemand(ctx context.Context, stream string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	if n == math.MaxInt64 {
		m.unbounded.Add(ctx, 1, streamAttr(stream))
		return
	}
	m.demand.Add(ctx, n, streamAttr(stream))
}

// RecordElement counts one delivered element.
func (m *StreamMetrics) RecordElement(ctx context.Context, stream string) {
	if m == nil {
		return
	}
	m.elements.Add(ctx, 1, streamAttr(stream))
}

// RecordSwap counts a switch to a fallback source.
func (m *StreamMetrics) RecordSwap(ctx context.Context, stream string) {
	if m == nil {
		return
	}
	m.swaps.Add(ctx, 1, streamAttr(stream))
}

// RecordAdvance counts the subscription of the index-th concat source.
func (m *StreamMetrics) RecordAdvance(ctx context.Context, stream string, index int) {
	if m == nil {
		return
	}
	m.advances.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStream, stream),
		attribute.Int("stream.source_index", index),
	))
}

// RecordCallbackFailure counts a consumer callback that failed.
func (m *StreamMetrics) RecordCallbackFailure(ctx context.Context, stream, callback string) {
	if m == nil {
		return
	}
	m.callbackFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStream, stream),
		attribute.String("stream.callback", callback),
	))
}

// RecordRejected counts a stream request refused by the named limiter.
func (m *StreamMetrics) RecordRejected(ctx context.Context, limiter string) {
	if m == nil {
		return
	}
	m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("stream.limiter", limiter)))
}

// ActiveSubscriptions returns the number of subscriptions recorded as
// started but not yet ended.
func (m *StreamMetrics) ActiveSubscriptions() int64 {
	if m == nil {
		return 0
	}
	return m.activeCount.Load()
}

// CheckHealth reports the engine as a health component.
func (m *StreamMetrics) CheckHealth(_ context.Context) Health {
	return Health{
		Name:   "streams",
		Status: HealthStatusUp,
		Details: map[string]string{
			"active_subscriptions": strconv.FormatInt(m.ActiveSubscriptions(), 10),
		},
	}
}
