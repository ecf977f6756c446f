package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/kbukum/pushflow/logger"
	"github.com/kbukum/pushflow/observability"
)

// initTelemetry starts the exporters enabled in the config and creates the
// stream instruments. With exporting disabled the instruments record into
// the global no-op provider and only the local subscription gauge is live.
func (a *App[C]) initTelemetry(ctx context.Context) error {
	base := a.Cfg.GetServiceConfig()
	obs := base.Observability

	if obs.Tracing.Enabled {
		tp, err := observability.InitTracer(ctx, &observability.TracerConfig{
			ServiceName:    a.Name,
			ServiceVersion: a.Version,
			Environment:    base.Environment,
			Endpoint:       obs.Tracing.Endpoint,
			Insecure:       obs.Tracing.Insecure,
			SampleRate:     obs.Tracing.SampleRate,
		})
		if err != nil {
			return err
		}
		a.tracerProvider = tp
		a.Summary.TrackTelemetry("tracing", obs.Tracing.Endpoint)
	}

	if obs.Metrics.Enabled {
		mp, err := observability.InitMeter(ctx, &observability.MeterConfig{
			ServiceName:    a.Name,
			ServiceVersion: a.Version,
			Environment:    base.Environment,
			Endpoint:       obs.Metrics.Endpoint,
			Insecure:       obs.Metrics.Insecure,
			Interval:       obs.Metrics.Interval,
		})
		if err != nil {
			return err
		}
		a.meterProvider = mp
		a.Summary.TrackTelemetry("metrics", obs.Metrics.Endpoint)
	}

	metrics, err := observability.NewStreamMetrics(observability.Meter(a.Name))
	if err != nil {
		return err
	}
	a.Metrics = metrics
	return nil
}

// flushTelemetry shuts down the providers, exporting what is buffered.
func (a *App[C]) flushTelemetry(ctx context.Context) error {
	var errs []error
	if a.meterProvider != nil {
		if err := a.meterProvider.Shutdown(ctx); err != nil {
			a.Logger.Error("Meter provider shutdown error", logger.ErrorFields("meter_shutdown", err))
			errs = append(errs, err)
		}
		a.meterProvider = nil
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.Logger.Error("Tracer provider shutdown error", logger.ErrorFields("tracer_shutdown", err))
			errs = append(errs, err)
		}
		a.tracerProvider = nil
	}
	return errors.Join(errs...)
}

// shutdownTelemetry releases the providers after a failed startup.
func (a *App[C]) shutdownTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.flushTelemetry(ctx)
}
