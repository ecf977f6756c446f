// Package observability provides OpenTelemetry tracing and metrics for the
// stream engine.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, &cfg)
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanSubscribe)
//	defer span.End()
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, &meterCfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewStreamMetrics(observability.Meter("streamd"))
//	op = stream.Observe(ctx, "orders", op, metrics)
//
// A nil *StreamMetrics records nothing, so operators accept one without
// checking.
//
// Health:
//
//	health := observability.NewServiceHealth("streamd", version.Short())
//	health.AddComponent(metrics.CheckHealth(ctx))
package observability
