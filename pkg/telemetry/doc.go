// Package telemetry provides reactive.Observer implementations that export
// runtime activity.
//
// Metrics publishes flush, job, effect, error and warning counters to
// Prometheus. Tracer records every flush as an OpenTelemetry span. Multi
// fans callbacks out to several observers:
//
//	rt := reactive.New(reactive.WithObserver(telemetry.Multi(
//	    telemetry.NewMetrics(telemetry.WithRegistry(reg)),
//	    telemetry.NewTracer(),
//	)))
package telemetry
