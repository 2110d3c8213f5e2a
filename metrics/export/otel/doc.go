// Package otel provides OpenTelemetry metric exporter bindings for authcore
// counters, histograms, and connection pool gauges.
//
// [NewOTelExporter] registers Int64ObservableCounter instruments for each
// authcore metric and Int64ObservableGauge per histogram bucket and pool stat.
// A single callback reads [authcore.Engine.MetricsSnapshot] and
// [authcore.Engine.PoolStats] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
