// Package otel publishes authsession counters through an OpenTelemetry
// Meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per engine counter
// and reports the validation latency histogram as cumulative bucket gauges
// keyed by an "le" attribute. A single callback reads
// [authsession.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
