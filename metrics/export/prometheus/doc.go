// Package prometheus renders authsession metrics in the Prometheus text
// exposition format.
//
// Counters are named authsession_*_total. The only histogram is
// authsession_validate_latency_seconds, emitted only when latency
// histograms are enabled on the engine.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
