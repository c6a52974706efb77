// Package prometheus renders flowengine metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts a [flowengine.Engine] and exposes an
// [net/http.Handler] that renders all counters and histograms. Counter
// names are prefixed flowengine_*_total; the single histogram is
// flowengine_plan_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the
//     Handler where they want it.
//   - Mutate engine state.
package prometheus
