// Package prometheus renders engine counters in Prometheus text exposition
// format.
//
// [NewExporter] accepts an [authd.Engine] and exposes an [http.Handler] that
// serves every engine counter plus the entity cache hit/miss counters.
// Counter names are prefixed authd_*_total.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
