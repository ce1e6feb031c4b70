// Package metrics exposes Prometheus counters for mqtt2influx.
//
// Metrics are registered on an injected registry so tests can use a fresh
// prometheus.NewRegistry and the status server can serve exactly what was
// registered.
package metrics
