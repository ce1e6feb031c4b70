// Package api implements the status HTTP server for mqtt2influx.
//
// This package provides:
//   - GET /health: JSON health of the broker session and InfluxDB
//   - GET /metrics: Prometheus exposition of the pipeline counters
//   - GET /routes: the configured topic routes
//   - Middleware stack (request ID, logging, recovery)
//
// The server is read-only and unauthenticated; bind it to a management
// interface. It is optional and disabled when status.port is 0.
package api
