package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, influxdb.ErrUnavailable) {
//	    // Server unreachable, point dropped
//	}
var (
	// ErrNotConnected indicates the client has been closed.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrInvalidConfig indicates the connection settings are unusable.
	ErrInvalidConfig = errors.New("influxdb: invalid configuration")

	// ErrInvalidInput indicates a Store call with no fields, measurement
	// or sensor ID. This is a programming error in the caller.
	ErrInvalidInput = errors.New("influxdb: invalid point")

	// ErrUnavailable indicates the server could not be reached
	// (connection refused, DNS failure, timeout).
	ErrUnavailable = errors.New("influxdb: server unavailable")

	// ErrWriteFailed indicates the server rejected the write
	// (bad request, authentication, missing database).
	ErrWriteFailed = errors.New("influxdb: write failed")
)
