package influxdb

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"time"

	ihttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// SensorTag is the tag key carrying the sensor identifier.
const SensorTag = "sensor_node"

// Store writes one point and waits for the server to acknowledge it.
//
// The point uses measurement as given, the caller's tags plus
// sensor_node=sensorID, and fields as given, timestamped with the current
// time.
//
// Parameters:
//   - ctx: Bounds the write; an expired context counts as unavailable
//   - sensorID: Value of the sensor_node tag
//   - measurement: The measurement name
//   - tags: Extra tags (may be nil, never modified)
//   - fields: Field values (must not be empty)
//
// Returns:
//   - error: ErrInvalidInput for an empty point, ErrUnavailable when the
//     server cannot be reached (already logged), ErrWriteFailed when the
//     server rejects the write, ErrNotConnected after Close
func (c *Client) Store(ctx context.Context, sensorID, measurement string, tags map[string]string, fields map[string]float64) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: fields must not be empty", ErrInvalidInput)
	}
	if measurement == "" {
		return fmt.Errorf("%w: measurement must not be empty", ErrInvalidInput)
	}
	if sensorID == "" {
		return fmt.Errorf("%w: sensor ID must not be empty", ErrInvalidInput)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	point := newPoint(sensorID, measurement, tags, fields, c.now())

	err := c.writeAPI.WritePoint(ctx, point)
	if err == nil {
		c.logger.Debug("point written",
			"measurement", measurement,
			"sensor", sensorID,
			"fields", fields,
		)
		return nil
	}

	if isConnectivityError(err) {
		c.logger.Error("influxdb unavailable, point dropped",
			"url", c.url,
			"bucket", c.bucket,
			"measurement", measurement,
			"sensor", sensorID,
			"fields", fields,
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return fmt.Errorf("%w: %w", ErrWriteFailed, err)
}

// newPoint builds the write.Point for one sensor reading.
func newPoint(sensorID, measurement string, tags map[string]string, fields map[string]float64, ts time.Time) *write.Point {
	pointTags := make(map[string]string, len(tags)+1)
	maps.Copy(pointTags, tags)
	pointTags[SensorTag] = sensorID

	pointFields := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		pointFields[k] = v
	}

	return write.NewPoint(measurement, pointTags, pointFields, ts)
}

// isConnectivityError reports whether err means the server was not reached
// or could not serve the write.
//
// The client wraps transport failures in an *http.Error with no status
// code. Gateway and overload statuses (502, 503, 504) come from a proxy or
// a server that is starting or shedding load, so they count as unreachable.
func isConnectivityError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var httpErr *ihttp.Error
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 0, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}

	return false
}
