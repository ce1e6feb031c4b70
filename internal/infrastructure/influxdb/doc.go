// Package influxdb provides the InfluxDB storage sink for mqtt2influx.
//
// It wraps the official influxdb-client-go v2 library and writes one point
// per decoded MQTT message using the blocking write API.
//
// # Server versions
//
// InfluxDB 1.8+ is addressed through its 2.x compatibility endpoint:
//
//	cfg := config.InfluxDBConfig{
//	    Host:     "localhost",
//	    Port:     8086,
//	    Database: "sensors",
//	}
//
// Setting Token (with Org and Bucket) targets a native InfluxDB 2.x server.
//
// # Usage
//
//	client, err := influxdb.New(cfg, influxdb.WithLogger(log))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Store(ctx, "temp1", "temperature", nil,
//	    map[string]float64{"value": 23.7})
//
// # Error Handling
//
// Store distinguishes three failure classes:
//   - ErrInvalidInput: the caller passed an empty point
//   - ErrUnavailable: the server could not be reached; logged here
//   - ErrWriteFailed: the server answered with an error status
//
// Nothing is buffered: a failed point is dropped.
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package influxdb
