// Package ingest implements the mqtt2influx ingestion pipeline.
//
// A Router owns the ordered route table built from the sensors file. For
// every inbound MQTT message it:
//
//  1. Selects the first Route whose topic equals the message topic exactly
//  2. Decodes the payload into named numeric fields (Decode)
//  3. Hands the fields to a Sink together with the route's sensor ID and
//     measurement
//
// # Payload formats
//
// Two payload shapes are accepted:
//
//	{"temp": 21.0, "humidity": 55.0}   // flat object of numbers
//	23.7                               // single scalar, stored as "value"
//
// Anything else is dropped with a warning.
//
// # Failure isolation
//
// HandleMessage never returns an error and never panics outward. Decode and
// store failures are logged, counted and the message is dropped so the
// subscriber's dispatch loop keeps running through broker or database
// outages.
//
// # Thread Safety
//
// HandleMessage calls are serialised: one message is decoded and stored at
// a time, in the order the transport delivered them.
package ingest
