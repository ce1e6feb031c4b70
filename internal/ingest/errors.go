package ingest

import "errors"

// Decode errors. Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnparseable is returned when a payload is neither a JSON object
	// nor a plain number.
	ErrUnparseable = errors.New("ingest: payload is neither an object nor a number")

	// ErrInvalidFieldType is returned when a JSON object payload contains a
	// value that is not a number.
	ErrInvalidFieldType = errors.New("ingest: field value is not numeric")
)
