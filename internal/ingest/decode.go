package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
)

// ScalarField is the field name used for single-number payloads.
const ScalarField = "value"

// Fields maps field names to numeric values. A successfully decoded
// payload always yields at least one field.
type Fields map[string]float64

// Mode tells which decoding strategy produced a Decoded result.
type Mode int

// Decoding modes.
const (
	// ModeObject means the payload was a flat JSON object of numbers.
	ModeObject Mode = iota + 1

	// ModeScalar means the payload was a single number.
	ModeScalar
)

// String returns the mode name used in logs.
func (m Mode) String() string {
	switch m {
	case ModeObject:
		return "object"
	case ModeScalar:
		return "scalar"
	default:
		return "unknown"
	}
}

// Decoded is the result of a successful Decode.
type Decoded struct {
	Fields Fields
	Mode   Mode
}

// Decode turns a raw payload into named numeric fields.
//
// The payload is first tried as a JSON object, whose values must all be
// numbers. Any other payload (invalid JSON, array, string, number, bool)
// is parsed as a single float and returned as {"value": v}. Surrounding
// whitespace is ignored.
//
// Returns ErrUnparseable when neither strategy applies, or
// ErrInvalidFieldType when an object holds a non-numeric value. On error
// no fields are returned.
func Decode(payload []byte) (Decoded, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return Decoded{}, fmt.Errorf("%w: empty payload", ErrUnparseable)
	}

	if obj, ok := parseObject(trimmed); ok {
		fields, err := decodeObject(obj)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Fields: fields, Mode: ModeObject}, nil
	}

	return decodeScalar(trimmed)
}

// parseObject reports whether b is a JSON object and returns it.
func parseObject(b []byte) (map[string]any, bool) {
	if b[0] != '{' {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, false
	}
	return obj, obj != nil
}

func decodeObject(obj map[string]any) (Fields, error) {
	if len(obj) == 0 {
		return nil, fmt.Errorf("%w: empty object", ErrUnparseable)
	}

	fields := make(Fields, len(obj))
	// Sorted so the same payload always reports the same offending field.
	for _, name := range slices.Sorted(maps.Keys(obj)) {
		v, ok := obj[name].(float64)
		if !ok {
			return nil, fmt.Errorf("%w: field %q is %s", ErrInvalidFieldType, name, jsonKind(obj[name]))
		}
		fields[name] = v
	}
	return fields, nil
}

func decodeScalar(b []byte) (Decoded, error) {
	// ParseFloat accepts Go hex floats such as 0x1p-2; sensors send decimal.
	if isHexLiteral(b) {
		return Decoded{}, fmt.Errorf("%w: hexadecimal value %q", ErrUnparseable, b)
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %w", ErrUnparseable, err)
	}
	// InfluxDB cannot store NaN or infinities.
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Decoded{}, fmt.Errorf("%w: non-finite value %q", ErrUnparseable, b)
	}
	return Decoded{Fields: Fields{ScalarField: v}, Mode: ModeScalar}, nil
}

func isHexLiteral(b []byte) bool {
	if len(b) > 0 && (b[0] == '+' || b[0] == '-') {
		b = b[1:]
	}
	return len(b) >= 2 && b[0] == '0' && (b[1] == 'x' || b[1] == 'X')
}

// jsonKind names the JSON type of a decoded value for error messages.
func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case string:
		return "a string"
	case []any:
		return "an array"
	case map[string]any:
		return "an object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
