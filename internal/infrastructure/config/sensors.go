package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrSensorsConfig is returned when the sensors file is missing, unparsable
// or contains incomplete entries. It is fatal at startup.
var ErrSensorsConfig = errors.New("config: invalid sensors configuration")

// Sensor is one entry of the sensors file.
type Sensor struct {
	Topic       string `json:"topic"`
	Name        string `json:"name"`
	Measurement string `json:"measurement"`
}

// sensorsDocument is the on-disk layout of the sensors file.
type sensorsDocument struct {
	Sensors []Sensor `json:"sensors"`
}

// TopicValidator checks that a sensor topic is usable as a subscription filter.
type TopicValidator func(topic string) error

// LoadSensors reads and validates the sensors file at path.
//
// The file is a JSON document of the form:
//
//	{"sensors": [{"topic": "sensors/temp1", "name": "temp1", "measurement": "temperature"}]}
//
// Order is preserved; duplicate topics are allowed and resolved by the
// router (first entry wins). validate may be nil.
func LoadSensors(path string, validate TopicValidator) ([]Sensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrSensorsConfig, path, err)
	}

	var doc sensorsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrSensorsConfig, path, err)
	}

	if len(doc.Sensors) == 0 {
		return nil, fmt.Errorf("%w: %s defines no sensors", ErrSensorsConfig, path)
	}

	var errs []string
	for i, s := range doc.Sensors {
		var missing []string
		if s.Topic == "" {
			missing = append(missing, "topic")
		}
		if s.Name == "" {
			missing = append(missing, "name")
		}
		if s.Measurement == "" {
			missing = append(missing, "measurement")
		}
		if len(missing) > 0 {
			errs = append(errs, fmt.Sprintf("sensors[%d]: missing %s", i, strings.Join(missing, ", ")))
			continue
		}
		if validate != nil {
			if verr := validate(s.Topic); verr != nil {
				errs = append(errs, fmt.Sprintf("sensors[%d]: topic %q: %v", i, s.Topic, verr))
			}
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSensorsConfig, strings.Join(errs, "; "))
	}

	return doc.Sensors, nil
}
