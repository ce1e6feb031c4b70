package mqtt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Topic filter limits from MQTT 3.1.1 section 4.7.
const (
	maxTopicLength  = 65535
	singleLevelWild = "+"
	multiLevelWild  = "#"
	topicLevelSep   = "/"
	clientIDPrefix  = "mqtt2influx-"
	clientIDRandLen = 8
)

// ValidateTopicFilter checks that filter is a legal subscription filter.
//
// Rules:
//   - non-empty, at most 65535 bytes, valid UTF-8, no NUL character
//   - "#" only as the whole last level ("a/#", "#")
//   - "+" only as a whole level ("a/+/b", "+")
//
// Returns:
//   - error: wrapped ErrInvalidTopic describing the first violation
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if len(filter) > maxTopicLength {
		return fmt.Errorf("%w: topic exceeds %d bytes", ErrInvalidTopic, maxTopicLength)
	}
	if !utf8.ValidString(filter) {
		return fmt.Errorf("%w: topic is not valid UTF-8", ErrInvalidTopic)
	}
	if strings.ContainsRune(filter, 0) {
		return fmt.Errorf("%w: topic contains NUL", ErrInvalidTopic)
	}

	levels := strings.Split(filter, topicLevelSep)
	for i, level := range levels {
		if strings.Contains(level, multiLevelWild) {
			if level != multiLevelWild || i != len(levels)-1 {
				return fmt.Errorf("%w: %q must be the whole last level", ErrInvalidTopic, multiLevelWild)
			}
		}
		if strings.Contains(level, singleLevelWild) && level != singleLevelWild {
			return fmt.Errorf("%w: %q must occupy a whole level", ErrInvalidTopic, singleLevelWild)
		}
	}

	return nil
}

// NewClientID returns a unique client identifier such as
// "mqtt2influx-1b4e28ba". The broker drops an existing session when a
// second client connects with the same ID.
func NewClientID() string {
	return clientIDPrefix + uuid.NewString()[:clientIDRandLen]
}
