package ingest

// Route binds one subscribed topic to a measurement and sensor identifier.
// Routes are built once at startup and never mutated.
type Route struct {
	// Topic is compared with the message topic by exact string match.
	Topic string

	// SensorID is written as the sensor_node tag.
	SensorID string

	// Measurement is the destination measurement name.
	Measurement string
}

// distinctTopics returns each route topic once, in first-seen order.
func distinctTopics(routes []Route) []string {
	seen := make(map[string]struct{}, len(routes))
	topics := make([]string, 0, len(routes))
	for _, r := range routes {
		if _, ok := seen[r.Topic]; ok {
			continue
		}
		seen[r.Topic] = struct{}{}
		topics = append(topics, r.Topic)
	}
	return topics
}
