// Package config handles loading and validating mqtt2influx configuration.
//
// This package manages:
//   - Loading the service configuration from an optional YAML file
//   - Overriding with environment variables
//   - Validation of required fields
//   - Loading the JSON sensors file that defines topic routes
//
// Security Considerations:
//   - Broker and database passwords should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sensors, err := config.LoadSensors(cfg.SensorsFile, mqtt.ValidateTopicFilter)
package config
