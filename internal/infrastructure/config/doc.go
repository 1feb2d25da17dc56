// Package config handles loading and validating emitterctl configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading a .env file from the working directory, when present
//   - Overriding with EMITTER_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Channel keys are credentials. Prefer passing them on the command line
//     or through the recorder section of a file with restricted permissions (0600)
//   - The InfluxDB token should be set via EMITTER_INFLUXDB_TOKEN
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
//
// Passing an empty path skips the file and uses defaults plus environment.
package config
