// Package config handles loading and validating SWNCREW Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading a .env.local dotenv file when present
//   - Overriding with SWNCREW_* environment variables
//   - Validation of required fields
//
// Sensitive values (MQTT password, InfluxDB token) should be set via
// environment variables or the dotenv file rather than the YAML file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Rig.Name)
package config
