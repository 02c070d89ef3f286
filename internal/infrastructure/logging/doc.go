// Package logging provides structured logging for SWNCREW Core.
//
// It wraps log/slog so every component logs with the same handler,
// level filter and default fields (service, version).
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("mission completed", "valve_id", 2, "duration", d)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
