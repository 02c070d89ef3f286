// Package influxdb provides InfluxDB connectivity for SWNCREW Core.
//
// It wraps influxdb-client-go v2 with a batched, non-blocking write API.
// Completed missions, valve state changes and flowmeter readings are
// written through it by the telemetry package.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without time-series telemetry
//	}
//	client.SetOnError(func(err error) { logger.Warn("influx write failed", "error", err) })
//	defer client.Close()
package influxdb
