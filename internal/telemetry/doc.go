// Package telemetry records completed missions and device state outside
// the process.
//
// InfluxSink writes points to InfluxDB; EventPublisher republishes
// completion records on MQTT for other services. Both satisfy the
// scheduler's TelemetrySink, and InfluxSink also satisfies the device
// package's Recorder.
package telemetry
