// Package device is the catalogue of the rig's valves and flowmeters and
// the adapters that drive them.
//
// The Registry holds the last known state of every device: whether each
// valve is open, each flowmeter's setpoint and its most recent reading.
// It is updated by the port adapters when commands succeed and by the
// state ingester when a hardware bridge reports readings.
//
// Two implementations of the scheduler's valve and setpoint ports exist:
//
//   - MQTTPorts publishes commands to a hardware bridge on
//     swncrew/command/{protocol}/{device}.
//   - MockPorts only updates the registry and mirrors each setpoint as
//     the flowmeter's reading, for running without hardware.
//
// Devices are addressed by integer ID. Valve -1 addresses every valve.
//
// # Usage
//
//	registry := device.NewRegistry(cfg.Hardware.ValveCount, cfg.Hardware.FlowmeterCount)
//	ports := device.NewMQTTPorts(mqttClient, registry, cfg.Hardware.Protocol)
//	ports.SetRecorder(influxSink)
//
//	ingester := device.NewStateIngester(registry)
//	mqttClient.Subscribe(mqtt.Topics{}.AllStates(cfg.Hardware.Protocol), 1, ingester.HandleState)
package device
