// Package mqtt provides the MQTT link between SWNCREW Core and the
// hardware bridges that drive valves and read flowmeters.
//
//	SWNCREW Core ↔ MQTT Broker ↔ Hardware Bridge (GPIO, CAN)
//
// The client reconnects automatically, restores subscriptions after a
// reconnect and registers a Last Will on swncrew/system/status so the
// bridge can close its valves when the core disappears.
//
// Usage:
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.Command("gpio", "valve-1"), cmd, false)
package mqtt
