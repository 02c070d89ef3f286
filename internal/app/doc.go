// Package app is the composition root of SWNCREW Core.
//
// It turns a loaded configuration into running components: the history
// database, the MQTT and InfluxDB connections, the device catalogue and
// its ports, the trajectory runner, the mission queue controller and the
// HTTP API. App.Run owns the lifecycle; App.Close releases connections in
// reverse order of acquisition.
package app
