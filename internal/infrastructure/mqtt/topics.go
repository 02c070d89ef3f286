package mqtt

import "fmt"

// Topic prefixes. Hardware bridges use swncrew/{category}/{protocol}/{device};
// core events live under swncrew/core.
const (
	TopicPrefix       = "swncrew"
	TopicPrefixCore   = "swncrew/core"
	TopicPrefixSystem = "swncrew/system"
)

// Topics provides builders for SWNCREW MQTT topics.
//
//	topic := mqtt.Topics{}.Command("gpio", "valve-2")
//	// Returns: "swncrew/command/gpio/valve-2"
type Topics struct{}

// Command returns the topic a hardware bridge listens on for one device.
func (Topics) Command(protocol, device string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocol, device)
}

// State returns the topic a hardware bridge reports device state on.
func (Topics) State(protocol, device string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocol, device)
}

// AllStates matches every device state topic for one protocol.
func (Topics) AllStates(protocol string) string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefix, protocol)
}

// MissionCompleted carries one event per mission that leaves the queue.
func (Topics) MissionCompleted() string {
	return TopicPrefixCore + "/mission/completed"
}

// ClassifierResult is where an external classifier posts labelled missions.
func (Topics) ClassifierResult() string {
	return TopicPrefix + "/classifier/result"
}

// SystemStatus carries the retained online/offline status of the core.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
