package mqtt

import "fmt"

// Topic prefixes for the EnOcean Core MQTT surface.
//
// Device topics use the flat scheme: enocean/{device}/{suffix}
// System and teach-in topics live under their own prefixes so UI
// clients can subscribe narrowly.
const (
	// TopicPrefix is the base for all EnOcean Core topics.
	TopicPrefix = "enocean"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "enocean/system"

	// TopicPrefixTeachIn is the base for teach-in session topics.
	TopicPrefixTeachIn = "enocean/teachin"
)

// Topics provides builders for EnOcean Core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("hall-temp")
//	// Returns: "enocean/hall-temp/state"
type Topics struct{}

// DeviceState returns the topic for decoded device state updates.
//
// Example: enocean/hall-temp/state
func (Topics) DeviceState(name string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefix, name)
}

// DeviceSet returns the topic for typed-value commands towards a device.
//
// Example: enocean/hall-temp/set
func (Topics) DeviceSet(name string) string {
	return fmt.Sprintf("%s/%s/set", TopicPrefix, name)
}

// TeachInStatus returns the topic where teach-in session snapshots are
// published (retained) on every transition.
//
// Example: enocean/teachin/status
func (Topics) TeachInStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixTeachIn)
}

// TeachInSet returns the command topic for driving teach-in sessions.
// Payloads: {"action":"activate","window_s":60} / "confirm" / "cancel".
//
// Example: enocean/teachin/set
func (Topics) TeachInSet() string {
	return fmt.Sprintf("%s/set", TopicPrefixTeachIn)
}

// SystemStatus returns the system status topic (online/offline, LWT).
//
// Example: enocean/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceSets returns a pattern matching all device command topics.
//
// Pattern: enocean/+/set
func (Topics) AllDeviceSets() string {
	return fmt.Sprintf("%s/+/set", TopicPrefix)
}

// AllDeviceStates returns a pattern matching all device state topics.
//
// Pattern: enocean/+/state
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/+/state", TopicPrefix)
}

// AllTopics returns a pattern matching all EnOcean Core topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: enocean/#
func (Topics) AllTopics() string {
	return "enocean/#"
}
