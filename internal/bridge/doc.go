// Package bridge wires the radio side to the MQTT side.
//
// A single processor goroutine consumes telegrams from the gateway:
// teach-in telegrams feed the pairing machine, data telegrams are
// decoded with the sender's effective profile, merged into the device
// state cache and published as retained JSON. Every telegram lands in
// the ring buffer, decoded or not.
//
// The MQTT command surface drives teach-in sessions and encodes typed
// values into outgoing telegrams for bidirectional devices.
package bridge
