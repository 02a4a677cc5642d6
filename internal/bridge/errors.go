package bridge

import "errors"

var (
	// ErrInvalidCommand is returned for malformed or unknown MQTT
	// commands.
	ErrInvalidCommand = errors.New("bridge: invalid command")

	// ErrGatewayUnavailable is returned when a command needs the radio
	// and the core is running without a transceiver.
	ErrGatewayUnavailable = errors.New("bridge: gateway unavailable")

	// ErrNoSenderID is returned when sending towards a device that has
	// no sender address assigned.
	ErrNoSenderID = errors.New("bridge: device has no sender address")
)
