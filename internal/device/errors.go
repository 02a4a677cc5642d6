package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDuplicateAddress) {
//	    // handle duplicate registration
//	}
var (
	// ErrDeviceNotFound is returned when an address or name does not
	// match a registered device.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDuplicateAddress is returned when registering an address that
	// is already registered. The existing registration is kept.
	ErrDuplicateAddress = errors.New("device: address already registered")

	// ErrDuplicateName is returned when a device name is already taken.
	ErrDuplicateName = errors.New("device: name already taken")

	// ErrInvalidName is returned when a device name is empty or not
	// usable as an MQTT topic segment.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidProfile is returned when registering with a zero
	// profile triple.
	ErrInvalidProfile = errors.New("device: invalid profile")
)
