package device

import (
	"fmt"
	"time"

	"github.com/ESDN83/enocean-mqtt-core/internal/eep"
)

// Device is a registered EnOcean transmitter (or bidirectional actuator).
type Device struct {
	// Address is the 32-bit radio sender ID, the unique key.
	Address uint32 `json:"address"`

	// Name is the human label, unique across the registry. Used as the
	// device segment in MQTT topics.
	Name string `json:"name"`

	// Profile is the assigned EEP triple used to decode telegrams.
	Profile eep.ProfileID `json:"profile"`

	// Sender is our own sender ID for bidirectional devices, nil for
	// receive-only sensors.
	Sender *uint32 `json:"sender,omitempty"`

	// State holds the last decoded value per field shortcut.
	State          map[string]FieldState `json:"state"`
	StateUpdatedAt *time.Time            `json:"state_updated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FieldState is the last decoded value of one profile field.
type FieldState struct {
	Raw       uint32    `json:"raw"`
	Number    float64   `json:"number,omitempty"`
	Label     string    `json:"label,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AddressString renders the address as 0x-prefixed upper hex,
// e.g. "0xFFBD7480".
func (d *Device) AddressString() string {
	return fmt.Sprintf("0x%08X", d.Address)
}

// DeepCopy creates a complete independent copy of the Device.
// Map fields are cloned so modifications to the copy do not affect the
// original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d

	if d.State != nil {
		cpy.State = make(map[string]FieldState, len(d.State))
		for k, v := range d.State {
			cpy.State[k] = v
		}
	}

	if d.Sender != nil {
		sender := *d.Sender
		cpy.Sender = &sender
	}

	if d.StateUpdatedAt != nil {
		ts := *d.StateUpdatedAt
		cpy.StateUpdatedAt = &ts
	}

	return &cpy
}
