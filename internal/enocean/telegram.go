package enocean

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ESDN83/enocean-mqtt-core/internal/eep"
)

// Telegram is a received (or outgoing) EnOcean radio telegram.
//
// Payload holds only the data bytes between the RORG byte and the
// sender address; for a 4BS telegram that is DB3..DB0 (4 bytes), for
// 1BS and RPS a single byte.
type Telegram struct {
	// RORG is the radio telegram type (0xA5 4BS, 0xD5 1BS, 0xF6 RPS, ...).
	RORG byte

	// Payload is the data portion, MSB-first bit addressed.
	Payload []byte

	// SenderID is the 32-bit radio address of the transmitting device.
	SenderID uint32

	// Status is the telegram status byte (repeater count, integrity bits).
	Status byte

	// DBm is the received signal strength, negative. Zero when unknown.
	DBm int

	// ReceivedAt records when the telegram left the gateway reader.
	ReceivedAt time.Time
}

// DeepCopy returns an independent copy of the telegram.
func (t Telegram) DeepCopy() Telegram {
	out := t
	out.Payload = make([]byte, len(t.Payload))
	copy(out.Payload, t.Payload)
	return out
}

// IsTeachIn reports whether the telegram is a teach-in announcement.
//
// The LRN bit is inverted on air: a cleared bit marks teach-in.
//   - 4BS: DB0 bit 3 (payload[3] & 0x08)
//   - 1BS: bit 3 of the single data byte
//   - UTE: always a teach-in request
//   - RPS: rocker switches have no teach-in telegram
func (t Telegram) IsTeachIn() bool {
	switch t.RORG {
	case eep.RORG4BS:
		return len(t.Payload) >= 4 && t.Payload[3]&0x08 == 0
	case eep.RORG1BS:
		return len(t.Payload) >= 1 && t.Payload[0]&0x08 == 0
	case eep.RORGUTE:
		return true
	default:
		return false
	}
}

// TeachInProfile extracts the announced EEP from a 4BS teach-in
// telegram. Only variant 3 teach-ins (LRN type bit set) carry the
// profile:
//
//	DB3: FUNC (6 bits) | TYPE high (2 bits)
//	DB2: TYPE low (5 bits) | manufacturer high (3 bits)
//	DB0 bit 7: LRN type (1 = profile and manufacturer present)
//
// Returns false for telegram types that do not announce a profile.
func (t Telegram) TeachInProfile() (eep.ProfileID, bool) {
	if t.RORG != eep.RORG4BS || !t.IsTeachIn() || len(t.Payload) < 4 {
		return eep.ProfileID{}, false
	}
	if t.Payload[3]&0x80 == 0 {
		// Variant 1/2 teach-in carries no EEP
		return eep.ProfileID{}, false
	}

	return eep.ProfileID{
		RORG: t.RORG,
		Func: t.Payload[0] >> 2,
		Type: t.Payload[0]&0x03<<5 | t.Payload[1]>>3,
	}, true
}

// String returns a compact human-readable form for logs and diagnostics.
func (t Telegram) String() string {
	return fmt.Sprintf("Telegram{RORG:%02X, Sender:%s, Data:%X, %ddBm}",
		t.RORG, FormatAddress(t.SenderID), t.Payload, t.DBm)
}

// FormatAddress renders a device address as 0x-prefixed upper hex,
// e.g. "0xFFBD7480".
func FormatAddress(addr uint32) string {
	return fmt.Sprintf("0x%08X", addr)
}

// ParseAddress parses addresses in the form "0xFFBD7480" or "FFBD7480".
func ParseAddress(s string) (uint32, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	v, err := strconv.ParseUint(trimmed, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("enocean: parsing address %q: %w", s, err)
	}
	return uint32(v), nil
}
