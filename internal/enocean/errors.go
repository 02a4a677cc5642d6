package enocean

import "errors"

// Codec errors.
var (
	// ErrPayloadTooShort indicates the raw payload carries fewer bits
	// than the profile's declared data width. The whole decode fails.
	ErrPayloadTooShort = errors.New("enocean: payload too short")

	// ErrUnmappedEnumValue indicates a raw value with no entry in the
	// field's enum table. Decoding of other fields continues.
	ErrUnmappedEnumValue = errors.New("enocean: unmapped enum value")

	// ErrValueOutOfRange indicates an encode input whose raw image falls
	// outside the field's raw range or bit width. Values are never
	// silently clamped.
	ErrValueOutOfRange = errors.New("enocean: value out of range")

	// ErrUnknownField indicates an encode input naming a field the
	// profile does not define.
	ErrUnknownField = errors.New("enocean: unknown field")

	// ErrInvalidValueType indicates an encode input of a type the field
	// cannot accept.
	ErrInvalidValueType = errors.New("enocean: invalid value type")
)

// Framing errors.
var (
	// ErrInvalidFrame indicates a structurally malformed ESP3 frame.
	ErrInvalidFrame = errors.New("enocean: invalid ESP3 frame")

	// ErrCRCMismatch indicates a frame whose header or data checksum
	// failed verification.
	ErrCRCMismatch = errors.New("enocean: CRC mismatch")

	// ErrNotRadioTelegram indicates an ESP3 frame that is not a radio
	// telegram packet and cannot yield a Telegram.
	ErrNotRadioTelegram = errors.New("enocean: not a radio telegram packet")

	// ErrInvalidTelegram indicates a radio packet too short to carry a
	// sender address and status byte.
	ErrInvalidTelegram = errors.New("enocean: invalid radio telegram")
)
