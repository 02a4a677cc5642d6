// Package enocean implements the EnOcean radio protocol layer: the ESP3
// serial frame codec, the radio telegram envelope, the profile-driven
// bit-field codec between raw payloads and typed engineering values, and
// a bounded ring buffer of recent telegrams for diagnostics.
//
// The codec is driven entirely by eep.Profile field definitions; it has
// no knowledge of specific device classes. Bit addressing across a
// telegram payload is MSB-first: bit 0 is the most significant bit of
// payload byte 0, matching the field offsets in the EEP dictionary.
package enocean
