package enocean

import "fmt"

// ReadBits extracts an unsigned bit field from a payload.
//
// Bit numbering is MSB-first: offset 0 addresses the most significant
// bit of payload byte 0, offset 8 the most significant bit of byte 1,
// and so on. Size is limited to 32 bits.
//
// Returns ErrPayloadTooShort when the field extends past the payload.
func ReadBits(payload []byte, offset, size uint) (uint32, error) {
	if size == 0 || size > 32 {
		return 0, fmt.Errorf("enocean: bit field size %d out of range [1,32]", size)
	}

	totalBits := uint(len(payload)) * 8
	if offset+size > totalBits {
		return 0, fmt.Errorf("%w: field at bits %d-%d exceeds %d-bit payload",
			ErrPayloadTooShort, offset, offset+size-1, totalBits)
	}

	// Accumulate the bytes the field touches into one integer, then
	// shift the field down to the least significant position.
	first := offset / 8
	last := (offset + size - 1) / 8

	var acc uint64
	for i := first; i <= last; i++ {
		acc = acc<<8 | uint64(payload[i])
	}

	spanBits := (last - first + 1) * 8
	shift := spanBits - (offset - first*8) - size
	mask := uint64(1)<<size - 1

	return uint32(acc >> shift & mask), nil
}

// WriteBits stores an unsigned bit field into a payload, leaving bits
// outside the field untouched. Addressing matches ReadBits.
//
// Returns ErrValueOutOfRange when value does not fit in size bits and
// ErrPayloadTooShort when the field extends past the payload.
func WriteBits(payload []byte, offset, size uint, value uint32) error {
	if size == 0 || size > 32 {
		return fmt.Errorf("enocean: bit field size %d out of range [1,32]", size)
	}
	if size < 32 && value>>size != 0 {
		return fmt.Errorf("%w: value %d does not fit in %d bits", ErrValueOutOfRange, value, size)
	}

	totalBits := uint(len(payload)) * 8
	if offset+size > totalBits {
		return fmt.Errorf("%w: field at bits %d-%d exceeds %d-bit payload",
			ErrPayloadTooShort, offset, offset+size-1, totalBits)
	}

	first := offset / 8
	last := (offset + size - 1) / 8

	var acc uint64
	for i := first; i <= last; i++ {
		acc = acc<<8 | uint64(payload[i])
	}

	spanBits := (last - first + 1) * 8
	shift := spanBits - (offset - first*8) - size
	mask := (uint64(1)<<size - 1) << shift

	acc = acc&^mask | uint64(value)<<shift&mask

	for i := last + 1; i > first; i-- {
		payload[i-1] = byte(acc)
		acc >>= 8
	}
	return nil
}
