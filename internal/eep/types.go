package eep

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Known RORG values and their fixed data payload widths in bits.
const (
	RORG4BS byte = 0xA5 // 4-byte sensor data
	RORG1BS byte = 0xD5 // 1-byte sensor data
	RORGRPS byte = 0xF6 // repeated switch (rocker)
	RORGVLD byte = 0xD2 // variable length data
	RORGUTE byte = 0xD4 // universal teach-in

	bits4BS = 32
	bits1BS = 8
	bitsRPS = 8
)

// ProfileID identifies an EnOcean Equipment Profile by its
// RORG-FUNC-TYPE triple.
type ProfileID struct {
	RORG byte
	Func byte
	Type byte
}

// ParseProfileID parses a profile id string of the form "A5-02-05".
// Hex digits may be upper or lower case.
func ParseProfileID(s string) (ProfileID, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return ProfileID{}, fmt.Errorf("%w: %q", ErrInvalidProfileID, s)
	}

	var bytes [3]byte
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return ProfileID{}, fmt.Errorf("%w: %q", ErrInvalidProfileID, s)
		}
		bytes[i] = byte(v)
	}

	return ProfileID{RORG: bytes[0], Func: bytes[1], Type: bytes[2]}, nil
}

// String renders the canonical upper-hex form, e.g. "A5-02-05".
func (id ProfileID) String() string {
	return fmt.Sprintf("%02X-%02X-%02X", id.RORG, id.Func, id.Type)
}

// IsZero reports whether the id is the zero value.
func (id ProfileID) IsZero() bool {
	return id == ProfileID{}
}

// DataField describes a single bit-field within a telegram payload.
//
// Bit addressing is MSB-first: offset 0 is the most significant bit of
// payload byte 0. A field is either a linear-scale value (Enum nil) or
// an enum table (Enum non-nil); the scale members are ignored for enums.
type DataField struct {
	// Shortcut is the field name used as the key in decoded results
	// (e.g. "TMP", "HUM", "LRNB"). Unique within a profile.
	Shortcut    string `json:"shortcut"`
	Description string `json:"description,omitempty"`

	// Offset and Size locate the field within the payload, in bits.
	Offset uint `json:"offset"`
	Size   uint `json:"size"`

	// Unit is the engineering unit of the scaled value (value fields only).
	Unit string `json:"unit,omitempty"`

	// RangeMin/RangeMax bound the raw value, ScaleMin/ScaleMax the
	// engineering value. The mapping is linear between the two ranges.
	RangeMin int64   `json:"range_min,omitempty"`
	RangeMax int64   `json:"range_max,omitempty"`
	ScaleMin float64 `json:"scale_min,omitempty"`
	ScaleMax float64 `json:"scale_max,omitempty"`

	// Enum maps raw values to labels. Non-nil marks the field as an enum.
	Enum map[uint32]string `json:"enum,omitempty"`
}

// IsEnum reports whether the field decodes via an enum table.
func (f DataField) IsEnum() bool {
	return f.Enum != nil
}

// DeepCopy returns an independent copy of the field.
func (f DataField) DeepCopy() DataField {
	out := f
	if f.Enum != nil {
		out.Enum = make(map[uint32]string, len(f.Enum))
		for k, v := range f.Enum {
			out.Enum[k] = v
		}
	}
	return out
}

// Profile is a complete telegram description for one RORG-FUNC-TYPE triple.
type Profile struct {
	ID          ProfileID
	Title       string
	Description string

	// Fields in dictionary order.
	Fields []DataField
}

// DeepCopy returns an independent copy of the profile.
// Callers may mutate the copy without affecting the store.
func (p *Profile) DeepCopy() *Profile {
	out := *p
	out.Fields = make([]DataField, len(p.Fields))
	for i, f := range p.Fields {
		out.Fields[i] = f.DeepCopy()
	}
	return &out
}

// Field returns the field with the given shortcut, if present.
func (p *Profile) Field(shortcut string) (DataField, bool) {
	for _, f := range p.Fields {
		if f.Shortcut == shortcut {
			return f, true
		}
	}
	return DataField{}, false
}

// DataBits returns the payload width in bits required to decode this
// profile: the fixed RORG width when known, otherwise the byte-rounded
// extent of the widest field.
func (p *Profile) DataBits() uint {
	if bits, ok := rorgDataBits(p.ID.RORG); ok {
		return bits
	}

	var max uint
	for _, f := range p.Fields {
		if end := f.Offset + f.Size; end > max {
			max = end
		}
	}
	// Round up to whole bytes
	return (max + 7) / 8 * 8
}

// rorgDataBits returns the fixed data payload width for a RORG, if it
// has one. Variable-length RORGs (VLD) return false.
func rorgDataBits(rorg byte) (uint, bool) {
	switch rorg {
	case RORG4BS:
		return bits4BS, true
	case RORG1BS:
		return bits1BS, true
	case RORGRPS:
		return bitsRPS, true
	default:
		return 0, false
	}
}

// Override is one retained override generation for a profile.
// Records are immutable once created.
type Override struct {
	Profile   ProfileID   `json:"profile"`
	Version   int64       `json:"version"`
	Fields    []DataField `json:"fields"`
	CreatedAt time.Time   `json:"created_at"`
}

// DeepCopy returns an independent copy of the override.
func (o Override) DeepCopy() Override {
	out := o
	out.Fields = make([]DataField, len(o.Fields))
	for i, f := range o.Fields {
		out.Fields[i] = f.DeepCopy()
	}
	return out
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
