package enocean

import (
	"fmt"
	"math"

	"github.com/ESDN83/enocean-mqtt-core/internal/eep"
)

// ValueKind distinguishes how a decoded value was produced.
type ValueKind int

const (
	// KindNumber marks a linear-scale field decoded to a float.
	KindNumber ValueKind = iota

	// KindEnum marks an enum field decoded to a label.
	KindEnum
)

// Value is one decoded field.
type Value struct {
	// Raw is the unsigned integer extracted from the bit field.
	Raw uint32 `json:"raw"`

	// Number is the scaled engineering value (KindNumber only).
	Number float64 `json:"number,omitempty"`

	// Label is the enum label (KindEnum only).
	Label string `json:"label,omitempty"`

	// Unit is the engineering unit from the profile, if any.
	Unit string `json:"unit,omitempty"`

	Kind ValueKind `json:"-"`
}

// Result is the outcome of decoding one telegram payload.
//
// A degraded result carries the fields that decoded successfully in
// Values and the per-field failures in FieldErrors.
type Result struct {
	Values      map[string]Value
	Degraded    bool
	FieldErrors map[string]error
}

// Decode extracts every profile field from a raw payload.
//
// The payload must carry at least the profile's declared data width;
// otherwise the whole decode fails with ErrPayloadTooShort. A raw enum
// value missing from its table fails only that field: the remaining
// fields still decode and the result is flagged Degraded.
func Decode(profile *eep.Profile, payload []byte) (Result, error) {
	need := profile.DataBits()
	if uint(len(payload))*8 < need {
		return Result{}, fmt.Errorf("%w: profile %s needs %d bits, payload has %d",
			ErrPayloadTooShort, profile.ID, need, len(payload)*8)
	}

	result := Result{Values: make(map[string]Value, len(profile.Fields))}

	for _, field := range profile.Fields {
		raw, err := ReadBits(payload, field.Offset, field.Size)
		if err != nil {
			return Result{}, err
		}

		if field.IsEnum() {
			label, ok := field.Enum[raw]
			if !ok {
				if result.FieldErrors == nil {
					result.FieldErrors = make(map[string]error)
				}
				result.FieldErrors[field.Shortcut] = fmt.Errorf("%w: field %q raw value %d",
					ErrUnmappedEnumValue, field.Shortcut, raw)
				result.Degraded = true
				continue
			}
			result.Values[field.Shortcut] = Value{Raw: raw, Label: label, Kind: KindEnum}
			continue
		}

		result.Values[field.Shortcut] = Value{
			Raw:    raw,
			Number: scaleValue(field, raw),
			Unit:   field.Unit,
			Kind:   KindNumber,
		}
	}

	return result, nil
}

// scaleValue maps a raw reading linearly onto the engineering range.
func scaleValue(f eep.DataField, raw uint32) float64 {
	rawSpan := float64(f.RangeMax - f.RangeMin)
	return f.ScaleMin + (float64(raw)-float64(f.RangeMin))*(f.ScaleMax-f.ScaleMin)/rawSpan
}

// Encode builds a raw payload from named field values.
//
// Accepted input types per field:
//   - linear-scale fields: float64, float32 or any integer type, taken
//     as the engineering value and mapped back to the nearest raw step;
//   - enum fields: a string label (reverse table lookup) or an integer
//     raw value already present in the table.
//
// A value whose raw image falls outside the field's raw range or bit
// width fails with ErrValueOutOfRange; values are never clamped.
// Fields not mentioned in values encode as zero bits.
func Encode(profile *eep.Profile, values map[string]any) ([]byte, error) {
	payload := make([]byte, profile.DataBits()/8)

	for name, input := range values {
		field, ok := profile.Field(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q in profile %s", ErrUnknownField, name, profile.ID)
		}

		raw, err := rawFromInput(field, input)
		if err != nil {
			return nil, err
		}

		if err := WriteBits(payload, field.Offset, field.Size, raw); err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
	}

	return payload, nil
}

// rawFromInput converts one caller-supplied value to its raw bit-field
// representation, enforcing the field's range.
func rawFromInput(field eep.DataField, input any) (uint32, error) {
	if field.IsEnum() {
		return rawFromEnumInput(field, input)
	}

	number, ok := asFloat(input)
	if !ok {
		return 0, fmt.Errorf("%w: field %q expects a number, got %T",
			ErrInvalidValueType, field.Shortcut, input)
	}

	// Inverse linear mapping, rounded to the nearest raw step
	scaleSpan := field.ScaleMax - field.ScaleMin
	rawSpan := float64(field.RangeMax - field.RangeMin)
	raw := math.Round(float64(field.RangeMin) + (number-field.ScaleMin)*rawSpan/scaleSpan)

	if raw < float64(field.RangeMin) || raw > float64(field.RangeMax) {
		return 0, fmt.Errorf("%w: field %q value %v maps to raw %v outside [%d,%d]",
			ErrValueOutOfRange, field.Shortcut, number, raw, field.RangeMin, field.RangeMax)
	}
	if field.Size < 32 && uint64(raw) >= uint64(1)<<field.Size {
		return 0, fmt.Errorf("%w: field %q raw %v exceeds %d bits",
			ErrValueOutOfRange, field.Shortcut, raw, field.Size)
	}

	return uint32(raw), nil
}

// rawFromEnumInput resolves an enum input, either by label or by raw value.
func rawFromEnumInput(field eep.DataField, input any) (uint32, error) {
	if label, ok := input.(string); ok {
		for raw, candidate := range field.Enum {
			if candidate == label {
				return raw, nil
			}
		}
		return 0, fmt.Errorf("%w: field %q has no label %q",
			ErrUnmappedEnumValue, field.Shortcut, label)
	}

	number, ok := asFloat(input)
	if !ok || number != math.Trunc(number) || number < 0 {
		return 0, fmt.Errorf("%w: field %q expects a label or raw value, got %T",
			ErrInvalidValueType, field.Shortcut, input)
	}

	raw := uint32(number)
	if _, ok := field.Enum[raw]; !ok {
		return 0, fmt.Errorf("%w: field %q raw value %d",
			ErrUnmappedEnumValue, field.Shortcut, raw)
	}
	return raw, nil
}

// asFloat widens the numeric types accepted by Encode. JSON-decoded
// commands arrive as float64; Go callers may pass native integers.
func asFloat(input any) (float64, bool) {
	switch v := input.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}
