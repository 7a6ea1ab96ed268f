package raw

import (
	"encoding/json"
	"math"
)

// PushValue is one value of a Push action. Variants mirror the wire type
// tags 0 through 9.
type PushValue interface {
	// PushValueName returns the variant name, e.g. "String" or "Sint32".
	PushValueName() string
}

type (
	// PushString is tag 0: a NUL-terminated UTF-8 string.
	PushString string
	// PushFloat32 is tag 1: a little-endian IEEE-754 float32.
	PushFloat32 float32
	// PushNull is tag 2.
	PushNull struct{}
	// PushUndefined is tag 3.
	PushUndefined struct{}
	// PushRegister is tag 4: a register number.
	PushRegister uint8
	// PushBoolean is tag 5: a byte, non-zero meaning true.
	PushBoolean bool
	// PushFloat64 is tag 6: a float64 with its 32-bit halves swapped on the
	// wire.
	PushFloat64 float64
	// PushSint32 is tag 7: a little-endian two's complement int32.
	PushSint32 int32
	// PushConstant is tag 8 (one index byte) or tag 9 (two index bytes): an
	// index into the constant pool.
	PushConstant uint16
)

func (PushString) PushValueName() string    { return "String" }
func (PushFloat32) PushValueName() string   { return "Float32" }
func (PushNull) PushValueName() string      { return "Null" }
func (PushUndefined) PushValueName() string { return "Undefined" }
func (PushRegister) PushValueName() string  { return "Register" }
func (PushBoolean) PushValueName() string   { return "Boolean" }
func (PushFloat64) PushValueName() string   { return "Float64" }
func (PushSint32) PushValueName() string    { return "Sint32" }
func (PushConstant) PushValueName() string  { return "Constant" }

func pushValueJSON(name string, value interface{}) ([]byte, error) {
	key, err := json.Marshal(name)
	if err != nil {
		return nil, err
	}
	out := append([]byte(`{"value":`), key...)
	if value != nil {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		out = append(out, ',')
		out = append(out, key...)
		out = append(out, ':')
		out = append(out, encoded...)
	}
	return append(out, '}'), nil
}

// MarshalJSON implements json.Marshaler.
func (v PushString) MarshalJSON() ([]byte, error) { return pushValueJSON("String", string(v)) }

// MarshalJSON implements json.Marshaler. Non-finite values are encoded via
// their bit pattern since JSON has no representation for them.
func (v PushFloat32) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return pushValueJSON("Float32Bits", math.Float32bits(float32(v)))
	}
	return pushValueJSON("Float32", float32(v))
}

// MarshalJSON implements json.Marshaler.
func (v PushNull) MarshalJSON() ([]byte, error) { return pushValueJSON("Null", nil) }

// MarshalJSON implements json.Marshaler.
func (v PushUndefined) MarshalJSON() ([]byte, error) { return pushValueJSON("Undefined", nil) }

// MarshalJSON implements json.Marshaler.
func (v PushRegister) MarshalJSON() ([]byte, error) { return pushValueJSON("Register", uint8(v)) }

// MarshalJSON implements json.Marshaler.
func (v PushBoolean) MarshalJSON() ([]byte, error) { return pushValueJSON("Boolean", bool(v)) }

// MarshalJSON implements json.Marshaler. Non-finite values are encoded via
// their bit pattern since JSON has no representation for them.
func (v PushFloat64) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return pushValueJSON("Float64Bits", math.Float64bits(f))
	}
	return pushValueJSON("Float64", f)
}

// MarshalJSON implements json.Marshaler.
func (v PushSint32) MarshalJSON() ([]byte, error) { return pushValueJSON("Sint32", int32(v)) }

// MarshalJSON implements json.Marshaler.
func (v PushConstant) MarshalJSON() ([]byte, error) { return pushValueJSON("Constant", uint16(v)) }
