package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// RequestID is a JSON-RPC request ID. JSON-RPC 2.0 allows string or numeric
// IDs; the original variant is preserved so responses echo the ID back in
// the same shape the caller used.
type RequestID struct {
	value any
}

// NewRequestID builds a RequestID from a string or numeric value.
// Unsupported types yield a nil-valued ID.
func NewRequestID(value any) *RequestID {
	switch v := value.(type) {
	case string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return &RequestID{value: v}
	default:
		return &RequestID{value: nil}
	}
}

// String renders the ID for logging and map keys. String and numeric IDs
// with the same digits render identically, which is fine for logging but
// not for equality; use Value for that.
func (id *RequestID) String() string {
	if id == nil || id.value == nil {
		return ""
	}
	return fmt.Sprintf("%v", id.value)
}

// Value returns the underlying string, int64, or float64 value.
func (id *RequestID) Value() any {
	if id == nil {
		return nil
	}
	return id.value
}

// IsNil reports whether the ID carries no value.
func (id *RequestID) IsNil() bool {
	return id == nil || id.value == nil
}

// MarshalJSON implements json.Marshaler.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id == nil || id.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler. Integral numbers are stored
// as int64 so they round-trip without a fractional part.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		if num == float64(int64(num)) {
			id.value = int64(num)
		} else {
			id.value = num
		}
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		id.value = str
		return nil
	}

	return fmt.Errorf("JSON-RPC ID must be a string or number, got: %s", string(data))
}
