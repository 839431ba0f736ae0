package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSerialization marks a stored blob that cannot be decoded, or fields that
// cannot be encoded. A corrupt blob is never treated as an absent record.
var ErrSerialization = errors.New("account data serialization error")

// EncodeFields serializes fields to the stored JSON object form.
// A nil map encodes as an empty object.
func EncodeFields(fields Fields) ([]byte, error) {
	if fields == nil {
		fields = Fields{}
	}
	blob, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrSerialization, err)
	}
	return blob, nil
}

// DecodeFields parses a stored blob. The blob must be a JSON object.
func DecodeFields(blob []byte) (Fields, error) {
	var fields Fields
	if err := json.Unmarshal(blob, &fields); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrSerialization, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: decode: blob is not a JSON object", ErrSerialization)
	}
	return fields, nil
}
