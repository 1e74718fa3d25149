package signing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
)

var (
	// ErrNotObject is returned when a JSON document is not an object.
	ErrNotObject = errors.New("signing: payload is not a JSON object")
	// ErrNestedValue is returned when a field holds an object or array.
	ErrNestedValue = errors.New("signing: nested values cannot be signed")
)

// ParseJSONObject decodes a flat JSON object into Fields, keeping document
// order. Scalars are rendered the way they are signed: strings unescaped,
// numbers as written, true as "1", false and null as "".
func ParseJSONObject(data []byte) (Fields, error) {
	var out Fields
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return out, fmt.Errorf("signing: invalid JSON: %w", ErrNotObject)
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return out, ErrNotObject
	}
	err := jsonparser.ObjectEach(trimmed, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		name := string(key)
		rendered, err := renderScalar(value, dataType)
		if err != nil {
			return fmt.Errorf("%w: %q", err, name)
		}
		out.Set(name, rendered)
		return nil
	})
	if err != nil {
		return Fields{}, err
	}
	return out, nil
}

func renderScalar(value []byte, dataType jsonparser.ValueType) (string, error) {
	switch dataType {
	case jsonparser.String:
		return jsonparser.ParseString(value)
	case jsonparser.Number:
		return string(value), nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(value)
		if err != nil {
			return "", err
		}
		return FormatBool(b), nil
	case jsonparser.Null:
		return "", nil
	case jsonparser.Object, jsonparser.Array:
		return "", ErrNestedValue
	default:
		return "", fmt.Errorf("signing: unsupported value type %s", dataType)
	}
}
