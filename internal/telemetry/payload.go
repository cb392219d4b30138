package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrTrailingData is returned by Decode when the body holds more than one
// JSON value.
var ErrTrailingData = errors.New("unexpected data after JSON value")

// Decode reads exactly one JSON value. Numbers decode as json.Number.
func Decode(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, ErrTrailingData
	}
	return v, nil
}

// Unwrap extracts the object to normalise from a decoded payload.
//
// A non-empty array yields its first element. An object whose "data" member
// is itself an object yields that inner object. The second return value is
// false when no object remains.
func Unwrap(payload any) (map[string]any, bool) {
	if list, ok := payload.([]any); ok {
		if len(list) == 0 {
			return nil, false
		}
		payload = list[0]
	}

	m, ok := payload.(map[string]any)
	if !ok {
		return nil, false
	}
	if inner, ok := m["data"].(map[string]any); ok {
		return inner, true
	}
	return m, true
}
