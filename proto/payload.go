package proto

import (
	"bytes"
	"encoding/json"
)

// Payload is the polymorphic key/value body of a message. Values are one of
// bool, int64, float64, string, nil, []any, or a nested map[string]any of
// the same. Numbers are kept apart from booleans and integers apart from
// fractional floats, which plain map[string]any decoding would not do.
type Payload map[string]any

// UnmarshalJSON decodes with json.Number so that integral values come back
// as int64 and only genuinely fractional values become float64.
func (p *Payload) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	m := make(map[string]any, len(raw))
	for k, v := range raw {
		m[k] = normalizeValue(v)
	}
	*p = m
	return nil
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, err := val.Float64()
		if err != nil {
			// Out-of-range literal, keep the raw text.
			return val.String()
		}
		return f
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, nested := range val {
			m[k] = normalizeValue(nested)
		}
		return m
	case []any:
		arr := make([]any, len(val))
		for i, nested := range val {
			arr[i] = normalizeValue(nested)
		}
		return arr
	default:
		return v
	}
}

// NormalizeValue converts any decoded JSON value into the payload value
// domain (json.Number split into int64/float64, containers rebuilt).
func NormalizeValue(v any) any {
	return normalizeValue(v)
}

// String returns the string at key, with ok reporting presence and type.
func (p Payload) String(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}

// Bool returns the boolean at key.
func (p Payload) Bool(key string) (bool, bool) {
	v, ok := p[key].(bool)
	return v, ok
}
