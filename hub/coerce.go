package hub

import (
	"fmt"
	"math"
)

// CoerceValue converts a raw payload value to the characteristic's declared
// format, clamping numeric values into the characteristic's valid range.
// Returns ErrInvalidValue when the value cannot represent the format.
func CoerceValue(c *Characteristic, value any) (any, error) {
	switch c.Format {
	case FormatBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case int64:
			// Some relays send 0/1 for switches.
			if v == 0 || v == 1 {
				return v == 1, nil
			}
		}
		return nil, fmt.Errorf("%w: %v is not a bool", ErrInvalidValue, value)

	case FormatInt:
		var f float64
		switch v := value.(type) {
		case int64:
			f = float64(v)
		case float64:
			f = v
		default:
			return nil, fmt.Errorf("%w: %v is not numeric", ErrInvalidValue, value)
		}
		f = clamp(c, f)
		return int64(math.Round(f)), nil

	case FormatFloat:
		var f float64
		switch v := value.(type) {
		case int64:
			f = float64(v)
		case float64:
			f = v
		default:
			return nil, fmt.Errorf("%w: %v is not numeric", ErrInvalidValue, value)
		}
		return clamp(c, f), nil

	case FormatString:
		if v, ok := value.(string); ok {
			return v, nil
		}
		return nil, fmt.Errorf("%w: %v is not a string", ErrInvalidValue, value)
	}
	return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidValue, c.Format)
}

func clamp(c *Characteristic, f float64) float64 {
	if c.MinValue != nil && f < *c.MinValue {
		f = *c.MinValue
	}
	if c.MaxValue != nil && f > *c.MaxValue {
		f = *c.MaxValue
	}
	return f
}
