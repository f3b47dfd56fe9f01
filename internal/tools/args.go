package tools

import (
	"fmt"
	"math"
)

// String returns a required string argument.
func String(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingRequiredArg, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidArgType, key)
	}
	return s, nil
}

// NonEmptyString returns a required string argument that must not be blank.
func NonEmptyString(args map[string]any, key string) (string, error) {
	s, err := String(args, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingRequiredArg, key)
	}
	return s, nil
}

// OptionalString returns a string argument or def when absent.
func OptionalString(args map[string]any, key, def string) (string, error) {
	if _, ok := args[key]; !ok || args[key] == nil {
		return def, nil
	}
	return String(args, key)
}

// Number returns a required finite numeric argument.
func Number(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingRequiredArg, key)
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidArgType, key)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s must be finite", ErrInvalidArgType, key)
	}
	return f, nil
}

// StringMap returns an optional object argument whose values are strings.
func StringMap(args map[string]any, key string) (map[string]string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidArgType, key)
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s must be a string", ErrInvalidArgType, key, k)
		}
		out[k] = s
	}
	return out, nil
}
