package record

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// AsString converts a scalar input value to its string form. ok is false for
// nil, objects and lists, which callers treat as absent.
func AsString(v any) (s string, ok bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case json.Number:
		return val.String(), true
	default:
		return "", false
	}
}

// AsBool reports the truth value of an input: numbers are true when non-zero
// and strings when strconv.ParseBool accepts them as true.
func AsBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0 && !math.IsNaN(val)
	case float32:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case json.Number:
		f, err := val.Float64()
		return err == nil && f != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return err == nil && b
	default:
		return false
	}
}

// AsID returns the positive integer id carried by v, or 0.
func AsID(v any) int64 {
	var id int64
	switch val := v.(type) {
	case float64:
		if val != math.Trunc(val) || val > math.MaxInt64 {
			return 0
		}
		id = int64(val)
	case int:
		id = int64(val)
	case int64:
		id = val
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return 0
		}
		id = n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0
		}
		id = n
	}
	if id < 0 {
		return 0
	}
	return id
}

// stringOr returns the string form of raw[key], or def when the key is absent
// or not a scalar.
func stringOr(raw map[string]any, key, def string) string {
	s, ok := AsString(raw[key])
	if !ok {
		return def
	}
	return s
}

// nonEmptyOr is stringOr that also falls back to def for an empty string.
func nonEmptyOr(raw map[string]any, key, def string) string {
	s := stringOr(raw, key, def)
	if s == "" {
		return def
	}
	return s
}
