// Package utils provides helpers for reading and copying loosely typed
// parameter trees (map[string]any decoded from JSON or YAML).
package utils

import (
	"math"
	"sort"
)

// GetString safely extracts a string from a map, returning defaultVal if not found or wrong type.
func GetString(m map[string]any, key, defaultVal string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return defaultVal
}

// GetNumber extracts any numeric value as a float64.
// The second result reports whether key held a number.
func GetNumber(m map[string]any, key string) (float64, bool) {
	return AsNumber(m[key])
}

// AsNumber converts the numeric kinds produced by the JSON and YAML decoders
// (and by Go literals in tests) to float64.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint:
		return float64(n), true
	}
	return 0, false
}

// GetFloat64 safely extracts a float64 from a map.
func GetFloat64(m map[string]any, key string, defaultVal float64) float64 {
	if v, ok := GetNumber(m, key); ok {
		return v
	}
	return defaultVal
}

// GetInt safely extracts an int from a map.
// Integral float64 values (common from JSON) are converted; fractional ones are rejected.
func GetInt(m map[string]any, key string, defaultVal int) int {
	v, ok := GetNumber(m, key)
	if !ok || v != math.Trunc(v) {
		return defaultVal
	}
	return int(v)
}

// GetMap safely extracts a nested map from a map.
func GetMap(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

// GetBool safely extracts a bool from a map.
func GetBool(m map[string]any, key string, defaultVal bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return defaultVal
}

// GetIntSlice extracts a list of integral numbers.
// It returns false if any element is not an integral number.
func GetIntSlice(m map[string]any, key string) ([]int, bool) {
	raw, ok := m[key].([]any)
	if !ok {
		return nil, false
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		n, ok := AsNumber(item)
		if !ok || n != math.Trunc(n) {
			return nil, false
		}
		out = append(out, int(n))
	}
	return out, true
}

// Normalize returns a deep copy of v in which every number is a float64,
// every mapping is a map[string]any and every sequence is a []any.
// Values decoded from JSON and YAML compare equal after normalization.
func Normalize(v any) any {
	if n, ok := AsNumber(v); ok {
		return n
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = Normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			if ks, ok := k.(string); ok {
				out[ks] = Normalize(item)
			}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Normalize(item)
		}
		return out
	case []float64:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = item
		}
		return out
	case []int:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = float64(item)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = item
		}
		return out
	}
	return v
}

// DeepCopy copies maps and slices recursively. Scalars are returned as-is.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = DeepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = DeepCopy(item)
		}
		return out
	}
	return v
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
