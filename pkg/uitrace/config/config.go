package config

import (
	"fmt"
	"maps"
	"math"
	"time"
)

// Config is a parsed settings document.
//
// Lookups report whether the key was present and fail when it holds a
// value of the wrong type, so a typo in a file surfaces as an error
// instead of a silent default.
type Config struct {
	data map[string]any
}

// New creates a Config from the given map.
// If data is nil, an empty Config is returned.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

// Has returns true if the key exists in the config.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Raw returns the underlying map.
// The returned map should not be modified.
func (c Config) Raw() map[string]any {
	return c.data
}

// Merge returns a new Config with other layered over c. Nested maps are
// merged key by key; every other value in other replaces the one in c.
func (c Config) Merge(other Config) Config {
	return Config{data: mergeMaps(c.data, other.data)}
}

func mergeMaps(base, over map[string]any) map[string]any {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]any, len(over))
	}
	for k, v := range over {
		if sub, ok := v.(map[string]any); ok {
			if prev, ok := out[k].(map[string]any); ok {
				out[k] = mergeMaps(prev, sub)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// String looks up a string.
func (c Config) String(key string) (string, bool, error) {
	v, ok := c.data[key]
	if !ok {
		return "", false, nil
	}
	s, isString := v.(string)
	if !isString {
		return "", true, typeError(key, "a string", v)
	}
	return s, true, nil
}

// Bool looks up a boolean.
func (c Config) Bool(key string) (bool, bool, error) {
	v, ok := c.data[key]
	if !ok {
		return false, false, nil
	}
	b, isBool := v.(bool)
	if !isBool {
		return false, true, typeError(key, "a boolean", v)
	}
	return b, true, nil
}

// Int looks up a whole number. YAML yields int; JSON yields float64,
// which is accepted when it has no fractional part.
func (c Config) Int(key string) (int, bool, error) {
	v, ok := c.data[key]
	if !ok {
		return 0, false, nil
	}
	n, isInt := toInt(v)
	if !isInt {
		return 0, true, typeError(key, "a whole number", v)
	}
	return n, true, nil
}

// Millis looks up a duration. Numbers are milliseconds; strings use
// time.ParseDuration syntax ("5s", "250ms").
func (c Config) Millis(key string) (time.Duration, bool, error) {
	v, ok := c.data[key]
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case time.Duration:
		return val, true, nil
	case string:
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, true, fmt.Errorf("%w: %s: %v", ErrInvalidSetting, key, err)
		}
		return d, true, nil
	case float64:
		return time.Duration(val * float64(time.Millisecond)), true, nil
	}
	if n, isInt := toInt(v); isInt {
		return time.Duration(n) * time.Millisecond, true, nil
	}
	return 0, true, typeError(key, "milliseconds or a duration string", v)
}

// StringSlice looks up a list of strings.
func (c Config) StringSlice(key string) ([]string, bool, error) {
	v, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	switch val := v.(type) {
	case []string:
		return val, true, nil
	case []any:
		out := make([]string, 0, len(val))
		for i, item := range val {
			s, isString := item.(string)
			if !isString {
				return nil, true, typeError(fmt.Sprintf("%s[%d]", key, i), "a string", item)
			}
			out = append(out, s)
		}
		return out, true, nil
	}
	return nil, true, typeError(key, "a list of strings", v)
}

// StringMap looks up a mapping of strings to strings.
func (c Config) StringMap(key string) (map[string]string, bool, error) {
	v, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	switch val := v.(type) {
	case map[string]string:
		return val, true, nil
	case map[string]any:
		out := make(map[string]string, len(val))
		for k, item := range val {
			s, isString := item.(string)
			if !isString {
				return nil, true, typeError(key+"."+k, "a string", item)
			}
			out[k] = s
		}
		return out, true, nil
	}
	return nil, true, typeError(key, "a mapping of strings", v)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case float64:
		if n == math.Trunc(n) && math.Abs(n) <= math.MaxInt32 {
			return int(n), true
		}
	}
	return 0, false
}

func typeError(key, want string, got any) error {
	return fmt.Errorf("%w: %s must be %s, got %T", ErrInvalidSetting, key, want, got)
}
