package config

import (
	"strings"
	"time"
)

// Config wraps a map[string]any for typed value extraction.
// Accessors return the given default when the key is missing or the value
// cannot be converted.
type Config struct {
	data map[string]any
}

// New creates a Config from the given map.
// A nil map yields an empty Config.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

// Sub returns the nested table stored under key.
// A missing key or a non-table value yields an empty Config.
func (c Config) Sub(key string) Config {
	v, ok := c.data[key]
	if !ok {
		return New(nil)
	}
	switch val := v.(type) {
	case map[string]any:
		return New(val)
	case map[any]any:
		// yaml.v2-style maps; convert string keys only.
		m := make(map[string]any, len(val))
		for k, item := range val {
			if s, ok := k.(string); ok {
				m[s] = item
			}
		}
		return New(m)
	}
	return New(nil)
}

// String returns the string for key, or defaultVal.
func (c Config) String(key, defaultVal string) string {
	if s, ok := c.data[key].(string); ok {
		return s
	}
	return defaultVal
}

// Bool returns the boolean for key, or defaultVal.
// The strings "true", "yes", "on" and "false", "no", "off" are accepted too,
// since environment overrides usually arrive as text.
func (c Config) Bool(key string, defaultVal bool) bool {
	switch val := c.data[key].(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(val) {
		case "true", "yes", "on":
			return true
		case "false", "no", "off":
			return false
		}
	}
	return defaultVal
}

// Int returns the integer for key, or defaultVal.
//
// Accepts:
//   - int, int64: used directly
//   - float64: only when it has no fractional part
func (c Config) Int(key string, defaultVal int) int {
	switch val := c.data[key].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	}
	return defaultVal
}

// Duration returns the duration for key, or defaultVal.
//
// Accepts:
//   - string: parsed with time.ParseDuration
//   - int, int64, float64: seconds
//   - time.Duration: used directly
func (c Config) Duration(key string, defaultVal time.Duration) time.Duration {
	switch val := c.data[key].(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	case time.Duration:
		return val
	case int:
		return time.Duration(val) * time.Second
	case int64:
		return time.Duration(val) * time.Second
	case float64:
		return time.Duration(val * float64(time.Second))
	}
	return defaultVal
}

// Has reports whether key is present.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Raw returns the underlying map. Do not modify it.
func (c Config) Raw() map[string]any {
	return c.data
}
