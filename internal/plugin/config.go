package plugin

import (
	"fmt"
	"time"
)

// Config represents plugin-specific configuration (opaque to the
// runtime). Each plugin validates its own slice of the shared mapping at
// construction time.
type Config map[string]any

// ConfigError reports a missing or ill-typed configuration field. It is
// fatal at startup: a plugin that cannot be constructed aborts the
// process with the plugin and field named.
type ConfigError struct {
	Plugin string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("plugin %s: config field %q %s", e.Plugin, e.Field, e.Reason)
}

func missing(pluginID, field string) error {
	return &ConfigError{Plugin: pluginID, Field: field, Reason: "is required"}
}

func wrongType(pluginID, field, want string, got any) error {
	return &ConfigError{Plugin: pluginID, Field: field, Reason: fmt.Sprintf("must be %s, got %T", want, got)}
}

// Int returns a required integer field. YAML decodes whole numbers as
// int and fractional ones as float64; both are accepted as long as the
// value is whole.
func (c Config) Int(pluginID, field string) (int, error) {
	raw, ok := c[field]
	if !ok {
		return 0, missing(pluginID, field)
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, wrongType(pluginID, field, "an integer", raw)
		}
		return int(v), nil
	default:
		return 0, wrongType(pluginID, field, "an integer", raw)
	}
}

// IntOr returns an optional integer field with a default.
func (c Config) IntOr(pluginID, field string, def int) (int, error) {
	if _, ok := c[field]; !ok {
		return def, nil
	}
	return c.Int(pluginID, field)
}

// Float returns a required numeric field.
func (c Config) Float(pluginID, field string) (float64, error) {
	raw, ok := c[field]
	if !ok {
		return 0, missing(pluginID, field)
	}
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, wrongType(pluginID, field, "a number", raw)
	}
}

// FloatOr returns an optional numeric field with a default.
func (c Config) FloatOr(pluginID, field string, def float64) (float64, error) {
	if _, ok := c[field]; !ok {
		return def, nil
	}
	return c.Float(pluginID, field)
}

// String returns a required non-empty string field.
func (c Config) String(pluginID, field string) (string, error) {
	raw, ok := c[field]
	if !ok {
		return "", missing(pluginID, field)
	}
	v, ok := raw.(string)
	if !ok {
		return "", wrongType(pluginID, field, "a string", raw)
	}
	if v == "" {
		return "", &ConfigError{Plugin: pluginID, Field: field, Reason: "must not be empty"}
	}
	return v, nil
}

// StringOr returns an optional string field with a default.
func (c Config) StringOr(pluginID, field, def string) (string, error) {
	if _, ok := c[field]; !ok {
		return def, nil
	}
	return c.String(pluginID, field)
}

// Strings returns a required non-empty list of strings.
func (c Config) Strings(pluginID, field string) ([]string, error) {
	raw, ok := c[field]
	if !ok {
		return nil, missing(pluginID, field)
	}
	switch v := raw.(type) {
	case []string:
		if len(v) == 0 {
			return nil, &ConfigError{Plugin: pluginID, Field: field, Reason: "must not be empty"}
		}
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, wrongType(pluginID, field, "a list of strings", item)
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil, &ConfigError{Plugin: pluginID, Field: field, Reason: "must not be empty"}
		}
		return out, nil
	default:
		return nil, wrongType(pluginID, field, "a list of strings", raw)
	}
}

// Bool returns an optional boolean field with a default.
func (c Config) Bool(pluginID, field string, def bool) (bool, error) {
	raw, ok := c[field]
	if !ok {
		return def, nil
	}
	v, ok := raw.(bool)
	if !ok {
		return false, wrongType(pluginID, field, "a boolean", raw)
	}
	return v, nil
}

// Duration returns an optional duration field (Go duration string) with
// a default.
func (c Config) Duration(pluginID, field string, def time.Duration) (time.Duration, error) {
	raw, ok := c[field]
	if !ok {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return 0, wrongType(pluginID, field, "a duration string", raw)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &ConfigError{Plugin: pluginID, Field: field, Reason: fmt.Sprintf("is not a valid duration: %v", err)}
	}
	return d, nil
}

// Section returns an optional nested mapping field.
func (c Config) Section(pluginID, field string) (Config, error) {
	raw, ok := c[field]
	if !ok {
		return nil, nil
	}
	switch v := raw.(type) {
	case Config:
		return v, nil
	case map[string]any:
		return Config(v), nil
	default:
		return nil, wrongType(pluginID, field, "a mapping", raw)
	}
}
