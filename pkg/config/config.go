// Package config loads baselayer configuration from layered YAML files.
//
// The defaults file (config.yaml.defaults) is always loaded first; user
// configuration files are overlaid on top of it, recursively merging nested
// maps. Keys are fetched with dotted paths:
//
//	cfg.String("ports.websocket_path_in", "")
//
// is equivalent to indexing cfg["ports"]["websocket_path_in"].
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultsFile is the name of the base configuration file loaded before any
// user configuration.
const DefaultsFile = "config.yaml.defaults"

// Config is a nested configuration tree with dotted-key access
type Config struct {
	tree  map[string]interface{}
	files []string
}

// New returns an empty configuration
func New() *Config {
	return &Config{tree: make(map[string]interface{})}
}

// Load reads and overlays the given YAML files in order. Missing files are
// skipped; the caller decides whether that warrants a warning.
func Load(files ...string) (*Config, error) {
	cfg := New()
	for _, f := range files {
		if err := cfg.UpdateFrom(f); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// UpdateFrom overlays configuration from a single YAML file. A missing file
// is not an error.
func (c *Config) UpdateFrom(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	overlay := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	c.tree = recursiveUpdate(c.tree, overlay)
	c.files = append(c.files, filename)
	return nil
}

// Files returns the list of files that contributed to this configuration
func (c *Config) Files() []string {
	return c.files
}

// recursiveUpdate merges u into d, recursing into nested maps
func recursiveUpdate(d, u map[string]interface{}) map[string]interface{} {
	if d == nil {
		d = make(map[string]interface{})
	}
	for k, v := range u {
		if vm, ok := v.(map[string]interface{}); ok {
			dm, _ := d[k].(map[string]interface{})
			d[k] = recursiveUpdate(dm, vm)
			continue
		}
		d[k] = v
	}
	return d
}

// Get returns the raw value at a dotted key path, or nil if any segment of
// the path is missing.
func (c *Config) Get(key string) interface{} {
	var cur interface{} = c.tree
	start := 0
	for i := 0; i <= len(key); i++ {
		if i == len(key) || key[i] == '.' {
			m, ok := cur.(map[string]interface{})
			if !ok {
				return nil
			}
			cur, ok = m[key[start:i]]
			if !ok {
				return nil
			}
			start = i + 1
		}
	}
	return cur
}

// Set stores a value at a dotted key path, creating intermediate maps
func (c *Config) Set(key string, value interface{}) {
	m := c.tree
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			seg := key[start:i]
			next, ok := m[seg].(map[string]interface{})
			if !ok {
				next = make(map[string]interface{})
				m[seg] = next
			}
			m = next
			start = i + 1
		}
	}
	m[key[start:]] = value
}

// String returns the string at key, or def when absent
func (c *Config) String(key, def string) string {
	switch v := c.Get(key).(type) {
	case string:
		return v
	case nil:
		return def
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Int returns the integer at key, or def when absent or non-numeric
func (c *Config) Int(key string, def int) int {
	switch v := c.Get(key).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// Bool returns the boolean at key, or def when absent
func (c *Config) Bool(key string, def bool) bool {
	if v, ok := c.Get(key).(bool); ok {
		return v
	}
	return def
}

// Duration returns the value at key interpreted as seconds, or def
func (c *Config) Duration(key string, def time.Duration) time.Duration {
	switch v := c.Get(key).(type) {
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// StringSlice returns the list of strings at key. A scalar string value is
// returned as a single-element slice, so that `services.disabled: "*"` and
// `services.disabled: [a, b]` both work.
func (c *Config) StringSlice(key string) []string {
	switch v := c.Get(key).(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprintf("%v", e))
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}
