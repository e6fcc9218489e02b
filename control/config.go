// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration store with file/env loading and reload propagation.

package control

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ConfigStore is a dynamic key/value map with atomic snapshot and listener support.
// Keys are lower-case and dotted, e.g. "server.port".
//
// Values come from three layers, later ones winning: the file given to
// LoadFile, environment variables picked up by ApplyEnv, and explicit
// Set/SetConfig calls. Reload re-reads the file and the environment and
// rebuilds the merged view, so keys removed from the file disappear.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	file      map[string]any
	env       map[string]any
	explicit  map[string]any
	listeners []func()
	source    string
	envPrefix string
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config:    make(map[string]any),
		file:      make(map[string]any),
		env:       make(map[string]any),
		explicit:  make(map[string]any),
		listeners: make([]func(), 0),
	}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// SetConfig merges new values and dispatches reload.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for k, v := range newCfg {
		k = strings.ToLower(k)
		cs.explicit[k] = v
		cs.config[k] = v
	}
	cs.dispatchReload()
}

// Set stores a single value without notifying listeners.
func (cs *ConfigStore) Set(key string, value any) {
	key = strings.ToLower(key)
	cs.mu.Lock()
	cs.explicit[key] = value
	cs.config[key] = value
	cs.mu.Unlock()
}

// Get returns the raw value for key.
func (cs *ConfigStore) Get(key string) (any, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	v, ok := cs.config[strings.ToLower(key)]
	return v, ok
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// dispatchReload invokes all listeners. Caller holds mu.
func (cs *ConfigStore) dispatchReload() {
	for _, fn := range cs.listeners {
		go fn()
	}
}

// rebuild merges the layers into config. Caller holds mu.
func (cs *ConfigStore) rebuild() {
	merged := make(map[string]any, len(cs.file)+len(cs.env)+len(cs.explicit))
	for _, layer := range []map[string]any{cs.file, cs.env, cs.explicit} {
		for k, v := range layer {
			merged[k] = v
		}
	}
	cs.config = merged
}

// LoadFile parses a TOML (.toml) or YAML (.yaml, .yml) file, flattens nested
// tables into dotted keys and replaces the file layer with the result.
func (cs *ConfigStore) LoadFile(path string) error {
	values, err := parseFile(path)
	if err != nil {
		return err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.source = path
	cs.file = values
	cs.rebuild()
	cs.dispatchReload()
	return nil
}

// Reload re-reads the file last passed to LoadFile and, if ApplyEnv was
// called, the environment under the same prefix.
func (cs *ConfigStore) Reload() error {
	cs.mu.RLock()
	src, prefix := cs.source, cs.envPrefix
	cs.mu.RUnlock()
	if src == "" {
		return fmt.Errorf("config: nothing to reload")
	}
	values, err := parseFile(src)
	if err != nil {
		return err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.file = values
	if prefix != "" {
		cs.env = readEnv(prefix)
	}
	cs.rebuild()
	cs.dispatchReload()
	return nil
}

// ApplyEnv reads environment variables of the form PREFIX_SECTION__KEY as
// "section.key" into the env layer. Single underscores are kept:
// ECHO_SERVER__RECEIVE_BUFFER_SIZE becomes "server.receive_buffer_size".
// Values stay strings; typed getters convert them. Returns the number of
// keys applied.
func (cs *ConfigStore) ApplyEnv(prefix string) int {
	values := readEnv(prefix)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.envPrefix = prefix
	cs.env = values
	cs.rebuild()
	if len(values) > 0 {
		cs.dispatchReload()
	}
	return len(values)
}

func readEnv(prefix string) map[string]any {
	pfx := strings.ToUpper(prefix) + "_"
	values := make(map[string]any)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, pfx) {
			continue
		}
		key := strings.TrimPrefix(name, pfx)
		if key == "" {
			continue
		}
		values[strings.ToLower(strings.ReplaceAll(key, "__", "."))] = value
	}
	return values
}

func parseFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var raw map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("config: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	out := make(map[string]any)
	flatten("", raw, out)
	return out, nil
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

// GetString returns the value as a string or def when absent.
func (cs *ConfigStore) GetString(key, def string) string {
	v, ok := cs.Get(key)
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// GetInt returns the value as an int or def when absent or not numeric.
func (cs *ConfigStore) GetInt(key string, def int) int {
	v, ok := cs.Get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return def
}

// GetBool returns the value as a bool or def.
func (cs *ConfigStore) GetBool(key string, def bool) bool {
	v, ok := cs.Get(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if p, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return p
		}
	}
	return def
}

// GetFloat returns the value as a float64 or def.
func (cs *ConfigStore) GetFloat(key string, def float64) float64 {
	v, ok := cs.Get(key)
	if !ok {
		return def
	}
	switch f := v.(type) {
	case float64:
		return f
	case int:
		return float64(f)
	case int64:
		return float64(f)
	case string:
		if p, err := strconv.ParseFloat(strings.TrimSpace(f), 64); err == nil {
			return p
		}
	}
	return def
}

// GetDuration accepts Go duration strings ("1s", "250ms"); bare numbers are milliseconds.
func (cs *ConfigStore) GetDuration(key string, def time.Duration) time.Duration {
	v, ok := cs.Get(key)
	if !ok {
		return def
	}
	switch d := v.(type) {
	case time.Duration:
		return d
	case int:
		return time.Duration(d) * time.Millisecond
	case int64:
		return time.Duration(d) * time.Millisecond
	case float64:
		return time.Duration(d * float64(time.Millisecond))
	case string:
		s := strings.TrimSpace(d)
		if p, err := time.ParseDuration(s); err == nil {
			return p
		}
		if ms, err := strconv.Atoi(s); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}
