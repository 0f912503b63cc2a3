// Package config implements the layered configuration store: a TOML file,
// then SLUG__-prefixed environment variables, then CLI flags, each
// overriding the previous layer. Grounded on the teacher's
// util.NewConfigStore file->env->flag layering, generalized to the
// runtime's own keys rather than a single script's module-local keys.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Store is a flattened key->value map built by layering three sources in
// ascending precedence.
type Store struct {
	Values map[string]any
}

// Load builds a Store for the runtime rooted at rootPath (the launcher
// passes its --root directory) and slugHome (the runtime's install
// home, for a shared slug.toml), then layers environment variables and
// finally flagOverrides (already-parsed CLI flags, highest precedence).
func Load(rootPath, slugHome string, flagOverrides map[string]any) *Store {
	s := &Store{Values: make(map[string]any)}

	// Layer 1: config files, lowest precedence.
	searchPaths := []string{}
	if slugHome != "" {
		searchPaths = append(searchPaths, filepath.Join(slugHome, "slug.toml"))
	}
	if rootPath != "" {
		searchPaths = append(searchPaths, filepath.Join(rootPath, "slug.toml"))
	}
	for _, path := range searchPaths {
		var data map[string]any
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &data); err == nil {
				mergeMaps(s.Values, data, "")
			}
		}
	}

	// Layer 2: SLUG__-prefixed environment variables, "__" as path separator.
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, "SLUG__") {
			continue
		}
		pair := strings.SplitN(env, "=", 2)
		if len(pair) != 2 {
			continue
		}
		key := strings.TrimPrefix(pair[0], "SLUG__")
		key = strings.ReplaceAll(key, "__", ".")
		s.Values[strings.ToLower(key)] = pair[1]
	}

	// Layer 3: CLI flags, highest precedence.
	for k, v := range flagOverrides {
		if v == nil {
			continue
		}
		s.Values[k] = v
	}

	return s
}

func mergeMaps(dest map[string]any, src map[string]any, prefix string) {
	for k, v := range src {
		fullKey := k
		if prefix != "" {
			fullKey = prefix + "." + k
		}
		if subMap, ok := v.(map[string]any); ok {
			mergeMaps(dest, subMap, fullKey)
		} else {
			dest[fullKey] = v
		}
	}
}

// Get returns the raw value for key and whether it was present.
func (s *Store) Get(key string) (any, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// GetString returns key as a string, or def if absent or not a string.
func (s *Store) GetString(key, def string) string {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	str, ok := v.(string)
	if !ok {
		return def
	}
	return str
}

// GetInt64 returns key as an int64, or def if absent or not numeric. A
// string value (the env layer stores everything as a string) is parsed,
// so callers don't need to care which layer a value came from.
func (s *Store) GetInt64(key string, def int64) int64 {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64: // toml decodes bare integers as int64 already; this covers float tables
		return int64(n)
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}

// GetBool returns key as a bool, or def if absent or not boolean. A string
// value (the env layer stores everything as a string) is parsed via
// strconv.ParseBool.
func (s *Store) GetBool(key string, def bool) bool {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	if str, ok := v.(string); ok {
		parsed, err := strconv.ParseBool(str)
		if err != nil {
			return def
		}
		return parsed
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}
