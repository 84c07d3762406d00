package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Loader handles loading configuration files.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadFile loads a configuration from a specific file path.
// Environment variables in the config are expanded before parsing.
// Supports ${VAR} and ${VAR:-default} syntax.
func (l *Loader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables before parsing JSON
	data = expandEnv(data)

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// LoadAndValidate loads and validates a config file.
func (l *Loader) LoadAndValidate(path string) (*Config, error) {
	cfg, err := l.LoadFile(path)
	if err != nil {
		return nil, err
	}

	if errs := Validate(cfg); errs.HasErrors() {
		return nil, fmt.Errorf("config validation failed for %s:\n%w", path, errs)
	}

	return cfg, nil
}

// envRef matches ${VAR} and ${VAR:-default} references.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}`)

// expandEnv resolves environment references in the raw config bytes, so
// machine-specific paths and credentials stay out of the file itself.
// An unset variable becomes its :-default, or empty without one.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		parts := envRef.FindSubmatch(ref)
		if val, ok := os.LookupEnv(string(parts[1])); ok {
			return []byte(val)
		}
		if len(parts[2]) > 0 {
			return parts[2][len(":-"):]
		}
		return nil
	})
}
