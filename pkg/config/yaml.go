package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default configuration file location
const EnvConfigPath = "REPLISYNC_CONFIG"

// LoadFromFile reads a YAML file over Default(). Unknown keys are rejected so a
// misspelled section never silently falls back to a default remote.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if cfg.Replica.Path, err = expandHome(cfg.Replica.Path); err != nil {
		return nil, err
	}
	if cfg.Remote.Kind == RemoteFolder {
		if cfg.Remote.Location, err = expandHome(cfg.Remote.Location); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveToFile writes cfg through a temp file and a rename. The file may hold
// object store secrets, so it is only readable by its owner.
func SaveToFile(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns $REPLISYNC_CONFIG when set, otherwise
// ~/.config/replisync/config.yaml
func DefaultConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return expandHome(path)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".config", "replisync", "config.yaml"), nil
}

// LoadDefault loads the file at DefaultConfigPath, or returns Default() when
// there is none. A path named by the environment must exist.
func LoadDefault() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) && os.Getenv(EnvConfigPath) == "" {
		return Default(), nil
	}

	return LoadFromFile(path)
}

// expandHome resolves a leading ~ to the user's home directory
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
