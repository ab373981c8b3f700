package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. CONDUCTOR_ORCHESTRATION_MAX_RETRIES.
const EnvPrefix = "CONDUCTOR"

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): environment, project config, global config, defaults.
// Missing files are not errors; malformed files return an error.
func Load(globalPath, projectPath string) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	if err := mergeConfigFile(v, globalPath); err != nil {
		return nil, fmt.Errorf("loading global config: %w", err)
	}
	if err := mergeConfigFile(v, projectPath); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.expandEnv()

	return cfg, nil
}

// LoadFile loads defaults plus a single explicit file, which must exist.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return Load("", path)
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.conductor/config.yaml
// Project: .conductor/config.yaml (relative to cwd)
func LoadDefault() (*Config, error) {
	globalPath, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return Load(globalPath, ProjectPath())
}

// GlobalPath returns ~/.conductor/config.yaml.
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".conductor", "config.yaml"), nil
}

// ProjectPath returns .conductor/config.yaml relative to the working directory.
func ProjectPath() string {
	return filepath.Join(".conductor", "config.yaml")
}

// newViper returns a viper instance whose base layer is DefaultConfig.
// Seeding the defaults as config (rather than SetDefault) lets file layers
// deep-merge into individual provider and agent entries.
func newViper() (*viper.Viper, error) {
	base, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return nil, fmt.Errorf("reading defaults: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// mergeConfigFile reads a config file and merges it over v.
// Missing files are silently skipped.
func mergeConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	fv := viper.New()
	fv.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		fv.SetConfigType("yaml")
	}
	if err := fv.ReadInConfig(); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := v.MergeConfigMap(fv.AllSettings()); err != nil {
		return fmt.Errorf("merging %s: %w", path, err)
	}
	return nil
}

// expandEnv resolves ${VAR} references in secrets.
func (c *Config) expandEnv() {
	for name, p := range c.Providers {
		p.APIKey = os.ExpandEnv(p.APIKey)
		c.Providers[name] = p
	}
}

// ResolveStoragePath returns the archive path, defaulting to ~/.conductor/conductor.db.
func (c *Config) ResolveStoragePath() (string, error) {
	path := c.Storage.Path
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(homeDir, ".conductor", "conductor.db"), nil
	}
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}
	return path, nil
}
