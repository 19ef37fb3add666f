// Package config loads the engine's runtime settings from defaults, an
// optional YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pension-calculation-engine/internal/engine"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Port int `yaml:"port"`
	// SchemeRegistryURL is the base URL of the scheme registry. Empty
	// disables remote rate lookups.
	SchemeRegistryURL     string        `yaml:"scheme_registry_url"`
	SchemeRegistryTimeout time.Duration `yaml:"scheme_registry_timeout"`
	// SchemeRegistryRPS caps outbound registry requests per second; zero
	// means unlimited.
	SchemeRegistryRPS float64 `yaml:"scheme_registry_rps"`
	// PatchMode is none, forward or both.
	PatchMode string `yaml:"patch_mode"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Default() Config {
	return Config{
		Port:                  8080,
		SchemeRegistryTimeout: 2 * time.Second,
		PatchMode:             "none",
		LogLevel:              "info",
		LogFormat:             "json",
	}
}

// Load builds a Config from Default, the YAML file at path (skipped when path
// is empty or the file does not exist) and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PORT %q is not a number", ErrInvalid, v)
		}
		c.Port = port
	}
	if v, ok := lookup("SCHEME_REGISTRY_URL"); ok {
		c.SchemeRegistryURL = strings.TrimSpace(v)
	}
	if v, ok := lookup("SCHEME_REGISTRY_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: SCHEME_REGISTRY_TIMEOUT: %v", ErrInvalid, err)
		}
		c.SchemeRegistryTimeout = d
	}
	if v, ok := lookup("SCHEME_REGISTRY_RPS"); ok && v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: SCHEME_REGISTRY_RPS %q is not a number", ErrInvalid, v)
		}
		c.SchemeRegistryRPS = rps
	}
	if v, ok := lookup("PATCH_MODE"); ok && v != "" {
		c.PatchMode = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		c.LogFormat = v
	}
	return nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if c.SchemeRegistryTimeout <= 0 {
		return fmt.Errorf("%w: scheme registry timeout must be positive", ErrInvalid)
	}
	if c.SchemeRegistryRPS < 0 {
		return fmt.Errorf("%w: scheme registry rps must not be negative", ErrInvalid)
	}
	if _, err := engine.ParsePatchMode(c.PatchMode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid, c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.LogFormat)
	}
	return nil
}

// Patches returns the parsed patch mode. Only valid after Validate.
func (c Config) Patches() engine.PatchMode {
	m, _ := engine.ParsePatchMode(c.PatchMode)
	return m
}

func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}
