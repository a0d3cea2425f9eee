// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package config loads the runner service configuration from an
// optional YAML file with environment-variable overrides. Provider
// credentials are deliberately not configured here: they arrive in the
// per-call env snapshot so one deployment can serve many tenants.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration supports YAML duration strings like "30m"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the runner service configuration
type Config struct {
	Port         int      `yaml:"port"`
	DatabaseURL  string   `yaml:"database_url"`
	RedisAddr    string   `yaml:"redis_addr"`
	PriceTTL     Duration `yaml:"price_ttl"`
	AgentManager string   `yaml:"agent_manager"`
	AEADKey      string   `yaml:"-"` // env only, never from file
	CORSOrigins  []string `yaml:"cors_origins"`
}

// Default returns the baseline configuration
func Default() *Config {
	return &Config{
		Port:        8080,
		RedisAddr:   "localhost:6379",
		PriceTTL:    Duration(time.Hour),
		CORSOrigins: []string{"*"},
	}
}

// Load reads configuration from the given YAML file (empty path skips
// the file) and applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required (set DATABASE_URL or the config file)")
	}

	return cfg, nil
}

// applyEnv layers environment variables over file and default values
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("PRICE_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			c.PriceTTL = Duration(ttl)
		}
	}
	if v := os.Getenv("AGENT_MANAGER_URL"); v != "" {
		c.AgentManager = v
	}
	if v := os.Getenv("AEAD_SECRET_KEY"); v != "" {
		c.AEADKey = v
	}
}
