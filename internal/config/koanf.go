// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/polarhub/config.yaml",
	"/etc/polarhub/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. These are applied
// first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Influx: InfluxConfig{
			Host:     "localhost",
			Port:     8086,
			Database: "polar_hub",
			Timeout:  5 * time.Second,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         3000,
			Timeout:      30 * time.Second,
			MaxBodyBytes: 5 << 20, // 5MB ingest payload limit
		},
		HRV: HRVConfig{
			SummaryIntervalMs: 300_000,
			BufferMs:          120_000,
			ProcessInterval:   time.Minute,
			RealtimeWindow:    60,
			RMSSDBuffer:       30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration with layered sources:
//  1. Defaults: built-in values above
//  2. Config file: optional YAML (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches CONFIG_PATH then the default paths. Returns the
// first file that exists, or empty string.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so random environment variables do not
// pollute the configuration.
//
// Examples:
//   - INFLUX_HOST -> influx.host
//   - PORT -> server.port
//   - HRV_SUMMARY_INTERVAL_MS -> hrv.summary_interval_ms
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Influx mappings
		"influx_host":     "influx.host",
		"influx_port":     "influx.port",
		"influx_database": "influx.database",
		"influx_timeout":  "influx.timeout",

		// Server mappings
		"port":           "server.port",
		"http_host":      "server.host",
		"http_timeout":   "server.timeout",
		"max_body_bytes": "server.max_body_bytes",

		// Pipeline mappings
		"hrv_summary_interval_ms": "hrv.summary_interval_ms",
		"hrv_buffer_ms":           "hrv.buffer_ms",
		"hrv_process_interval":    "hrv.process_interval",
		"hrv_realtime_window":     "hrv.realtime_window",
		"hrv_rmssd_buffer":        "hrv.rmssd_buffer",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
