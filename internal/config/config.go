// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

// Package config loads Polarhub configuration using Koanf v2 with layered
// sources: built-in defaults, an optional YAML file, then environment
// variables (highest priority).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Influx  InfluxConfig  `koanf:"influx"`
	Server  ServerConfig  `koanf:"server"`
	HRV     HRVConfig     `koanf:"hrv"`
	Logging LoggingConfig `koanf:"logging"`
}

// InfluxConfig configures the time-series store adapter.
type InfluxConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`

	// Timeout bounds every store read and write.
	Timeout time.Duration `koanf:"timeout"`
}

// ServerConfig configures the HTTP ingest surface.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// Timeout is the per-request read deadline. No write deadline is set,
	// so the SSE stream can stay open.
	Timeout time.Duration `koanf:"timeout"`

	// MaxBodyBytes limits ingest payload size.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// HRVConfig configures the beat-processing pipeline.
type HRVConfig struct {
	// SummaryIntervalMs is the width of a summary window in milliseconds.
	SummaryIntervalMs int64 `koanf:"summary_interval_ms"`

	// BufferMs is how far behind wall clock the post-processor classifies.
	// Must exceed the classifier's right-context window at resting heart
	// rates (91 beats at 60 bpm is about 91s).
	BufferMs int64 `koanf:"buffer_ms"`

	// ProcessInterval is the post-processor tick cadence.
	ProcessInterval time.Duration `koanf:"process_interval"`

	// RealtimeWindow is the number of raw RR values kept per device for
	// the live classification window.
	RealtimeWindow int `koanf:"realtime_window"`

	// RMSSDBuffer is the number of RMSSD readings kept for the dashboard.
	RMSSDBuffer int `koanf:"rmssd_buffer"`
}

// LoggingConfig configures the zerolog global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// URL returns the base URL of the InfluxDB HTTP API.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// Addr returns the HTTP listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Influx.Host == "" {
		return fmt.Errorf("influx.host must not be empty")
	}
	if c.Influx.Port <= 0 || c.Influx.Port > 65535 {
		return fmt.Errorf("influx.port must be in (0, 65535], got %d", c.Influx.Port)
	}
	if c.Influx.Database == "" {
		return fmt.Errorf("influx.database must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", c.Server.Port)
	}
	if c.HRV.SummaryIntervalMs <= 0 {
		return fmt.Errorf("hrv.summary_interval_ms must be positive, got %d", c.HRV.SummaryIntervalMs)
	}
	if c.HRV.BufferMs <= 0 {
		return fmt.Errorf("hrv.buffer_ms must be positive, got %d", c.HRV.BufferMs)
	}
	if c.HRV.ProcessInterval <= 0 {
		return fmt.Errorf("hrv.process_interval must be positive, got %s", c.HRV.ProcessInterval)
	}
	if c.HRV.RealtimeWindow < 4 {
		return fmt.Errorf("hrv.realtime_window must be at least 4, got %d", c.HRV.RealtimeWindow)
	}
	if c.HRV.RMSSDBuffer <= 0 {
		return fmt.Errorf("hrv.rmssd_buffer must be positive, got %d", c.HRV.RMSSDBuffer)
	}
	return nil
}
