// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Package config loads the PromptLab configuration from
// ~/.promptlab/promptlab.yaml, creating it with defaults on first run, and
// applies environment overrides on top.
package config

import (
	"fmt"
	"time"
)

// PromptLabConfig is the root of promptlab.yaml.
type PromptLabConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Generation GenerationConfig `yaml:"generation"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

type ServerConfig struct {
	Port    int    `yaml:"port"`     // e.g. 12310
	GinMode string `yaml:"gin_mode"` // debug, release or test
}

type StorageConfig struct {
	DataDir    string        `yaml:"data_dir"`  // badger directory; "~" is expanded
	InMemory   bool          `yaml:"in_memory"` // nothing survives a restart
	SyncWrites bool          `yaml:"sync_writes"`
	GCInterval time.Duration `yaml:"gc_interval"`
}

type GenerationConfig struct {
	Timeout           time.Duration  `yaml:"timeout"`
	MaxAttempts       uint           `yaml:"max_attempts"`
	RequestsPerSecond float64        `yaml:"requests_per_second"`
	Burst             int            `yaml:"burst"`
	Anthropic         ProviderConfig `yaml:"anthropic"`
	OpenAI            ProviderConfig `yaml:"openai"`
	Ollama            ProviderConfig `yaml:"ollama"`
}

// ProviderConfig holds one provider's endpoint. API keys are normally
// supplied through the environment and left empty in the file.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

type TelemetryConfig struct {
	Metrics bool `yaml:"metrics"`
	Tracing bool `yaml:"tracing"` // spans to stdout
}

// DefaultPort is the HTTP port used when none is configured.
const DefaultPort = 12310

// DefaultConfig returns the configuration written on first run. API keys
// are left empty; they come from the environment.
func DefaultConfig() PromptLabConfig {
	return PromptLabConfig{
		Server: ServerConfig{
			Port:    DefaultPort,
			GinMode: "release",
		},
		Storage: StorageConfig{
			DataDir:    "~/.promptlab/data",
			GCInterval: 10 * time.Minute,
		},
		Generation: GenerationConfig{
			Timeout:           30 * time.Second,
			MaxAttempts:       3,
			RequestsPerSecond: 2,
			Burst:             2,
			Ollama:            ProviderConfig{BaseURL: "http://localhost:11434"},
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.promptlab/logs",
		},
		Telemetry: TelemetryConfig{
			Metrics: true,
		},
	}
}

// Validate reports the first setting that cannot be used.
func (c PromptLabConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Server.GinMode {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("server.gin_mode %q must be debug, release or test", c.Server.GinMode)
	}
	if !c.Storage.InMemory && c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required unless storage.in_memory is set")
	}
	if c.Generation.Timeout <= 0 {
		return fmt.Errorf("generation.timeout must be positive")
	}
	if c.Generation.MaxAttempts == 0 {
		return fmt.Errorf("generation.max_attempts must be at least 1")
	}
	if c.Generation.RequestsPerSecond < 0 {
		return fmt.Errorf("generation.requests_per_second must not be negative")
	}
	return nil
}
