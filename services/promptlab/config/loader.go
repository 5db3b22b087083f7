// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath returns ~/.promptlab/promptlab.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".promptlab", "promptlab.yaml"), nil
}

// Load reads the config at path, creating it with defaults when it does
// not exist, then applies environment overrides and validates the result.
// An empty path means DefaultPath.
func Load(path string) (PromptLabConfig, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return PromptLabConfig{}, err
		}
		path = p
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "First run detected, creating the config at %s\n", path)
		if err := createDefault(path); err != nil {
			return PromptLabConfig{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return PromptLabConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	// Start from defaults so sections missing from an older file keep
	// working values.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return PromptLabConfig{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return PromptLabConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return PromptLabConfig{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Environment variables that override the file.
const (
	EnvPort         = "PROMPTLAB_PORT"
	EnvDataDir      = "PROMPTLAB_DATA_DIR"
	EnvLogLevel     = "PROMPTLAB_LOG_LEVEL"
	EnvTracing      = "PROMPTLAB_TRACING"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvOpenAIBase   = "OPENAI_BASE_URL"
	EnvOllamaBase   = "OLLAMA_BASE_URL"
)

func applyEnv(cfg *PromptLabConfig, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s=%q is not a number", EnvPort, v)
		}
		cfg.Server.Port = port
	}
	if v, ok := get(EnvDataDir); ok {
		cfg.Storage.DataDir = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	if v, ok := get(EnvTracing); ok {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s=%q is not a boolean", EnvTracing, v)
		}
		cfg.Telemetry.Tracing = on
	}
	if v, ok := get(EnvAnthropicKey); ok {
		cfg.Generation.Anthropic.APIKey = v
	}
	if v, ok := get(EnvOpenAIKey); ok {
		cfg.Generation.OpenAI.APIKey = v
	}
	if v, ok := get(EnvOpenAIBase); ok {
		cfg.Generation.OpenAI.BaseURL = v
	}
	if v, ok := get(EnvOllamaBase); ok {
		cfg.Generation.Ollama.BaseURL = v
	}
	return nil
}
