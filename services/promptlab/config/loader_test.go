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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// TestLoad_CreatesDefault verifies first-run creation of the config file.
func TestLoad_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".promptlab", "promptlab.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Generation.Timeout != 30*time.Second {
		t.Errorf("Generation.Timeout = %v, want 30s", cfg.Generation.Timeout)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "timeout: 30s") {
		t.Errorf("durations should be written as strings:\n%s", data)
	}
	if strings.Contains(string(data), "api_key") {
		t.Errorf("empty API keys should not be written:\n%s", data)
	}
}

// TestLoad_PartialFileKeepsDefaults verifies that missing sections fall
// back to defaults.
func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promptlab.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Generation.MaxAttempts != 3 {
		t.Errorf("Generation.MaxAttempts = %d, want default 3", cfg.Generation.MaxAttempts)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promptlab.yaml")
	t.Setenv(EnvPort, "8081")
	t.Setenv(EnvDataDir, "/tmp/promptlab-data")
	t.Setenv(EnvAnthropicKey, "sk-ant-test")
	t.Setenv(EnvOllamaBase, "http://ollama:11434")
	t.Setenv(EnvTracing, "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Port != 8081 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/tmp/promptlab-data" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Generation.Anthropic.APIKey != "sk-ant-test" {
		t.Errorf("Anthropic key not applied")
	}
	if cfg.Generation.Ollama.BaseURL != "http://ollama:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Generation.Ollama.BaseURL)
	}
	if !cfg.Telemetry.Tracing {
		t.Errorf("Tracing not enabled")
	}

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "sk-ant-test") {
		t.Errorf("environment secrets must not be written to the file")
	}
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	tests := map[string]string{
		EnvPort:    "eighty",
		EnvTracing: "maybe",
	}
	for key, value := range tests {
		cfg := DefaultConfig()
		lookup := func(k string) (string, bool) {
			if k == key {
				return value, true
			}
			return "", false
		}
		if err := applyEnv(&cfg, lookup); err == nil {
			t.Errorf("applyEnv(%s=%q) should fail", key, value)
		}
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()

	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("server: [\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(broken); err == nil {
		t.Error("Load() should fail on malformed YAML")
	}

	badPort := filepath.Join(dir, "port.yaml")
	if err := os.WriteFile(badPort, []byte("server:\n  port: 70000\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(badPort); err == nil || !strings.Contains(err.Error(), "server.port") {
		t.Errorf("Load() = %v, want port range error", err)
	}
}

func TestDefaultConfig_RoundTrip(t *testing.T) {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	var cfg PromptLabConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("round trip changed the config:\n%+v\n%+v", cfg, DefaultConfig())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}
