// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/PromptLab/services/promptlab"
	"github.com/AleutianAI/PromptLab/services/promptlab/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (config.PromptLabConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.PromptLabConfig{}, err
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if inMemory {
		cfg.Storage.InMemory = true
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := promptlab.New(cfg, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		printMuted(cmd.ErrOrStderr(), "Shutting down PromptLab...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return svc.Shutdown(shutdownCtx)
	}
}

func runShowConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Generation.Anthropic.APIKey = mask(cfg.Generation.Anthropic.APIKey)
	cfg.Generation.OpenAI.APIKey = mask(cfg.Generation.OpenAI.APIKey)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// mask keeps the last four characters of a secret.
func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
