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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	port       int
	dataDir    string
	inMemory   bool
	outputPath string

	rootCmd = &cobra.Command{
		Use:   "promptlab",
		Short: "Build, run and iterate on structured LLM prompts",
		Long: `PromptLab assembles prompts from named blocks, runs them against
a model and records every iteration as a run tree you can fork,
evaluate and compare.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the PromptLab HTTP server",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	// --- Data ---
	// These open the data directory directly and cannot run while a
	// server holds it.
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored experiments",
		RunE:  runList, // Defined in cmd_data.go
	}
	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Write every experiment to a JSON export blob",
		RunE:  runExport, // Defined in cmd_data.go
	}
	importCmd = &cobra.Command{
		Use:   "import [file]",
		Short: "Merge an export blob into the store",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport, // Defined in cmd_data.go
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE:  runShowConfig, // Defined in cmd_serve.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to promptlab.yaml (default ~/.promptlab/promptlab.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "",
		"Override storage.data_dir")

	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "Override server.port")
	serveCmd.Flags().BoolVar(&inMemory, "in-memory", false,
		"Keep experiments in memory only; nothing survives a restart")

	exportCmd.Flags().StringVarP(&outputPath, "output", "o", "",
		"Write to this file instead of stdout")

	rootCmd.AddCommand(serveCmd, listCmd, exportCmd, importCmd, configCmd)
}
