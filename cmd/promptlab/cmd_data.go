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
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/AleutianAI/PromptLab/pkg/logging"
	"github.com/AleutianAI/PromptLab/services/promptlab/config"
	"github.com/AleutianAI/PromptLab/services/promptlab/lab"
	"github.com/AleutianAI/PromptLab/services/promptlab/storage/badger"
	"github.com/AleutianAI/PromptLab/services/promptlab/store"
	"github.com/spf13/cobra"
)

// openLab opens the configured store and loads a lab over it. Generation
// is unavailable; the data commands never execute runs. Store warnings go
// to the command's stderr.
func openLab(cmd *cobra.Command, cfg config.PromptLabConfig) (*lab.Lab, func(), error) {
	if cfg.Storage.InMemory {
		return nil, nil, fmt.Errorf("storage.in_memory is set; there is no stored data to operate on")
	}
	logger := logging.New(logging.Config{
		Level:   logging.LevelWarn,
		Service: "promptlab",
		Output:  cmd.ErrOrStderr(),
	}).Slog()

	bc := badger.DefaultConfig(logging.ExpandPath(cfg.Storage.DataDir))
	bc.SyncWrites = true
	bc.GCInterval = 0
	st, err := store.OpenBadgerStore(bc, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s (is a server running?): %w", cfg.Storage.DataDir, err)
	}

	l := lab.New(lab.Config{Store: st, Logger: logger})
	if err := l.Load(cmd.Context()); err != nil {
		st.Close()
		return nil, nil, err
	}
	return l, func() { st.Close() }, nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l, closeFn, err := openLab(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	exps := l.List()
	if len(exps) == 0 {
		printMuted(cmd.OutOrStdout(), "No experiments in %s", cfg.Storage.DataDir)
		return nil
	}
	printTitle(cmd.OutOrStdout(), "Experiments")
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tVERSION\tRUNS\tCREATED")
	for _, exp := range exps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			exp.ID, exp.Title, exp.Version, len(exp.Runs), exp.Timestamp.Format("2006-01-02 15:04"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	printMuted(cmd.OutOrStdout(), "%d experiments", len(exps))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l, closeFn, err := openLab(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	blob, err := l.Export()
	if err != nil {
		return err
	}
	if outputPath == "" {
		_, err = cmd.OutOrStdout().Write(append(blob, '\n'))
		return err
	}
	if err := os.WriteFile(outputPath, blob, 0600); err != nil {
		return err
	}
	printSuccess(cmd.ErrOrStderr(), "Exported %d experiments to %s", len(l.List()), outputPath)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	blob, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	l, closeFn, err := openLab(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := l.Import(cmd.Context(), blob)
	if err != nil {
		return err
	}
	if n == 0 {
		printWarning(cmd.OutOrStdout(), "Imported 0 experiments; the blob was empty")
		return nil
	}
	printSuccess(cmd.OutOrStdout(), "Imported %d experiments", n)
	return nil
}
