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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/PromptLab/services/promptlab/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Harness
// =============================================================================

// execute runs the root command with args against a fresh flag state.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, port, dataDir, inMemory, outputPath = "", 0, "", false, ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

type cliEnv struct {
	config string
	data   string
	dir    string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	return cliEnv{
		config: filepath.Join(dir, "promptlab.yaml"),
		data:   filepath.Join(dir, "data"),
		dir:    dir,
	}
}

func (e cliEnv) args(cmd ...string) []string {
	return append(cmd, "--config", e.config, "--data-dir", e.data)
}

const legacyBlob = `[
  {"id": "e1", "title": "Imported one", "version": "v1", "timestamp": "2026-01-02T03:04:05Z", "runs": []},
  {"id": "e2", "title": "Imported two", "version": "v1", "timestamp": "2026-01-03T03:04:05Z", "runs": []}
]`

// =============================================================================
// Data Command Tests
// =============================================================================

func TestCLI_ImportListExport(t *testing.T) {
	env := newCLIEnv(t)
	blobPath := filepath.Join(env.dir, "in.json")
	require.NoError(t, os.WriteFile(blobPath, []byte(legacyBlob), 0600))

	out, err := execute(t, env.args("import", blobPath)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 experiments")

	out, err = execute(t, env.args("list")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported one")
	assert.Contains(t, out, "Imported two")

	exportPath := filepath.Join(env.dir, "out.json")
	_, err = execute(t, env.args("export", "-o", exportPath)...)
	require.NoError(t, err)

	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	var envl store.Envelope
	require.NoError(t, json.Unmarshal(data, &envl))
	assert.Equal(t, store.ExportFormat, envl.Format)
	require.Len(t, envl.Experiments, 2)
	assert.Equal(t, "e1", envl.Experiments[0].ID)
}

func TestCLI_ExportToStdout(t *testing.T) {
	env := newCLIEnv(t)

	out, err := execute(t, env.args("export")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"format": "promptlab.experiments"`)
}

func TestCLI_ImportRejectsInvalidBlob(t *testing.T) {
	env := newCLIEnv(t)
	blobPath := filepath.Join(env.dir, "bad.json")
	require.NoError(t, os.WriteFile(blobPath, []byte(`{"format":"other","version":1}`), 0600))

	_, err := execute(t, env.args("import", blobPath)...)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInvalidImport)
}

func TestCLI_ImportRequiresFile(t *testing.T) {
	env := newCLIEnv(t)
	_, err := execute(t, env.args("import")...)
	assert.Error(t, err)
}

// =============================================================================
// Config Command Tests
// =============================================================================

func TestCLI_ConfigMasksSecrets(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-secret-1234")

	out, err := execute(t, env.args("config")...)
	require.NoError(t, err)
	assert.Contains(t, out, "****1234")
	assert.NotContains(t, out, "sk-ant-secret")
	assert.Contains(t, out, env.data)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", mask(""))
	assert.Equal(t, "****", mask("abc"))
	assert.Equal(t, "****wxyz", mask("abcdwxyz"))
}

func TestStyled_PlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, "done", styled(&buf, styles.Success, "done"))

	printSuccess(&buf, "Imported %d experiments", 3)
	assert.Equal(t, "✓ Imported 3 experiments\n", buf.String())
}
