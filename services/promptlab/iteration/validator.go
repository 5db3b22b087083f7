// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package iteration

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/PromptLab/services/promptlab/blocks"
	"github.com/AleutianAI/PromptLab/services/promptlab/datatypes"
)

// Candidate is the user's current edit: what the next run would send.
type Candidate struct {
	Parameters datatypes.RunParameters  `json:"parameters"`
	Blocks     []datatypes.BlockState   `json:"blocks"`
	Files      []datatypes.AttachedFile `json:"files,omitempty"`
}

// ValidationResult is the outcome of Validate.
//
// # Fields
//
//   - Allowed: true when a new run may be created.
//   - Kind/Reason: why it was rejected; empty when allowed.
//   - Changes: human-readable change list, parameters first, then blocks,
//     then the file entry. Used as the new run's change description.
//   - ParameterChanges: the parameter entries of Changes.
//   - BlockChanges: ids of changed blocks, canonical order.
//   - FileChanged: the attached file signature differs.
type ValidationResult struct {
	Allowed          bool           `json:"allowed"`
	Kind             ValidationKind `json:"kind,omitempty"`
	Reason           string         `json:"reason,omitempty"`
	Changes          []string       `json:"changes"`
	ParameterChanges []string       `json:"parameter_changes,omitempty"`
	BlockChanges     []string       `json:"block_changes,omitempty"`
	FileChanged      bool           `json:"file_changed"`
}

// Err returns the rejection as a *ValidationError, or nil when allowed.
func (r ValidationResult) Err() error {
	if r.Allowed {
		return nil
	}
	return &ValidationError{Kind: r.Kind, Reason: r.Reason}
}

// FileChangeEntry is the change-list entry for a differing file signature.
const FileChangeEntry = "Attached file changed"

// Validate decides whether candidate may become a new run of exp.
//
// # Description
//
// Rules, in order:
//   - exp has no runs: allowed (bootstrap).
//   - exp has more than one run and no fork run is selected: rejected.
//   - Otherwise three diff sets are computed against baseline: parameters
//     (one entry per differing field), blocks (content differs from the
//     baseline and is non-empty) and files (sorted name:size signature).
//   - More than one parameter change: rejected.
//   - More than one block change, counting a file change as a block: rejected.
//   - One parameter change together with a block or file change: rejected.
//   - No changes: rejected.
//   - Otherwise allowed.
//
// Clearing a block to empty is not counted as a change, so a candidate whose
// only edit is a deletion is rejected with "No changes detected".
//
// # Inputs
//
//   - candidate: The user's edit.
//   - baseline: Output of ResolveBaseline for the same exp and fork.
//   - exp: The experiment the run would join.
//   - selectedForkRunID: The fork pointer; may be empty.
//
// # Outputs
//
//   - ValidationResult: Never nil-valued; Changes is non-nil.
func Validate(candidate Candidate, baseline Baseline, exp datatypes.Experiment, selectedForkRunID string) ValidationResult {
	result := ValidationResult{Changes: []string{}}

	if len(exp.Runs) == 0 {
		result.Allowed = true
		return result
	}

	if _, _, ok := exp.FindRun(selectedForkRunID); !ok && len(exp.Runs) > 1 {
		return reject(result, ErrNoForkSelected)
	}

	result.ParameterChanges = DiffParameters(baseline.Parameters, candidate.Parameters)
	result.BlockChanges = diffBlocks(baseline.BlockContent, candidate.Blocks)
	result.FileChanged = FileSignature(baseline.Files) != FileSignature(candidate.Files)

	result.Changes = append(result.Changes, result.ParameterChanges...)
	for _, id := range result.BlockChanges {
		result.Changes = append(result.Changes, BlockChangeEntry(id))
	}
	if result.FileChanged {
		result.Changes = append(result.Changes, FileChangeEntry)
	}

	parameterCount := len(result.ParameterChanges)
	blockCount := len(result.BlockChanges)
	if result.FileChanged {
		blockCount++
	}

	switch {
	case parameterCount > 1:
		return reject(result, ErrTooManyParameterChanges)
	case blockCount > 1:
		return reject(result, ErrTooManyBlockChanges)
	case parameterCount == 1 && blockCount == 1:
		return reject(result, ErrMixedChanges)
	case parameterCount+blockCount == 0:
		return reject(result, ErrNoChanges)
	}

	result.Allowed = true
	return result
}

func reject(result ValidationResult, err *ValidationError) ValidationResult {
	result.Allowed = false
	result.Kind = err.Kind
	result.Reason = err.Reason
	return result
}

// BlockChangeEntry is the change-list entry for a modified block.
func BlockChangeEntry(id string) string {
	return blocks.DisplayName(id) + " block modified"
}

// DiffParameters lists differing fields as "<Field>: <old> → <new>".
// A nil baseline has nothing to compare against.
func DiffParameters(base *datatypes.RunParameters, cur datatypes.RunParameters) []string {
	if base == nil {
		return nil
	}
	var changes []string
	if base.Model != cur.Model {
		changes = append(changes, fmt.Sprintf("Model: %s → %s", base.Model, cur.Model))
	}
	if base.Temperature != cur.Temperature {
		changes = append(changes, fmt.Sprintf("Temperature: %s → %s",
			formatFloat(base.Temperature), formatFloat(cur.Temperature)))
	}
	if base.MaxTokens != cur.MaxTokens {
		changes = append(changes, fmt.Sprintf("Max Tokens: %d → %d", base.MaxTokens, cur.MaxTokens))
	}
	return changes
}

// diffBlocks returns the distinct ids, in catalog order, whose trimmed
// candidate content is non-empty and differs from the baseline.
func diffBlocks(base map[string]string, cur []datatypes.BlockState) []string {
	changed := make(map[string]bool)
	for _, b := range cur {
		content := strings.TrimSpace(b.Content)
		if content == "" {
			continue
		}
		if content != base[b.ID] {
			changed[b.ID] = true
		}
	}

	var ids []string
	for _, def := range blocks.Catalog() {
		if changed[def.ID] {
			ids = append(ids, def.ID)
			delete(changed, def.ID)
		}
	}
	// Ids outside the catalog still count; keep them deterministic.
	rest := make([]string, 0, len(changed))
	for id := range changed {
		rest = append(rest, id)
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

// FileSignature is the sorted "name:size" identity of a file set.
func FileSignature(files []datatypes.AttachedFile) string {
	parts := make([]string, len(files))
	for i, f := range files {
		parts[i] = f.Name + ":" + strconv.FormatInt(f.Size, 10)
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
