// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package iteration implements the experiment iteration state machine:
// resolving the baseline a candidate is compared against, enforcing that a
// candidate differs from it in exactly one change-domain, and appending
// accepted runs to the experiment's run tree.
//
// # Description
//
// Everything in this package is a pure function over datatypes values. No
// function mutates its Experiment argument; mutations return a new value
// that the caller swaps in.
package iteration

import (
	"github.com/AleutianAI/PromptLab/services/promptlab/blocks"
	"github.com/AleutianAI/PromptLab/services/promptlab/datatypes"
)

// BaselineSource tells which rule produced a Baseline.
type BaselineSource string

const (
	// BaselineFork is the explicitly selected fork run.
	BaselineFork BaselineSource = "fork"

	// BaselineLatest is the most recently appended run.
	BaselineLatest BaselineSource = "latest"

	// BaselineExperiment is the experiment's originating block snapshot,
	// used before any run exists.
	BaselineExperiment BaselineSource = "experiment"
)

// Baseline is the snapshot a candidate edit is diffed against.
//
// # Fields
//
//   - Parameters: nil when Source is BaselineExperiment.
//   - BlockContent: id -> trimmed content.
//   - Files: nil when Source is BaselineExperiment.
//   - Ambiguities: non-empty when the content was recovered from a legacy
//     flat prompt and the parser had to guess.
type Baseline struct {
	Source       BaselineSource           `json:"source"`
	RunID        string                   `json:"run_id,omitempty"`
	Parameters   *datatypes.RunParameters `json:"parameters,omitempty"`
	BlockContent map[string]string        `json:"block_content"`
	Files        []datatypes.AttachedFile `json:"files,omitempty"`
	Ambiguities  []blocks.Ambiguity       `json:"ambiguities,omitempty"`
}

// ResolveBaseline determines what a candidate for exp is compared against.
//
// # Description
//
// Resolution order, first applicable wins:
//  1. selectedForkRunID names a run in exp: that run.
//  2. exp has runs: the most recently appended run.
//  3. exp.BlockContent (or an empty map), with no parameters or files.
//
// # Inputs
//
//   - exp: The experiment. Not modified.
//   - selectedForkRunID: The fork pointer; may be empty.
//
// # Outputs
//
//   - Baseline: Always populated; BlockContent is never nil.
func ResolveBaseline(exp datatypes.Experiment, selectedForkRunID string) Baseline {
	if run, _, ok := exp.FindRun(selectedForkRunID); ok {
		return baselineFromRun(run, BaselineFork)
	}
	if run, ok := exp.LastRun(); ok {
		return baselineFromRun(run, BaselineLatest)
	}

	content := make(map[string]string, len(exp.BlockContent))
	for id, c := range exp.BlockContent {
		content[id] = c
	}
	return Baseline{
		Source:       BaselineExperiment,
		BlockContent: content,
	}
}

func baselineFromRun(run datatypes.ExperimentRun, source BaselineSource) Baseline {
	params := run.Parameters
	content, ambiguities := RunBlockContent(run)
	var files []datatypes.AttachedFile
	if len(run.AttachedFiles) > 0 {
		files = append(files, run.AttachedFiles...)
	}
	return Baseline{
		Source:       source,
		RunID:        run.ID,
		Parameters:   &params,
		BlockContent: content,
		Files:        files,
		Ambiguities:  ambiguities,
	}
}

// RunBlockContent returns a run's id -> content map.
//
// Structured blocks are used when the run carries them; otherwise the flat
// prompt is parsed and any parser ambiguities are returned alongside.
func RunBlockContent(run datatypes.ExperimentRun) (map[string]string, []blocks.Ambiguity) {
	if len(run.Blocks) > 0 {
		return datatypes.BlockContentMap(run.Blocks), nil
	}
	parsed := blocks.ParseDetailed(run.Prompt, true)
	return datatypes.BlockContentMap(parsed.Blocks), parsed.Ambiguities
}
