// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compare diffs two runs of the same experiment.
package compare

import (
	"github.com/AleutianAI/PromptLab/services/promptlab/blocks"
	"github.com/AleutianAI/PromptLab/services/promptlab/datatypes"
	"github.com/AleutianAI/PromptLab/services/promptlab/iteration"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Op is the kind of a diff segment.
type Op string

const (
	OpEqual  Op = "equal"
	OpInsert Op = "insert"
	OpDelete Op = "delete"
)

// Segment is one span of a text diff.
type Segment struct {
	Op   Op     `json:"op"`
	Text string `json:"text"`
}

// BlockDiff is a block whose content differs between the runs.
type BlockDiff struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Left        string    `json:"left"`
	Right       string    `json:"right"`
	Segments    []Segment `json:"segments"`
}

// Comparison is the difference between a left and a right run.
//
// # Fields
//
//   - ParameterChanges: "<Field>: <left> → <right>" entries.
//   - BlockChanges: every block whose content differs, including blocks
//     cleared on one side.
//   - FilesChanged: the attached file signatures differ.
//   - PromptDiff, OutputDiff: character diffs, semantically cleaned up.
//   - Attributable: right is a direct child of left, so the output change
//     is attributable to right's single recorded change.
//   - Attribution: that recorded change.
//   - Distance: Levenshtein distance between the outputs.
type Comparison struct {
	LeftRunID        string      `json:"left_run_id"`
	RightRunID       string      `json:"right_run_id"`
	ParameterChanges []string    `json:"parameter_changes"`
	BlockChanges     []BlockDiff `json:"block_changes"`
	FilesChanged     bool        `json:"files_changed"`
	PromptDiff       []Segment   `json:"prompt_diff"`
	OutputDiff       []Segment   `json:"output_diff"`
	Attributable     bool        `json:"attributable"`
	Attribution      string      `json:"attribution,omitempty"`
	Distance         int         `json:"distance"`
}

// Compare diffs left and right. Block content is recovered the same way
// the baseline resolver does, so legacy runs without structured blocks
// compare correctly.
func Compare(left, right datatypes.ExperimentRun) Comparison {
	dmp := diffmatchpatch.New()

	c := Comparison{
		LeftRunID:        left.ID,
		RightRunID:       right.ID,
		ParameterChanges: parameterChanges(left.Parameters, right.Parameters),
		BlockChanges:     []BlockDiff{},
		FilesChanged:     iteration.FileSignature(left.AttachedFiles) != iteration.FileSignature(right.AttachedFiles),
		PromptDiff:       textDiff(dmp, left.Prompt, right.Prompt),
		OutputDiff:       textDiff(dmp, left.Output, right.Output),
	}
	c.Distance = dmp.DiffLevenshtein(dmp.DiffMain(left.Output, right.Output, false))

	leftContent, _ := iteration.RunBlockContent(left)
	rightContent, _ := iteration.RunBlockContent(right)
	for _, def := range blocks.Catalog() {
		l, r := leftContent[def.ID], rightContent[def.ID]
		if l == r {
			continue
		}
		c.BlockChanges = append(c.BlockChanges, BlockDiff{
			ID:          def.ID,
			DisplayName: def.DisplayName,
			Left:        l,
			Right:       r,
			Segments:    textDiff(dmp, l, r),
		})
	}

	if right.ParentRunID != "" && right.ParentRunID == left.ID {
		c.Attributable = true
		c.Attribution = right.ChangeDescription
	}
	return c
}

func parameterChanges(l, r datatypes.RunParameters) []string {
	out := iteration.DiffParameters(&l, r)
	if out == nil {
		out = []string{}
	}
	return out
}

func textDiff(dmp *diffmatchpatch.DiffMatchPatch, a, b string) []Segment {
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(a, b, false))
	out := make([]Segment, 0, len(diffs))
	for _, d := range diffs {
		var op Op
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = OpInsert
		case diffmatchpatch.DiffDelete:
			op = OpDelete
		default:
			op = OpEqual
		}
		out = append(out, Segment{Op: op, Text: d.Text})
	}
	return out
}
