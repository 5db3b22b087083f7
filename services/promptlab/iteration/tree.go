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
	"time"

	"github.com/AleutianAI/PromptLab/services/promptlab/blocks"
	"github.com/AleutianAI/PromptLab/services/promptlab/datatypes"
	"github.com/google/uuid"
)

// RootChangeDescription describes the first run of an experiment.
const RootChangeDescription = "Initial run"

// RunOptions customizes CreateRun.
//
// # Fields
//
//   - BranchName: Overrides the auto-generated "Iteration N" label.
//   - Now: Clock; defaults to time.Now.
//   - NewID: ID generator; defaults to NewID.
type RunOptions struct {
	BranchName string
	Now        func() time.Time
	NewID      func() string
}

func (o RunOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

func (o RunOptions) newID() string {
	if o.NewID != nil {
		return o.NewID()
	}
	return NewID()
}

// NewID returns a time-ordered unique identifier (UUIDv7). IDs generated
// later sort after IDs generated earlier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// CreateRun materializes an accepted candidate as a new run of exp.
//
// # Description
//
// The parent is forkRunID when given, otherwise the last run. The prompt is
// the serialized candidate blocks. The new run is appended to a copy of
// exp; existing runs are never replaced or reordered. For an experiment
// with no runs the new run is a branch root.
//
// The caller owns the fork pointer and should advance it to the returned
// run's ID.
//
// # Inputs
//
//   - exp: The experiment. Not modified.
//   - candidate: The edit to record.
//   - validation: Result of Validate for this candidate. Must be allowed.
//   - forkRunID: The selected fork; may be empty.
//   - opts: Optional branch name, clock and ID generator.
//
// # Outputs
//
//   - datatypes.ExperimentRun: The new run, status pending.
//   - datatypes.Experiment: exp with the run appended.
//   - error: ErrValidationRequired or ErrRunNotFound.
func CreateRun(
	exp datatypes.Experiment,
	candidate Candidate,
	validation ValidationResult,
	forkRunID string,
	opts RunOptions,
) (datatypes.ExperimentRun, datatypes.Experiment, error) {
	if !validation.Allowed {
		return datatypes.ExperimentRun{}, exp, fmt.Errorf("%w: %s", ErrValidationRequired, validation.Reason)
	}

	var parent datatypes.ExperimentRun
	hasParent := false
	if forkRunID != "" {
		p, _, ok := exp.FindRun(forkRunID)
		if !ok {
			return datatypes.ExperimentRun{}, exp, fmt.Errorf("fork %s: %w", forkRunID, ErrRunNotFound)
		}
		parent, hasParent = p, true
	} else {
		parent, hasParent = exp.LastRun()
	}

	structured := blocks.FromContent(datatypes.BlockContentMap(candidate.Blocks))
	run := datatypes.ExperimentRun{
		ID:         opts.newID(),
		Timestamp:  opts.now(),
		Prompt:     blocks.Serialize(structured),
		Blocks:     structured,
		Parameters: candidate.Parameters,
		Status:     datatypes.RunStatusPending,
		BranchName: opts.BranchName,
	}
	if len(candidate.Files) > 0 {
		run.AttachedFiles = append([]datatypes.AttachedFile(nil), candidate.Files...)
	}
	if len(validation.Changes) > 0 {
		run.Changes = append([]string(nil), validation.Changes...)
	}

	if hasParent {
		run.ParentRunID = parent.ID
		if run.BranchName == "" {
			run.BranchName = fmt.Sprintf("Iteration %d", len(exp.Runs))
		}
		if len(validation.Changes) > 0 {
			run.ChangeDescription = validation.Changes[0]
		} else {
			run.ChangeDescription = "Iteration from run " + ShortID(parent.ID)
		}
	} else {
		if run.BranchName == "" {
			run.BranchName = "Main"
		}
		run.ChangeDescription = RootChangeDescription
	}

	updated := exp.Clone()
	updated.Runs = append(updated.Runs, run)
	return run, updated, nil
}

// ShortID returns the last eight characters of id, which for UUIDv7 are
// random and distinguish runs created in the same millisecond.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

// =============================================================================
// Tree Queries
// =============================================================================

// ParentOf returns the parent run id of the run at index i.
//
// An explicit ParentRunID wins. A legacy run without one continues the run
// immediately before it. The first run has no parent.
func ParentOf(exp datatypes.Experiment, i int) (string, bool) {
	if i < 0 || i >= len(exp.Runs) {
		return "", false
	}
	if p := exp.Runs[i].ParentRunID; p != "" {
		return p, true
	}
	if i == 0 {
		return "", false
	}
	return exp.Runs[i-1].ID, true
}

// Children returns the runs whose parent is runID, in creation order.
func Children(exp datatypes.Experiment, runID string) []datatypes.ExperimentRun {
	var out []datatypes.ExperimentRun
	for i, r := range exp.Runs {
		if p, ok := ParentOf(exp, i); ok && p == runID {
			out = append(out, r)
		}
	}
	return out
}

// Lineage returns the path from the root to runID, inclusive.
func Lineage(exp datatypes.Experiment, runID string) ([]datatypes.ExperimentRun, error) {
	_, idx, ok := exp.FindRun(runID)
	if !ok {
		return nil, fmt.Errorf("lineage of %s: %w", runID, ErrRunNotFound)
	}

	var path []datatypes.ExperimentRun
	seen := make(map[string]bool)
	for idx >= 0 {
		run := exp.Runs[idx]
		if seen[run.ID] {
			return nil, fmt.Errorf("lineage of %s: cycle at %s: %w", runID, run.ID, ErrBrokenLineage)
		}
		seen[run.ID] = true
		path = append(path, run)

		parentID, ok := ParentOf(exp, idx)
		if !ok {
			break
		}
		_, idx, ok = exp.FindRun(parentID)
		if !ok {
			return nil, fmt.Errorf("lineage of %s: parent %s: %w", runID, parentID, ErrBrokenLineage)
		}
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// CheckLineage verifies that every run's parent exists and was appended
// before it. Used when accepting imported experiments.
func CheckLineage(exp datatypes.Experiment) error {
	index := make(map[string]int, len(exp.Runs))
	for i, r := range exp.Runs {
		if r.ID == "" {
			return fmt.Errorf("run %d has no id: %w", i, ErrBrokenLineage)
		}
		if _, dup := index[r.ID]; dup {
			return fmt.Errorf("duplicate run id %s: %w", r.ID, ErrBrokenLineage)
		}
		if r.ParentRunID != "" {
			if _, ok := index[r.ParentRunID]; !ok {
				return fmt.Errorf("run %s parent %s: %w", r.ID, r.ParentRunID, ErrBrokenLineage)
			}
		}
		index[r.ID] = i
	}
	return nil
}

// TreeNode is a run with its children, for rendering the run tree.
type TreeNode struct {
	RunID             string     `json:"run_id"`
	BranchName        string     `json:"branch_name,omitempty"`
	ChangeDescription string     `json:"change_description,omitempty"`
	Status            string     `json:"status"`
	Children          []TreeNode `json:"children,omitempty"`
}

// BuildTree returns the run forest of exp. Roots are runs without a parent.
func BuildTree(exp datatypes.Experiment) []TreeNode {
	children := make(map[string][]int)
	var roots []int
	for i := range exp.Runs {
		if p, ok := ParentOf(exp, i); ok {
			children[p] = append(children[p], i)
		} else {
			roots = append(roots, i)
		}
	}

	var build func(i int, depth int) TreeNode
	build = func(i int, depth int) TreeNode {
		r := exp.Runs[i]
		node := TreeNode{
			RunID:             r.ID,
			BranchName:        r.BranchName,
			ChangeDescription: r.ChangeDescription,
			Status:            string(r.Status),
		}
		if depth > len(exp.Runs) {
			return node
		}
		for _, c := range children[r.ID] {
			node.Children = append(node.Children, build(c, depth+1))
		}
		return node
	}

	out := make([]TreeNode, 0, len(roots))
	for _, i := range roots {
		out = append(out, build(i, 0))
	}
	return out
}

// Branch groups runs that share a branch name.
type Branch struct {
	Name   string   `json:"name"`
	RunIDs []string `json:"run_ids"`
}

// Branches groups runs by branch name, ordered by first appearance.
func Branches(exp datatypes.Experiment) []Branch {
	var out []Branch
	pos := make(map[string]int)
	for _, r := range exp.Runs {
		i, ok := pos[r.BranchName]
		if !ok {
			i = len(out)
			pos[r.BranchName] = i
			out = append(out, Branch{Name: r.BranchName})
		}
		out[i].RunIDs = append(out[i].RunIDs, r.ID)
	}
	return out
}
