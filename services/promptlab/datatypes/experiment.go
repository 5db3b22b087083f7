// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the data structures shared by the PromptLab
// service: experiments, runs, run parameters, prompt blocks and attached
// files.
//
// # Ownership
//
// An Experiment is treated as a single-writer value. Callers never mutate an
// Experiment in place; they Clone it, modify the copy, and replace the
// original. Runs are append-only: after creation only Output, Error, Status,
// DurationMillis and Evaluation change.
package datatypes

import (
	"strings"
	"time"
)

// ErrorOutputPrefix marks a run output that holds a generation failure
// instead of model text.
const ErrorOutputPrefix = "[error] "

// RunStatus is the execution state of a single run.
type RunStatus string

const (
	// RunStatusPending is a run that has been created but not executed.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning is a run whose generation call is in flight.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted is a run that produced model output.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed is a run whose generation call failed or timed out.
	// The run is still part of the experiment history.
	RunStatusFailed RunStatus = "failed"
)

// BlockDefinition describes one entry of the block catalog.
type BlockDefinition struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Required    bool   `json:"required"`
}

// BlockState is the editable state of one prompt block.
//
// Collapsed is presentation state only and never participates in diffing.
type BlockState struct {
	ID        string `json:"id" validate:"required"`
	Content   string `json:"content"`
	Collapsed bool   `json:"collapsed"`
}

// CloneBlocks returns a copy of blocks so the caller can modify it without
// affecting the original slice.
func CloneBlocks(blocks []BlockState) []BlockState {
	if blocks == nil {
		return nil
	}
	out := make([]BlockState, len(blocks))
	copy(out, blocks)
	return out
}

// BlockContentMap reduces a block list to id -> trimmed content.
func BlockContentMap(blocks []BlockState) map[string]string {
	out := make(map[string]string, len(blocks))
	for _, b := range blocks {
		out[b.ID] = strings.TrimSpace(b.Content)
	}
	return out
}

// AttachedFile is a file whose extracted text is sent along with a prompt.
//
// Identity for diffing is (Name, Size); the bytes are never compared.
type AttachedFile struct {
	Name     string `json:"name" validate:"required"`
	Size     int64  `json:"size" validate:"gte=0"`
	Content  string `json:"content"`
	MIMEType string `json:"mime_type,omitempty"`
}

// Evaluation is the user's judgement of a run's output.
type Evaluation struct {
	Rating      int       `json:"rating" validate:"gte=1,lte=5"`
	Notes       string    `json:"notes,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// ExperimentRun is one recorded attempt at executing an assembled prompt.
//
// # Fields
//
//   - Prompt: the flattened, user-visible prompt. File context injected for
//     the provider is not part of it.
//   - Blocks: the structured block list the prompt was serialized from.
//     Empty for records imported from older exports, in which case the
//     block structure is recovered by parsing Prompt.
//   - ParentRunID: the fork parent. Empty only for a branch root or for a
//     legacy linear record whose parent is the preceding run.
//   - Changes: the full change list accepted by the validator.
type ExperimentRun struct {
	ID                string         `json:"id"`
	Timestamp         time.Time      `json:"timestamp"`
	Prompt            string         `json:"prompt"`
	Blocks            []BlockState   `json:"blocks,omitempty"`
	Parameters        RunParameters  `json:"parameters"`
	Output            string         `json:"output"`
	Error             string         `json:"error,omitempty"`
	Status            RunStatus      `json:"status"`
	AttachedFiles     []AttachedFile `json:"attached_files,omitempty"`
	ParentRunID       string         `json:"parent_run_id,omitempty"`
	BranchName        string         `json:"branch_name,omitempty"`
	ChangeDescription string         `json:"change_description,omitempty"`
	Changes           []string       `json:"changes,omitempty"`
	Evaluation        *Evaluation    `json:"evaluation,omitempty"`
	DurationMillis    int64          `json:"duration_ms,omitempty"`
}

// Failed reports whether the run ended in a generation error.
func (r ExperimentRun) Failed() bool {
	return r.Status == RunStatusFailed
}

// Note is one entry of an experiment's append-only narrative log.
type Note struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// Experiment is the aggregate root: a hypothesis and its tree of runs.
//
// # Fields
//
//   - Title: unique across experiments after trimming, case-insensitive.
//   - Runs: append-only; insertion order is chronological order.
//   - Version: "v1", "v2", ... assigned at creation.
//   - ParentVersion: the experiment this one was derived from.
//   - ChildCount: monotonic count of experiments derived from this one.
//     Incremented when a child is created, never decremented.
//   - BlockContent: snapshot of the originating blocks, used as the
//     baseline when no runs exist.
type Experiment struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Timestamp     time.Time         `json:"timestamp"`
	Hypothesis    string            `json:"hypothesis"`
	Runs          []ExperimentRun   `json:"runs"`
	Version       string            `json:"version"`
	ParentVersion string            `json:"parent_version,omitempty"`
	ChildCount    int               `json:"child_count"`
	BlockContent  map[string]string `json:"block_content,omitempty"`
	Notes         []Note            `json:"notes,omitempty"`
}

// Clone returns a deep copy of the experiment.
func (e Experiment) Clone() Experiment {
	out := e
	if e.Runs != nil {
		out.Runs = make([]ExperimentRun, len(e.Runs))
		for i, r := range e.Runs {
			out.Runs[i] = r.clone()
		}
	}
	if e.BlockContent != nil {
		out.BlockContent = make(map[string]string, len(e.BlockContent))
		for k, v := range e.BlockContent {
			out.BlockContent[k] = v
		}
	}
	if e.Notes != nil {
		out.Notes = append([]Note(nil), e.Notes...)
	}
	return out
}

func (r ExperimentRun) clone() ExperimentRun {
	out := r
	out.Blocks = CloneBlocks(r.Blocks)
	if r.AttachedFiles != nil {
		out.AttachedFiles = append([]AttachedFile(nil), r.AttachedFiles...)
	}
	if r.Changes != nil {
		out.Changes = append([]string(nil), r.Changes...)
	}
	if r.Evaluation != nil {
		ev := *r.Evaluation
		out.Evaluation = &ev
	}
	return out
}

// FindRun returns the run with the given id and its index.
func (e Experiment) FindRun(id string) (ExperimentRun, int, bool) {
	if id == "" {
		return ExperimentRun{}, -1, false
	}
	for i, r := range e.Runs {
		if r.ID == id {
			return r, i, true
		}
	}
	return ExperimentRun{}, -1, false
}

// LastRun returns the most recently appended run.
func (e Experiment) LastRun() (ExperimentRun, bool) {
	if len(e.Runs) == 0 {
		return ExperimentRun{}, false
	}
	return e.Runs[len(e.Runs)-1], true
}

// NormalizeTitle is the comparison key used for title uniqueness.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
