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

	"github.com/AleutianAI/PromptLab/services/promptlab/blocks"
	"github.com/AleutianAI/PromptLab/services/promptlab/datatypes"
)

// Session is the editing state of one experiment: the fork pointer, the
// candidate, and the baseline and validation derived from them.
//
// # Description
//
// A Session is a value. Every edit produces a new Session through Recompute,
// WithCandidate or WithFork; Baseline and Validation are never set
// independently of ForkRunID and Candidate.
type Session struct {
	ExperimentID string           `json:"experiment_id"`
	ForkRunID    string           `json:"fork_run_id,omitempty"`
	Phase        Phase            `json:"phase"`
	Candidate    Candidate        `json:"candidate"`
	Baseline     Baseline         `json:"baseline"`
	Validation   ValidationResult `json:"validation"`
}

// NewSession starts a session on exp with the fork pointer at the latest
// run and the candidate equal to the baseline.
func NewSession(exp datatypes.Experiment) Session {
	fork := ""
	if last, ok := exp.LastRun(); ok {
		fork = last.ID
	}
	baseline := ResolveBaseline(exp, fork)
	phase := PhaseSetup
	if len(exp.Runs) > 0 {
		phase = PhaseEvaluation
	}
	s := Session{
		ExperimentID: exp.ID,
		ForkRunID:    fork,
		Phase:        phase,
		Candidate:    CandidateFromBaseline(baseline),
	}
	return s.Recompute(exp)
}

// Recompute derives Baseline and Validation from the current fork pointer
// and candidate.
func (s Session) Recompute(exp datatypes.Experiment) Session {
	s.Baseline = ResolveBaseline(exp, s.ForkRunID)
	s.Validation = Validate(s.Candidate, s.Baseline, exp, s.ForkRunID)
	return s
}

// WithCandidate replaces the candidate and recomputes.
func (s Session) WithCandidate(exp datatypes.Experiment, c Candidate) Session {
	s.Candidate = Candidate{
		Parameters: c.Parameters,
		Blocks:     datatypes.CloneBlocks(c.Blocks),
		Files:      append([]datatypes.AttachedFile(nil), c.Files...),
	}
	return s.Recompute(exp)
}

// WithFork moves the fork pointer to runID, resets the candidate to the new
// baseline and recomputes.
func (s Session) WithFork(exp datatypes.Experiment, runID string) (Session, error) {
	if _, _, ok := exp.FindRun(runID); !ok {
		return s, fmt.Errorf("select fork %s: %w", runID, ErrRunNotFound)
	}
	s.ForkRunID = runID
	s.Candidate = CandidateFromBaseline(ResolveBaseline(exp, runID))
	return s.Recompute(exp), nil
}

// CandidateFromBaseline seeds an editor from a baseline so that the
// unedited candidate validates as "no changes".
func CandidateFromBaseline(b Baseline) Candidate {
	params := datatypes.DefaultParameters()
	if b.Parameters != nil {
		params = *b.Parameters
	}
	var files []datatypes.AttachedFile
	if len(b.Files) > 0 {
		files = append(files, b.Files...)
	}
	return Candidate{
		Parameters: params,
		Blocks:     blocks.FromContent(b.BlockContent),
		Files:      files,
	}
}
