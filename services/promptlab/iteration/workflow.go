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

import "fmt"

// Phase is the workflow state of an experiment session.
//
//	setup -> building -> loading -> evaluation <-> iteration -> loading ...
//	evaluation/iteration -> comparison (runs >= 2)
//
// loading is transient and always resolves to evaluation, whether the run
// succeeded or failed. There is no cancelled state.
type Phase string

const (
	PhaseSetup      Phase = "setup"
	PhaseBuilding   Phase = "building"
	PhaseLoading    Phase = "loading"
	PhaseEvaluation Phase = "evaluation"
	PhaseIteration  Phase = "iteration"
	PhaseComparison Phase = "comparison"
)

var transitions = map[Phase][]Phase{
	PhaseSetup:      {PhaseBuilding},
	PhaseBuilding:   {PhaseLoading, PhaseSetup},
	PhaseLoading:    {PhaseEvaluation},
	PhaseEvaluation: {PhaseIteration, PhaseComparison, PhaseSetup},
	PhaseIteration:  {PhaseLoading, PhaseEvaluation, PhaseComparison, PhaseSetup},
	PhaseComparison: {PhaseIteration, PhaseEvaluation, PhaseSetup},
}

// CanTransition reports whether from -> to is allowed for an experiment
// with runCount runs.
func CanTransition(from, to Phase, runCount int) bool {
	if to == PhaseComparison && runCount < 2 {
		return false
	}
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Transition returns to, or ErrInvalidTransition.
func Transition(from, to Phase, runCount int) (Phase, error) {
	if !CanTransition(from, to, runCount) {
		return from, fmt.Errorf("%w: %s -> %s (runs=%d)", ErrInvalidTransition, from, to, runCount)
	}
	return to, nil
}
