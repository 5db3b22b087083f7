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

import "errors"

// ValidationKind identifies why a candidate or experiment was rejected.
type ValidationKind string

const (
	KindNoChanges               ValidationKind = "no_changes"
	KindTooManyParameterChanges ValidationKind = "too_many_parameter_changes"
	KindTooManyBlockChanges     ValidationKind = "too_many_block_changes"
	KindMixedChanges            ValidationKind = "mixed_changes"
	KindNoForkSelected          ValidationKind = "no_fork_selected"
	KindDuplicateTitle          ValidationKind = "duplicate_title"
)

// ValidationError is a locally recoverable rejection. State is unchanged and
// no run is created when one is returned.
type ValidationError struct {
	Kind   ValidationKind
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Is matches on Kind so callers can use errors.Is with the sentinels below.
func (e *ValidationError) Is(target error) bool {
	var t *ValidationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinel validation errors, one per kind.
var (
	ErrNoChanges = &ValidationError{
		Kind: KindNoChanges, Reason: "No changes detected",
	}
	ErrTooManyParameterChanges = &ValidationError{
		Kind: KindTooManyParameterChanges, Reason: "Only one parameter can be changed at a time",
	}
	ErrTooManyBlockChanges = &ValidationError{
		Kind: KindTooManyBlockChanges, Reason: "Only one component can be changed at a time",
	}
	ErrMixedChanges = &ValidationError{
		Kind: KindMixedChanges, Reason: "Change either a parameter or a component, not both",
	}
	ErrNoForkSelected = &ValidationError{
		Kind: KindNoForkSelected, Reason: "Select a fork point before running",
	}
	ErrDuplicateTitle = &ValidationError{
		Kind: KindDuplicateTitle, Reason: "An experiment with this title already exists",
	}
)

// Non-validation errors returned by the run tree and workflow.
var (
	// ErrValidationRequired is returned by CreateRun for a rejected candidate.
	ErrValidationRequired = errors.New("candidate has not passed validation")

	// ErrRunNotFound is returned when a referenced run is not in the experiment.
	ErrRunNotFound = errors.New("run not found in experiment")

	// ErrTitleRequired is returned for an empty or whitespace-only title.
	ErrTitleRequired = errors.New("experiment title is required")

	// ErrInvalidTransition is returned for a workflow transition that is not allowed.
	ErrInvalidTransition = errors.New("invalid workflow transition")

	// ErrBrokenLineage is returned when a run references a parent that does
	// not precede it in the same experiment.
	ErrBrokenLineage = errors.New("run references a missing or later parent")
)
