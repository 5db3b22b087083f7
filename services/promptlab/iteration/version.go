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
	"strings"

	"github.com/AleutianAI/PromptLab/services/promptlab/datatypes"
)

// RootVersion is the label of an experiment not derived from another.
const RootVersion = "v1"

// VersionFromSiblingCount labels a new child of prior by counting the
// existing experiments whose ParentVersion is prior.ID.
//
// # Description
//
// The label is "v" + (sibling count + 2): the first child is "v2", the next
// "v3". It is a snapshot of the live count, so two children computed
// before either is stored both get the same label. NextChildVersion is the
// counter-based replacement used for new experiments; this function is kept
// for labelling records that predate the counter.
func VersionFromSiblingCount(experiments []datatypes.Experiment, prior datatypes.Experiment) string {
	return fmt.Sprintf("v%d", countChildren(experiments, prior.ID)+2)
}

// NextChildVersion assigns the label for a new child of prior and returns
// prior with its child counter advanced.
//
// # Description
//
// The label is "v" + (prior.ChildCount + 2). The counter only grows, so
// siblings get distinct labels even if one of them is later deleted. The
// caller must store the returned parent in the same critical section in
// which it creates the child.
//
// # Outputs
//
//   - string: The child's version label.
//   - datatypes.Experiment: A copy of prior with ChildCount incremented.
func NextChildVersion(prior datatypes.Experiment) (string, datatypes.Experiment) {
	version := fmt.Sprintf("v%d", prior.ChildCount+2)
	updated := prior.Clone()
	updated.ChildCount++
	return version, updated
}

// ReconcileChildCounts raises each experiment's ChildCount to at least the
// number of stored children. Needed after importing records written before
// the counter existed. Returns the ids that changed.
func ReconcileChildCounts(experiments []datatypes.Experiment) []string {
	var changed []string
	for i := range experiments {
		n := countChildren(experiments, experiments[i].ID)
		if experiments[i].ChildCount < n {
			experiments[i].ChildCount = n
			changed = append(changed, experiments[i].ID)
		}
	}
	return changed
}

// LabelMissingVersions gives a version label to records stored without
// one. A root gets RootVersion; a child is labelled with
// VersionFromSiblingCount against the siblings that precede it, so the
// slice must be in creation order. Returns the ids that changed.
func LabelMissingVersions(experiments []datatypes.Experiment) []string {
	var changed []string
	for i := range experiments {
		e := &experiments[i]
		if strings.TrimSpace(e.Version) != "" {
			continue
		}
		if e.ParentVersion == "" {
			e.Version = RootVersion
		} else {
			e.Version = VersionFromSiblingCount(experiments[:i], datatypes.Experiment{ID: e.ParentVersion})
		}
		changed = append(changed, e.ID)
	}
	return changed
}

func countChildren(experiments []datatypes.Experiment, parentID string) int {
	n := 0
	for _, e := range experiments {
		if e.ParentVersion != "" && e.ParentVersion == parentID {
			n++
		}
	}
	return n
}

// CheckTitle rejects an empty title or one that collides with another
// experiment after trimming and case folding. excludeID skips the
// experiment being renamed.
func CheckTitle(experiments []datatypes.Experiment, title, excludeID string) error {
	key := datatypes.NormalizeTitle(title)
	if key == "" {
		return ErrTitleRequired
	}
	for _, e := range experiments {
		if e.ID == excludeID {
			continue
		}
		if datatypes.NormalizeTitle(e.Title) == key {
			return &ValidationError{
				Kind:   KindDuplicateTitle,
				Reason: fmt.Sprintf("An experiment titled %q already exists", strings.TrimSpace(e.Title)),
			}
		}
	}
	return nil
}
