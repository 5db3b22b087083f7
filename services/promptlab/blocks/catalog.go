// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package blocks holds the prompt block catalog and the conversion between
// structured block lists and the flat prompt text sent to a model.
//
// # Description
//
// A structured prompt is an ordered list of named blocks (task, persona,
// context, ...). Serialize flattens it as:
//
//	Task:
//	Summarize the report.
//
//	Persona:
//	You are a financial analyst.
//
// Parse is the lossy inverse. Runs persist their structured blocks, so Parse
// is only needed for records that predate structured storage.
package blocks

import (
	"github.com/AleutianAI/PromptLab/services/promptlab/datatypes"
)

// Block identifiers.
const (
	TaskID        = "task"
	PersonaID     = "persona"
	ContextID     = "context"
	ExamplesID    = "examples"
	FormatID      = "format"
	ConstraintsID = "constraints"
	ToneID        = "tone"
)

// catalog is in canonical order. Serialize and Parse both follow it.
var catalog = []datatypes.BlockDefinition{
	{ID: TaskID, DisplayName: "Task", Required: true},
	{ID: PersonaID, DisplayName: "Persona"},
	{ID: ContextID, DisplayName: "Context"},
	{ID: ExamplesID, DisplayName: "Examples"},
	{ID: FormatID, DisplayName: "Output Format"},
	{ID: ConstraintsID, DisplayName: "Constraints"},
	{ID: ToneID, DisplayName: "Tone"},
}

// Catalog returns the block definitions in canonical order.
func Catalog() []datatypes.BlockDefinition {
	out := make([]datatypes.BlockDefinition, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the definition for id.
func Lookup(id string) (datatypes.BlockDefinition, bool) {
	for _, def := range catalog {
		if def.ID == id {
			return def, true
		}
	}
	return datatypes.BlockDefinition{}, false
}

// IsKnown reports whether id is a catalog block.
func IsKnown(id string) bool {
	_, ok := Lookup(id)
	return ok
}

// DisplayName returns the display name for id, or id itself when unknown.
func DisplayName(id string) string {
	if def, ok := Lookup(id); ok {
		return def.DisplayName
	}
	return id
}

// Empty returns one empty, collapsed block per catalog entry.
func Empty() []datatypes.BlockState {
	out := make([]datatypes.BlockState, len(catalog))
	for i, def := range catalog {
		out[i] = datatypes.BlockState{ID: def.ID, Collapsed: true}
	}
	return out
}

// FromContent builds a full catalog-ordered block list from an id -> content
// map. Blocks with content are expanded.
func FromContent(content map[string]string) []datatypes.BlockState {
	out := Empty()
	for i := range out {
		if c, ok := content[out[i].ID]; ok {
			out[i].Content = c
			out[i].Collapsed = c == ""
		}
	}
	return out
}

// MissingRequired returns the ids of required blocks with no content.
func MissingRequired(content map[string]string) []string {
	var missing []string
	for _, def := range catalog {
		if def.Required && content[def.ID] == "" {
			missing = append(missing, def.ID)
		}
	}
	return missing
}
