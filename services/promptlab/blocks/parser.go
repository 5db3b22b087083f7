// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package blocks

import (
	"strings"

	"github.com/AleutianAI/PromptLab/services/promptlab/datatypes"
)

// AmbiguityKind classifies a section Parse could not map cleanly.
type AmbiguityKind string

const (
	// AmbiguityMultipleMatches means the header matched more than one
	// catalog entry; the first in canonical order was used.
	AmbiguityMultipleMatches AmbiguityKind = "multiple_matches"

	// AmbiguityUnmatchedSection means a leading section matched no block
	// and had no preceding block to attach to. Its text was dropped.
	AmbiguityUnmatchedSection AmbiguityKind = "unmatched_section"

	// AmbiguityDuplicateBlock means a header named a block that was already
	// filled. The section was kept as a continuation of the previous block.
	AmbiguityDuplicateBlock AmbiguityKind = "duplicate_block"

	// AmbiguityInferredHeader means a paragraph following a block was read
	// as a new block because its first line contains a block name, although
	// it does not look like a header. The previous block ends there.
	AmbiguityInferredHeader AmbiguityKind = "inferred_header"
)

// Ambiguity records one questionable decision made while parsing.
type Ambiguity struct {
	Section    int           `json:"section"`
	Header     string        `json:"header"`
	Kind       AmbiguityKind `json:"kind"`
	Candidates []string      `json:"candidates,omitempty"`
}

// ParseResult is the output of ParseDetailed.
type ParseResult struct {
	Blocks      []datatypes.BlockState `json:"blocks"`
	Ambiguities []Ambiguity            `json:"ambiguities,omitempty"`
}

// Ambiguous reports whether any section was mapped by guesswork.
func (r ParseResult) Ambiguous() bool {
	return len(r.Ambiguities) > 0
}

// Parse recovers a block list from flattened prompt text.
//
// # Description
//
// Parse is the legacy importer for runs that were stored as flat text only.
// The text is split on blank lines. A section with at least two lines whose
// first line contains a catalog display name or id starts that block (first
// match in canonical order wins); the remaining lines are its content.
// Sections that do not start a block are never blocks themselves. They are
// appended to the block before them, which keeps multi-paragraph content
// intact, and dropped when no block precedes them.
//
// Every catalog entry appears exactly once in the result, in canonical
// order. Blocks with content are expanded when expandAll is true; empty
// blocks are always collapsed.
//
// # Inputs
//
//   - text: Prompt text, normally produced by Serialize.
//   - expandAll: Expand every block that has content.
//
// # Outputs
//
//   - []datatypes.BlockState: One state per catalog entry.
//
// # Limitations
//
//   - Header matching is by substring and can misattribute a paragraph whose
//     first line happens to contain a block's name. Use ParseDetailed to see
//     where that happened.
func Parse(text string, expandAll bool) []datatypes.BlockState {
	return ParseDetailed(text, expandAll).Blocks
}

// ParseDetailed is Parse plus the list of ambiguous decisions it made.
func ParseDetailed(text string, expandAll bool) ParseResult {
	var result ParseResult
	content := make(map[string]string, len(catalog))
	current := ""

	for i, section := range strings.Split(text, sectionSeparator) {
		header, body, multiline := strings.Cut(section, "\n")

		var (
			matches []string
			exact   bool
		)
		if multiline {
			matches, exact = matchHeader(header)
		}

		if len(matches) == 0 {
			if current != "" {
				content[current] += sectionSeparator + section
			} else if strings.TrimSpace(section) != "" {
				result.Ambiguities = append(result.Ambiguities, Ambiguity{
					Section: i,
					Header:  strings.TrimSpace(header),
					Kind:    AmbiguityUnmatchedSection,
				})
			}
			continue
		}

		if len(matches) > 1 {
			result.Ambiguities = append(result.Ambiguities, Ambiguity{
				Section:    i,
				Header:     strings.TrimSpace(header),
				Kind:       AmbiguityMultipleMatches,
				Candidates: matches,
			})
		}

		if current != "" && !exact && !strings.HasSuffix(strings.TrimSpace(header), ":") {
			result.Ambiguities = append(result.Ambiguities, Ambiguity{
				Section:    i,
				Header:     strings.TrimSpace(header),
				Kind:       AmbiguityInferredHeader,
				Candidates: matches,
			})
		}

		id := matches[0]
		if _, filled := content[id]; filled {
			result.Ambiguities = append(result.Ambiguities, Ambiguity{
				Section:    i,
				Header:     strings.TrimSpace(header),
				Kind:       AmbiguityDuplicateBlock,
				Candidates: []string{id},
			})
			content[current] += sectionSeparator + section
			continue
		}

		content[id] = body
		current = id
	}

	result.Blocks = make([]datatypes.BlockState, len(catalog))
	for i, def := range catalog {
		c := strings.TrimSpace(content[def.ID])
		result.Blocks[i] = datatypes.BlockState{
			ID:        def.ID,
			Content:   c,
			Collapsed: c == "" || !expandAll,
		}
	}
	return result
}

// matchHeader returns the catalog ids a header line names, in canonical
// order, and whether the line was an exact header such as "Task:" or "task".
// Anything else is matched by case-insensitive containment of a display
// name or id.
func matchHeader(line string) ([]string, bool) {
	h := strings.ToLower(strings.TrimSpace(line))
	if h == "" {
		return nil, false
	}

	bare := strings.TrimSpace(strings.TrimSuffix(h, ":"))
	for _, def := range catalog {
		if bare == strings.ToLower(def.DisplayName) || bare == def.ID {
			return []string{def.ID}, true
		}
	}

	var matches []string
	for _, def := range catalog {
		if strings.Contains(h, strings.ToLower(def.DisplayName)) || strings.Contains(h, def.ID) {
			matches = append(matches, def.ID)
		}
	}
	return matches, false
}
