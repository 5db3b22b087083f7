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

// sectionSeparator separates serialized blocks.
const sectionSeparator = "\n\n"

// Serialize flattens blocks into prompt text.
//
// # Description
//
// Blocks whose trimmed content is empty are dropped. Each remaining block is
// written as "<DisplayName>:\n<content>" and blocks are separated by a blank
// line. Output order is the catalog's canonical order, not the order of the
// input slice. Blocks with ids outside the catalog are ignored.
//
// # Inputs
//
//   - blocks: Block states in any order. Not modified.
//
// # Outputs
//
//   - string: The flattened prompt; empty when every block is empty.
func Serialize(blocks []datatypes.BlockState) string {
	content := make(map[string]string, len(blocks))
	for _, b := range blocks {
		if _, seen := content[b.ID]; seen {
			continue
		}
		content[b.ID] = strings.TrimSpace(b.Content)
	}

	sections := make([]string, 0, len(catalog))
	for _, def := range catalog {
		c := content[def.ID]
		if c == "" {
			continue
		}
		sections = append(sections, def.DisplayName+":\n"+c)
	}
	return strings.Join(sections, sectionSeparator)
}
