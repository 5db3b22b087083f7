// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package files turns uploaded files into AttachedFile values and builds
// the file-context preamble sent to the provider.
package files

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/AleutianAI/PromptLab/services/promptlab/datatypes"
	"github.com/gabriel-vasile/mimetype"
)

// MaxFileBytes is the largest file accepted for extraction.
const MaxFileBytes = 1 << 20

var (
	ErrEmptyName   = errors.New("file name is required")
	ErrTooLarge    = fmt.Errorf("file exceeds %d bytes", MaxFileBytes)
	ErrUnsupported = errors.New("unsupported file type: only text files can be attached")
)

// Extract validates a raw upload and returns it as an AttachedFile.
//
// # Description
//
// The type is sniffed from the bytes, not the name. Any type descending
// from text/plain (including JSON, CSV, HTML and source files) is
// accepted; the content must also be valid UTF-8. Size is the raw byte
// length and, with the base name, forms the file's diff identity.
//
// # Outputs
//
//   - datatypes.AttachedFile: Name is the base name; Content is the text.
//   - error: ErrEmptyName, ErrTooLarge or ErrUnsupported.
func Extract(name string, data []byte) (datatypes.AttachedFile, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return datatypes.AttachedFile{}, ErrEmptyName
	}
	if len(data) > MaxFileBytes {
		return datatypes.AttachedFile{}, fmt.Errorf("%s: %w", base, ErrTooLarge)
	}

	mtype := mimetype.Detect(data)
	if !isText(mtype) || !utf8.Valid(data) {
		return datatypes.AttachedFile{}, fmt.Errorf("%s (%s): %w", base, mtype.String(), ErrUnsupported)
	}

	return datatypes.AttachedFile{
		Name:     base,
		Size:     int64(len(data)),
		Content:  string(data),
		MIMEType: mtype.String(),
	}, nil
}

func isText(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// WrapContext prepends the attached files to prompt in the form sent to the
// provider. The result is never stored as a run's Prompt.
func WrapContext(attached []datatypes.AttachedFile, prompt string) string {
	if len(attached) == 0 {
		return prompt
	}
	var sb strings.Builder
	sb.WriteString("The following files are provided as context.\n\n")
	for _, f := range attached {
		fmt.Fprintf(&sb, "<file name=%q>\n%s\n</file>\n\n", f.Name, strings.TrimRight(f.Content, "\n"))
	}
	sb.WriteString(prompt)
	return sb.String()
}
