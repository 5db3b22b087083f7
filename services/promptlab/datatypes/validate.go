// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxTitleLength bounds experiment titles.
	MaxTitleLength = 200

	// MaxBlockContentBytes bounds a single block's content.
	MaxBlockContentBytes = 64 * 1024

	// MaxNoteBytes bounds a single note.
	MaxNoteBytes = 8 * 1024
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// validate is the validator instance for promptlab datatypes.
// Initialized in init() with custom validators.
var validate *validator.Validate

func init() {
	validate = validator.New()

	_ = validate.RegisterValidation("knownmodel", validateKnownModel)
}

// validateKnownModel accepts only model ids present in ModelCatalog.
func validateKnownModel(fl validator.FieldLevel) bool {
	_, ok := LookupModel(fl.Field().String())
	return ok
}

// Validate runs struct-tag validation on any promptlab datatype.
//
// # Inputs
//
//   - v: A struct or pointer to struct carrying `validate` tags.
//
// # Outputs
//
//   - error: validator.ValidationErrors describing every failed field, or nil.
func Validate(v any) error {
	return validate.Struct(v)
}
