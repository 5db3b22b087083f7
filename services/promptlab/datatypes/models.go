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

// =============================================================================
// Parameter Bounds
// =============================================================================

const (
	// MinTemperature is the lowest accepted sampling temperature.
	MinTemperature = 0.0

	// MaxTemperature is the highest accepted sampling temperature.
	MaxTemperature = 2.0

	// MinMaxTokens is the smallest accepted completion budget.
	MinMaxTokens = 100

	// MaxMaxTokens is the largest accepted completion budget.
	MaxMaxTokens = 4000
)

// Provider names used by ModelInfo.Provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// ModelInfo describes one selectable model.
type ModelInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Provider    string `json:"provider"`
}

// ModelCatalog is the fixed set of models a run may use.
var ModelCatalog = []ModelInfo{
	{ID: "claude-sonnet-4-20250514", DisplayName: "Claude Sonnet 4", Provider: ProviderAnthropic},
	{ID: "claude-3-5-haiku-20241022", DisplayName: "Claude 3.5 Haiku", Provider: ProviderAnthropic},
	{ID: "claude-3-opus-20240229", DisplayName: "Claude 3 Opus", Provider: ProviderAnthropic},
	{ID: "gpt-4o", DisplayName: "GPT-4o", Provider: ProviderOpenAI},
	{ID: "gpt-4o-mini", DisplayName: "GPT-4o mini", Provider: ProviderOpenAI},
	{ID: "llama3.1", DisplayName: "Llama 3.1 (Ollama)", Provider: ProviderOllama},
}

// DefaultModel is the model preselected for new experiments.
const DefaultModel = "claude-sonnet-4-20250514"

// LookupModel returns the catalog entry for id.
func LookupModel(id string) (ModelInfo, bool) {
	for _, m := range ModelCatalog {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// RunParameters are the generation settings of a run.
//
// # Validation
//
// Uses go-playground/validator:
//   - Model: required, must be in ModelCatalog
//   - Temperature: 0.0 - 2.0
//   - MaxTokens: 100 - 4000
type RunParameters struct {
	Model       string  `json:"model" yaml:"model" validate:"required,knownmodel"`
	Temperature float64 `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" validate:"gte=100,lte=4000"`
}

// DefaultParameters returns the parameters preselected for new experiments.
func DefaultParameters() RunParameters {
	return RunParameters{
		Model:       DefaultModel,
		Temperature: 0.7,
		MaxTokens:   1000,
	}
}

// Validate checks the parameters against the catalog and bounds.
func (p RunParameters) Validate() error {
	return validate.Struct(p)
}
