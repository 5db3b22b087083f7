// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	providerOllama       = "ollama"
	DefaultOllamaBaseURL = "http://localhost:11434"
)

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// OllamaConfig configures OllamaClient.
type OllamaConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// OllamaClient calls a local Ollama server's /api/generate endpoint.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewOllamaClient creates a client. No credentials are needed.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &OllamaClient{
		httpClient: defaultHTTPClient(cfg.Timeout),
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:     cfg.Logger,
	}
}

// Generate runs a non-streaming completion.
func (o *OllamaClient) Generate(ctx context.Context, req Request) (out string, err error) {
	ctx, span := startSpan(ctx, providerOllama, req)
	defer func() { endSpan(span, err) }()

	payload := ollamaGenerateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	o.logger.Debug("sending ollama request", "model", req.Model)
	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", transportError(providerOllama, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(providerOllama, err)
	}

	var genResp ollamaGenerateResponse
	decodeErr := json.Unmarshal(respBody, &genResp)

	if resp.StatusCode != http.StatusOK {
		msg := snippet(respBody)
		if decodeErr == nil && genResp.Error != "" {
			msg = genResp.Error
		}
		kind := kindFromStatus(resp.StatusCode)
		if resp.StatusCode == http.StatusNotFound {
			msg = fmt.Sprintf("model %q not found, run: ollama pull %s", req.Model, req.Model)
		}
		return "", &Error{Kind: kind, Provider: providerOllama, StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", &Error{Kind: KindUnknown, Provider: providerOllama, Message: "malformed response", Err: decodeErr}
	}
	return genResp.Response, nil
}

var _ Client = (*OllamaClient)(nil)
