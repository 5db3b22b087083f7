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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicAPIVersion     = "2023-06-01"
	DefaultAnthropicBaseURL = "https://api.anthropic.com/v1/messages"
	providerAnthropic       = "anthropic"
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Error      *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicConfig configures AnthropicClient.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// AnthropicClient calls the Anthropic Messages API over plain HTTP.
type AnthropicClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	logger     *slog.Logger
}

// NewAnthropicClient creates a client. An empty APIKey is an AuthError.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &Error{Kind: KindAuthError, Provider: providerAnthropic, Message: "API key is missing"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAnthropicBaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AnthropicClient{
		httpClient: defaultHTTPClient(cfg.Timeout),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    cfg.BaseURL,
		logger:     cfg.Logger,
	}, nil
}

// Generate sends req as a single user message.
func (a *AnthropicClient) Generate(ctx context.Context, req Request) (out string, err error) {
	ctx, span := startSpan(ctx, providerAnthropic, req)
	defer func() { endSpan(span, err) }()

	temp := req.Temperature
	payload := anthropicRequest{
		Model:       req.Model,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: &temp,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create anthropic request: %w", err)
	}
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	httpReq.Header.Set("content-type", "application/json")

	a.logger.Debug("sending anthropic request", "model", req.Model, "prompt_chars", len(req.Prompt))

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", transportError(providerAnthropic, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(providerAnthropic, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", anthropicStatusError(resp.StatusCode, respBody)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", &Error{Kind: KindUnknown, Provider: providerAnthropic, Message: "malformed response", Err: err}
	}
	if apiResp.Error != nil {
		return "", &Error{Kind: anthropicErrorKind(apiResp.Error.Type, resp.StatusCode), Provider: providerAnthropic, Message: apiResp.Error.Message}
	}

	var sb strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &Error{Kind: KindUnknown, Provider: providerAnthropic, Message: "response contained no text"}
	}
	return sb.String(), nil
}

func anthropicStatusError(status int, body []byte) *Error {
	var envelope struct {
		Error anthropicError `json:"error"`
	}
	msg := snippet(body)
	errType := ""
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
		errType = envelope.Error.Type
	}
	return &Error{
		Kind:       anthropicErrorKind(errType, status),
		Provider:   providerAnthropic,
		StatusCode: status,
		Message:    msg,
	}
}

// anthropicErrorKind prefers the typed error over the status code.
func anthropicErrorKind(errType string, status int) ErrorKind {
	switch errType {
	case "rate_limit_error":
		return KindRateLimited
	case "overloaded_error":
		return KindOverloaded
	case "authentication_error", "permission_error":
		return KindAuthError
	case "not_found_error":
		return KindModelNotFound
	}
	return kindFromStatus(status)
}

// transportError classifies a failed round trip.
func transportError(provider string, err error) *Error {
	kind := KindUnknown
	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Provider: provider, Message: err.Error(), Err: err}
}

var _ Client = (*AnthropicClient)(nil)
