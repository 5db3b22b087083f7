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
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const providerOpenAI = "openai"

// OpenAIConfig configures OpenAIClient. BaseURL is optional and exists for
// OpenAI-compatible gateways and tests.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Logger  *slog.Logger
}

// OpenAIClient calls the chat completions API through go-openai.
type OpenAIClient struct {
	client *openai.Client
	logger *slog.Logger
}

// NewOpenAIClient creates a client. An empty APIKey is an AuthError.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &Error{Kind: KindAuthError, Provider: providerOpenAI, Message: "API key is missing"}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	oc := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(oc), logger: cfg.Logger}, nil
}

// Generate sends req as a single user message.
func (o *OpenAIClient) Generate(ctx context.Context, req Request) (out string, err error) {
	ctx, span := startSpan(ctx, providerOpenAI, req)
	defer func() { endSpan(span, err) }()

	chatReq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature:         float32(req.Temperature),
		MaxCompletionTokens: req.MaxTokens,
	}

	o.logger.Debug("sending openai request", "model", req.Model, "prompt_chars", len(req.Prompt))
	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", openAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindUnknown, Provider: providerOpenAI, Message: "response contained no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIError(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		kind := kindFromStatus(apiErr.HTTPStatusCode)
		if code, ok := apiErr.Code.(string); ok && code == "model_not_found" {
			kind = KindModelNotFound
		}
		return &Error{Kind: kind, Provider: providerOpenAI, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Kind: kindFromStatus(reqErr.HTTPStatusCode), Provider: providerOpenAI, StatusCode: reqErr.HTTPStatusCode, Message: err.Error(), Err: err}
	}
	return transportError(providerOpenAI, err)
}

var _ Client = (*OpenAIClient)(nil)
