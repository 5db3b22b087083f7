// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm is the generation adapter: it executes an assembled prompt
// against a model provider and returns text or a typed *Error.
//
// Provider clients (Anthropic, OpenAI, Ollama) each handle one wire
// protocol. Router dispatches by model id, and RetryClient adds retries
// and client-side rate limiting. Retry and fallback policy lives here, not
// in the iteration core.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("promptlab.llm")

// Request is one generation call.
type Request struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client executes a prompt and returns the model's text.
//
// Implementations return *Error for every provider-side failure so
// callers can switch on Kind.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f ClientFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// =============================================================================
// Errors
// =============================================================================

// ErrorKind classifies a generation failure.
type ErrorKind string

const (
	KindRateLimited   ErrorKind = "RateLimited"
	KindOverloaded    ErrorKind = "Overloaded"
	KindAuthError     ErrorKind = "AuthError"
	KindModelNotFound ErrorKind = "ModelNotFound"
	KindTimeout       ErrorKind = "Timeout"
	KindUnknown       ErrorKind = "Unknown"
)

// Error is a classified generation failure.
type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may succeed if sent again.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindOverloaded
}

// KindOf returns the kind of err, KindTimeout for context deadline errors,
// and KindUnknown otherwise.
func KindOf(err error) ErrorKind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// AsError converts any error into *Error. Context deadline errors become
// Timeout.
func AsError(provider string, err error) *Error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	return &Error{Kind: KindOf(err), Provider: provider, Message: err.Error(), Err: err}
}

// kindFromStatus maps an HTTP status from any provider to a kind.
func kindFromStatus(status int) ErrorKind {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case 529, http.StatusServiceUnavailable:
		return KindOverloaded
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuthError
	case http.StatusNotFound:
		return KindModelNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindUnknown
	}
}

// =============================================================================
// Helpers
// =============================================================================

func startSpan(ctx context.Context, provider string, req Request) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, provider+".Generate")
	span.SetAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", req.Model),
		attribute.Float64("llm.temperature", req.Temperature),
		attribute.Int("llm.max_tokens", req.MaxTokens),
		attribute.Int("llm.prompt_chars", len(req.Prompt)),
	)
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func defaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// snippet truncates a provider response body for error messages.
func snippet(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
