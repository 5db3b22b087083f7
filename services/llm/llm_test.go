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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() Request {
	return Request{Prompt: "Task:\nSay hi", Model: "m", Temperature: 0.5, MaxTokens: 200}
}

// =============================================================================
// Anthropic
// =============================================================================

func TestAnthropicClient_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))

		var body anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "m", body.Model)
		assert.Equal(t, 200, body.MaxTokens)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "Task:\nSay hi", body.Messages[0].Content)

		_, _ = w.Write([]byte(`{"id":"msg_1","content":[{"type":"text","text":"Hi"},{"type":"text","text":" there"}]}`))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient(AnthropicConfig{APIKey: "secret", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Hi there", out)
}

func TestAnthropicClient_ErrorKinds(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   ErrorKind
	}{
		{429, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`, KindRateLimited},
		{529, `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`, KindOverloaded},
		{401, `{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`, KindAuthError},
		{404, `{"type":"error","error":{"type":"not_found_error","message":"model: x"}}`, KindModelNotFound},
		{500, `oops`, KindUnknown},
		{403, ``, KindAuthError},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
			require.NoError(t, err)
			_, err = c.Generate(context.Background(), testRequest())

			var le *Error
			require.True(t, errors.As(err, &le))
			assert.Equal(t, tt.want, le.Kind)
			assert.Equal(t, tt.status, le.StatusCode)
		})
	}
}

func TestAnthropicClient_MissingKey(t *testing.T) {
	_, err := NewAnthropicClient(AnthropicConfig{APIKey: "  "})
	assert.Equal(t, KindAuthError, KindOf(err))
}

func TestAnthropicClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Generate(ctx, testRequest())
	assert.Equal(t, KindTimeout, KindOf(err))
}

// =============================================================================
// OpenAI
// =============================================================================

func TestOpenAIClient_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hello"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)
}

func TestOpenAIClient_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), testRequest())
	assert.Equal(t, KindRateLimited, KindOf(err))
}

// =============================================================================
// Ollama
// =============================================================================

func TestOllamaClient_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var body ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.False(t, body.Stream)
		assert.EqualValues(t, 200, body.Options["num_predict"])
		_, _ = w.Write([]byte(`{"model":"m","response":"ok","done":true}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(OllamaConfig{BaseURL: srv.URL + "/"})
	out, err := c.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestOllamaClient_ModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'm' not found"}`))
	}))
	defer srv.Close()

	_, err := NewOllamaClient(OllamaConfig{BaseURL: srv.URL}).Generate(context.Background(), testRequest())
	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, KindModelNotFound, le.Kind)
	assert.Contains(t, le.Message, "ollama pull m")
}

// =============================================================================
// Router
// =============================================================================

func TestRouter(t *testing.T) {
	r := NewRouter(func(model string) (string, bool) {
		switch model {
		case "a-model":
			return "a", true
		case "b-model":
			return "b", true
		}
		return "", false
	})
	r.Register("a", ClientFunc(func(ctx context.Context, req Request) (string, error) {
		return "from a", nil
	}))

	out, err := r.Generate(context.Background(), Request{Model: "a-model"})
	require.NoError(t, err)
	assert.Equal(t, "from a", out)

	_, err = r.Generate(context.Background(), Request{Model: "b-model"})
	assert.Equal(t, KindAuthError, KindOf(err))

	_, err = r.Generate(context.Background(), Request{Model: "zzz"})
	assert.Equal(t, KindModelNotFound, KindOf(err))

	assert.Equal(t, []string{"a"}, r.Providers())
}

// =============================================================================
// Retry
// =============================================================================

func fastRetry(attempts uint) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetryClient_RetriesRetryable(t *testing.T) {
	var calls atomic.Int32
	next := ClientFunc(func(ctx context.Context, req Request) (string, error) {
		if calls.Add(1) < 3 {
			return "", &Error{Kind: KindOverloaded, Message: "busy"}
		}
		return "done", nil
	})

	out, err := NewRetryClient(next, fastRetry(3), nil).Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRetryClient_GivesUp(t *testing.T) {
	var calls atomic.Int32
	next := ClientFunc(func(ctx context.Context, req Request) (string, error) {
		calls.Add(1)
		return "", &Error{Kind: KindRateLimited, Message: "slow down"}
	})

	_, err := NewRetryClient(next, fastRetry(2), nil).Generate(context.Background(), testRequest())
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.EqualValues(t, 2, calls.Load())
}

func TestRetryClient_NoRetryOnPermanent(t *testing.T) {
	var calls atomic.Int32
	next := ClientFunc(func(ctx context.Context, req Request) (string, error) {
		calls.Add(1)
		return "", &Error{Kind: KindAuthError, Message: "bad key"}
	})

	_, err := NewRetryClient(next, fastRetry(5), nil).Generate(context.Background(), testRequest())
	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, KindAuthError, le.Kind)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRetryClient_PlainErrorBecomesUnknown(t *testing.T) {
	next := ClientFunc(func(ctx context.Context, req Request) (string, error) {
		return "", errors.New("boom")
	})
	_, err := NewRetryClient(next, fastRetry(3), nil).Generate(context.Background(), testRequest())
	assert.Equal(t, KindUnknown, KindOf(err))
	assert.Contains(t, err.Error(), "boom")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindUnknown, KindOf(errors.New("x")))
	assert.True(t, (&Error{Kind: KindRateLimited}).Retryable())
	assert.False(t, (&Error{Kind: KindTimeout}).Retryable())
	assert.Nil(t, AsError("p", nil))
}
