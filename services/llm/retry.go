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
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

// RetryConfig configures RetryClient.
//
// # Fields
//
//   - MaxAttempts: Total tries including the first. 0 or 1 disables retry.
//   - InitialInterval, MaxInterval: Exponential backoff bounds.
//   - RequestsPerSecond: Client-side limit across all callers. 0 disables.
//   - Burst: Limiter burst. Defaults to 1.
type RetryConfig struct {
	MaxAttempts       uint
	InitialInterval   time.Duration
	MaxInterval       time.Duration
	RequestsPerSecond float64
	Burst             int
}

// DefaultRetryConfig retries rate-limit and overload failures three times.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialInterval:   500 * time.Millisecond,
		MaxInterval:       5 * time.Second,
		RequestsPerSecond: 2,
		Burst:             2,
	}
}

// RetryClient retries RateLimited and Overloaded failures with
// exponential backoff and throttles outgoing requests. Other failures are
// returned immediately.
type RetryClient struct {
	next    Client
	cfg     RetryConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRetryClient wraps next.
func NewRetryClient(next Client, cfg RetryConfig, logger *slog.Logger) *RetryClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &RetryClient{next: next, cfg: cfg, logger: logger}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// Generate calls the wrapped client, retrying retryable failures. The
// returned error is always *Error or nil.
func (c *RetryClient) Generate(ctx context.Context, req Request) (string, error) {
	attempt := 0
	op := func() (string, error) {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", backoff.Permanent(AsError("", err))
			}
		}
		out, err := c.next.Generate(ctx, req)
		if err == nil {
			return out, nil
		}
		le := AsError("", err)
		if !le.Retryable() {
			return "", backoff.Permanent(le)
		}
		return "", le
	}

	b := backoff.NewExponentialBackOff()
	if c.cfg.InitialInterval > 0 {
		b.InitialInterval = c.cfg.InitialInterval
	}
	if c.cfg.MaxInterval > 0 {
		b.MaxInterval = c.cfg.MaxInterval
	}

	maxTries := c.cfg.MaxAttempts
	if maxTries == 0 {
		maxTries = 1
	}

	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn("retrying generation",
				"model", req.Model,
				"attempt", attempt,
				"wait_ms", wait.Milliseconds(),
				"error", err.Error())
		}),
	)
	if err != nil {
		var pe *backoff.PermanentError
		if errors.As(err, &pe) {
			err = pe.Err
		}
		return "", AsError("", err)
	}
	return out, nil
}

var _ Client = (*RetryClient)(nil)
