// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runner executes pending runs through the generation adapter.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/PromptLab/services/llm"
	"github.com/AleutianAI/PromptLab/services/promptlab/datatypes"
	"github.com/AleutianAI/PromptLab/services/promptlab/files"
	"github.com/AleutianAI/PromptLab/services/promptlab/observability"
	"golang.org/x/sync/semaphore"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 30 * time.Second

// ErrRunInFlight is returned by Acquire when the experiment already has a
// run executing.
var ErrRunInFlight = errors.New("a run is already in progress for this experiment")

// Config configures a Runner.
type Config struct {
	Timeout time.Duration
	Metrics *observability.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Runner executes runs and serializes execution per experiment.
//
// # Description
//
// Each generation call is raced against Timeout. When the timeout wins the
// run is recorded as a Timeout failure and the late result, if any, is
// discarded. Failures never abort: the returned run always carries either
// the model output or an error marker, so it can be appended to history.
//
// # Thread Safety
//
// Safe for concurrent use.
type Runner struct {
	client  llm.Client
	timeout time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	slots map[string]*semaphore.Weighted
}

// New creates a Runner over client.
func New(client llm.Client, cfg Config) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{
		client:  client,
		timeout: cfg.Timeout,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		now:     cfg.Now,
		slots:   make(map[string]*semaphore.Weighted),
	}
}

// Acquire reserves the experiment's single execution slot. The caller must
// call release exactly once.
func (r *Runner) Acquire(experimentID string) (release func(), err error) {
	r.mu.Lock()
	sem, ok := r.slots[experimentID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		r.slots[experimentID] = sem
	}
	r.mu.Unlock()

	if !sem.TryAcquire(1) {
		return nil, ErrRunInFlight
	}
	var once sync.Once
	return func() { once.Do(func() { sem.Release(1) }) }, nil
}

// Forget drops the slot of a deleted experiment.
func (r *Runner) Forget(experimentID string) {
	r.mu.Lock()
	delete(r.slots, experimentID)
	r.mu.Unlock()
}

type result struct {
	text string
	err  error
}

// Execute sends run to the model and returns it with Output, Error, Status
// and DurationMillis filled in. The input is not modified.
//
// The provider call runs under the runner's timeout. When the timeout wins,
// the call's context is cancelled so the HTTP request is torn down instead
// of finishing in the background; a late result is discarded either way.
func (r *Runner) Execute(ctx context.Context, run datatypes.ExperimentRun) datatypes.ExperimentRun {
	req := llm.Request{
		Prompt:      files.WrapContext(run.AttachedFiles, run.Prompt),
		Model:       run.Parameters.Model,
		Temperature: run.Parameters.Temperature,
		MaxTokens:   run.Parameters.MaxTokens,
	}

	r.metrics.RunStarted()
	defer r.metrics.RunEnded()

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := r.now()
	done := make(chan result, 1)
	go func() {
		text, err := r.client.Generate(callCtx, req)
		done <- result{text: text, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = result{err: timeoutError(ctx, callCtx)}
	}
	elapsed := r.now().Sub(start)

	out := run
	out.DurationMillis = elapsed.Milliseconds()
	if res.err != nil {
		le := llm.AsError("", res.err)
		out.Status = datatypes.RunStatusFailed
		out.Error = string(le.Kind)
		out.Output = datatypes.ErrorOutputPrefix + le.Error()
		r.metrics.RecordGenerationError(string(le.Kind))
		r.logger.Warn("generation failed",
			"run_id", run.ID,
			"model", req.Model,
			"kind", le.Kind,
			"duration_ms", out.DurationMillis)
	} else {
		out.Status = datatypes.RunStatusCompleted
		out.Error = ""
		out.Output = res.text
		r.logger.Info("generation completed",
			"run_id", run.ID,
			"model", req.Model,
			"output_chars", len(res.text),
			"duration_ms", out.DurationMillis)
	}
	r.metrics.RecordRun(req.Model, res.err != nil, elapsed)
	return out
}

// timeoutError explains why callCtx ended: the caller's own cancellation
// or the runner's deadline.
func timeoutError(parent, callCtx context.Context) error {
	if err := parent.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return &llm.Error{Kind: llm.KindUnknown, Message: "run cancelled", Err: err}
	}
	return &llm.Error{Kind: llm.KindTimeout, Message: "generation timed out", Err: callCtx.Err()}
}
