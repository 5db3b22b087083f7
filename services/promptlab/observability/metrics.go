// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for PromptLab.
//
// # Description
//
// Metrics cover the iteration loop:
//   - runs by model and final status
//   - generation latency
//   - validator rejections by kind
//   - generation failures by kind
//   - persistence failures by operation
//   - runs currently in flight
//
// All record methods are nil-safe, so components can be constructed
// without metrics in tests.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "promptlab"
	labSubsystem     = "lab"
)

// Metrics holds the PromptLab collectors.
//
// # Fields
//
//   - RunsTotal: labels model, status (completed, failed).
//   - GenerationSeconds: labels model, status.
//   - ValidationRejectionsTotal: label kind.
//   - GenerationErrorsTotal: label kind (RateLimited, Timeout, ...).
//   - PersistenceErrorsTotal: label op (save, delete, import).
//   - RunsInFlight: gauge.
//   - ExperimentsCreatedTotal: counter.
type Metrics struct {
	RunsTotal                 *prometheus.CounterVec
	GenerationSeconds         *prometheus.HistogramVec
	ValidationRejectionsTotal *prometheus.CounterVec
	GenerationErrorsTotal     *prometheus.CounterVec
	PersistenceErrorsTotal    *prometheus.CounterVec
	RunsInFlight              prometheus.Gauge
	ExperimentsCreatedTotal   prometheus.Counter
}

// NewMetrics creates and registers the collectors with reg.
//
// # Inputs
//
//   - reg: Target registry. Use prometheus.DefaultRegisterer in the server
//     and prometheus.NewRegistry() in tests.
//
// # Limitations
//
//   - Panics if called twice with the same registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: labSubsystem,
				Name:      "runs_total",
				Help:      "Runs executed by model and final status",
			},
			[]string{"model", "status"},
		),
		GenerationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: labSubsystem,
				Name:      "generation_seconds",
				Help:      "Generation call latency in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
			},
			[]string{"model", "status"},
		),
		ValidationRejectionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: labSubsystem,
				Name:      "validation_rejections_total",
				Help:      "Candidates rejected by the change validator, by kind",
			},
			[]string{"kind"},
		),
		GenerationErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: labSubsystem,
				Name:      "generation_errors_total",
				Help:      "Generation failures by kind",
			},
			[]string{"kind"},
		),
		PersistenceErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: labSubsystem,
				Name:      "persistence_errors_total",
				Help:      "Store failures by operation; in-memory state stays authoritative",
			},
			[]string{"op"},
		),
		RunsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: labSubsystem,
				Name:      "runs_in_flight",
				Help:      "Generation calls currently executing",
			},
		),
		ExperimentsCreatedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: labSubsystem,
				Name:      "experiments_created_total",
				Help:      "Experiments created",
			},
		),
	}
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(model string, failed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "completed"
	if failed {
		status = "failed"
	}
	m.RunsTotal.WithLabelValues(model, status).Inc()
	m.GenerationSeconds.WithLabelValues(model, status).Observe(elapsed.Seconds())
}

// RecordRejection records a validator rejection.
func (m *Metrics) RecordRejection(kind string) {
	if m == nil {
		return
	}
	m.ValidationRejectionsTotal.WithLabelValues(kind).Inc()
}

// RecordGenerationError records a classified generation failure.
func (m *Metrics) RecordGenerationError(kind string) {
	if m == nil {
		return
	}
	m.GenerationErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordPersistenceError records a failed store operation.
func (m *Metrics) RecordPersistenceError(op string) {
	if m == nil {
		return
	}
	m.PersistenceErrorsTotal.WithLabelValues(op).Inc()
}

// RecordExperimentCreated increments the experiments counter.
func (m *Metrics) RecordExperimentCreated() {
	if m == nil {
		return
	}
	m.ExperimentsCreatedTotal.Inc()
}

// RunStarted increments the in-flight gauge.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunsInFlight.Inc()
}

// RunEnded decrements the in-flight gauge.
func (m *Metrics) RunEnded() {
	if m == nil {
		return
	}
	m.RunsInFlight.Dec()
}
