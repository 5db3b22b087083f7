// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/PromptLab/services/llm"
	"github.com/AleutianAI/PromptLab/services/promptlab/lab"
	"github.com/AleutianAI/PromptLab/services/promptlab/observability"
	"github.com/AleutianAI/PromptLab/services/promptlab/runner"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSetupRoutes_RegistersAPI(t *testing.T) {
	reg := prometheus.NewRegistry()
	client := llm.ClientFunc(func(context.Context, llm.Request) (string, error) { return "ok", nil })
	l := lab.New(lab.Config{
		Runner:  runner.New(client, runner.Config{}),
		Metrics: observability.NewMetrics(reg),
	})

	router := gin.New()
	SetupRoutes(router, l, reg)

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"GET", "/v1/blocks"},
		{"GET", "/v1/models"},
		{"POST", "/v1/files"},
		{"GET", "/v1/export"},
		{"POST", "/v1/import"},
		{"GET", "/v1/experiments"},
		{"POST", "/v1/experiments"},
		{"GET", "/v1/experiments/:id"},
		{"DELETE", "/v1/experiments/:id"},
		{"POST", "/v1/experiments/:id/validate"},
		{"POST", "/v1/experiments/:id/runs"},
		{"PUT", "/v1/experiments/:id/fork"},
		{"POST", "/v1/experiments/:id/runs/:runId/evaluation"},
		{"POST", "/v1/experiments/:id/notes"},
		{"GET", "/v1/experiments/:id/compare"},
		{"GET", "/v1/experiments/:id/tree"},
		{"GET", "/v1/experiments/:id/runs/:runId/lineage"},
	}

	registered := router.Routes()
	for _, want := range expected {
		found := false
		for _, r := range registered {
			if r.Method == want.method && r.Path == want.path {
				found = true
				break
			}
		}
		assert.True(t, found, "route %s %s not registered", want.method, want.path)
	}
}

func TestSetupRoutes_MetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	m.RecordExperimentCreated()
	l := lab.New(lab.Config{Runner: runner.New(nil, runner.Config{}), Metrics: m})

	router := gin.New()
	SetupRoutes(router, l, reg)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "promptlab_lab_experiments_created_total 1")
}
