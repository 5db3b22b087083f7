// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Package routes registers the PromptLab HTTP API on a gin engine.
package routes

import (
	"github.com/AleutianAI/PromptLab/services/promptlab/handlers"
	"github.com/AleutianAI/PromptLab/services/promptlab/lab"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers every endpoint. gatherer backs /metrics; pass
// prometheus.DefaultGatherer in production.
func SetupRoutes(router *gin.Engine, l *lab.Lab, gatherer prometheus.Gatherer) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	{
		v1.GET("/blocks", handlers.ListBlocks)
		v1.GET("/models", handlers.ListModels)
		v1.POST("/files", handlers.UploadFile)
		v1.GET("/export", handlers.Export(l))
		v1.POST("/import", handlers.Import(l))

		experiments := v1.Group("/experiments")
		{
			experiments.GET("", handlers.ListExperiments(l))
			experiments.POST("", handlers.CreateExperiment(l))
			experiments.GET("/:id", handlers.GetExperiment(l))
			experiments.DELETE("/:id", handlers.DeleteExperiment(l))
			experiments.POST("/:id/validate", handlers.ValidateCandidate(l))
			experiments.POST("/:id/runs", handlers.CreateRun(l))
			experiments.PUT("/:id/fork", handlers.SelectFork(l))
			experiments.POST("/:id/runs/:runId/evaluation", handlers.EvaluateRun(l))
			experiments.POST("/:id/notes", handlers.AppendNote(l))
			experiments.GET("/:id/compare", handlers.CompareRuns(l))
			experiments.GET("/:id/tree", handlers.GetTree(l))
			experiments.GET("/:id/runs/:runId/lineage", handlers.GetLineage(l))
		}
	}
}
