// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package handlers

import (
	"net/http"

	"github.com/AleutianAI/PromptLab/services/promptlab/blocks"
	"github.com/AleutianAI/PromptLab/services/promptlab/datatypes"
	"github.com/gin-gonic/gin"
)

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListBlocks returns the block catalog in canonical order.
func ListBlocks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"blocks": blocks.Catalog()})
}

// ListModels returns the selectable models and the default parameters.
func ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models":   datatypes.ModelCatalog,
		"defaults": datatypes.DefaultParameters(),
		"limits": gin.H{
			"temperature": gin.H{"min": datatypes.MinTemperature, "max": datatypes.MaxTemperature},
			"max_tokens":  gin.H{"min": datatypes.MinMaxTokens, "max": datatypes.MaxMaxTokens},
		},
	})
}
