// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Package handlers implements the PromptLab HTTP API on gin.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/PromptLab/services/llm"
	"github.com/AleutianAI/PromptLab/services/promptlab/datatypes"
	"github.com/AleutianAI/PromptLab/services/promptlab/files"
	"github.com/AleutianAI/PromptLab/services/promptlab/iteration"
	"github.com/AleutianAI/PromptLab/services/promptlab/lab"
	"github.com/AleutianAI/PromptLab/services/promptlab/runner"
	"github.com/AleutianAI/PromptLab/services/promptlab/store"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps a service error to an HTTP status and kind.
//
//	DuplicateTitle              409
//	other validation rejections 422
//	run in flight               409
//	not found                   404
//	bad input / import / file   400
//	anything else               500
func statusFor(err error) (int, string) {
	var verr *iteration.ValidationError
	switch {
	case errors.As(err, &verr):
		if verr.Kind == iteration.KindDuplicateTitle {
			return http.StatusConflict, string(verr.Kind)
		}
		return http.StatusUnprocessableEntity, string(verr.Kind)
	case errors.Is(err, runner.ErrRunInFlight):
		return http.StatusConflict, "run_in_flight"
	case errors.Is(err, lab.ErrExperimentNotFound), errors.Is(err, iteration.ErrRunNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, iteration.ErrTitleRequired),
		errors.Is(err, lab.ErrInvalidInput),
		errors.Is(err, store.ErrInvalidImport),
		errors.Is(err, files.ErrEmptyName),
		errors.Is(err, files.ErrTooLarge),
		errors.Is(err, files.ErrUnsupported):
		return http.StatusBadRequest, "invalid_input"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(c *gin.Context, err error) {
	status, kind := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, ErrorResponse{Error: "internal error", Kind: kind})
		return
	}
	slog.Debug("request rejected", "path", c.FullPath(), "status", status, "error", err)
	c.JSON(status, ErrorResponse{Error: err.Error(), Kind: kind})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "invalid_input"})
}

// statusForRun picks the response status of an executed run. A failed
// generation is still a recorded run, so the body is the run either way;
// the status tells the client the provider failed.
//
//	completed      201
//	RateLimited    429
//	Timeout        504
//	other failure  502
func statusForRun(run datatypes.ExperimentRun) int {
	if !run.Failed() {
		return http.StatusCreated
	}
	switch llm.ErrorKind(run.Error) {
	case llm.KindRateLimited:
		return http.StatusTooManyRequests
	case llm.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
