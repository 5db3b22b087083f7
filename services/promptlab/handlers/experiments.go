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
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AleutianAI/PromptLab/services/promptlab/datatypes"
	"github.com/AleutianAI/PromptLab/services/promptlab/iteration"
	"github.com/AleutianAI/PromptLab/services/promptlab/lab"
	"github.com/gin-gonic/gin"
)

// ExperimentResponse is an experiment with its live iteration session.
type ExperimentResponse struct {
	Experiment datatypes.Experiment `json:"experiment"`
	Session    iteration.Session    `json:"session"`
}

// ForkRequest is the body of PUT /v1/experiments/:id/fork.
type ForkRequest struct {
	RunID string `json:"run_id" binding:"required"`
}

// NoteRequest is the body of POST /v1/experiments/:id/notes.
type NoteRequest struct {
	Text string `json:"text" binding:"required"`
}

// TreeResponse is the run forest plus its branch grouping.
type TreeResponse struct {
	Tree     []iteration.TreeNode `json:"tree"`
	Branches []iteration.Branch   `json:"branches"`
}

// LineageResponse is the path of runs from a root to the requested run.
type LineageResponse struct {
	Runs []datatypes.ExperimentRun `json:"runs"`
}

func experimentResponse(l *lab.Lab, exp datatypes.Experiment) (ExperimentResponse, error) {
	s, err := l.Session(exp.ID)
	if err != nil {
		return ExperimentResponse{}, err
	}
	return ExperimentResponse{Experiment: exp, Session: s}, nil
}

// ListExperiments returns every experiment, oldest first.
func ListExperiments(l *lab.Lab) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"experiments": l.List()})
	}
}

// CreateExperiment creates an experiment and executes its first run. The
// response is 201 even when the first generation failed; the failure is in
// the run.
func CreateExperiment(l *lab.Lab) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in lab.NewExperimentInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
		exp, err := l.CreateExperiment(c.Request.Context(), in)
		if err != nil {
			writeError(c, err)
			return
		}
		resp, err := experimentResponse(l, exp)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, resp)
	}
}

// GetExperiment returns an experiment and its session.
func GetExperiment(l *lab.Lab) gin.HandlerFunc {
	return func(c *gin.Context) {
		exp, err := l.Get(c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		resp, err := experimentResponse(l, exp)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// DeleteExperiment removes an experiment and all of its runs.
func DeleteExperiment(l *lab.Lab) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := l.Delete(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "experiment_id": id})
	}
}

// ValidateCandidate stores the posted candidate on the session and returns
// the recomputed baseline and validation. A rejected candidate is still a
// 200: the rejection is the answer.
func ValidateCandidate(l *lab.Lab) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cand iteration.Candidate
		if err := c.ShouldBindJSON(&cand); err != nil {
			badRequest(c, err)
			return
		}
		s, err := l.UpdateCandidate(c.Param("id"), cand)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// CreateRun runs the next iteration. An empty body runs the candidate
// already on the session.
func CreateRun(l *lab.Lab) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in lab.IterateInput
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&in); err != nil {
				badRequest(c, err)
				return
			}
		}
		run, err := l.Iterate(c.Request.Context(), c.Param("id"), in)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(statusForRun(run), run)
	}
}

// SelectFork moves the fork pointer.
func SelectFork(l *lab.Lab) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ForkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		s, err := l.SelectFork(c.Param("id"), req.RunID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// EvaluateRun records a rating for a run.
func EvaluateRun(l *lab.Lab) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ev datatypes.Evaluation
		if err := c.ShouldBindJSON(&ev); err != nil {
			badRequest(c, err)
			return
		}
		run, err := l.Evaluate(c.Request.Context(), c.Param("id"), c.Param("runId"), ev)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

// AppendNote adds a note to the experiment's log.
func AppendNote(l *lab.Lab) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req NoteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		note, err := l.AppendNote(c.Request.Context(), c.Param("id"), req.Text)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, note)
	}
}

// CompareRuns diffs ?left= against ?right=.
func CompareRuns(l *lab.Lab) gin.HandlerFunc {
	return func(c *gin.Context) {
		left, right := c.Query("left"), c.Query("right")
		if left == "" || right == "" {
			badRequest(c, errors.New("query parameters left and right are required"))
			return
		}
		cmp, err := l.Compare(c.Param("id"), left, right)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, cmp)
	}
}

// GetTree returns the run forest of an experiment.
func GetTree(l *lab.Lab) gin.HandlerFunc {
	return func(c *gin.Context) {
		tree, branches, err := l.Tree(c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, TreeResponse{Tree: tree, Branches: branches})
	}
}

// GetLineage returns the runs leading from the root to one run.
func GetLineage(l *lab.Lab) gin.HandlerFunc {
	return func(c *gin.Context) {
		runs, err := l.Lineage(c.Param("id"), c.Param("runId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, LineageResponse{Runs: runs})
	}
}

// Export streams every experiment as a versioned JSON envelope.
func Export(l *lab.Lab) gin.HandlerFunc {
	return func(c *gin.Context) {
		blob, err := l.Export()
		if err != nil {
			writeError(c, err)
			return
		}
		name := fmt.Sprintf("promptlab-export-%s.json", time.Now().UTC().Format("20060102-150405"))
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		c.Data(http.StatusOK, "application/json", blob)
	}
}

// Import accepts an export blob as the raw request body.
func Import(l *lab.Lab) gin.HandlerFunc {
	return func(c *gin.Context) {
		blob, err := c.GetRawData()
		if err != nil {
			badRequest(c, err)
			return
		}
		n, err := l.Import(c.Request.Context(), blob)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"imported": n})
	}
}
