// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lab

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/PromptLab/services/llm"
	"github.com/AleutianAI/PromptLab/services/promptlab/blocks"
	"github.com/AleutianAI/PromptLab/services/promptlab/datatypes"
	"github.com/AleutianAI/PromptLab/services/promptlab/iteration"
	"github.com/AleutianAI/PromptLab/services/promptlab/observability"
	"github.com/AleutianAI/PromptLab/services/promptlab/runner"
	"github.com/AleutianAI/PromptLab/services/promptlab/storage/badger"
	"github.com/AleutianAI/PromptLab/services/promptlab/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Helpers
// =============================================================================

type fixture struct {
	lab     *Lab
	store   store.ExperimentStore
	metrics *observability.Metrics
}

func echoClient() llm.Client {
	return llm.ClientFunc(func(_ context.Context, req llm.Request) (string, error) {
		return fmt.Sprintf("out(%s,%g)", req.Model, req.Temperature), nil
	})
}

func sequence(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%04d", prefix, n)
	}
}

func ticking() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newFixture(t *testing.T, client llm.Client, st store.ExperimentStore) fixture {
	t.Helper()
	if st == nil {
		s, err := store.OpenBadgerStore(badger.InMemoryConfig(), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		st = s
	}
	m := observability.NewMetrics(prometheus.NewRegistry())
	l := New(Config{
		Store:   st,
		Runner:  runner.New(client, runner.Config{Metrics: m, Timeout: 2 * time.Second}),
		Metrics: m,
		Now:     ticking(),
		NewID:   sequence("id"),
	})
	return fixture{lab: l, store: st, metrics: m}
}

func newInput(title string) NewExperimentInput {
	return NewExperimentInput{
		Title:      title,
		Hypothesis: "Lower temperature gives tighter summaries",
		Blocks: []datatypes.BlockState{
			{ID: blocks.TaskID, Content: "Summarize the article."},
			{ID: blocks.ContextID, Content: "The reader is an executive."},
		},
		Parameters: datatypes.DefaultParameters(),
	}
}

func editBlock(c iteration.Candidate, id, content string) iteration.Candidate {
	c.Blocks = datatypes.CloneBlocks(c.Blocks)
	for i := range c.Blocks {
		if c.Blocks[i].ID == id {
			c.Blocks[i].Content = content
		}
	}
	return c
}

func currentCandidate(t *testing.T, l *Lab, id string) iteration.Candidate {
	t.Helper()
	s, err := l.Session(id)
	require.NoError(t, err)
	return s.Candidate
}

// =============================================================================
// CreateExperiment
// =============================================================================

func TestCreateExperiment_ExecutesFirstRun(t *testing.T) {
	f := newFixture(t, echoClient(), nil)
	ctx := context.Background()

	exp, err := f.lab.CreateExperiment(ctx, newInput("  Summaries  "))
	require.NoError(t, err)

	assert.Equal(t, "Summaries", exp.Title)
	assert.Equal(t, iteration.RootVersion, exp.Version)
	assert.Equal(t, "Summarize the article.", exp.BlockContent[blocks.TaskID])
	require.Len(t, exp.Runs, 1)

	run := exp.Runs[0]
	assert.Equal(t, datatypes.RunStatusCompleted, run.Status)
	assert.Equal(t, "out(claude-sonnet-4-20250514,0.7)", run.Output)
	assert.Equal(t, "Main", run.BranchName)
	assert.Equal(t, iteration.RootChangeDescription, run.ChangeDescription)
	assert.Empty(t, run.ParentRunID)
	assert.Equal(t, "Task:\nSummarize the article.\n\nContext:\nThe reader is an executive.", run.Prompt)

	s, err := f.lab.Session(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, s.ForkRunID)
	assert.Equal(t, iteration.PhaseEvaluation, s.Phase)
	assert.Equal(t, iteration.KindNoChanges, s.Validation.Kind)

	stored, err := f.store.Get(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, exp.Runs[0].Output, stored.Runs[0].Output)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ExperimentsCreatedTotal))
}

func TestCreateExperiment_DuplicateTitle(t *testing.T) {
	f := newFixture(t, echoClient(), nil)
	ctx := context.Background()

	_, err := f.lab.CreateExperiment(ctx, newInput(" test "))
	require.NoError(t, err)

	_, err = f.lab.CreateExperiment(ctx, newInput("Test"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, iteration.ErrDuplicateTitle))
	assert.Len(t, f.lab.List(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ValidationRejectionsTotal.WithLabelValues(string(iteration.KindDuplicateTitle))))
}

func TestCreateExperiment_InvalidInput(t *testing.T) {
	f := newFixture(t, echoClient(), nil)
	ctx := context.Background()

	_, err := f.lab.CreateExperiment(ctx, newInput("   "))
	assert.ErrorIs(t, err, iteration.ErrTitleRequired)

	noTask := newInput("no task")
	noTask.Blocks = []datatypes.BlockState{{ID: blocks.ToneID, Content: "Friendly"}}
	_, err = f.lab.CreateExperiment(ctx, noTask)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "Task")

	badParams := newInput("bad params")
	badParams.Parameters.Temperature = 3
	_, err = f.lab.CreateExperiment(ctx, badParams)
	assert.ErrorIs(t, err, ErrInvalidInput)

	unknown := newInput("unknown block")
	unknown.Blocks = append(unknown.Blocks, datatypes.BlockState{ID: "audience", Content: "x"})
	_, err = f.lab.CreateExperiment(ctx, unknown)
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Empty(t, f.lab.List())
}

func TestCreateExperiment_ChildVersionsAreMonotonic(t *testing.T) {
	f := newFixture(t, echoClient(), nil)
	ctx := context.Background()

	parent, err := f.lab.CreateExperiment(ctx, newInput("parent"))
	require.NoError(t, err)

	child := func(title string) datatypes.Experiment {
		in := newInput(title)
		in.ParentExperimentID = parent.ID
		exp, err := f.lab.CreateExperiment(ctx, in)
		require.NoError(t, err)
		return exp
	}

	c1 := child("child one")
	c2 := child("child two")
	assert.Equal(t, "v2", c1.Version)
	assert.Equal(t, "v3", c2.Version)
	assert.Equal(t, parent.ID, c2.ParentVersion)

	require.NoError(t, f.lab.Delete(ctx, c2.ID))
	c3 := child("child three")
	assert.Equal(t, "v4", c3.Version, "deleting a sibling never frees its label")

	p, err := f.lab.Get(parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, p.ChildCount)

	stored, err := f.store.Get(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.ChildCount)

	orphan := newInput("orphan")
	orphan.ParentExperimentID = "missing"
	_, err = f.lab.CreateExperiment(ctx, orphan)
	assert.ErrorIs(t, err, ErrExperimentNotFound)
}

// =============================================================================
// Iterate
// =============================================================================

func TestIterate_SingleParameterChange(t *testing.T) {
	f := newFixture(t, echoClient(), nil)
	ctx := context.Background()

	exp, err := f.lab.CreateExperiment(ctx, newInput("temperature"))
	require.NoError(t, err)
	root := exp.Runs[0]

	c := currentCandidate(t, f.lab, exp.ID)
	c.Parameters.Temperature = 0.9
	run, err := f.lab.Iterate(ctx, exp.ID, IterateInput{Candidate: &c})
	require.NoError(t, err)

	assert.Equal(t, root.ID, run.ParentRunID)
	assert.Equal(t, "Temperature: 0.7 → 0.9", run.ChangeDescription)
	assert.Equal(t, "Iteration 1", run.BranchName)
	assert.Equal(t, datatypes.RunStatusCompleted, run.Status)
	assert.Equal(t, "out(claude-sonnet-4-20250514,0.9)", run.Output)

	s, err := f.lab.Session(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, s.ForkRunID)
	assert.Equal(t, 0.9, s.Candidate.Parameters.Temperature)
	assert.False(t, s.Validation.Allowed)

	got, err := f.lab.Get(exp.ID)
	require.NoError(t, err)
	assert.Len(t, got.Runs, 2)
}

func TestIterate_Rejections(t *testing.T) {
	f := newFixture(t, echoClient(), nil)
	ctx := context.Background()

	exp, err := f.lab.CreateExperiment(ctx, newInput("rejections"))
	require.NoError(t, err)
	base := currentCandidate(t, f.lab, exp.ID)

	twoParams := base
	twoParams.Parameters.Temperature = 0.9
	twoParams.Parameters.MaxTokens = 1500

	twoBlocks := editBlock(editBlock(base, blocks.TaskID, "Summarize briefly."), blocks.ContextID, "The reader is a student.")

	mixed := editBlock(base, blocks.TaskID, "Summarize briefly.")
	mixed.Parameters.Temperature = 0.2

	cleared := editBlock(base, blocks.ContextID, "")

	tests := []struct {
		name string
		c    iteration.Candidate
		want error
	}{
		{"no changes", base, iteration.ErrNoChanges},
		{"two parameters", twoParams, iteration.ErrTooManyParameterChanges},
		{"two blocks", twoBlocks, iteration.ErrTooManyBlockChanges},
		{"parameter and block", mixed, iteration.ErrMixedChanges},
		{"clearing a block", cleared, iteration.ErrNoChanges},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.c
			_, err := f.lab.Iterate(ctx, exp.ID, IterateInput{Candidate: &c})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	got, err := f.lab.Get(exp.ID)
	require.NoError(t, err)
	assert.Len(t, got.Runs, 1, "rejected candidates never create runs")
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ValidationRejectionsTotal.WithLabelValues(string(iteration.KindNoChanges))))
}

func TestIterate_UsesStoredCandidate(t *testing.T) {
	f := newFixture(t, echoClient(), nil)
	ctx := context.Background()

	exp, err := f.lab.CreateExperiment(ctx, newInput("stored candidate"))
	require.NoError(t, err)

	c := editBlock(currentCandidate(t, f.lab, exp.ID), blocks.TaskID, "Summarize in three bullets.")
	s, err := f.lab.UpdateCandidate(exp.ID, c)
	require.NoError(t, err)
	assert.True(t, s.Validation.Allowed)
	assert.Equal(t, iteration.PhaseIteration, s.Phase)
	assert.Equal(t, []string{"Task block modified"}, s.Validation.Changes)

	run, err := f.lab.Iterate(ctx, exp.ID, IterateInput{BranchName: "bullets"})
	require.NoError(t, err)
	assert.Equal(t, "bullets", run.BranchName)
	assert.Equal(t, "Task block modified", run.ChangeDescription)
	assert.Contains(t, run.Prompt, "Summarize in three bullets.")
}

func TestIterate_ForkFromEarlierRun(t *testing.T) {
	f := newFixture(t, echoClient(), nil)
	ctx := context.Background()

	exp, err := f.lab.CreateExperiment(ctx, newInput("forks"))
	require.NoError(t, err)
	root := exp.Runs[0]

	c := currentCandidate(t, f.lab, exp.ID)
	c.Parameters.Temperature = 0.9
	_, err = f.lab.Iterate(ctx, exp.ID, IterateInput{Candidate: &c})
	require.NoError(t, err)

	_, err = f.lab.SelectFork(exp.ID, "nope")
	assert.ErrorIs(t, err, iteration.ErrRunNotFound)

	s, err := f.lab.SelectFork(exp.ID, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.7, s.Candidate.Parameters.Temperature, "candidate resets to the fork's content")

	c = s.Candidate
	c.Parameters.MaxTokens = 1500
	run, err := f.lab.Iterate(ctx, exp.ID, IterateInput{Candidate: &c})
	require.NoError(t, err)
	assert.Equal(t, root.ID, run.ParentRunID)
	assert.Equal(t, "Max Tokens: 1000 → 1500", run.ChangeDescription)

	tree, branches, err := f.lab.Tree(exp.ID)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Len(t, tree[0].Children, 2)
	assert.Len(t, branches, 3)

	path, err := f.lab.Lineage(exp.ID, run.ID)
	require.NoError(t, err)
	require.Len(t, path, 2)
	assert.Equal(t, root.ID, path[0].ID)
	assert.Equal(t, run.ID, path[1].ID)

	_, err = f.lab.Lineage(exp.ID, "nope")
	assert.ErrorIs(t, err, iteration.ErrRunNotFound)
	_, err = f.lab.Lineage("missing", root.ID)
	assert.ErrorIs(t, err, ErrExperimentNotFound)
}

func TestIterate_GenerationFailureIsRecorded(t *testing.T) {
	calls := 0
	client := llm.ClientFunc(func(context.Context, llm.Request) (string, error) {
		calls++
		if calls == 1 {
			return "ok", nil
		}
		return "", &llm.Error{Kind: llm.KindRateLimited, Provider: "anthropic", StatusCode: 429, Message: "slow down"}
	})
	f := newFixture(t, client, nil)
	ctx := context.Background()

	exp, err := f.lab.CreateExperiment(ctx, newInput("failures"))
	require.NoError(t, err)

	c := currentCandidate(t, f.lab, exp.ID)
	c.Parameters.Temperature = 1.2
	run, err := f.lab.Iterate(ctx, exp.ID, IterateInput{Candidate: &c})
	require.NoError(t, err)

	assert.Equal(t, datatypes.RunStatusFailed, run.Status)
	assert.Equal(t, string(llm.KindRateLimited), run.Error)
	assert.True(t, strings.HasPrefix(run.Output, datatypes.ErrorOutputPrefix))

	got, err := f.lab.Get(exp.ID)
	require.NoError(t, err)
	require.Len(t, got.Runs, 2, "failed runs stay in history")
	assert.True(t, got.Runs[1].Failed())
}

func TestIterate_OneRunInFlightPerExperiment(t *testing.T) {
	started := make(chan struct{}, 1)
	unblock := make(chan struct{})
	first := true
	var mu sync.Mutex
	client := llm.ClientFunc(func(ctx context.Context, _ llm.Request) (string, error) {
		mu.Lock()
		wait := !first
		first = false
		mu.Unlock()
		if wait {
			started <- struct{}{}
			select {
			case <-unblock:
			case <-ctx.Done():
			}
		}
		return "done", nil
	})
	f := newFixture(t, client, nil)
	ctx := context.Background()

	exp, err := f.lab.CreateExperiment(ctx, newInput("in flight"))
	require.NoError(t, err)

	c := currentCandidate(t, f.lab, exp.ID)
	c.Parameters.Temperature = 0.9
	done := make(chan error, 1)
	go func() {
		_, err := f.lab.Iterate(ctx, exp.ID, IterateInput{Candidate: &c})
		done <- err
	}()
	<-started

	s, err := f.lab.Session(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, iteration.PhaseLoading, s.Phase)

	second := c
	second.Parameters.Temperature = 1.1
	_, err = f.lab.Iterate(ctx, exp.ID, IterateInput{Candidate: &second})
	assert.ErrorIs(t, err, runner.ErrRunInFlight)

	// Edits made mid-run would be overwritten by the finished run.
	_, err = f.lab.UpdateCandidate(exp.ID, editBlock(second, blocks.TaskID, "Edited mid-run."))
	assert.ErrorIs(t, err, runner.ErrRunInFlight)
	_, err = f.lab.SelectFork(exp.ID, exp.Runs[0].ID)
	assert.ErrorIs(t, err, runner.ErrRunInFlight)

	close(unblock)
	require.NoError(t, <-done)

	got, err := f.lab.Get(exp.ID)
	require.NoError(t, err)
	assert.Len(t, got.Runs, 2)

	s, err = f.lab.Session(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, iteration.PhaseEvaluation, s.Phase)
	assert.Equal(t, got.Runs[1].ID, s.ForkRunID)

	edited, err := f.lab.UpdateCandidate(exp.ID, editBlock(s.Candidate, blocks.TaskID, "Edited after the run."))
	require.NoError(t, err)
	assert.Equal(t, "Edited after the run.", datatypes.BlockContentMap(edited.Candidate.Blocks)[blocks.TaskID])
}

// =============================================================================
// Evaluation, Notes, Compare
// =============================================================================

func TestEvaluateAndNotes(t *testing.T) {
	f := newFixture(t, echoClient(), nil)
	ctx := context.Background()

	exp, err := f.lab.CreateExperiment(ctx, newInput("evaluated"))
	require.NoError(t, err)
	runID := exp.Runs[0].ID

	_, err = f.lab.Evaluate(ctx, exp.ID, runID, datatypes.Evaluation{Rating: 9})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.lab.Evaluate(ctx, exp.ID, "missing", datatypes.Evaluation{Rating: 3})
	assert.ErrorIs(t, err, iteration.ErrRunNotFound)

	run, err := f.lab.Evaluate(ctx, exp.ID, runID, datatypes.Evaluation{Rating: 4, Notes: " concise "})
	require.NoError(t, err)
	require.NotNil(t, run.Evaluation)
	assert.Equal(t, 4, run.Evaluation.Rating)
	assert.Equal(t, "concise", run.Evaluation.Notes)
	assert.False(t, run.Evaluation.EvaluatedAt.IsZero())

	_, err = f.lab.AppendNote(ctx, exp.ID, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	note, err := f.lab.AppendNote(ctx, exp.ID, "Context block matters more than tone.")
	require.NoError(t, err)
	assert.Equal(t, "Context block matters more than tone.", note.Text)

	stored, err := f.store.Get(ctx, exp.ID)
	require.NoError(t, err)
	require.Len(t, stored.Notes, 1)
	require.NotNil(t, stored.Runs[0].Evaluation)
}

func TestCompare(t *testing.T) {
	f := newFixture(t, echoClient(), nil)
	ctx := context.Background()

	exp, err := f.lab.CreateExperiment(ctx, newInput("compared"))
	require.NoError(t, err)
	c := currentCandidate(t, f.lab, exp.ID)
	c.Parameters.Temperature = 0.9
	run, err := f.lab.Iterate(ctx, exp.ID, IterateInput{Candidate: &c})
	require.NoError(t, err)

	cmp, err := f.lab.Compare(exp.ID, exp.Runs[0].ID, run.ID)
	require.NoError(t, err)
	assert.True(t, cmp.Attributable)
	assert.Equal(t, []string{"Temperature: 0.7 → 0.9"}, cmp.ParameterChanges)

	_, err = f.lab.Compare(exp.ID, exp.Runs[0].ID, "missing")
	assert.ErrorIs(t, err, iteration.ErrRunNotFound)
	_, err = f.lab.Compare("missing", "a", "b")
	assert.ErrorIs(t, err, ErrExperimentNotFound)
}

// =============================================================================
// Persistence
// =============================================================================

func TestLoad_HydratesFromStore(t *testing.T) {
	st, err := store.OpenBadgerStore(badger.InMemoryConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()

	first := newFixture(t, echoClient(), st)
	exp, err := first.lab.CreateExperiment(ctx, newInput("persisted"))
	require.NoError(t, err)

	second := newFixture(t, echoClient(), st)
	require.NoError(t, second.lab.Load(ctx))

	got, err := second.lab.Get(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, exp.Title, got.Title)

	s, err := second.lab.Session(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, exp.Runs[0].ID, s.ForkRunID)

	_, err = second.lab.CreateExperiment(ctx, newInput("PERSISTED"))
	assert.ErrorIs(t, err, iteration.ErrDuplicateTitle)
}

func TestLoad_LabelsLegacyRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, echoClient(), nil)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	legacy := []datatypes.Experiment{
		{ID: "root", Title: "root", Timestamp: base},
		{ID: "first", Title: "first", Timestamp: base.Add(time.Minute), ParentVersion: "root"},
		{ID: "second", Title: "second", Timestamp: base.Add(2 * time.Minute), ParentVersion: "root"},
	}
	for _, exp := range legacy {
		require.NoError(t, f.store.Save(ctx, exp))
	}

	require.NoError(t, f.lab.Load(ctx))

	want := map[string]string{"root": "v1", "first": "v2", "second": "v3"}
	for id, version := range want {
		got, err := f.lab.Get(id)
		require.NoError(t, err)
		assert.Equal(t, version, got.Version, id)

		stored, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, version, stored.Version, "label persisted for %s", id)
	}

	root, err := f.lab.Get("root")
	require.NoError(t, err)
	assert.Equal(t, 2, root.ChildCount)

	// The next child continues after the labelled ones.
	in := newInput("third")
	in.ParentExperimentID = "root"
	third, err := f.lab.CreateExperiment(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "v4", third.Version)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := newFixture(t, echoClient(), nil)
	parent, err := src.lab.CreateExperiment(ctx, newInput("parent"))
	require.NoError(t, err)
	in := newInput("child")
	in.ParentExperimentID = parent.ID
	_, err = src.lab.CreateExperiment(ctx, in)
	require.NoError(t, err)

	blob, err := src.lab.Export()
	require.NoError(t, err)

	dst := newFixture(t, echoClient(), nil)
	n, err := dst.lab.Import(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, dst.lab.List(), 2)

	p, err := dst.lab.Get(parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.ChildCount)

	loaded, err := dst.store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	_, err = dst.lab.Import(ctx, []byte("{not json"))
	assert.ErrorIs(t, err, store.ErrInvalidImport)
}

func TestImport_RejectsTitleCollision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, echoClient(), nil)
	_, err := f.lab.CreateExperiment(ctx, newInput("Shared"))
	require.NoError(t, err)

	blob, err := store.EncodeExport([]datatypes.Experiment{{ID: "other", Title: " shared ", Version: "v1"}}, time.Now())
	require.NoError(t, err)

	_, err = f.lab.Import(ctx, blob)
	assert.ErrorIs(t, err, store.ErrInvalidImport)
	assert.Len(t, f.lab.List(), 1)
}

func TestImport_RejectsDuplicateTitlesWithinBlob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, echoClient(), nil)

	blob, err := store.EncodeExport([]datatypes.Experiment{
		{ID: "a", Title: "Test", Version: "v1"},
		{ID: "b", Title: " test ", Version: "v1"},
	}, time.Now())
	require.NoError(t, err)

	n, err := f.lab.Import(ctx, blob)
	assert.ErrorIs(t, err, store.ErrInvalidImport)
	assert.Zero(t, n)
	assert.Empty(t, f.lab.List())

	stored, err := f.store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

type failingStore struct {
	store.ExperimentStore
}

func (failingStore) Save(context.Context, datatypes.Experiment) error {
	return errors.New("disk full")
}

func (failingStore) Delete(context.Context, string) error {
	return errors.New("disk full")
}

func TestPersistenceFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, echoClient(), failingStore{})
	ctx := context.Background()

	exp, err := f.lab.CreateExperiment(ctx, newInput("unsaved"))
	require.NoError(t, err)
	require.Len(t, exp.Runs, 1)

	got, err := f.lab.Get(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, exp.Runs[0].Output, got.Runs[0].Output)
	assert.GreaterOrEqual(t, testutil.ToFloat64(f.metrics.PersistenceErrorsTotal.WithLabelValues("save")), 1.0)

	require.NoError(t, f.lab.Delete(ctx, exp.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PersistenceErrorsTotal.WithLabelValues("delete")))
	_, err = f.lab.Get(exp.ID)
	assert.ErrorIs(t, err, ErrExperimentNotFound)
}
