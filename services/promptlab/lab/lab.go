// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lab is the PromptLab application service. It owns the in-memory
// experiment map and one iteration session per experiment, and drives the
// validate -> create run -> execute -> commit -> persist cycle.
//
// # Description
//
// Lab is the single writer of experiment state. Every mutation takes the
// lock, copies the current experiment, modifies the copy and swaps it in.
// Generation runs outside the lock; the finished run is committed in a
// second critical section. Persistence always follows the in-memory
// commit, and a persistence failure is logged and counted but never undoes
// the commit or fails the call.
//
// # Thread Safety
//
// Lab is safe for concurrent use. At most one run executes per experiment;
// a second Iterate while one is in flight returns runner.ErrRunInFlight.
package lab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/PromptLab/services/promptlab/blocks"
	"github.com/AleutianAI/PromptLab/services/promptlab/compare"
	"github.com/AleutianAI/PromptLab/services/promptlab/datatypes"
	"github.com/AleutianAI/PromptLab/services/promptlab/iteration"
	"github.com/AleutianAI/PromptLab/services/promptlab/observability"
	"github.com/AleutianAI/PromptLab/services/promptlab/runner"
	"github.com/AleutianAI/PromptLab/services/promptlab/store"
)

var (
	// ErrExperimentNotFound is returned for an unknown experiment id.
	ErrExperimentNotFound = errors.New("experiment not found")

	// ErrInvalidInput is returned for a request that fails field
	// validation (parameter bounds, unknown block, oversized content).
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// Inputs
// =============================================================================

// NewExperimentInput describes an experiment and its first run.
//
// # Fields
//
//   - Title: Required; unique after trimming and case folding.
//   - Blocks: The first run's prompt blocks. The Task block is required.
//   - ParentExperimentID: When set, the new experiment is derived from that
//     one and gets the next version label from its counter.
type NewExperimentInput struct {
	Title              string                   `json:"title"`
	Hypothesis         string                   `json:"hypothesis"`
	Blocks             []datatypes.BlockState   `json:"blocks"`
	Parameters         datatypes.RunParameters  `json:"parameters"`
	Files              []datatypes.AttachedFile `json:"files,omitempty"`
	ParentExperimentID string                   `json:"parent_experiment_id,omitempty"`
	BranchName         string                   `json:"branch_name,omitempty"`
}

// IterateInput is a request to run the next iteration.
//
// Candidate replaces the session's candidate when non-nil; otherwise the
// candidate last set through UpdateCandidate is used.
type IterateInput struct {
	Candidate  *iteration.Candidate `json:"candidate,omitempty"`
	BranchName string               `json:"branch_name,omitempty"`
}

// Config wires a Lab.
//
// # Fields
//
//   - Store: Optional. Without one the lab is memory-only.
//   - Runner: Required.
//   - Metrics: Optional; nil disables metrics.
//   - Now, NewID: Clock and id generator, for tests.
type Config struct {
	Store   store.ExperimentStore
	Runner  *runner.Runner
	Metrics *observability.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
	NewID   func() string
}

// =============================================================================
// Lab
// =============================================================================

// Lab is the application service over experiments.
type Lab struct {
	store   store.ExperimentStore
	runner  *runner.Runner
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	mu          sync.RWMutex
	experiments map[string]datatypes.Experiment
	sessions    map[string]iteration.Session
}

// New creates an empty Lab. Call Load to hydrate it from the store.
func New(cfg Config) *Lab {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.NewID == nil {
		cfg.NewID = iteration.NewID
	}
	return &Lab{
		store:       cfg.Store,
		runner:      cfg.Runner,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		now:         cfg.Now,
		newID:       cfg.NewID,
		experiments: make(map[string]datatypes.Experiment),
		sessions:    make(map[string]iteration.Session),
	}
}

// Load replaces the in-memory state with the store's contents.
//
// Child counters are reconciled against the stored children, and any
// experiment whose counter was raised is written back.
func (l *Lab) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	exps, err := l.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load experiments: %w", err)
	}
	changed := reconcileLegacy(exps)

	l.mu.Lock()
	l.experiments = make(map[string]datatypes.Experiment, len(exps))
	l.sessions = make(map[string]iteration.Session, len(exps))
	for _, exp := range exps {
		l.experiments[exp.ID] = exp
		l.sessions[exp.ID] = iteration.NewSession(exp)
	}
	toSave := l.snapshot(changed)
	l.mu.Unlock()

	l.persist(ctx, "reconcile", toSave...)
	l.logger.Info("experiments loaded", "count", len(exps), "reconciled", len(changed))
	return nil
}

// =============================================================================
// Experiments
// =============================================================================

// CreateExperiment creates an experiment and executes its first run.
//
// # Description
//
//  1. Checks the title, parameters, blocks and files. A duplicate title is
//     rejected before anything is created.
//  2. When ParentExperimentID is set, takes the next version label from the
//     parent's counter and advances it in the same critical section.
//  3. Records the originating block content, creates the root run and
//     commits both.
//  4. Executes the run, commits the result and persists.
//
// # Outputs
//
//   - datatypes.Experiment: The experiment with its executed first run. A
//     failed generation still returns the experiment; the run carries the
//     error marker.
//   - error: *iteration.ValidationError (DuplicateTitle),
//     iteration.ErrTitleRequired, ErrInvalidInput, ErrExperimentNotFound
//     for an unknown parent.
func (l *Lab) CreateExperiment(ctx context.Context, in NewExperimentInput) (datatypes.Experiment, error) {
	title := strings.TrimSpace(in.Title)
	if len(title) > datatypes.MaxTitleLength {
		return datatypes.Experiment{}, fmt.Errorf("%w: title longer than %d characters", ErrInvalidInput, datatypes.MaxTitleLength)
	}
	candidate := iteration.Candidate{Parameters: in.Parameters, Blocks: in.Blocks, Files: in.Files}
	if err := checkCandidate(candidate); err != nil {
		return datatypes.Experiment{}, err
	}
	content := nonEmptyContent(in.Blocks)
	if missing := blocks.MissingRequired(content); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, id := range missing {
			names[i] = blocks.DisplayName(id)
		}
		return datatypes.Experiment{}, fmt.Errorf("%w: required block missing: %s", ErrInvalidInput, strings.Join(names, ", "))
	}

	l.mu.Lock()
	if err := iteration.CheckTitle(l.listLocked(), title, ""); err != nil {
		l.mu.Unlock()
		var verr *iteration.ValidationError
		if errors.As(err, &verr) {
			l.metrics.RecordRejection(string(verr.Kind))
		}
		return datatypes.Experiment{}, err
	}

	exp := datatypes.Experiment{
		ID:           l.newID(),
		Title:        title,
		Timestamp:    l.now(),
		Hypothesis:   strings.TrimSpace(in.Hypothesis),
		Version:      iteration.RootVersion,
		BlockContent: content,
	}

	var parentUpdate []datatypes.Experiment
	if in.ParentExperimentID != "" {
		parent, ok := l.experiments[in.ParentExperimentID]
		if !ok {
			l.mu.Unlock()
			return datatypes.Experiment{}, fmt.Errorf("parent %s: %w", in.ParentExperimentID, ErrExperimentNotFound)
		}
		version, updated := iteration.NextChildVersion(parent)
		exp.Version = version
		exp.ParentVersion = parent.ID
		l.experiments[parent.ID] = updated
		parentUpdate = append(parentUpdate, updated.Clone())
	}

	validation := iteration.Validate(candidate, iteration.ResolveBaseline(exp, ""), exp, "")
	run, exp, err := iteration.CreateRun(exp, candidate, validation, "", l.runOptions(in.BranchName))
	if err != nil {
		l.mu.Unlock()
		return datatypes.Experiment{}, err
	}
	exp.Runs[len(exp.Runs)-1].Status = datatypes.RunStatusRunning

	release, err := l.runner.Acquire(exp.ID)
	if err != nil {
		l.mu.Unlock()
		return datatypes.Experiment{}, err
	}
	defer release()

	l.experiments[exp.ID] = exp
	session := iteration.NewSession(exp)
	session.Phase = iteration.PhaseLoading
	l.sessions[exp.ID] = session
	l.mu.Unlock()

	l.metrics.RecordExperimentCreated()
	l.persist(ctx, "save", parentUpdate...)
	l.logger.Info("experiment created",
		"experiment_id", exp.ID,
		"version", exp.Version,
		"parent_experiment_id", exp.ParentVersion)

	executed := l.runner.Execute(ctx, run)
	committed, err := l.commitRun(ctx, exp.ID, executed)
	if err != nil {
		return datatypes.Experiment{}, err
	}
	return committed, nil
}

// Get returns a copy of one experiment.
func (l *Lab) Get(id string) (datatypes.Experiment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	exp, ok := l.experiments[id]
	if !ok {
		return datatypes.Experiment{}, fmt.Errorf("%s: %w", id, ErrExperimentNotFound)
	}
	return exp.Clone(), nil
}

// List returns copies of every experiment, oldest first.
func (l *Lab) List() []datatypes.Experiment {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := l.listLocked()
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out
}

// Delete removes an experiment and its runs. The parent's child counter is
// not decremented, so later siblings never reuse a version label.
func (l *Lab) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	if _, ok := l.experiments[id]; !ok {
		l.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrExperimentNotFound)
	}
	delete(l.experiments, id)
	delete(l.sessions, id)
	l.mu.Unlock()

	l.runner.Forget(id)
	if l.store != nil {
		if err := l.store.Delete(ctx, id); err != nil {
			l.persistenceFailed("delete", id, err)
		}
	}
	l.logger.Info("experiment deleted", "experiment_id", id)
	return nil
}

// AppendNote adds a timestamped entry to the experiment's narrative log.
func (l *Lab) AppendNote(ctx context.Context, id, text string) (datatypes.Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return datatypes.Note{}, fmt.Errorf("%w: note is empty", ErrInvalidInput)
	}
	if len(text) > datatypes.MaxNoteBytes {
		return datatypes.Note{}, fmt.Errorf("%w: note longer than %d bytes", ErrInvalidInput, datatypes.MaxNoteBytes)
	}

	l.mu.Lock()
	exp, ok := l.experiments[id]
	if !ok {
		l.mu.Unlock()
		return datatypes.Note{}, fmt.Errorf("%s: %w", id, ErrExperimentNotFound)
	}
	note := datatypes.Note{Timestamp: l.now(), Text: text}
	updated := exp.Clone()
	updated.Notes = append(updated.Notes, note)
	l.experiments[id] = updated
	l.mu.Unlock()

	l.persist(ctx, "save", updated)
	return note, nil
}

// =============================================================================
// Sessions
// =============================================================================

// Session returns the current iteration session of an experiment.
func (l *Lab) Session(id string) (iteration.Session, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.sessions[id]
	if !ok {
		return iteration.Session{}, fmt.Errorf("%s: %w", id, ErrExperimentNotFound)
	}
	return s, nil
}

// UpdateCandidate replaces the session's candidate and returns the
// recomputed baseline and validation. It never creates a run, and it is
// refused with runner.ErrRunInFlight while a run is executing, because the
// finished run resets the candidate to its own content.
func (l *Lab) UpdateCandidate(id string, c iteration.Candidate) (iteration.Session, error) {
	if err := checkCandidate(c); err != nil {
		return iteration.Session{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, s, err := l.sessionLocked(id)
	if err != nil {
		return iteration.Session{}, err
	}
	if s.Phase == iteration.PhaseLoading {
		return iteration.Session{}, fmt.Errorf("update candidate %s: %w", id, runner.ErrRunInFlight)
	}
	s = s.WithCandidate(exp, c)
	if iteration.CanTransition(s.Phase, iteration.PhaseIteration, len(exp.Runs)) {
		s.Phase = iteration.PhaseIteration
	}
	l.sessions[id] = s
	return s, nil
}

// SelectFork moves the fork pointer to runID and resets the candidate to
// that run's content.
func (l *Lab) SelectFork(id, runID string) (iteration.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, s, err := l.sessionLocked(id)
	if err != nil {
		return iteration.Session{}, err
	}
	if s.Phase == iteration.PhaseLoading {
		return iteration.Session{}, fmt.Errorf("select fork %s: %w", id, runner.ErrRunInFlight)
	}
	s, err = s.WithFork(exp, runID)
	if err != nil {
		return iteration.Session{}, err
	}
	l.sessions[id] = s
	l.logger.Debug("fork selected", "experiment_id", id, "run_id", runID)
	return s, nil
}

// =============================================================================
// Iteration
// =============================================================================

// Iterate validates the candidate against the fork baseline, records the
// accepted change as a new run, executes it and advances the fork pointer
// to it.
//
// # Outputs
//
//   - datatypes.ExperimentRun: The executed run. Generation failures are
//     reported in the run, not as an error.
//   - error: *iteration.ValidationError when the candidate is rejected (no
//     run is created), runner.ErrRunInFlight, ErrInvalidInput or
//     ErrExperimentNotFound.
func (l *Lab) Iterate(ctx context.Context, id string, in IterateInput) (datatypes.ExperimentRun, error) {
	if in.Candidate != nil {
		if err := checkCandidate(*in.Candidate); err != nil {
			return datatypes.ExperimentRun{}, err
		}
	}

	l.mu.Lock()
	exp, s, err := l.sessionLocked(id)
	if err != nil {
		l.mu.Unlock()
		return datatypes.ExperimentRun{}, err
	}
	if in.Candidate != nil {
		s = s.WithCandidate(exp, *in.Candidate)
	} else {
		s = s.Recompute(exp)
	}
	l.sessions[id] = s

	if !s.Validation.Allowed {
		l.mu.Unlock()
		l.metrics.RecordRejection(string(s.Validation.Kind))
		l.logger.Debug("candidate rejected",
			"experiment_id", id,
			"kind", s.Validation.Kind,
			"changes", len(s.Validation.Changes))
		return datatypes.ExperimentRun{}, s.Validation.Err()
	}

	release, err := l.runner.Acquire(id)
	if err != nil {
		l.mu.Unlock()
		return datatypes.ExperimentRun{}, err
	}
	defer release()

	run, updated, err := iteration.CreateRun(exp, s.Candidate, s.Validation, s.ForkRunID, l.runOptions(in.BranchName))
	if err != nil {
		l.mu.Unlock()
		return datatypes.ExperimentRun{}, err
	}
	updated.Runs[len(updated.Runs)-1].Status = datatypes.RunStatusRunning
	l.experiments[id] = updated
	s.Phase = iteration.PhaseLoading
	l.sessions[id] = s
	l.mu.Unlock()

	l.logger.Info("run started",
		"experiment_id", id,
		"run_id", run.ID,
		"parent_run_id", run.ParentRunID,
		"change", run.ChangeDescription)

	executed := l.runner.Execute(ctx, run)
	if _, err := l.commitRun(ctx, id, executed); err != nil {
		return executed, err
	}
	return executed, nil
}

// Evaluate records the user's rating of a run.
func (l *Lab) Evaluate(ctx context.Context, id, runID string, ev datatypes.Evaluation) (datatypes.ExperimentRun, error) {
	ev.Notes = strings.TrimSpace(ev.Notes)
	if err := datatypes.Validate(ev); err != nil {
		return datatypes.ExperimentRun{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	l.mu.Lock()
	exp, ok := l.experiments[id]
	if !ok {
		l.mu.Unlock()
		return datatypes.ExperimentRun{}, fmt.Errorf("%s: %w", id, ErrExperimentNotFound)
	}
	_, idx, ok := exp.FindRun(runID)
	if !ok {
		l.mu.Unlock()
		return datatypes.ExperimentRun{}, fmt.Errorf("evaluate %s: %w", runID, iteration.ErrRunNotFound)
	}
	ev.EvaluatedAt = l.now()
	updated := exp.Clone()
	updated.Runs[idx].Evaluation = &ev
	l.experiments[id] = updated
	run := updated.Runs[idx]
	l.mu.Unlock()

	l.persist(ctx, "save", updated)
	return run, nil
}

// Compare diffs two runs of the same experiment.
func (l *Lab) Compare(id, leftRunID, rightRunID string) (compare.Comparison, error) {
	l.mu.RLock()
	exp, ok := l.experiments[id]
	l.mu.RUnlock()
	if !ok {
		return compare.Comparison{}, fmt.Errorf("%s: %w", id, ErrExperimentNotFound)
	}
	left, _, ok := exp.FindRun(leftRunID)
	if !ok {
		return compare.Comparison{}, fmt.Errorf("compare %s: %w", leftRunID, iteration.ErrRunNotFound)
	}
	right, _, ok := exp.FindRun(rightRunID)
	if !ok {
		return compare.Comparison{}, fmt.Errorf("compare %s: %w", rightRunID, iteration.ErrRunNotFound)
	}
	return compare.Compare(left, right), nil
}

// Tree returns the run forest of an experiment and its branch grouping.
func (l *Lab) Tree(id string) ([]iteration.TreeNode, []iteration.Branch, error) {
	exp, err := l.Get(id)
	if err != nil {
		return nil, nil, err
	}
	return iteration.BuildTree(exp), iteration.Branches(exp), nil
}

// Lineage returns the runs from the root of runID's tree down to runID.
func (l *Lab) Lineage(id, runID string) ([]datatypes.ExperimentRun, error) {
	exp, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	return iteration.Lineage(exp, runID)
}

// =============================================================================
// Export / Import
// =============================================================================

// Export serializes every experiment into the store's export envelope.
func (l *Lab) Export() ([]byte, error) {
	return store.EncodeExport(l.List(), l.now())
}

// Import upserts the experiments of an export blob.
//
// # Description
//
// The blob is validated first; a malformed blob changes nothing. An
// imported title that collides with a different existing experiment is
// rejected. Accepted experiments replace any in-memory experiment with the
// same id and get a fresh session. Child counters are then reconciled.
//
// # Outputs
//
//   - int: Number of experiments imported.
//   - error: wraps store.ErrInvalidImport.
func (l *Lab) Import(ctx context.Context, blob []byte) (int, error) {
	exps, err := store.DecodeImport(blob)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	for _, exp := range exps {
		for _, existing := range l.experiments {
			if existing.ID != exp.ID && datatypes.NormalizeTitle(existing.Title) == datatypes.NormalizeTitle(exp.Title) {
				l.mu.Unlock()
				return 0, fmt.Errorf("%w: title %q already used by experiment %s",
					store.ErrInvalidImport, strings.TrimSpace(exp.Title), existing.ID)
			}
		}
	}
	for _, exp := range exps {
		l.experiments[exp.ID] = exp
		l.sessions[exp.ID] = iteration.NewSession(exp)
	}
	all := l.listLocked()
	changed := reconcileLegacy(all)
	for _, exp := range all {
		l.experiments[exp.ID] = exp
	}
	toSave := l.snapshot(changed)
	l.mu.Unlock()

	if l.store != nil {
		if _, err := l.store.ImportAll(ctx, blob); err != nil {
			l.persistenceFailed("import", "", err)
		}
	}
	l.persist(ctx, "reconcile", toSave...)
	l.logger.Info("experiments imported", "count", len(exps), "reconciled", len(changed))
	return len(exps), nil
}

// =============================================================================
// Helpers
// =============================================================================

// commitRun replaces the pending run with its executed version, moves the
// fork pointer to it and persists the experiment.
func (l *Lab) commitRun(ctx context.Context, id string, run datatypes.ExperimentRun) (datatypes.Experiment, error) {
	l.mu.Lock()
	exp, ok := l.experiments[id]
	if !ok {
		l.mu.Unlock()
		l.logger.Warn("experiment deleted while run was executing",
			"experiment_id", id, "run_id", run.ID)
		return datatypes.Experiment{}, fmt.Errorf("%s: %w", id, ErrExperimentNotFound)
	}
	_, idx, ok := exp.FindRun(run.ID)
	if !ok {
		l.mu.Unlock()
		return datatypes.Experiment{}, fmt.Errorf("commit %s: %w", run.ID, iteration.ErrRunNotFound)
	}
	updated := exp.Clone()
	updated.Runs[idx] = run
	l.experiments[id] = updated

	s, err := l.sessions[id].WithFork(updated, run.ID)
	if err != nil {
		s = iteration.NewSession(updated)
	}
	s.Phase = iteration.PhaseEvaluation
	l.sessions[id] = s
	l.mu.Unlock()

	l.persist(ctx, "save", updated)
	return updated.Clone(), nil
}

func (l *Lab) sessionLocked(id string) (datatypes.Experiment, iteration.Session, error) {
	exp, ok := l.experiments[id]
	if !ok {
		return datatypes.Experiment{}, iteration.Session{}, fmt.Errorf("%s: %w", id, ErrExperimentNotFound)
	}
	s, ok := l.sessions[id]
	if !ok {
		s = iteration.NewSession(exp)
	}
	return exp, s, nil
}

func (l *Lab) listLocked() []datatypes.Experiment {
	out := make([]datatypes.Experiment, 0, len(l.experiments))
	for _, exp := range l.experiments {
		out = append(out, exp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// reconcileLegacy fills in what records written before version counters
// lack: missing version labels and child counters. exps must be in creation
// order. Returns the ids that changed, each once.
func reconcileLegacy(exps []datatypes.Experiment) []string {
	changed := iteration.LabelMissingVersions(exps)
	for _, id := range iteration.ReconcileChildCounts(exps) {
		if !slices.Contains(changed, id) {
			changed = append(changed, id)
		}
	}
	return changed
}

func (l *Lab) snapshot(ids []string) []datatypes.Experiment {
	out := make([]datatypes.Experiment, 0, len(ids))
	for _, id := range ids {
		if exp, ok := l.experiments[id]; ok {
			out = append(out, exp.Clone())
		}
	}
	return out
}

func (l *Lab) runOptions(branch string) iteration.RunOptions {
	return iteration.RunOptions{
		BranchName: strings.TrimSpace(branch),
		Now:        l.now,
		NewID:      l.newID,
	}
}

// persist writes exps to the store. Failures are logged and counted.
func (l *Lab) persist(ctx context.Context, op string, exps ...datatypes.Experiment) {
	if l.store == nil {
		return
	}
	for _, exp := range exps {
		if err := l.store.Save(ctx, exp); err != nil {
			l.persistenceFailed(op, exp.ID, err)
		}
	}
}

func (l *Lab) persistenceFailed(op, id string, err error) {
	l.metrics.RecordPersistenceError(op)
	l.logger.Error("persistence failed",
		"op", op,
		"experiment_id", id,
		"error", err)
}

// checkCandidate applies field validation that does not depend on the
// baseline.
func checkCandidate(c iteration.Candidate) error {
	if err := c.Parameters.Validate(); err != nil {
		return fmt.Errorf("%w: parameters: %v", ErrInvalidInput, err)
	}
	for _, b := range c.Blocks {
		if !blocks.IsKnown(b.ID) {
			return fmt.Errorf("%w: unknown block %q", ErrInvalidInput, b.ID)
		}
		if len(b.Content) > datatypes.MaxBlockContentBytes {
			return fmt.Errorf("%w: %s block larger than %d bytes", ErrInvalidInput, blocks.DisplayName(b.ID), datatypes.MaxBlockContentBytes)
		}
	}
	for _, f := range c.Files {
		if err := datatypes.Validate(f); err != nil {
			return fmt.Errorf("%w: file %q: %v", ErrInvalidInput, f.Name, err)
		}
	}
	return nil
}

func nonEmptyContent(bs []datatypes.BlockState) map[string]string {
	out := make(map[string]string)
	for id, c := range datatypes.BlockContentMap(bs) {
		if c != "" {
			out[id] = c
		}
	}
	return out
}
