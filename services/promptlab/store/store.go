// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists Experiment aggregates.
//
// Records are the datatypes.Experiment JSON shape, one key per experiment.
// The store never assigns identifiers; callers set every id.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/PromptLab/services/promptlab/datatypes"
	"github.com/AleutianAI/PromptLab/services/promptlab/iteration"
	"github.com/AleutianAI/PromptLab/services/promptlab/storage/badger"
	badgerdb "github.com/dgraph-io/badger/v4"
)

const (
	keyPrefix = "experiment/"

	// ExportFormat identifies a PromptLab export blob.
	ExportFormat = "promptlab.experiments"

	// ExportVersion is the envelope version written by ExportAll.
	ExportVersion = 1
)

var (
	// ErrNotFound is returned by Get for an unknown experiment id.
	ErrNotFound = errors.New("experiment not found")

	// ErrInvalidImport is returned by ImportAll for a blob that cannot be
	// accepted. Nothing is written when it is returned.
	ErrInvalidImport = errors.New("invalid import")
)

// ExperimentStore is the persistence port used by the lab service.
//
// # Description
//
// Save is an upsert keyed by Experiment.ID. LoadAll returns experiments
// ordered by creation time. ImportAll upserts every experiment of an
// ExportAll blob and reports whether the blob was accepted.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type ExperimentStore interface {
	Save(ctx context.Context, exp datatypes.Experiment) error
	Get(ctx context.Context, id string) (datatypes.Experiment, error)
	LoadAll(ctx context.Context) ([]datatypes.Experiment, error)
	Delete(ctx context.Context, id string) error
	ExportAll(ctx context.Context) ([]byte, error)
	ImportAll(ctx context.Context, blob []byte) (bool, error)
	Close() error
}

// Envelope is the export blob layout.
type Envelope struct {
	Format      string                 `json:"format"`
	Version     int                    `json:"version"`
	ExportedAt  time.Time              `json:"exported_at"`
	Experiments []datatypes.Experiment `json:"experiments"`
}

// BadgerStore is the ExperimentStore backed by an embedded BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewBadgerStore wraps an open database. The store owns db and closes it
// in Close.
func NewBadgerStore(db *badger.DB, logger *slog.Logger) *BadgerStore {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("experiment store opened",
		slog.String("path", db.Path()),
		slog.Bool("in_memory", db.InMemory()))
	return &BadgerStore{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// OpenBadgerStore opens a database from cfg and wraps it.
func OpenBadgerStore(cfg badger.Config, logger *slog.Logger) (*BadgerStore, error) {
	db, err := badger.Open(cfg)
	if err != nil {
		return nil, err
	}
	return NewBadgerStore(db, logger), nil
}

func key(id string) string {
	return keyPrefix + id
}

// Save upserts exp.
func (s *BadgerStore) Save(ctx context.Context, exp datatypes.Experiment) error {
	if exp.ID == "" {
		return errors.New("save experiment: empty id")
	}
	data, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("encode experiment %s: %w", exp.ID, err)
	}
	if err := s.db.Put(ctx, key(exp.ID), data); err != nil {
		return fmt.Errorf("save experiment %s: %w", exp.ID, err)
	}
	return nil
}

// Get loads one experiment.
func (s *BadgerStore) Get(ctx context.Context, id string) (datatypes.Experiment, error) {
	data, err := s.db.Get(ctx, key(id))
	if errors.Is(err, badger.ErrNotFound) {
		return datatypes.Experiment{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return datatypes.Experiment{}, fmt.Errorf("load experiment %s: %w", id, err)
	}
	var exp datatypes.Experiment
	if err := json.Unmarshal(data, &exp); err != nil {
		return datatypes.Experiment{}, fmt.Errorf("decode experiment %s: %w", id, err)
	}
	return exp, nil
}

// LoadAll returns every stored experiment, oldest first. A record that
// fails to decode is logged and skipped so one corrupt entry does not hide
// the rest.
func (s *BadgerStore) LoadAll(ctx context.Context) ([]datatypes.Experiment, error) {
	var out []datatypes.Experiment
	err := s.db.Scan(ctx, keyPrefix, func(k string, value []byte) error {
		var exp datatypes.Experiment
		if err := json.Unmarshal(value, &exp); err != nil {
			s.logger.Error("skipping undecodable experiment record",
				slog.String("key", k),
				slog.String("error", err.Error()))
			return nil
		}
		out = append(out, exp)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load experiments: %w", err)
	}
	sortExperiments(out)
	return out, nil
}

// Delete removes an experiment. Deleting an unknown id is not an error.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	if err := s.db.Delete(ctx, key(id)); err != nil {
		return fmt.Errorf("delete experiment %s: %w", id, err)
	}
	return nil
}

// ExportAll serializes every experiment into a versioned JSON envelope.
func (s *BadgerStore) ExportAll(ctx context.Context) ([]byte, error) {
	exps, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return EncodeExport(exps, s.now())
}

// ImportAll validates blob and upserts its experiments in one transaction.
//
// # Outputs
//
//   - bool: true when the blob was accepted and written.
//   - error: wraps ErrInvalidImport for a malformed blob, or the storage
//     error. Nothing is written when an error is returned.
func (s *BadgerStore) ImportAll(ctx context.Context, blob []byte) (bool, error) {
	exps, err := DecodeImport(blob)
	if err != nil {
		return false, err
	}

	encoded := make(map[string][]byte, len(exps))
	for _, exp := range exps {
		data, err := json.Marshal(exp)
		if err != nil {
			return false, fmt.Errorf("encode experiment %s: %w", exp.ID, err)
		}
		encoded[exp.ID] = data
	}

	err = s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		for id, data := range encoded {
			if err := txn.Set([]byte(key(id)), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("import experiments: %w", err)
	}
	// A bulk import is flushed even when writes are not synchronous.
	if err := s.db.Sync(); err != nil {
		s.logger.Warn("sync after import failed", slog.String("error", err.Error()))
	}
	s.logger.Info("experiments imported", slog.Int("count", len(exps)))
	return true, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// EncodeExport builds the export envelope for exps.
func EncodeExport(exps []datatypes.Experiment, at time.Time) ([]byte, error) {
	if exps == nil {
		exps = []datatypes.Experiment{}
	}
	env := Envelope{
		Format:      ExportFormat,
		Version:     ExportVersion,
		ExportedAt:  at,
		Experiments: exps,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return data, nil
}

// DecodeImport parses and validates an export blob.
//
// # Description
//
// Accepts the versioned envelope and, for exports from older builds, a
// bare JSON array of experiments. Every experiment must have an id and a
// title, ids must be unique, and run lineage must be intact.
func DecodeImport(blob []byte) ([]datatypes.Experiment, error) {
	trimmed := strings.TrimSpace(string(blob))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty blob", ErrInvalidImport)
	}

	var exps []datatypes.Experiment
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &exps); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
		}
	} else {
		var env Envelope
		if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
		}
		if env.Format != ExportFormat {
			return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidImport, env.Format)
		}
		if env.Version < 1 || env.Version > ExportVersion {
			return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidImport, env.Version)
		}
		exps = env.Experiments
	}

	seen := make(map[string]bool, len(exps))
	titles := make(map[string]string, len(exps))
	for i, exp := range exps {
		if exp.ID == "" {
			return nil, fmt.Errorf("%w: experiment %d has no id", ErrInvalidImport, i)
		}
		if seen[exp.ID] {
			return nil, fmt.Errorf("%w: duplicate experiment id %s", ErrInvalidImport, exp.ID)
		}
		seen[exp.ID] = true
		if strings.TrimSpace(exp.Title) == "" {
			return nil, fmt.Errorf("%w: experiment %s has no title", ErrInvalidImport, exp.ID)
		}
		key := datatypes.NormalizeTitle(exp.Title)
		if other, ok := titles[key]; ok {
			return nil, fmt.Errorf("%w: duplicate title %q (experiments %s and %s)", ErrInvalidImport, exp.Title, other, exp.ID)
		}
		titles[key] = exp.ID
		if err := iteration.CheckLineage(exp); err != nil {
			return nil, fmt.Errorf("%w: experiment %s: %v", ErrInvalidImport, exp.ID, err)
		}
	}
	return exps, nil
}

func sortExperiments(exps []datatypes.Experiment) {
	sort.SliceStable(exps, func(i, j int) bool {
		if !exps[i].Timestamp.Equal(exps[j].Timestamp) {
			return exps[i].Timestamp.Before(exps[j].Timestamp)
		}
		return exps[i].ID < exps[j].ID
	})
}

var _ ExperimentStore = (*BadgerStore)(nil)
