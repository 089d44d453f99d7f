// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"context"
	"fmt"
	"sort"
)

// Analysis is one stateless statistical endpoint. Run must be a pure
// function of the request: no retained state, no I/O beyond the result.
type Analysis interface {
	// Name is the registry key and CLI subcommand, e.g. "anova".
	Name() string

	// Summary is a one-line description for command listings.
	Summary() string

	// Run executes the procedure and returns the result tree to be
	// normalized and serialized. Keys become top-level JSON fields.
	Run(ctx context.Context, req *Request) (map[string]any, error)
}

// Registry maps analysis names to implementations. It is populated once
// at startup and read-only afterwards, so no locking is needed.
type Registry struct {
	byName map[string]Analysis
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Analysis)}
}

// Register adds an analysis. Duplicate names are a programming error.
func (r *Registry) Register(analyses ...Analysis) error {
	for _, a := range analyses {
		if a.Name() == "" {
			return fmt.Errorf("analysis with empty name")
		}
		if _, exists := r.byName[a.Name()]; exists {
			return fmt.Errorf("duplicate analysis %q", a.Name())
		}
		r.byName[a.Name()] = a
	}
	return nil
}

// Get looks up an analysis by name.
func (r *Registry) Get(name string) (Analysis, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
