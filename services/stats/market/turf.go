// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package market

import (
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianStats/pkg/jsonsafe"
	"github.com/AleutianAI/AleutianStats/services/stats"
)

type turfParams struct {
	Items []string `json:"items" validate:"required,min=2"`
	MaxK  int      `json:"max_k" validate:"omitempty,min=1"`
}

type turfAnalysis struct{}

func (turfAnalysis) Name() string { return "turf" }

func (turfAnalysis) Summary() string {
	return "TURF greedy portfolio reach and frequency"
}

func (turfAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p turfParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	maxK := p.MaxK
	if maxK == 0 || maxK > len(p.Items) {
		maxK = len(p.Items)
	}

	// reach[item][respondent]: nonzero cell means the item reaches them.
	cols, err := table.Columns(p.Items...)
	if err != nil {
		return nil, err
	}
	n := len(cols[0])
	if n == 0 {
		return nil, fmt.Errorf("%w: no complete respondent rows", stats.ErrInsufficientData)
	}

	reach := make(map[string][]bool, len(p.Items))
	for j, item := range p.Items {
		flags := make([]bool, n)
		for i, v := range cols[j] {
			flags[i] = v != 0
		}
		reach[item] = flags
	}

	// Greedy: at each step add the item with the largest incremental
	// reach; ties resolve in sorted item order for determinism.
	covered := make([]bool, n)
	chosen := make(map[string]struct{}, maxK)
	var steps []map[string]any

	for step := 1; step <= maxK; step++ {
		bestItem := ""
		bestGain := -1
		for _, item := range jsonsafe.SortedSet(remaining(p.Items, chosen)) {
			gain := 0
			for i, flag := range reach[item] {
				if flag && !covered[i] {
					gain++
				}
			}
			if gain > bestGain {
				bestGain = gain
				bestItem = item
			}
		}

		for i, flag := range reach[bestItem] {
			if flag {
				covered[i] = true
			}
		}
		chosen[bestItem] = struct{}{}

		var reached, frequency int
		for i := 0; i < n; i++ {
			if covered[i] {
				reached++
			}
			for item := range chosen {
				if reach[item][i] {
					frequency++
				}
			}
		}
		steps = append(steps, map[string]any{
			"k":                 step,
			"added":             bestItem,
			"incremental_reach": bestGain,
			"reach":             reached,
			"reach_pct":         100 * float64(reached) / float64(n),
			"frequency":         frequency,
			"portfolio":         jsonsafe.SortedSet(chosen),
		})
	}

	return map[string]any{
		"results": map[string]any{
			"steps":       steps,
			"respondents": n,
		},
	}, nil
}

// remaining builds the set of items not yet chosen.
func remaining(items []string, chosen map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, item := range items {
		if _, ok := chosen[item]; !ok {
			out[item] = struct{}{}
		}
	}
	return out
}
