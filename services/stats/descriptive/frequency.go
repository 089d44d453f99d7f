// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package descriptive

import (
	"context"
	"fmt"
	"sort"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

type frequencyParams struct {
	Variables []string `json:"variables" validate:"required,min=1"`
}

type frequencyAnalysis struct{}

func (frequencyAnalysis) Name() string { return "frequency" }

func (frequencyAnalysis) Summary() string {
	return "Frequency and percentage tables for categorical variables"
}

func (frequencyAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p frequencyParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	results := make(map[string]any, len(p.Variables))
	for _, name := range p.Variables {
		labels, err := table.StringColumn(name)
		if err != nil {
			return nil, err
		}
		if len(labels) == 0 {
			return nil, fmt.Errorf("%w: column %q has no values", stats.ErrInsufficientData, name)
		}
		results[name] = frequencyTable(labels)
	}
	return map[string]any{"results": results}, nil
}

// frequencyTable counts labels and orders rows by descending count,
// ties broken by label for deterministic output.
func frequencyTable(labels []string) []map[string]any {
	counts := make(map[string]int)
	for _, l := range labels {
		counts[l]++
	}

	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		if counts[values[i]] != counts[values[j]] {
			return counts[values[i]] > counts[values[j]]
		}
		return values[i] < values[j]
	})

	total := float64(len(labels))
	cumulative := 0.0
	rows := make([]map[string]any, 0, len(values))
	for _, v := range values {
		pct := float64(counts[v]) / total * 100
		cumulative += pct
		rows = append(rows, map[string]any{
			"value":              v,
			"count":              counts[v],
			"percent":            pct,
			"cumulative_percent": cumulative,
		})
	}
	return rows
}
