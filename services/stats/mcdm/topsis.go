// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcdm

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

type topsisParams struct {
	Alternative string    `json:"alternative" validate:"required"`
	Criteria    []string  `json:"criteria" validate:"required,min=1"`
	Weights     []float64 `json:"weights" validate:"required,min=1"`
	Benefit     []bool    `json:"benefit"`
}

type topsisAnalysis struct{}

func (topsisAnalysis) Name() string { return "topsis" }

func (topsisAnalysis) Summary() string {
	return "TOPSIS ranking by distance to ideal and anti-ideal"
}

func (topsisAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p topsisParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	k := len(p.Criteria)
	if len(p.Weights) != k {
		return nil, fmt.Errorf("%w: %d weights for %d criteria",
			stats.ErrBadParameter, len(p.Weights), k)
	}
	benefit := p.Benefit
	if benefit == nil {
		benefit = make([]bool, k)
		for j := range benefit {
			benefit[j] = true
		}
	}
	if len(benefit) != k {
		return nil, fmt.Errorf("%w: %d benefit flags for %d criteria",
			stats.ErrBadParameter, len(benefit), k)
	}

	var wSum float64
	for _, w := range p.Weights {
		if w < 0 {
			return nil, fmt.Errorf("%w: weights must be non-negative", stats.ErrBadParameter)
		}
		wSum += w
	}
	if wSum == 0 {
		return nil, fmt.Errorf("%w: weights sum to zero", stats.ErrBadParameter)
	}

	names, matrix, err := decisionMatrix(table, p.Alternative, p.Criteria)
	if err != nil {
		return nil, err
	}
	n := len(names)

	// Vector-normalize each criterion column, then weight.
	for j := 0; j < k; j++ {
		var norm float64
		for i := 0; i < n; i++ {
			norm += matrix[i][j] * matrix[i][j]
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			return nil, fmt.Errorf("%w: criterion %q is all zeros",
				stats.ErrDegenerate, p.Criteria[j])
		}
		w := p.Weights[j] / wSum
		for i := 0; i < n; i++ {
			matrix[i][j] = w * matrix[i][j] / norm
		}
	}

	ideal := make([]float64, k)
	anti := make([]float64, k)
	for j := 0; j < k; j++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for i := 0; i < n; i++ {
			lo = math.Min(lo, matrix[i][j])
			hi = math.Max(hi, matrix[i][j])
		}
		if benefit[j] {
			ideal[j], anti[j] = hi, lo
		} else {
			ideal[j], anti[j] = lo, hi
		}
	}

	type scored struct {
		name      string
		closeness float64
		dIdeal    float64
		dAnti     float64
	}
	ranked := make([]scored, n)
	for i := 0; i < n; i++ {
		var dPlus, dMinus float64
		for j := 0; j < k; j++ {
			dp := matrix[i][j] - ideal[j]
			dm := matrix[i][j] - anti[j]
			dPlus += dp * dp
			dMinus += dm * dm
		}
		dPlus = math.Sqrt(dPlus)
		dMinus = math.Sqrt(dMinus)
		closeness := 0.0
		if dPlus+dMinus > 0 {
			closeness = dMinus / (dPlus + dMinus)
		}
		ranked[i] = scored{name: names[i], closeness: closeness, dIdeal: dPlus, dAnti: dMinus}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].closeness > ranked[b].closeness
	})

	out := make([]map[string]any, n)
	for i, s := range ranked {
		out[i] = map[string]any{
			"rank":        i + 1,
			"alternative": s.name,
			"closeness":   s.closeness,
			"d_ideal":     s.dIdeal,
			"d_anti":      s.dAnti,
		}
	}

	return map[string]any{
		"results": map[string]any{
			"ranking": out,
			"n":       n,
		},
	}, nil
}

// decisionMatrix extracts alternative names and their criterion values
// with listwise deletion.
func decisionMatrix(table *stats.Table, nameCol string, criteria []string) ([]string, [][]float64, error) {
	for _, c := range append([]string{nameCol}, criteria...) {
		if !table.HasColumn(c) {
			return nil, nil, fmt.Errorf("%w: column %q not present in 'data'",
				stats.ErrBadParameter, c)
		}
	}

	var names []string
	var matrix [][]float64
	for i := 0; i < table.Len(); i++ {
		nv, ok := table.Value(i, nameCol)
		if !ok || nv == nil {
			continue
		}
		row := make([]float64, len(criteria))
		complete := true
		for j, c := range criteria {
			v, ok := table.Value(i, c)
			if !ok || v == nil {
				complete = false
				break
			}
			f, isNum := stats.Number(v)
			if !isNum {
				complete = false
				break
			}
			row[j] = f
		}
		if !complete {
			continue
		}
		names = append(names, fmt.Sprint(nv))
		matrix = append(matrix, row)
	}
	if len(names) < 2 {
		return nil, nil, fmt.Errorf("%w: TOPSIS needs at least 2 alternatives",
			stats.ErrInsufficientData)
	}
	return names, matrix, nil
}
