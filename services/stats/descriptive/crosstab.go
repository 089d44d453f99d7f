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
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

type crosstabParams struct {
	Row    string `json:"row" validate:"required"`
	Column string `json:"column" validate:"required"`
}

type crosstabAnalysis struct{}

func (crosstabAnalysis) Name() string { return "crosstab" }

func (crosstabAnalysis) Summary() string {
	return "Contingency table with chi-square test of independence"
}

func (crosstabAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p crosstabParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	rowLabels, colLabels, err := pairedLabels(table, p.Row, p.Column)
	if err != nil {
		return nil, err
	}
	if len(rowLabels) == 0 {
		return nil, fmt.Errorf("%w: no complete rows for %q by %q",
			stats.ErrInsufficientData, p.Row, p.Column)
	}

	rows, cols, observed := contingency(rowLabels, colLabels)
	chi2, df, pValue, cramersV := chiSquare(observed)

	cells := make([][]int, len(rows))
	for i := range observed {
		cells[i] = make([]int, len(cols))
		for j := range observed[i] {
			cells[i][j] = int(observed[i][j])
		}
	}

	return map[string]any{
		"results": map[string]any{
			"rows":       rows,
			"columns":    cols,
			"observed":   cells,
			"chi_square": chi2,
			"df":         df,
			"p_value":    pValue,
			"cramers_v":  cramersV,
			"n":          len(rowLabels),
		},
	}, nil
}

// pairedLabels extracts two label columns with listwise deletion so the
// pairs stay row-aligned.
func pairedLabels(table *stats.Table, rowCol, colCol string) ([]string, []string, error) {
	if !table.HasColumn(rowCol) {
		return nil, nil, fmt.Errorf("%w: column %q not present in 'data'", stats.ErrBadParameter, rowCol)
	}
	if !table.HasColumn(colCol) {
		return nil, nil, fmt.Errorf("%w: column %q not present in 'data'", stats.ErrBadParameter, colCol)
	}
	var rows, cols []string
	for i := 0; i < table.Len(); i++ {
		rv, ok := table.Value(i, rowCol)
		if !ok || rv == nil {
			continue
		}
		cv, ok := table.Value(i, colCol)
		if !ok || cv == nil {
			continue
		}
		rows = append(rows, fmt.Sprint(rv))
		cols = append(cols, fmt.Sprint(cv))
	}
	return rows, cols, nil
}

// contingency builds the observed-count matrix with sorted category
// labels on both axes.
func contingency(rowLabels, colLabels []string) ([]string, []string, [][]float64) {
	rowSet := make(map[string]int)
	colSet := make(map[string]int)
	for _, r := range rowLabels {
		rowSet[r] = 0
	}
	for _, c := range colLabels {
		colSet[c] = 0
	}

	rows := sortedKeys(rowSet)
	cols := sortedKeys(colSet)
	for i, r := range rows {
		rowSet[r] = i
	}
	for j, c := range cols {
		colSet[c] = j
	}

	observed := make([][]float64, len(rows))
	for i := range observed {
		observed[i] = make([]float64, len(cols))
	}
	for k := range rowLabels {
		observed[rowSet[rowLabels[k]]][colSet[colLabels[k]]]++
	}
	return rows, cols, observed
}

// chiSquare computes the Pearson chi-square statistic, df, p-value and
// Cramér's V. Cells with zero expected count contribute zero (limit
// convention), so tables with empty cells return finite statistics
// instead of dividing by zero.
func chiSquare(observed [][]float64) (chi2 float64, df int, p float64, cramersV float64) {
	r := len(observed)
	c := len(observed[0])

	rowSums := make([]float64, r)
	colSums := make([]float64, c)
	var total float64
	for i := range observed {
		for j := range observed[i] {
			rowSums[i] += observed[i][j]
			colSums[j] += observed[i][j]
			total += observed[i][j]
		}
	}

	if total == 0 || r < 2 || c < 2 {
		return math.NaN(), (r - 1) * (c - 1), math.NaN(), math.NaN()
	}

	for i := range observed {
		for j := range observed[i] {
			expected := rowSums[i] * colSums[j] / total
			if expected == 0 {
				continue
			}
			d := observed[i][j] - expected
			chi2 += d * d / expected
		}
	}

	df = (r - 1) * (c - 1)
	if df > 0 {
		dist := distuv.ChiSquared{K: float64(df)}
		p = 1 - dist.CDF(chi2)
	} else {
		p = math.NaN()
	}

	minDim := float64(min(r, c) - 1)
	if minDim > 0 {
		cramersV = math.Sqrt(chi2 / (total * minDim))
	} else {
		cramersV = math.NaN()
	}
	return chi2, df, p, cramersV
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
