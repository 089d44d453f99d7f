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

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/AleutianStats/pkg/render"
	"github.com/AleutianAI/AleutianStats/services/stats"
)

type correlationParams struct {
	Variables []string `json:"variables" validate:"required,min=2"`
	Method    string   `json:"method" validate:"omitempty,oneof=pearson spearman kendall"`
	Plot      bool     `json:"plot"`
}

type correlationAnalysis struct{}

func (correlationAnalysis) Name() string { return "correlation" }

func (correlationAnalysis) Summary() string {
	return "Pearson, Spearman, or Kendall correlation matrix with p-values"
}

func (correlationAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p correlationParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	if p.Method == "" {
		p.Method = "pearson"
	}

	cols, err := table.Columns(p.Variables...)
	if err != nil {
		return nil, err
	}
	n := len(cols[0])
	if n < 3 {
		return nil, fmt.Errorf("%w: correlation requires at least 3 complete rows, got %d",
			stats.ErrInsufficientData, n)
	}

	k := len(cols)
	rMatrix := make([][]float64, k)
	pMatrix := make([][]float64, k)
	for i := range rMatrix {
		rMatrix[i] = make([]float64, k)
		pMatrix[i] = make([]float64, k)
		rMatrix[i][i] = 1
		pMatrix[i][i] = math.NaN()
	}
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			r, pv := correlate(cols[i], cols[j], p.Method)
			rMatrix[i][j], rMatrix[j][i] = r, r
			pMatrix[i][j], pMatrix[j][i] = pv, pv
		}
	}

	out := map[string]any{
		"results": map[string]any{
			"variables":    p.Variables,
			"method":       p.Method,
			"correlations": rMatrix,
			"p_values":     pMatrix,
			"n":            n,
		},
	}
	if p.Plot {
		uri, err := render.Scatter(cols[0], cols[1],
			fmt.Sprintf("%s vs %s", p.Variables[0], p.Variables[1]),
			p.Variables[0], p.Variables[1])
		if err != nil {
			return nil, err
		}
		out["plot"] = uri
	}
	return out, nil
}

// correlate returns the coefficient and two-sided p-value for one pair.
func correlate(x, y []float64, method string) (float64, float64) {
	n := float64(len(x))
	switch method {
	case "spearman":
		r := stat.Correlation(rankAvg(x), rankAvg(y), nil)
		return r, tTestR(r, n)
	case "kendall":
		tau := stat.Kendall(x, y, nil)
		// Normal approximation for tau under independence.
		z := 3 * tau * math.Sqrt(n*(n-1)) / math.Sqrt(2*(2*n+5))
		norm := distuv.Normal{Mu: 0, Sigma: 1}
		return tau, 2 * norm.CDF(-math.Abs(z))
	default:
		r := stat.Correlation(x, y, nil)
		return r, tTestR(r, n)
	}
}

// tTestR converts a correlation to a two-sided p-value via the exact
// t transform with n-2 degrees of freedom.
func tTestR(r, n float64) float64 {
	if math.Abs(r) >= 1 {
		return 0
	}
	t := r * math.Sqrt((n-2)/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: n - 2}
	return 2 * dist.CDF(-math.Abs(t))
}

// rankAvg returns average ranks (1-based), assigning tied values the
// mean of their rank positions.
func rankAvg(xs []float64) []float64 {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}
