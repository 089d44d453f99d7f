// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hypothesis

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

type mannWhitneyParams struct {
	Variable string `json:"variable" validate:"required"`
	Group    string `json:"group" validate:"required"`
}

type mannWhitney struct{}

func (mannWhitney) Name() string { return "mann-whitney" }

func (mannWhitney) Summary() string {
	return "Mann-Whitney U test with tie-corrected normal approximation"
}

func (mannWhitney) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p mannWhitneyParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	groups, order, err := table.Grouped(p.Variable, p.Group)
	if err != nil {
		return nil, err
	}
	if len(order) != 2 {
		return nil, fmt.Errorf("%w: Mann-Whitney requires exactly 2 groups, got %d",
			stats.ErrBadParameter, len(order))
	}
	a, b := groups[order[0]], groups[order[1]]
	n1, n2 := float64(len(a)), float64(len(b))
	if n1 < 1 || n2 < 1 {
		return nil, fmt.Errorf("%w: both groups need observations", stats.ErrInsufficientData)
	}

	combined := append(append([]float64(nil), a...), b...)
	ranks := rankWithTies(combined)

	var r1 float64
	for i := 0; i < len(a); i++ {
		r1 += ranks[i]
	}
	u1 := r1 - n1*(n1+1)/2
	u2 := n1*n2 - u1
	u := math.Min(u1, u2)

	n := n1 + n2
	tieTerm := tieCorrection(combined)
	variance := n1 * n2 / 12 * ((n + 1) - tieTerm/(n*(n-1)))

	z := math.NaN()
	pValue := math.NaN()
	if variance > 0 {
		z = (u - n1*n2/2) / math.Sqrt(variance)
		norm := distuv.Normal{Mu: 0, Sigma: 1}
		pValue = 2 * norm.CDF(-math.Abs(z))
	}

	return map[string]any{
		"results": map[string]any{
			"u":          u,
			"u1":         u1,
			"u2":         u2,
			"z":          z,
			"p_value":    pValue,
			"n1":         len(a),
			"n2":         len(b),
			"rank_sum_1": r1,
			"groups":     order,
		},
	}, nil
}

type kruskalParams struct {
	Variable string `json:"variable" validate:"required"`
	Group    string `json:"group" validate:"required"`
}

type kruskalWallis struct{}

func (kruskalWallis) Name() string { return "kruskal" }

func (kruskalWallis) Summary() string {
	return "Kruskal-Wallis H test with tie correction"
}

func (kruskalWallis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p kruskalParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	groups, order, err := table.Grouped(p.Variable, p.Group)
	if err != nil {
		return nil, err
	}
	if len(order) < 2 {
		return nil, fmt.Errorf("%w: Kruskal-Wallis requires at least 2 groups, got %d",
			stats.ErrBadParameter, len(order))
	}

	var combined []float64
	sizes := make([]int, len(order))
	for gi, g := range order {
		sizes[gi] = len(groups[g])
		combined = append(combined, groups[g]...)
	}
	n := float64(len(combined))
	if n < 3 {
		return nil, fmt.Errorf("%w: too few observations", stats.ErrInsufficientData)
	}
	ranks := rankWithTies(combined)

	var h float64
	offset := 0
	groupTable := make([]map[string]any, 0, len(order))
	for gi, g := range order {
		ni := float64(sizes[gi])
		var rSum float64
		for i := 0; i < sizes[gi]; i++ {
			rSum += ranks[offset+i]
		}
		offset += sizes[gi]
		h += rSum * rSum / ni
		groupTable = append(groupTable, map[string]any{
			"group": g, "n": sizes[gi], "mean_rank": rSum / ni,
		})
	}
	h = 12/(n*(n+1))*h - 3*(n+1)

	// Tie correction divides H by 1 - sum(t^3-t)/(n^3-n).
	tieTerm := tieCorrection(combined)
	correction := 1 - tieTerm/(n*n*n-n)
	if correction <= 0 {
		return nil, fmt.Errorf("%w: all observations are tied", stats.ErrDegenerate)
	}
	h /= correction

	df := len(order) - 1
	dist := distuv.ChiSquared{K: float64(df)}
	pValue := 1 - dist.CDF(h)

	return map[string]any{
		"results": map[string]any{
			"h":       h,
			"df":      df,
			"p_value": pValue,
			"n":       int(n),
			"groups":  groupTable,
		},
	}, nil
}

type wilcoxonParams struct {
	First  string `json:"first" validate:"required"`
	Second string `json:"second" validate:"required"`
}

type wilcoxonSigned struct{}

func (wilcoxonSigned) Name() string { return "wilcoxon" }

func (wilcoxonSigned) Summary() string {
	return "Wilcoxon signed-rank test for paired samples"
}

func (wilcoxonSigned) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p wilcoxonParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	cols, err := table.Columns(p.First, p.Second)
	if err != nil {
		return nil, err
	}

	// Zero differences drop out of the test.
	var diffs []float64
	for i := range cols[0] {
		d := cols[0][i] - cols[1][i]
		if d != 0 {
			diffs = append(diffs, d)
		}
	}
	n := float64(len(diffs))
	if n < 5 {
		return nil, fmt.Errorf("%w: Wilcoxon requires at least 5 nonzero differences, got %d",
			stats.ErrInsufficientData, len(diffs))
	}

	abs := make([]float64, len(diffs))
	for i, d := range diffs {
		abs[i] = math.Abs(d)
	}
	ranks := rankWithTies(abs)

	var wPlus, wMinus float64
	for i, d := range diffs {
		if d > 0 {
			wPlus += ranks[i]
		} else {
			wMinus += ranks[i]
		}
	}
	w := math.Min(wPlus, wMinus)

	meanW := n * (n + 1) / 4
	varW := n * (n + 1) * (2*n + 1) / 24
	// Tie correction subtracts sum(t^3-t)/48.
	varW -= tieCorrection(abs) / 48
	if varW <= 0 {
		return nil, fmt.Errorf("%w: no variance in ranks", stats.ErrDegenerate)
	}

	z := (w - meanW) / math.Sqrt(varW)
	norm := distuv.Normal{Mu: 0, Sigma: 1}
	pValue := 2 * norm.CDF(-math.Abs(z))

	return map[string]any{
		"results": map[string]any{
			"w":       w,
			"w_plus":  wPlus,
			"w_minus": wMinus,
			"z":       z,
			"p_value": pValue,
			"n":       len(diffs),
		},
	}, nil
}

// rankWithTies returns 1-based average ranks.
func rankWithTies(xs []float64) []float64 {
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

// tieCorrection returns sum over tie groups of t^3 - t.
func tieCorrection(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	var sum float64
	for i := 0; i < len(sorted); {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[i] {
			j++
		}
		t := float64(j - i + 1)
		if t > 1 {
			sum += t*t*t - t
		}
		i = j + 1
	}
	return sum
}
