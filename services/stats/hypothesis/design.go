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
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

// olsFit holds the pieces the linear-model tests need: coefficients in
// design order, the residual sum of squares, and residual df.
type olsFit struct {
	beta []float64
	sse  float64
	df   int
}

// fitOLS solves least squares of y on X (X already includes the
// intercept column) and returns coefficients and residual SS.
func fitOLS(X *mat.Dense, y []float64) (*olsFit, error) {
	n, p := X.Dims()
	if n <= p {
		return nil, fmt.Errorf("%w: %d observations for %d model terms",
			stats.ErrInsufficientData, n, p)
	}

	yv := mat.NewVecDense(n, y)
	var beta mat.VecDense
	if err := beta.SolveVec(X, yv); err != nil {
		return nil, fmt.Errorf("%w: singular design matrix", stats.ErrDegenerate)
	}

	var fitted mat.VecDense
	fitted.MulVec(X, &beta)
	var sse float64
	for i := 0; i < n; i++ {
		r := y[i] - fitted.AtVec(i)
		sse += r * r
	}

	coefs := make([]float64, p)
	for j := 0; j < p; j++ {
		coefs[j] = beta.AtVec(j)
	}
	return &olsFit{beta: coefs, sse: sse, df: n - p}, nil
}

// effectsCode builds sum-to-zero coded columns for a factor: k-1
// columns where the last (sorted) level is the -1 reference.
func effectsCode(labels []string) ([]string, [][]float64) {
	set := make(map[string]struct{})
	for _, l := range labels {
		set[l] = struct{}{}
	}
	levels := make([]string, 0, len(set))
	for l := range set {
		levels = append(levels, l)
	}
	sort.Strings(levels)

	index := make(map[string]int, len(levels))
	for i, l := range levels {
		index[l] = i
	}

	k := len(levels)
	cols := make([][]float64, k-1)
	for j := range cols {
		cols[j] = make([]float64, len(labels))
	}
	for i, l := range labels {
		li := index[l]
		if li == k-1 {
			for j := range cols {
				cols[j][i] = -1
			}
		} else {
			cols[li][i] = 1
		}
	}
	return levels, cols
}

// interactionCols multiplies every pair of columns from two coded
// factors.
func interactionCols(a, b [][]float64) [][]float64 {
	var out [][]float64
	for _, ca := range a {
		for _, cb := range b {
			col := make([]float64, len(ca))
			for i := range ca {
				col[i] = ca[i] * cb[i]
			}
			out = append(out, col)
		}
	}
	return out
}

// buildDesign assembles a design matrix with a leading intercept
// column followed by the given column groups.
func buildDesign(n int, colGroups ...[][]float64) *mat.Dense {
	p := 1
	for _, g := range colGroups {
		p += len(g)
	}
	X := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1)
	}
	j := 1
	for _, g := range colGroups {
		for _, col := range g {
			for i := 0; i < n; i++ {
				X.Set(i, j, col[i])
			}
			j++
		}
	}
	return X
}
