// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package spatial implements Moran's I and maximum-likelihood spatial
// lag (SAR) and spatial error (SEM) models over a caller-supplied
// weight matrix.
package spatial

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

// Analyses returns every endpoint in this package.
func Analyses() []stats.Analysis {
	return []stats.Analysis{
		moranAnalysis{},
		sarAnalysis{},
		semAnalysis{},
	}
}

type moranParams struct {
	Variable string      `json:"variable" validate:"required"`
	Weights  [][]float64 `json:"weights" validate:"required,min=2"`
}

type moranAnalysis struct{}

func (moranAnalysis) Name() string { return "morans-i" }

func (moranAnalysis) Summary() string {
	return "Global Moran's I with randomization inference"
}

func (moranAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p moranParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	x, err := table.Column(p.Variable)
	if err != nil {
		return nil, err
	}
	n := len(x)
	if err := checkWeights(p.Weights, n); err != nil {
		return nil, err
	}

	mean := stat.Mean(x, nil)
	z := make([]float64, n)
	var m2 float64
	for i, v := range x {
		z[i] = v - mean
		m2 += z[i] * z[i]
	}
	if m2 == 0 {
		return nil, fmt.Errorf("%w: %q has zero variance", stats.ErrDegenerate, p.Variable)
	}

	var s0, cross float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			s0 += p.Weights[i][j]
			cross += p.Weights[i][j] * z[i] * z[j]
		}
	}
	if s0 == 0 {
		return nil, fmt.Errorf("%w: weight matrix sums to zero", stats.ErrBadParameter)
	}

	nf := float64(n)
	observed := (nf / s0) * (cross / m2)
	expected := -1 / (nf - 1)

	// Randomization variance (Cliff & Ord).
	var s1, s2 float64
	for i := 0; i < n; i++ {
		var rowSum, colSum float64
		for j := 0; j < n; j++ {
			w := p.Weights[i][j] + p.Weights[j][i]
			s1 += w * w
			rowSum += p.Weights[i][j]
			colSum += p.Weights[j][i]
		}
		s2 += (rowSum + colSum) * (rowSum + colSum)
	}
	s1 /= 2

	var m4 float64
	for _, zi := range z {
		m4 += zi * zi * zi * zi
	}
	b2 := nf * m4 / (m2 * m2)

	a := nf * ((nf*nf-3*nf+3)*s1 - nf*s2 + 3*s0*s0)
	b := b2 * ((nf*nf-nf)*s1 - 2*nf*s2 + 6*s0*s0)
	denom := (nf - 1) * (nf - 2) * (nf - 3) * s0 * s0
	variance := (a-b)/denom - expected*expected
	if variance <= 0 {
		return nil, fmt.Errorf("%w: degenerate weight structure", stats.ErrDegenerate)
	}

	zScore := (observed - expected) / math.Sqrt(variance)
	norm := distuv.Normal{Mu: 0, Sigma: 1}
	pValue := 2 * norm.CDF(-math.Abs(zScore))

	return map[string]any{
		"results": map[string]any{
			"i":          observed,
			"expected_i": expected,
			"variance":   variance,
			"z":          zScore,
			"p_value":    pValue,
			"n":          n,
		},
	}, nil
}

// checkWeights validates the weight matrix shape against the data.
func checkWeights(w [][]float64, n int) error {
	if len(w) != n {
		return fmt.Errorf("%w: 'weights' has %d rows for %d observations",
			stats.ErrBadParameter, len(w), n)
	}
	for i, row := range w {
		if len(row) != n {
			return fmt.Errorf("%w: 'weights' row %d has %d entries, want %d",
				stats.ErrBadParameter, i, len(row), n)
		}
		if w[i][i] != 0 {
			return fmt.Errorf("%w: 'weights' diagonal must be zero", stats.ErrBadParameter)
		}
	}
	return nil
}
