// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mcdm implements multi-criteria decision methods: AHP
// priority derivation and TOPSIS ranking.
package mcdm

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

// randomIndex is Saaty's consistency index for random matrices of
// order 1..10.
var randomIndex = []float64{0, 0, 0.58, 0.9, 1.12, 1.24, 1.32, 1.41, 1.45, 1.49}

const consistencyTol = 1e-12

// Analyses returns every endpoint in this package.
func Analyses() []stats.Analysis {
	return []stats.Analysis{
		ahpAnalysis{},
		topsisAnalysis{},
	}
}

type ahpParams struct {
	Criteria []string    `json:"criteria" validate:"required,min=2"`
	Matrix   [][]float64 `json:"matrix" validate:"required,min=2"`
}

type ahpAnalysis struct{}

func (ahpAnalysis) Name() string { return "ahp" }

func (ahpAnalysis) Summary() string {
	return "AHP priority weights with consistency ratio"
}

func (ahpAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	var p ahpParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	n := len(p.Criteria)
	if len(p.Matrix) != n {
		return nil, fmt.Errorf("%w: 'matrix' has %d rows for %d criteria",
			stats.ErrBadParameter, len(p.Matrix), n)
	}
	for i, row := range p.Matrix {
		if len(row) != n {
			return nil, fmt.Errorf("%w: 'matrix' row %d has %d entries, want %d",
				stats.ErrBadParameter, i, len(row), n)
		}
		for j, v := range row {
			if v <= 0 {
				return nil, fmt.Errorf("%w: pairwise comparisons must be positive, found %v at [%d][%d]",
					stats.ErrBadParameter, v, i, j)
			}
		}
	}
	if n > len(randomIndex) {
		return nil, fmt.Errorf("%w: AHP supports at most %d criteria",
			stats.ErrBadParameter, len(randomIndex))
	}

	weights, lambdaMax, err := principalEigenvector(p.Matrix)
	if err != nil {
		return nil, err
	}

	nf := float64(n)
	ci := (lambdaMax - nf) / (nf - 1)
	ri := randomIndex[n-1]
	cr := math.NaN()
	if ri > 0 {
		cr = ci / ri
	} else if ci <= consistencyTol {
		cr = 0
	}

	table := make([]map[string]any, n)
	for i, c := range p.Criteria {
		table[i] = map[string]any{"criterion": c, "weight": weights[i]}
	}

	return map[string]any{
		"results": map[string]any{
			"weights":           table,
			"lambda_max":        lambdaMax,
			"consistency_index": ci,
			"consistency_ratio": cr,
			"consistent":        !math.IsNaN(cr) && cr < 0.1,
			"n":                 n,
		},
	}, nil
}

// principalEigenvector returns the Perron eigenvector and eigenvalue
// of a positive matrix, normalized so the weights sum to one.
func principalEigenvector(m [][]float64) ([]float64, float64, error) {
	n := len(m)
	a := mat.NewDense(n, n, nil)
	for i, row := range m {
		a.SetRow(i, row)
	}

	var eig mat.Eigen
	if !eig.Factorize(a, mat.EigenRight) {
		return nil, 0, fmt.Errorf("%w: eigendecomposition of the comparison matrix failed",
			stats.ErrDegenerate)
	}
	values := eig.Values(nil)
	var vectors mat.CDense
	eig.VectorsTo(&vectors)

	// Perron-Frobenius: the dominant eigenvalue of a positive matrix is
	// real and simple, with a single-signed eigenvector.
	lead := 0
	for i, v := range values {
		if cmplx.Abs(v) > cmplx.Abs(values[lead]) {
			lead = i
		}
	}

	weights := make([]float64, n)
	var sum float64
	for i := 0; i < n; i++ {
		weights[i] = real(vectors.At(i, lead))
		sum += weights[i]
	}
	if sum == 0 {
		return nil, 0, fmt.Errorf("%w: comparison matrix collapsed", stats.ErrDegenerate)
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights, real(values[lead]), nil
}
