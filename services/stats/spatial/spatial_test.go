// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package spatial

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

func newReq(t *testing.T, rows []stats.Row, params map[string]any) *stats.Request {
	t.Helper()
	req, err := stats.NewRequest(rows, params)
	require.NoError(t, err)
	return req
}

func results(t *testing.T, out map[string]any) map[string]any {
	t.Helper()
	res, ok := out["results"].(map[string]any)
	require.True(t, ok)
	return res
}

// chainWeights builds a row-standardized binary contiguity matrix for
// a 1-D chain of n cells.
func chainWeights(n int) [][]float64 {
	w := make([][]float64, n)
	for i := range w {
		w[i] = make([]float64, n)
		var deg float64
		if i > 0 {
			deg++
		}
		if i < n-1 {
			deg++
		}
		if i > 0 {
			w[i][i-1] = 1 / deg
		}
		if i < n-1 {
			w[i][i+1] = 1 / deg
		}
	}
	return w
}

func valueRows(name string, values []float64) []stats.Row {
	rows := make([]stats.Row, len(values))
	for i, v := range values {
		rows[i] = stats.Row{name: v}
	}
	return rows
}

func TestMoransIPositiveForSmoothGradient(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	req := newReq(t, valueRows("v", values), map[string]any{
		"variable": "v", "weights": chainWeights(8),
	})

	out, err := moranAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	i := res["i"].(float64)
	assert.Greater(t, i, 0.5, "neighbors are similar along a gradient")
	assert.InDelta(t, -1.0/7, res["expected_i"].(float64), 1e-12)
	assert.Greater(t, res["z"].(float64), 2.0)
}

func TestMoransINegativeForAlternatingPattern(t *testing.T) {
	values := []float64{1, -1, 1, -1, 1, -1, 1, -1}
	req := newReq(t, valueRows("v", values), map[string]any{
		"variable": "v", "weights": chainWeights(8),
	})

	out, err := moranAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	assert.Less(t, res["i"].(float64), -0.5, "alternating values repel neighbors")
}

func TestMoransIWeightShapeMismatch(t *testing.T) {
	req := newReq(t, valueRows("v", []float64{1, 2, 3}), map[string]any{
		"variable": "v", "weights": chainWeights(4),
	})

	_, err := moranAnalysis{}.Run(context.Background(), req)
	require.ErrorIs(t, err, stats.ErrBadParameter)
}

func TestMoransIConstantVariable(t *testing.T) {
	req := newReq(t, valueRows("v", []float64{2, 2, 2, 2}), map[string]any{
		"variable": "v", "weights": chainWeights(4),
	})

	_, err := moranAnalysis{}.Run(context.Background(), req)
	require.ErrorIs(t, err, stats.ErrDegenerate)
}

// sarRows generates y = (I - rho*W)^-1 (Xb + e) for a known rho.
func sarRows(t *testing.T, n int, rho float64, w [][]float64) []stats.Row {
	t.Helper()
	x := make([]float64, n)
	rhs := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = float64(i%5) + 1
		noise := 0.05
		if i%2 == 1 {
			noise = -0.05
		}
		rhs[i] = 1 + 0.5*x[i] + noise
	}

	A := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := -rho * w[i][j]
			if i == j {
				v++
			}
			A.Set(i, j, v)
		}
	}
	var y mat.VecDense
	require.NoError(t, y.SolveVec(A, mat.NewVecDense(n, rhs)))

	rows := make([]stats.Row, n)
	for i := 0; i < n; i++ {
		rows[i] = stats.Row{"y": y.AtVec(i), "x": x[i]}
	}
	return rows
}

func TestSARRecoversRho(t *testing.T) {
	const n = 20
	w := chainWeights(n)
	rows := sarRows(t, n, 0.4, w)
	req := newReq(t, rows, map[string]any{
		"dependent": "y", "independents": []string{"x"}, "weights": w,
	})

	out, err := sarAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	assert.InDelta(t, 0.4, res["rho"].(float64), 0.15)

	coefs := res["coefficients"].([]map[string]any)
	require.Len(t, coefs, 2)
	assert.InDelta(t, 0.5, coefs[1]["b"].(float64), 0.1)
	assert.False(t, math.IsNaN(res["log_likelihood"].(float64)))
}

func TestSEMFitsFilteredModel(t *testing.T) {
	const n = 20
	w := chainWeights(n)
	var rows []stats.Row
	for i := 0; i < n; i++ {
		x := float64(i%4) + 1
		noise := 0.3
		if i%3 != 0 {
			noise = -0.15
		}
		rows = append(rows, stats.Row{"y": 2 + 1.5*x + noise, "x": x})
	}
	req := newReq(t, rows, map[string]any{
		"dependent": "y", "independents": []string{"x"}, "weights": w,
	})

	out, err := semAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	lambda := res["lambda"].(float64)
	assert.Greater(t, lambda, -1.0)
	assert.Less(t, lambda, 1.0)

	coefs := res["coefficients"].([]map[string]any)
	assert.InDelta(t, 1.5, coefs[1]["b"].(float64), 0.15)
	assert.Greater(t, res["sigma_squared"].(float64), 0.0)
}

func TestGoldenMaxFindsParabolaPeak(t *testing.T) {
	peak := goldenMax(func(x float64) float64 { return -(x - 0.3) * (x - 0.3) }, -1, 1)
	assert.InDelta(t, 0.3, peak, 1e-6)
}
