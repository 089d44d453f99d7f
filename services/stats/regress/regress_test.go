// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package regress

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	require.True(t, ok, "output should carry a results object")
	return res
}

func TestLinearRecoversExactLine(t *testing.T) {
	var rows []stats.Row
	for i := 1; i <= 8; i++ {
		x := float64(i)
		rows = append(rows, stats.Row{"x": x, "y": 3 + 2*x})
	}
	req := newReq(t, rows, map[string]any{
		"dependent": "y", "independents": []string{"x"},
	})

	out, err := linearRegression{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	coefs := res["coefficients"].([]map[string]any)
	require.Len(t, coefs, 2)
	assert.InDelta(t, 3, coefs[0]["b"].(float64), 1e-9)
	assert.InDelta(t, 2, coefs[1]["b"].(float64), 1e-9)
	assert.InDelta(t, 1, res["r_squared"].(float64), 1e-9)
}

func TestLinearNoisyFitAndDiagnostics(t *testing.T) {
	noise := []float64{0.2, -0.3, 0.1, -0.1, 0.3, -0.2, 0.15, -0.15, 0.05, -0.05}
	var rows []stats.Row
	for i := 0; i < 10; i++ {
		x1 := float64(i)
		x2 := float64(i % 3)
		rows = append(rows, stats.Row{
			"x1": x1, "x2": x2, "y": 1 + 0.5*x1 - 2*x2 + noise[i],
		})
	}
	req := newReq(t, rows, map[string]any{
		"dependent": "y", "independents": []string{"x1", "x2"},
	})

	out, err := linearRegression{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	coefs := res["coefficients"].([]map[string]any)
	assert.InDelta(t, 0.5, coefs[1]["b"].(float64), 0.1)
	assert.InDelta(t, -2, coefs[2]["b"].(float64), 0.2)
	assert.Less(t, coefs[1]["p_value"].(float64), 0.001)

	dw := res["durbin_watson"].(float64)
	assert.Greater(t, dw, 0.0)
	assert.Less(t, dw, 4.0)

	vif := res["vif"].([]map[string]any)
	require.Len(t, vif, 2)
	assert.Less(t, vif[0]["vif"].(float64), 2.0, "x1 and x2 are nearly orthogonal")
}

func TestLinearCollinearPredictors(t *testing.T) {
	var rows []stats.Row
	for i := 1; i <= 6; i++ {
		x := float64(i)
		rows = append(rows, stats.Row{"x1": x, "x2": 2 * x, "y": x + 1})
	}
	req := newReq(t, rows, map[string]any{
		"dependent": "y", "independents": []string{"x1", "x2"},
	})

	_, err := linearRegression{}.Run(context.Background(), req)
	require.ErrorIs(t, err, stats.ErrDegenerate)
}

func TestLinearMissingParameter(t *testing.T) {
	req := newReq(t, []stats.Row{{"y": 1.0}}, map[string]any{"dependent": "y"})

	_, err := linearRegression{}.Run(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "independents")
}

func TestRidgeShrinksTowardZero(t *testing.T) {
	var rows []stats.Row
	for i := 1; i <= 10; i++ {
		x := float64(i)
		rows = append(rows, stats.Row{"x": x, "y": 3 + 2*x})
	}
	params := map[string]any{"dependent": "y", "independents": []string{"x"}}

	small, err := ridgeRegression{}.Run(context.Background(),
		newReq(t, rows, mergeParams(params, "lambda", 0.001)))
	require.NoError(t, err)
	large, err := ridgeRegression{}.Run(context.Background(),
		newReq(t, rows, mergeParams(params, "lambda", 100.0)))
	require.NoError(t, err)

	bSmall := results(t, small)["coefficients"].([]map[string]any)[0]["b"].(float64)
	bLarge := results(t, large)["coefficients"].([]map[string]any)[0]["b"].(float64)
	assert.InDelta(t, 2, bSmall, 0.01, "tiny penalty approximates OLS")
	assert.Less(t, math.Abs(bLarge), math.Abs(bSmall), "heavier penalty shrinks the slope")
}

func TestRidgeConstantPredictor(t *testing.T) {
	rows := []stats.Row{
		{"x": 1.0, "y": 1.0}, {"x": 1.0, "y": 2.0}, {"x": 1.0, "y": 3.0},
	}
	req := newReq(t, rows, map[string]any{
		"dependent": "y", "independents": []string{"x"},
	})

	_, err := ridgeRegression{}.Run(context.Background(), req)
	require.ErrorIs(t, err, stats.ErrDegenerate)
}

func TestLogisticSeparableSlopeSign(t *testing.T) {
	// Outcome flips from 0 to 1 as x grows, with overlap in the middle.
	xs := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 3, 6}
	ys := []float64{0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 0}
	var rows []stats.Row
	for i := range xs {
		rows = append(rows, stats.Row{"x": xs[i], "outcome": ys[i]})
	}
	req := newReq(t, rows, map[string]any{
		"dependent": "outcome", "independents": []string{"x"},
	})

	out, err := logisticRegression{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	coefs := res["coefficients"].([]map[string]any)
	require.Len(t, coefs, 2)
	assert.Greater(t, coefs[1]["b"].(float64), 0.0, "probability rises with x")
	assert.Greater(t, coefs[1]["odds_ratio"].(float64), 1.0)

	assert.Less(t, res["deviance"].(float64), res["null_deviance"].(float64))
	mcf := res["mcfadden_r_squared"].(float64)
	assert.Greater(t, mcf, 0.0)
	assert.Less(t, mcf, 1.0)

	cls := res["classification"].(map[string]any)
	assert.Greater(t, cls["accuracy"].(float64), 0.7)
}

func TestLogisticRejectsNonBinaryOutcome(t *testing.T) {
	rows := []stats.Row{
		{"x": 1.0, "outcome": 0.0},
		{"x": 2.0, "outcome": 2.0},
		{"x": 3.0, "outcome": 1.0},
	}
	req := newReq(t, rows, map[string]any{
		"dependent": "outcome", "independents": []string{"x"},
	})

	_, err := logisticRegression{}.Run(context.Background(), req)
	require.ErrorIs(t, err, stats.ErrBadParameter)
}

func TestLogisticSingleClass(t *testing.T) {
	rows := []stats.Row{
		{"x": 1.0, "outcome": 1.0},
		{"x": 2.0, "outcome": 1.0},
		{"x": 3.0, "outcome": 1.0},
	}
	req := newReq(t, rows, map[string]any{
		"dependent": "outcome", "independents": []string{"x"},
	})

	_, err := logisticRegression{}.Run(context.Background(), req)
	require.ErrorIs(t, err, stats.ErrDegenerate)
}

func mergeParams(base map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[key] = value
	return out
}
