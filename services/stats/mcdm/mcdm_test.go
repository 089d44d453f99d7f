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
	require.True(t, ok)
	return res
}

func TestAHPPerfectlyConsistentMatrix(t *testing.T) {
	// Weights 4:2:1 expressed as exact ratios.
	req := newReq(t, nil, map[string]any{
		"criteria": []string{"price", "quality", "service"},
		"matrix": [][]float64{
			{1, 2, 4},
			{0.5, 1, 2},
			{0.25, 0.5, 1},
		},
	})

	out, err := ahpAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	weights := res["weights"].([]map[string]any)
	require.Len(t, weights, 3)
	assert.InDelta(t, 4.0/7, weights[0]["weight"].(float64), 1e-9)
	assert.InDelta(t, 2.0/7, weights[1]["weight"].(float64), 1e-9)
	assert.InDelta(t, 1.0/7, weights[2]["weight"].(float64), 1e-9)

	assert.InDelta(t, 3, res["lambda_max"].(float64), 1e-9)
	assert.InDelta(t, 0, res["consistency_ratio"].(float64), 1e-9)
	assert.Equal(t, true, res["consistent"])
}

func TestAHPInconsistentMatrixFlagged(t *testing.T) {
	// a>b, b>c, but c>a: a strongly intransitive judgment set.
	req := newReq(t, nil, map[string]any{
		"criteria": []string{"a", "b", "c"},
		"matrix": [][]float64{
			{1, 5, 0.2},
			{0.2, 1, 5},
			{5, 0.2, 1},
		},
	})

	out, err := ahpAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	assert.Greater(t, res["consistency_ratio"].(float64), 0.1)
	assert.Equal(t, false, res["consistent"])
}

func TestAHPWeightsSolveTheEigenproblem(t *testing.T) {
	// Mildly inconsistent judgments: the reported weights must still be
	// the exact Perron eigenvector, so A*w = lambda_max*w.
	matrix := [][]float64{
		{1, 2, 5},
		{0.5, 1, 3},
		{0.2, 1.0 / 3, 1},
	}
	req := newReq(t, nil, map[string]any{
		"criteria": []string{"a", "b", "c"},
		"matrix":   matrix,
	})

	out, err := ahpAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	lambda := res["lambda_max"].(float64)
	weights := res["weights"].([]map[string]any)

	w := make([]float64, 3)
	var sum float64
	for i := range w {
		w[i] = weights[i]["weight"].(float64)
		sum += w[i]
	}
	assert.InDelta(t, 1, sum, 1e-9)
	for i := range w {
		var aw float64
		for j := range w {
			aw += matrix[i][j] * w[j]
		}
		assert.InDelta(t, lambda*w[i], aw, 1e-9)
	}
	assert.Greater(t, lambda, 3.0)
}

func TestAHPShapeMismatch(t *testing.T) {
	req := newReq(t, nil, map[string]any{
		"criteria": []string{"a", "b", "c"},
		"matrix":   [][]float64{{1, 2}, {0.5, 1}},
	})

	_, err := ahpAnalysis{}.Run(context.Background(), req)
	require.ErrorIs(t, err, stats.ErrBadParameter)
}

func TestAHPRejectsNonPositiveEntries(t *testing.T) {
	req := newReq(t, nil, map[string]any{
		"criteria": []string{"a", "b"},
		"matrix":   [][]float64{{1, 0}, {2, 1}},
	})

	_, err := ahpAnalysis{}.Run(context.Background(), req)
	require.ErrorIs(t, err, stats.ErrBadParameter)
}

func topsisRows() []stats.Row {
	return []stats.Row{
		{"option": "best", "speed": 10.0, "cost": 1.0},
		{"option": "middle", "speed": 6.0, "cost": 5.0},
		{"option": "worst", "speed": 2.0, "cost": 9.0},
	}
}

func TestTOPSISRankingOrder(t *testing.T) {
	req := newReq(t, topsisRows(), map[string]any{
		"alternative": "option",
		"criteria":    []string{"speed", "cost"},
		"weights":     []float64{0.5, 0.5},
		"benefit":     []bool{true, false},
	})

	out, err := topsisAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	ranking := results(t, out)["ranking"].([]map[string]any)
	require.Len(t, ranking, 3)
	assert.Equal(t, "best", ranking[0]["alternative"])
	assert.Equal(t, "worst", ranking[2]["alternative"])

	// The dominant alternative coincides with the ideal point.
	assert.InDelta(t, 1, ranking[0]["closeness"].(float64), 1e-9)
	assert.InDelta(t, 0, ranking[2]["closeness"].(float64), 1e-9)
	assert.Equal(t, 1, ranking[0]["rank"])
}

func TestTOPSISWeightCountMismatch(t *testing.T) {
	req := newReq(t, topsisRows(), map[string]any{
		"alternative": "option",
		"criteria":    []string{"speed", "cost"},
		"weights":     []float64{1},
	})

	_, err := topsisAnalysis{}.Run(context.Background(), req)
	require.ErrorIs(t, err, stats.ErrBadParameter)
}

func TestTOPSISNeedsTwoAlternatives(t *testing.T) {
	rows := []stats.Row{{"option": "only", "speed": 1.0}}
	req := newReq(t, rows, map[string]any{
		"alternative": "option",
		"criteria":    []string{"speed"},
		"weights":     []float64{1},
	})

	_, err := topsisAnalysis{}.Run(context.Background(), req)
	require.ErrorIs(t, err, stats.ErrInsufficientData)
}
