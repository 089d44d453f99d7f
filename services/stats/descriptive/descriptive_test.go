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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

func numericRows(name string, values []float64) []stats.Row {
	rows := make([]stats.Row, len(values))
	for i, v := range values {
		rows[i] = stats.Row{name: v}
	}
	return rows
}

// TestDescribe verifies summary statistics on a known sample.
func TestDescribe(t *testing.T) {
	req, err := stats.NewRequest(numericRows("x", []float64{2, 4, 4, 4, 5, 5, 7, 9}),
		map[string]any{"variables": []string{"x"}})
	require.NoError(t, err)

	out, err := describeAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	x := out["results"].(map[string]any)["x"].(map[string]any)
	assert.Equal(t, 8, x["n"])
	assert.InDelta(t, 5.0, x["mean"].(float64), 1e-12)
	assert.InDelta(t, 2.138089935299395, x["sd"].(float64), 1e-9, "sample sd")
	assert.Equal(t, 2.0, x["min"])
	assert.Equal(t, 9.0, x["max"])
}

// TestDescribe_MissingVariables verifies the contract error message.
func TestDescribe_MissingVariables(t *testing.T) {
	req, err := stats.NewRequest(numericRows("x", []float64{1, 2}), nil)
	require.NoError(t, err)

	_, err = describeAnalysis{}.Run(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, stats.ErrBadParameter)
	assert.Contains(t, err.Error(), `missing "variables"`)
}

// TestFrequency verifies counts, percentages, and ordering.
func TestFrequency(t *testing.T) {
	rows := []stats.Row{
		{"color": "red"}, {"color": "blue"}, {"color": "red"},
		{"color": "green"}, {"color": "red"}, {"color": "blue"},
	}
	req, err := stats.NewRequest(rows, map[string]any{"variables": []string{"color"}})
	require.NoError(t, err)

	out, err := frequencyAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	tableOut := out["results"].(map[string]any)["color"].([]map[string]any)
	require.Len(t, tableOut, 3)
	assert.Equal(t, "red", tableOut[0]["value"], "most frequent first")
	assert.Equal(t, 3, tableOut[0]["count"])
	assert.InDelta(t, 50.0, tableOut[0]["percent"].(float64), 1e-12)
	assert.Equal(t, "blue", tableOut[1]["value"])
	assert.Equal(t, "green", tableOut[2]["value"])
}

// TestCrosstab verifies chi-square on a 2x2 table with a known answer.
func TestCrosstab(t *testing.T) {
	var rows []stats.Row
	add := func(a, b string, n int) {
		for i := 0; i < n; i++ {
			rows = append(rows, stats.Row{"sex": a, "pref": b})
		}
	}
	add("m", "yes", 20)
	add("m", "no", 10)
	add("f", "yes", 10)
	add("f", "no", 20)

	req, err := stats.NewRequest(rows, map[string]any{"row": "sex", "column": "pref"})
	require.NoError(t, err)

	out, err := crosstabAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := out["results"].(map[string]any)
	assert.Equal(t, 1, res["df"])
	// chi2 = 60*(20*20-10*10)^2/(30*30*30*30) = 20/3
	assert.InDelta(t, 20.0/3.0, res["chi_square"].(float64), 1e-9)
	assert.Less(t, res["p_value"].(float64), 0.05)
}

// TestCrosstab_ZeroCell verifies a zero cell never causes a division
// panic and statistics stay finite.
func TestCrosstab_ZeroCell(t *testing.T) {
	var rows []stats.Row
	add := func(a, b string, n int) {
		for i := 0; i < n; i++ {
			rows = append(rows, stats.Row{"g": a, "v": b})
		}
	}
	add("a", "x", 5)
	add("a", "y", 5)
	add("b", "x", 5)
	// cell (b, y) is zero

	req, err := stats.NewRequest(rows, map[string]any{"row": "g", "column": "v"})
	require.NoError(t, err)

	out, err := crosstabAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := out["results"].(map[string]any)
	chi2 := res["chi_square"].(float64)
	assert.False(t, math.IsNaN(chi2) || math.IsInf(chi2, 0), "statistic must stay finite")
}

// TestCorrelation_Pearson verifies a perfect linear relationship.
func TestCorrelation_Pearson(t *testing.T) {
	rows := make([]stats.Row, 10)
	for i := range rows {
		x := float64(i)
		rows[i] = stats.Row{"x": x, "y": 2*x + 1}
	}
	req, err := stats.NewRequest(rows, map[string]any{"variables": []string{"x", "y"}})
	require.NoError(t, err)

	out, err := correlationAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := out["results"].(map[string]any)
	r := res["correlations"].([][]float64)
	assert.InDelta(t, 1.0, r[0][1], 1e-12)
}

// TestCorrelation_Spearman verifies rank correlation on a monotone
// nonlinear relationship.
func TestCorrelation_Spearman(t *testing.T) {
	rows := make([]stats.Row, 10)
	for i := range rows {
		x := float64(i + 1)
		rows[i] = stats.Row{"x": x, "y": x * x * x}
	}
	req, err := stats.NewRequest(rows, map[string]any{
		"variables": []string{"x", "y"},
		"method":    "spearman",
	})
	require.NoError(t, err)

	out, err := correlationAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	r := out["results"].(map[string]any)["correlations"].([][]float64)
	assert.InDelta(t, 1.0, r[0][1], 1e-12, "monotone data has perfect rank correlation")
}

// TestRankAvg verifies tied values receive averaged ranks.
func TestRankAvg(t *testing.T) {
	ranks := rankAvg([]float64{10, 20, 20, 30})
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, ranks)
}

// TestOutliers_IQR verifies fence computation and flagging.
func TestOutliers_IQR(t *testing.T) {
	values := []float64{1, 2, 2, 3, 3, 3, 4, 4, 100}
	req, err := stats.NewRequest(numericRows("x", values),
		map[string]any{"variables": []string{"x"}})
	require.NoError(t, err)

	out, err := outlierAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := out["results"].(map[string]any)["x"].(map[string]any)
	assert.Equal(t, 1, res["count"])
	assert.Equal(t, []float64{100}, res["values"])
}

// TestOutliers_ZScoreConstant verifies a constant column flags nothing
// instead of dividing by zero.
func TestOutliers_ZScoreConstant(t *testing.T) {
	req, err := stats.NewRequest(numericRows("x", []float64{5, 5, 5, 5, 5}),
		map[string]any{"variables": []string{"x"}, "method": "zscore"})
	require.NoError(t, err)

	out, err := outlierAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := out["results"].(map[string]any)["x"].(map[string]any)
	assert.Equal(t, 0, res["count"])
}

// TestReliability_PerfectCorrelation verifies alpha approaches 1 for
// perfectly correlated items.
func TestReliability_PerfectCorrelation(t *testing.T) {
	rows := make([]stats.Row, 12)
	for i := range rows {
		v := float64(i)
		rows[i] = stats.Row{"q1": v, "q2": v, "q3": v}
	}
	req, err := stats.NewRequest(rows, map[string]any{"items": []string{"q1", "q2", "q3"}})
	require.NoError(t, err)

	out, err := reliabilityAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := out["results"].(map[string]any)
	assert.InDelta(t, 1.0, res["alpha"].(float64), 1e-12)
}
