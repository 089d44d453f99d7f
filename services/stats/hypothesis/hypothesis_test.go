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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

func newReq(t *testing.T, rows []stats.Row, params map[string]any) *stats.Request {
	t.Helper()
	req, err := stats.NewRequest(rows, params)
	require.NoError(t, err, "request construction should not fail")
	return req
}

func results(t *testing.T, out map[string]any) map[string]any {
	t.Helper()
	res, ok := out["results"].(map[string]any)
	require.True(t, ok, "output should carry a results object")
	return res
}

func scoreRows(values []float64) []stats.Row {
	rows := make([]stats.Row, len(values))
	for i, v := range values {
		rows[i] = stats.Row{"score": v}
	}
	return rows
}

func groupedRows(groups map[string][]float64, order []string) []stats.Row {
	var rows []stats.Row
	for _, g := range order {
		for _, v := range groups[g] {
			rows = append(rows, stats.Row{"score": v, "group": g})
		}
	}
	return rows
}

func TestOneSampleTAtHypothesizedMean(t *testing.T) {
	req := newReq(t, scoreRows([]float64{1, 2, 3, 4, 5}),
		map[string]any{"variable": "score", "mu": 3.0})

	out, err := oneSampleT{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	assert.InDelta(t, 0, res["t"].(float64), 1e-12, "mean equals mu so t is zero")
	assert.InDelta(t, 1, res["p_value"].(float64), 1e-12)
	assert.Equal(t, "two-sided", res["alternative"])
}

func TestOneSampleTZeroVariance(t *testing.T) {
	req := newReq(t, scoreRows([]float64{4, 4, 4}),
		map[string]any{"variable": "score", "mu": 0.0})

	_, err := oneSampleT{}.Run(context.Background(), req)
	require.ErrorIs(t, err, stats.ErrDegenerate)
}

func TestOneSampleTRejectsBadAlternative(t *testing.T) {
	req := newReq(t, scoreRows([]float64{1, 2, 3}),
		map[string]any{"variable": "score", "alternative": "sideways"})

	_, err := oneSampleT{}.Run(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alternative")
}

func TestIndependentTKnownValues(t *testing.T) {
	rows := groupedRows(map[string][]float64{
		"a": {1, 2, 3, 4, 5},
		"b": {2, 3, 4, 5, 6},
	}, []string{"a", "b"})
	req := newReq(t, rows, map[string]any{"variable": "score", "group": "group"})

	out, err := independentT{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	assert.InDelta(t, -1, res["mean_difference"].(float64), 1e-12)

	student := res["student"].(map[string]any)
	// Equal variances of 2.5 give pooled se of 1, so t = -1 with df 8.
	assert.InDelta(t, -1, student["t"].(float64), 1e-12)
	assert.InDelta(t, 8, student["df"].(float64), 1e-12)

	welch := res["welch"].(map[string]any)
	assert.InDelta(t, -1, welch["t"].(float64), 1e-12)
	assert.InDelta(t, 8, welch["df"].(float64), 1e-9, "equal variances recover Student df")

	levene := res["levene"].(map[string]any)
	assert.Greater(t, levene["p_value"].(float64), 0.9, "identical spreads should not flag Levene")
}

func TestIndependentTRequiresTwoGroups(t *testing.T) {
	rows := groupedRows(map[string][]float64{
		"a": {1, 2}, "b": {3, 4}, "c": {5, 6},
	}, []string{"a", "b", "c"})
	req := newReq(t, rows, map[string]any{"variable": "score", "group": "group"})

	_, err := independentT{}.Run(context.Background(), req)
	require.ErrorIs(t, err, stats.ErrBadParameter)
}

func TestPairedTKnownValues(t *testing.T) {
	rows := []stats.Row{
		{"pre": 2.0, "post": 1.0},
		{"pre": 4.0, "post": 3.0},
		{"pre": 6.0, "post": 5.0},
		{"pre": 8.0, "post": 9.0},
	}
	req := newReq(t, rows, map[string]any{"first": "pre", "second": "post"})

	out, err := pairedT{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	// Differences are 1, 1, 1, -1: mean 0.5, sd 1, t = 1 on 3 df.
	assert.InDelta(t, 0.5, res["mean_difference"].(float64), 1e-12)
	assert.InDelta(t, 1, res["t"].(float64), 1e-12)
	assert.InDelta(t, 3, res["df"].(float64), 1e-12)
}

func TestOnewayANOVAKnownValues(t *testing.T) {
	rows := groupedRows(map[string][]float64{
		"a": {1, 2, 3},
		"b": {2, 3, 4},
		"c": {3, 4, 5},
	}, []string{"a", "b", "c"})
	req := newReq(t, rows, map[string]any{"variable": "score", "group": "group"})

	out, err := onewayANOVA{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	assert.InDelta(t, 6, res["ss_between"].(float64), 1e-12)
	assert.InDelta(t, 6, res["ss_within"].(float64), 1e-12)
	assert.InDelta(t, 3, res["f"].(float64), 1e-12)
	assert.InDelta(t, 0.5, res["eta_squared"].(float64), 1e-12)
	assert.InDelta(t, 2, res["df_between"].(float64), 1e-12)
	assert.InDelta(t, 6, res["df_within"].(float64), 1e-12)
}

func TestOnewayANOVADeterministic(t *testing.T) {
	rows := groupedRows(map[string][]float64{
		"a": {1.1, 2.2, 3.3}, "b": {2.5, 3.6, 4.7},
	}, []string{"a", "b"})
	params := map[string]any{"variable": "score", "group": "group"}

	first, err := onewayANOVA{}.Run(context.Background(), newReq(t, rows, params))
	require.NoError(t, err)
	second, err := onewayANOVA{}.Run(context.Background(), newReq(t, rows, params))
	require.NoError(t, err)
	assert.Equal(t, first, second, "identical input must produce identical output")
}

func TestTwowayANOVAMainEffectOnly(t *testing.T) {
	var rows []stats.Row
	cell := func(a, b string, values ...float64) {
		for _, v := range values {
			rows = append(rows, stats.Row{"y": v, "a": a, "b": b})
		}
	}
	cell("a1", "b1", 10.1, 9.9)
	cell("a1", "b2", 10.2, 9.8)
	cell("a2", "b1", 20.1, 19.9)
	cell("a2", "b2", 20.2, 19.8)

	req := newReq(t, rows, map[string]any{
		"variable": "y", "factor_a": "a", "factor_b": "b",
	})
	out, err := twowayANOVA{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	effects := res["effects"].([]map[string]any)
	require.Len(t, effects, 3)

	assert.Less(t, effects[0]["p_value"].(float64), 1e-6, "factor a carries the signal")
	assert.InDelta(t, 0, effects[1]["ss"].(float64), 1e-9, "factor b means are identical")
	assert.InDelta(t, 0, effects[2]["ss"].(float64), 1e-9, "no interaction present")
}

func TestANCOVARecoversSlopeAndAdjustedMeans(t *testing.T) {
	noise := []float64{0.1, -0.1, 0.1, -0.1, 0}
	var rows []stats.Row
	for i := 0; i < 5; i++ {
		x := float64(i + 1)
		rows = append(rows, stats.Row{"y": 2*x + noise[i], "x": x, "group": "ctl"})
		rows = append(rows, stats.Row{"y": 2*x + 5 - noise[i], "x": x, "group": "trt"})
	}
	req := newReq(t, rows, map[string]any{
		"variable": "y", "group": "group", "covariate": "x",
	})

	out, err := ancovaAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	assert.InDelta(t, 2, res["common_slope"].(float64), 0.1)
	assert.Less(t, res["p_value"].(float64), 1e-6)

	adjusted := res["adjusted_means"].([]map[string]any)
	require.Len(t, adjusted, 2)
	diff := adjusted[1]["adjusted_mean"].(float64) - adjusted[0]["adjusted_mean"].(float64)
	assert.InDelta(t, 5, diff, 0.3, "adjusted means recover the group shift")
}

func TestMANCOVASeparatedGroups(t *testing.T) {
	jitter := []float64{0.3, -0.2, 0.1, -0.3, 0.2, -0.1}
	var rows []stats.Row
	for i := 0; i < 6; i++ {
		rows = append(rows, stats.Row{
			"v1": jitter[i], "v2": -jitter[(i+1)%6], "group": "a",
		})
		rows = append(rows, stats.Row{
			"v1": 5 + jitter[(i+2)%6], "v2": 5 - jitter[(i+3)%6], "group": "b",
		})
	}
	req := newReq(t, rows, map[string]any{
		"variables": []string{"v1", "v2"}, "group": "group",
	})

	out, err := mancovaAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	lambda := res["wilks_lambda"].(float64)
	assert.Greater(t, lambda, 0.0)
	assert.Less(t, lambda, 0.1, "well-separated groups should shrink Wilks' lambda")
	assert.Less(t, res["p_value"].(float64), 1e-6)
}

func TestMannWhitneyFullySeparated(t *testing.T) {
	rows := groupedRows(map[string][]float64{
		"a": {1, 2, 3}, "b": {4, 5, 6},
	}, []string{"a", "b"})
	req := newReq(t, rows, map[string]any{"variable": "score", "group": "group"})

	out, err := mannWhitney{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	assert.InDelta(t, 0, res["u"].(float64), 1e-12, "no overlap gives U = 0")
	assert.InDelta(t, 9, res["u2"].(float64), 1e-12)
	assert.InDelta(t, -1.964, res["z"].(float64), 1e-3)
}

func TestKruskalWallisKnownH(t *testing.T) {
	rows := groupedRows(map[string][]float64{
		"a": {1, 2, 3}, "b": {4, 5, 6}, "c": {7, 8, 9},
	}, []string{"a", "b", "c"})
	req := newReq(t, rows, map[string]any{"variable": "score", "group": "group"})

	out, err := kruskalWallis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	assert.InDelta(t, 7.2, res["h"].(float64), 1e-9)
	assert.Equal(t, 2, res["df"])
	assert.Less(t, res["p_value"].(float64), 0.05)
}

func TestWilcoxonSignedRanks(t *testing.T) {
	rows := []stats.Row{
		{"pre": 1.0, "post": 3.0},
		{"pre": 2.0, "post": 1.0},
		{"pre": 3.0, "post": 5.0},
		{"pre": 4.0, "post": 2.0},
		{"pre": 5.0, "post": 8.0},
		{"pre": 6.0, "post": 4.0},
	}
	req := newReq(t, rows, map[string]any{"first": "pre", "second": "post"})

	out, err := wilcoxonSigned{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	wPlus := res["w_plus"].(float64)
	wMinus := res["w_minus"].(float64)
	assert.InDelta(t, 21, wPlus+wMinus, 1e-12, "ranks 1..6 must be fully assigned")
	assert.Equal(t, 6, res["n"])
	p := res["p_value"].(float64)
	assert.Greater(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)
}

func TestWilcoxonDropsZeroDifferences(t *testing.T) {
	rows := []stats.Row{
		{"pre": 1.0, "post": 1.0},
		{"pre": 2.0, "post": 2.0},
		{"pre": 3.0, "post": 4.0},
		{"pre": 4.0, "post": 2.0},
	}
	req := newReq(t, rows, map[string]any{"first": "pre", "second": "post"})

	_, err := wilcoxonSigned{}.Run(context.Background(), req)
	require.ErrorIs(t, err, stats.ErrInsufficientData, "too few nonzero differences")
}

func TestLeveneIdenticalSpreads(t *testing.T) {
	w, p := leveneStatistic([][]float64{
		{1, 2, 3, 4, 5},
		{10, 11, 12, 13, 14},
	}, "median")
	assert.InDelta(t, 0, w, 1e-12, "shifted copies have identical deviations")
	assert.InDelta(t, 1, p, 1e-12)
}

func TestLeveneEndpointDetectsUnequalVariance(t *testing.T) {
	rows := groupedRows(map[string][]float64{
		"tight": {10, 10.1, 9.9, 10.05, 9.95, 10.02, 9.98},
		"wide":  {10, 18, 2, 15, 5, 19, 1},
	}, []string{"tight", "wide"})
	req := newReq(t, rows, map[string]any{"variable": "score", "group": "group"})

	out, err := leveneAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	assert.Less(t, res["p_value"].(float64), 0.01)
	assert.Equal(t, "median", res["center"])
}

func TestRankWithTiesAveragesTieGroups(t *testing.T) {
	ranks := rankWithTies([]float64{3, 1, 3, 2})
	assert.Equal(t, []float64{3.5, 1, 3.5, 2}, ranks)
}

func TestTieCorrectionCountsTieGroups(t *testing.T) {
	// Two ties of size 2: 2*(8-2) = 12.
	assert.InDelta(t, 12, tieCorrection([]float64{1, 1, 2, 3, 3}), 1e-12)
	assert.InDelta(t, 0, tieCorrection([]float64{1, 2, 3}), 1e-12)
}

func TestEffectsCodeSumToZero(t *testing.T) {
	levels, cols := effectsCode([]string{"b", "a", "c", "a", "b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, levels)
	require.Len(t, cols, 2)
	for _, col := range cols {
		var sum float64
		for _, v := range col {
			sum += v
		}
		assert.InDelta(t, 0, sum, 1e-12, "balanced data should code to zero-sum columns")
	}
}

func TestAnalysesNamesAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, a := range Analyses() {
		assert.False(t, seen[a.Name()], "duplicate analysis name %q", a.Name())
		seen[a.Name()] = true
		assert.NotEmpty(t, a.Summary())
	}
	assert.Len(t, seen, 11)
}
