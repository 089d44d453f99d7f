// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package survival

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
	require.True(t, ok)
	return res
}

func TestKMCurveProductLimit(t *testing.T) {
	// Events at 1, 2, 4; censored at 3. Classic textbook ladder.
	subjects := []subject{
		{time: 1, event: true},
		{time: 2, event: true},
		{time: 3, event: false},
		{time: 4, event: true},
		{time: 5, event: false},
	}
	steps := kmCurve(subjects)
	require.Len(t, steps, 3)

	assert.InDelta(t, 0.8, steps[0].survival, 1e-12)   // 1 - 1/5
	assert.InDelta(t, 0.6, steps[1].survival, 1e-12)   // 0.8 * (1 - 1/4)
	assert.InDelta(t, 0.3, steps[2].survival, 1e-12)   // 0.6 * (1 - 1/2)
	assert.Equal(t, 2, steps[2].atRisk, "censoring at 3 removes one subject")
}

func TestKMEndpointSingleGroup(t *testing.T) {
	rows := []stats.Row{
		{"t": 1.0, "d": 1.0}, {"t": 2.0, "d": 1.0}, {"t": 3.0, "d": 0.0},
		{"t": 4.0, "d": 1.0}, {"t": 5.0, "d": 0.0},
	}
	req := newReq(t, rows, map[string]any{"time": "t", "event": "d"})

	out, err := kmAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	curves := res["curves"].([]map[string]any)
	require.Len(t, curves, 1)
	assert.Equal(t, "all", curves[0]["group"])
	assert.Equal(t, 4.0, curves[0]["median_survival"], "S(t) first reaches 0.5 at t=4")
	_, hasLogRank := res["log_rank"]
	assert.False(t, hasLogRank, "single stratum has nothing to compare")
}

func TestKMLogRankSeparatedGroups(t *testing.T) {
	var rows []stats.Row
	for _, tm := range []float64{1, 2, 2, 3, 3, 4} {
		rows = append(rows, stats.Row{"t": tm, "d": 1.0, "arm": "a"})
	}
	for _, tm := range []float64{8, 9, 9, 10, 11, 12} {
		rows = append(rows, stats.Row{"t": tm, "d": 1.0, "arm": "b"})
	}
	req := newReq(t, rows, map[string]any{"time": "t", "event": "d", "group": "arm"})

	out, err := kmAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	lr := res["log_rank"].(map[string]any)
	assert.Equal(t, 1, lr["df"])
	assert.Less(t, lr["p_value"].(float64), 0.01, "fully separated survival times")
}

func TestKMRejectsBadEventCoding(t *testing.T) {
	rows := []stats.Row{
		{"t": 1.0, "d": 2.0}, {"t": 2.0, "d": 1.0},
	}
	req := newReq(t, rows, map[string]any{"time": "t", "event": "d"})

	_, err := kmAnalysis{}.Run(context.Background(), req)
	require.ErrorIs(t, err, stats.ErrBadParameter)
}

// aftRows generates Weibull-ish survival data where x stretches time:
// times are exp(1 + 0.8*x) scaled by fixed quantile positions.
func aftRows() []stats.Row {
	quantiles := []float64{0.4, 0.7, 0.9, 1.1, 1.3, 1.8}
	var rows []stats.Row
	for _, x := range []float64{0, 0.5, 1, 1.5, 2} {
		for i, q := range quantiles {
			event := 1.0
			if i == len(quantiles)-1 {
				event = 0 // censor the longest time in each stratum
			}
			rows = append(rows, stats.Row{
				"t": q * math.Exp(1+0.8*x), "d": event, "x": x,
			})
		}
	}
	return rows
}

func TestAFTRecoversCovariateDirection(t *testing.T) {
	req := newReq(t, aftRows(), map[string]any{
		"time": "t", "event": "d", "independents": []string{"x"},
	})

	out, err := aftAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := results(t, out)
	coefs := res["coefficients"].([]map[string]any)
	require.Len(t, coefs, 2)

	slope := coefs[1]["b"].(float64)
	assert.InDelta(t, 0.8, slope, 0.25, "x accelerates survival time")
	assert.Greater(t, coefs[1]["time_ratio"].(float64), 1.0)
	assert.Greater(t, res["shape"].(float64), 0.0)
	assert.Equal(t, 30, res["n"])
	assert.Equal(t, 25, res["events"])
}

func TestAFTAllCensored(t *testing.T) {
	rows := []stats.Row{
		{"t": 1.0, "d": 0.0, "x": 1.0},
		{"t": 2.0, "d": 0.0, "x": 2.0},
		{"t": 3.0, "d": 0.0, "x": 3.0},
		{"t": 4.0, "d": 0.0, "x": 4.0},
	}
	req := newReq(t, rows, map[string]any{
		"time": "t", "event": "d", "independents": []string{"x"},
	})

	_, err := aftAnalysis{}.Run(context.Background(), req)
	require.ErrorIs(t, err, stats.ErrDegenerate)
}

func TestAFTNonPositiveTime(t *testing.T) {
	rows := []stats.Row{
		{"t": 0.0, "d": 1.0, "x": 1.0},
		{"t": 2.0, "d": 1.0, "x": 2.0},
		{"t": 3.0, "d": 1.0, "x": 3.0},
		{"t": 4.0, "d": 0.0, "x": 4.0},
	}
	req := newReq(t, rows, map[string]any{
		"time": "t", "event": "d", "independents": []string{"x"},
	})

	_, err := aftAnalysis{}.Run(context.Background(), req)
	require.ErrorIs(t, err, stats.ErrBadParameter)
}
