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

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

type ancovaParams struct {
	Variable  string `json:"variable" validate:"required"`
	Group     string `json:"group" validate:"required"`
	Covariate string `json:"covariate" validate:"required"`
}

type ancovaAnalysis struct{}

func (ancovaAnalysis) Name() string { return "ancova" }

func (ancovaAnalysis) Summary() string {
	return "One-way ANCOVA with a single covariate and adjusted means"
}

func (ancovaAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p ancovaParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	y, cov, labels, err := numericPairWithFactor(table, p.Variable, p.Covariate, p.Group)
	if err != nil {
		return nil, err
	}

	levels, groupCols := effectsCode(labels)
	if len(levels) < 2 {
		return nil, fmt.Errorf("%w: ANCOVA requires at least 2 groups", stats.ErrBadParameter)
	}

	n := len(y)
	covCol := [][]float64{cov}

	// Full model: covariate + group effects. Reduced: covariate only.
	fitFull, err := fitOLS(buildDesign(n, covCol, groupCols), y)
	if err != nil {
		return nil, err
	}
	fitReduced, err := fitOLS(buildDesign(n, covCol), y)
	if err != nil {
		return nil, err
	}

	dfGroup := len(levels) - 1
	dfErr := fitFull.df
	msErr := fitFull.sse / float64(dfErr)

	f := math.NaN()
	pValue := math.NaN()
	ssGroup := fitReduced.sse - fitFull.sse
	if msErr > 0 {
		f = (ssGroup / float64(dfGroup)) / msErr
		dist := distuv.F{D1: float64(dfGroup), D2: float64(dfErr)}
		pValue = 1 - dist.CDF(f)
	}

	// Adjusted means: group mean shifted to the grand covariate mean
	// along the common slope.
	slope := fitFull.beta[1]
	grandCov := stat.Mean(cov, nil)
	byGroup := make(map[string][]int)
	for i, l := range labels {
		byGroup[l] = append(byGroup[l], i)
	}
	adjusted := make([]map[string]any, 0, len(levels))
	for _, level := range levels {
		idx := byGroup[level]
		var ySum, covSum float64
		for _, i := range idx {
			ySum += y[i]
			covSum += cov[i]
		}
		ng := float64(len(idx))
		yMean := ySum / ng
		covMean := covSum / ng
		adjusted = append(adjusted, map[string]any{
			"group":          level,
			"n":              len(idx),
			"mean":           yMean,
			"covariate_mean": covMean,
			"adjusted_mean":  yMean - slope*(covMean-grandCov),
		})
	}

	return map[string]any{
		"results": map[string]any{
			"f":               f,
			"df_group":        dfGroup,
			"df_error":        dfErr,
			"p_value":         pValue,
			"ss_group":        ssGroup,
			"ss_error":        fitFull.sse,
			"common_slope":    slope,
			"covariate_mean":  grandCov,
			"adjusted_means":  adjusted,
			"n":               n,
		},
	}, nil
}

// numericPairWithFactor extracts two numeric columns and one label
// column with listwise deletion.
func numericPairWithFactor(table *stats.Table, yCol, xCol, gCol string) ([]float64, []float64, []string, error) {
	for _, c := range []string{yCol, xCol, gCol} {
		if !table.HasColumn(c) {
			return nil, nil, nil, fmt.Errorf("%w: column %q not present in 'data'",
				stats.ErrBadParameter, c)
		}
	}
	var y, x []float64
	var g []string
	for i := 0; i < table.Len(); i++ {
		yv, ok := table.Value(i, yCol)
		if !ok || yv == nil {
			continue
		}
		xv, ok := table.Value(i, xCol)
		if !ok || xv == nil {
			continue
		}
		gv, ok := table.Value(i, gCol)
		if !ok || gv == nil {
			continue
		}
		yf, ok1 := stats.Number(yv)
		xf, ok2 := stats.Number(xv)
		if !ok1 || !ok2 {
			continue
		}
		y = append(y, yf)
		x = append(x, xf)
		g = append(g, fmt.Sprint(gv))
	}
	if len(y) < 4 {
		return nil, nil, nil, fmt.Errorf("%w: ANCOVA needs at least 4 complete rows",
			stats.ErrInsufficientData)
	}
	return y, x, g, nil
}
