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
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

type leveneParams struct {
	Variable string `json:"variable" validate:"required"`
	Group    string `json:"group" validate:"required"`
	Center   string `json:"center" validate:"omitempty,oneof=mean median"`
}

type leveneAnalysis struct{}

func (leveneAnalysis) Name() string { return "levene" }

func (leveneAnalysis) Summary() string {
	return "Levene/Brown-Forsythe test for homogeneity of variances"
}

func (leveneAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p leveneParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	center := p.Center
	if center == "" {
		center = "median"
	}

	groups, order, err := table.Grouped(p.Variable, p.Group)
	if err != nil {
		return nil, err
	}
	if len(order) < 2 {
		return nil, fmt.Errorf("%w: Levene requires at least 2 groups, got %d",
			stats.ErrBadParameter, len(order))
	}

	samples := make([][]float64, len(order))
	groupTable := make([]map[string]any, 0, len(order))
	for i, g := range order {
		xs := groups[g]
		if len(xs) < 2 {
			return nil, fmt.Errorf("%w: group %q has fewer than 2 observations",
				stats.ErrInsufficientData, g)
		}
		samples[i] = xs
		groupTable = append(groupTable, map[string]any{
			"group":    g,
			"n":        len(xs),
			"variance": stat.Variance(xs, nil),
		})
	}

	w, pValue := leveneStatistic(samples, center)

	var n int
	for _, s := range samples {
		n += len(s)
	}

	return map[string]any{
		"results": map[string]any{
			"w":        w,
			"df1":      len(order) - 1,
			"df2":      n - len(order),
			"p_value":  pValue,
			"center":   center,
			"n":        n,
			"groups":   groupTable,
		},
	}, nil
}

// leveneStatistic runs a one-way ANOVA on absolute deviations from
// each group's center (mean for classic Levene, median for
// Brown-Forsythe) and returns W with its F-distribution p-value.
func leveneStatistic(groups [][]float64, center string) (w, p float64) {
	k := len(groups)
	var n int
	for _, g := range groups {
		n += len(g)
	}
	if k < 2 || n-k < 1 {
		return math.NaN(), math.NaN()
	}

	devs := make([][]float64, k)
	var all []float64
	for gi, g := range groups {
		var c float64
		if center == "mean" {
			c = stat.Mean(g, nil)
		} else {
			c = median(g)
		}
		ds := make([]float64, len(g))
		for i, x := range g {
			ds[i] = math.Abs(x - c)
		}
		devs[gi] = ds
		all = append(all, ds...)
	}

	grand := stat.Mean(all, nil)
	var ssBetween, ssWithin float64
	for _, ds := range devs {
		m := stat.Mean(ds, nil)
		ng := float64(len(ds))
		ssBetween += ng * (m - grand) * (m - grand)
		for _, d := range ds {
			ssWithin += (d - m) * (d - m)
		}
	}
	if ssWithin <= 0 {
		return math.NaN(), math.NaN()
	}

	df1 := float64(k - 1)
	df2 := float64(n - k)
	w = (ssBetween / df1) / (ssWithin / df2)
	dist := distuv.F{D1: df1, D2: df2}
	p = 1 - dist.CDF(w)
	return w, p
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
