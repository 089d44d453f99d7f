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

	"github.com/AleutianAI/AleutianStats/pkg/render"
	"github.com/AleutianAI/AleutianStats/services/stats"
)

type onewayParams struct {
	Variable string `json:"variable" validate:"required"`
	Group    string `json:"group" validate:"required"`
	Plot     bool   `json:"plot"`
}

type onewayANOVA struct{}

func (onewayANOVA) Name() string    { return "anova" }
func (onewayANOVA) Summary() string { return "One-way analysis of variance" }

func (onewayANOVA) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p onewayParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	groups, order, err := table.Grouped(p.Variable, p.Group)
	if err != nil {
		return nil, err
	}
	if len(order) < 2 {
		return nil, fmt.Errorf("%w: ANOVA requires at least 2 groups, got %d",
			stats.ErrBadParameter, len(order))
	}

	var all []float64
	for _, g := range order {
		all = append(all, groups[g]...)
	}
	n := float64(len(all))
	k := float64(len(order))
	if n-k < 1 {
		return nil, fmt.Errorf("%w: not enough observations for %d groups",
			stats.ErrInsufficientData, len(order))
	}

	grand := stat.Mean(all, nil)
	var ssBetween, ssWithin float64
	groupTable := make([]map[string]any, 0, len(order))
	means := make([]float64, 0, len(order))
	for _, g := range order {
		xs := groups[g]
		m := stat.Mean(xs, nil)
		means = append(means, m)
		ng := float64(len(xs))
		ssBetween += ng * (m - grand) * (m - grand)
		for _, x := range xs {
			ssWithin += (x - m) * (x - m)
		}
		sd := math.NaN()
		if len(xs) > 1 {
			sd = stat.StdDev(xs, nil)
		}
		groupTable = append(groupTable, map[string]any{
			"group": g, "n": len(xs), "mean": m, "sd": sd,
		})
	}

	dfB := k - 1
	dfW := n - k
	msB := ssBetween / dfB
	msW := ssWithin / dfW

	f := math.NaN()
	pValue := math.NaN()
	if msW > 0 {
		f = msB / msW
		dist := distuv.F{D1: dfB, D2: dfW}
		pValue = 1 - dist.CDF(f)
	}

	ssTotal := ssBetween + ssWithin
	eta2 := math.NaN()
	if ssTotal > 0 {
		eta2 = ssBetween / ssTotal
	}

	out := map[string]any{
		"results": map[string]any{
			"f":           f,
			"df_between":  dfB,
			"df_within":   dfW,
			"p_value":     pValue,
			"ss_between":  ssBetween,
			"ss_within":   ssWithin,
			"ms_between":  msB,
			"ms_within":   msW,
			"eta_squared": eta2,
			"grand_mean":  grand,
			"groups":      groupTable,
		},
	}
	if p.Plot {
		uri, err := render.GroupMeans(order, means, "Group means", p.Variable)
		if err != nil {
			return nil, err
		}
		out["plot"] = uri
	}
	return out, nil
}

type twowayParams struct {
	Variable string `json:"variable" validate:"required"`
	FactorA  string `json:"factor_a" validate:"required"`
	FactorB  string `json:"factor_b" validate:"required"`
}

type twowayANOVA struct{}

func (twowayANOVA) Name() string { return "anova-two" }

func (twowayANOVA) Summary() string {
	return "Two-way factorial ANOVA with interaction"
}

func (twowayANOVA) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p twowayParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	y, aLabels, bLabels, err := numericWithFactors(table, p.Variable, p.FactorA, p.FactorB)
	if err != nil {
		return nil, err
	}

	aLevels, aCols := effectsCode(aLabels)
	bLevels, bCols := effectsCode(bLabels)
	if len(aLevels) < 2 || len(bLevels) < 2 {
		return nil, fmt.Errorf("%w: both factors need at least 2 levels", stats.ErrBadParameter)
	}
	abCols := interactionCols(aCols, bCols)

	n := len(y)
	// Sequential (Type I) sums of squares: A, then B|A, then AB|A,B.
	fit0, err := fitOLS(buildDesign(n), y)
	if err != nil {
		return nil, err
	}
	fitA, err := fitOLS(buildDesign(n, aCols), y)
	if err != nil {
		return nil, err
	}
	fitAB, err := fitOLS(buildDesign(n, aCols, bCols), y)
	if err != nil {
		return nil, err
	}
	fitFull, err := fitOLS(buildDesign(n, aCols, bCols, abCols), y)
	if err != nil {
		return nil, err
	}

	dfE := fitFull.df
	msE := fitFull.sse / float64(dfE)

	effect := func(name string, ss float64, df int) map[string]any {
		ms := ss / float64(df)
		f := math.NaN()
		pv := math.NaN()
		if msE > 0 {
			f = ms / msE
			dist := distuv.F{D1: float64(df), D2: float64(dfE)}
			pv = 1 - dist.CDF(f)
		}
		return map[string]any{
			"effect": name, "ss": ss, "df": df, "ms": ms, "f": f, "p_value": pv,
		}
	}

	effects := []map[string]any{
		effect(p.FactorA, fit0.sse-fitA.sse, len(aLevels)-1),
		effect(p.FactorB, fitA.sse-fitAB.sse, len(bLevels)-1),
		effect(p.FactorA+":"+p.FactorB, fitAB.sse-fitFull.sse, (len(aLevels)-1)*(len(bLevels)-1)),
	}

	return map[string]any{
		"results": map[string]any{
			"effects":         effects,
			"residual":        map[string]any{"ss": fitFull.sse, "df": dfE, "ms": msE},
			"n":               n,
			"levels_factor_a": aLevels,
			"levels_factor_b": bLevels,
		},
	}, nil
}

// numericWithFactors extracts a numeric column and two label columns
// with listwise deletion across all three.
func numericWithFactors(table *stats.Table, valueCol, aCol, bCol string) ([]float64, []string, []string, error) {
	for _, c := range []string{valueCol, aCol, bCol} {
		if !table.HasColumn(c) {
			return nil, nil, nil, fmt.Errorf("%w: column %q not present in 'data'",
				stats.ErrBadParameter, c)
		}
	}
	var y []float64
	var a, b []string
	for i := 0; i < table.Len(); i++ {
		vv, ok := table.Value(i, valueCol)
		if !ok || vv == nil {
			continue
		}
		av, ok := table.Value(i, aCol)
		if !ok || av == nil {
			continue
		}
		bv, ok := table.Value(i, bCol)
		if !ok || bv == nil {
			continue
		}
		f, ok := stats.Number(vv)
		if !ok {
			continue
		}
		y = append(y, f)
		a = append(a, fmt.Sprint(av))
		b = append(b, fmt.Sprint(bv))
	}
	if len(y) < 4 {
		return nil, nil, nil, fmt.Errorf("%w: two-way ANOVA needs at least 4 complete rows",
			stats.ErrInsufficientData)
	}
	return y, a, b, nil
}
