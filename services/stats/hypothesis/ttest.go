// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hypothesis implements classical significance tests: t-test
// variants, one- and two-way ANOVA, ANCOVA, MANCOVA, rank-based
// nonparametric tests, and Levene's variance test.
package hypothesis

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

// Analyses returns every endpoint in this package.
func Analyses() []stats.Analysis {
	return []stats.Analysis{
		oneSampleT{},
		independentT{},
		pairedT{},
		onewayANOVA{},
		twowayANOVA{},
		ancovaAnalysis{},
		mancovaAnalysis{},
		mannWhitney{},
		kruskalWallis{},
		wilcoxonSigned{},
		leveneAnalysis{},
	}
}

// tPValue converts a t statistic with df degrees of freedom into a
// p-value under the given alternative.
func tPValue(t, df float64, alternative string) float64 {
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	switch alternative {
	case "less":
		return dist.CDF(t)
	case "greater":
		return 1 - dist.CDF(t)
	default:
		return 2 * dist.CDF(-math.Abs(t))
	}
}

type oneSampleTParams struct {
	Variable    string  `json:"variable" validate:"required"`
	Mu          float64 `json:"mu"`
	Alternative string  `json:"alternative" validate:"omitempty,oneof=two-sided less greater"`
}

type oneSampleT struct{}

func (oneSampleT) Name() string    { return "ttest-one" }
func (oneSampleT) Summary() string { return "One-sample t-test against a hypothesized mean" }

func (oneSampleT) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p oneSampleTParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	xs, err := table.Column(p.Variable)
	if err != nil {
		return nil, err
	}
	if len(xs) < 2 {
		return nil, fmt.Errorf("%w: one-sample t-test requires at least 2 observations, got %d",
			stats.ErrInsufficientData, len(xs))
	}

	n := float64(len(xs))
	mean := stat.Mean(xs, nil)
	sd := stat.StdDev(xs, nil)
	if sd == 0 {
		return nil, fmt.Errorf("%w: %q has zero variance", stats.ErrDegenerate, p.Variable)
	}
	se := sd / math.Sqrt(n)
	t := (mean - p.Mu) / se
	df := n - 1

	return map[string]any{
		"results": map[string]any{
			"n":           len(xs),
			"mean":        mean,
			"sd":          sd,
			"se":          se,
			"mu":          p.Mu,
			"t":           t,
			"df":          df,
			"p_value":     tPValue(t, df, p.Alternative),
			"alternative": altLabel(p.Alternative),
			"cohens_d":    (mean - p.Mu) / sd,
		},
	}, nil
}

type independentTParams struct {
	Variable    string `json:"variable" validate:"required"`
	Group       string `json:"group" validate:"required"`
	Alternative string `json:"alternative" validate:"omitempty,oneof=two-sided less greater"`
}

type independentT struct{}

func (independentT) Name() string { return "ttest" }

func (independentT) Summary() string {
	return "Independent two-sample t-test (Student and Welch)"
}

func (independentT) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p independentTParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	groups, order, err := table.Grouped(p.Variable, p.Group)
	if err != nil {
		return nil, err
	}
	if len(order) != 2 {
		return nil, fmt.Errorf("%w: independent t-test requires exactly 2 groups, got %d",
			stats.ErrBadParameter, len(order))
	}
	a, b := groups[order[0]], groups[order[1]]
	if len(a) < 2 || len(b) < 2 {
		return nil, fmt.Errorf("%w: each group needs at least 2 observations",
			stats.ErrInsufficientData)
	}

	n1, n2 := float64(len(a)), float64(len(b))
	m1, m2 := stat.Mean(a, nil), stat.Mean(b, nil)
	v1, v2 := stat.Variance(a, nil), stat.Variance(b, nil)
	if v1 == 0 && v2 == 0 {
		return nil, fmt.Errorf("%w: both groups have zero variance", stats.ErrDegenerate)
	}

	// Student: pooled variance.
	pooled := ((n1-1)*v1 + (n2-1)*v2) / (n1 + n2 - 2)
	tStudent := (m1 - m2) / math.Sqrt(pooled*(1/n1+1/n2))
	dfStudent := n1 + n2 - 2

	// Welch: unequal variances with Satterthwaite df.
	seWelch := math.Sqrt(v1/n1 + v2/n2)
	tWelch := (m1 - m2) / seWelch
	dfWelch := math.Pow(v1/n1+v2/n2, 2) /
		(math.Pow(v1/n1, 2)/(n1-1) + math.Pow(v2/n2, 2)/(n2-1))

	// Levene on the two groups as a variance-homogeneity check.
	leveneW, leveneP := leveneStatistic([][]float64{a, b}, "median")

	return map[string]any{
		"results": map[string]any{
			"groups": []map[string]any{
				{"group": order[0], "n": len(a), "mean": m1, "sd": math.Sqrt(v1)},
				{"group": order[1], "n": len(b), "mean": m2, "sd": math.Sqrt(v2)},
			},
			"mean_difference": m1 - m2,
			"student": map[string]any{
				"t": tStudent, "df": dfStudent,
				"p_value": tPValue(tStudent, dfStudent, p.Alternative),
			},
			"welch": map[string]any{
				"t": tWelch, "df": dfWelch,
				"p_value": tPValue(tWelch, dfWelch, p.Alternative),
			},
			"levene":      map[string]any{"w": leveneW, "p_value": leveneP},
			"alternative": altLabel(p.Alternative),
			"cohens_d":    (m1 - m2) / math.Sqrt(pooled),
		},
	}, nil
}

type pairedTParams struct {
	First       string `json:"first" validate:"required"`
	Second      string `json:"second" validate:"required"`
	Alternative string `json:"alternative" validate:"omitempty,oneof=two-sided less greater"`
}

type pairedT struct{}

func (pairedT) Name() string    { return "ttest-paired" }
func (pairedT) Summary() string { return "Paired-samples t-test" }

func (pairedT) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p pairedTParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	cols, err := table.Columns(p.First, p.Second)
	if err != nil {
		return nil, err
	}
	first, second := cols[0], cols[1]
	if len(first) < 2 {
		return nil, fmt.Errorf("%w: paired t-test requires at least 2 complete pairs, got %d",
			stats.ErrInsufficientData, len(first))
	}

	diffs := make([]float64, len(first))
	for i := range first {
		diffs[i] = first[i] - second[i]
	}
	n := float64(len(diffs))
	mean := stat.Mean(diffs, nil)
	sd := stat.StdDev(diffs, nil)
	if sd == 0 {
		return nil, fmt.Errorf("%w: differences have zero variance", stats.ErrDegenerate)
	}
	se := sd / math.Sqrt(n)
	t := mean / se
	df := n - 1

	return map[string]any{
		"results": map[string]any{
			"n":               len(diffs),
			"mean_difference": mean,
			"sd_difference":   sd,
			"se":              se,
			"t":               t,
			"df":              df,
			"p_value":         tPValue(t, df, p.Alternative),
			"alternative":     altLabel(p.Alternative),
			"cohens_d":        mean / sd,
		},
	}, nil
}

// altLabel normalizes the empty alternative to its default name.
func altLabel(alt string) string {
	if alt == "" {
		return "two-sided"
	}
	return alt
}
