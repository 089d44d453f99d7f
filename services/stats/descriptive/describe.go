// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package descriptive implements summary-statistics endpoints: variable
// description, frequency tables, crosstabs with chi-square, correlation
// matrices, outlier flagging, and scale reliability.
package descriptive

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/AleutianStats/pkg/render"
	"github.com/AleutianAI/AleutianStats/services/stats"
)

// Analyses returns every endpoint in this package.
func Analyses() []stats.Analysis {
	return []stats.Analysis{
		describeAnalysis{},
		frequencyAnalysis{},
		crosstabAnalysis{},
		correlationAnalysis{},
		outlierAnalysis{},
		reliabilityAnalysis{},
	}
}

type describeParams struct {
	Variables  []string `json:"variables" validate:"required,min=1"`
	Confidence float64  `json:"confidence" validate:"omitempty,gt=0,lt=1"`
	Bins       int      `json:"bins" validate:"omitempty,gte=3,lte=100"`
	Plot       bool     `json:"plot"`
}

type describeAnalysis struct{}

func (describeAnalysis) Name() string { return "describe" }

func (describeAnalysis) Summary() string {
	return "Per-variable summary statistics with optional histogram"
}

func (describeAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p describeParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	if p.Confidence == 0 {
		p.Confidence = 0.95
	}

	results := make(map[string]any, len(p.Variables))
	for _, name := range p.Variables {
		xs, err := table.Column(name)
		if err != nil {
			return nil, err
		}
		if len(xs) == 0 {
			return nil, fmt.Errorf("%w: column %q has no numeric values", stats.ErrInsufficientData, name)
		}
		results[name] = summarize(xs, p.Confidence)
	}

	out := map[string]any{"results": results}
	if p.Plot {
		first, err := table.Column(p.Variables[0])
		if err != nil {
			return nil, err
		}
		uri, err := render.Histogram(first, p.Bins, p.Variables[0], p.Variables[0])
		if err != nil {
			return nil, err
		}
		out["plot"] = uri
	}
	return out, nil
}

// summarize computes the standard description of one numeric sample.
// Degenerate statistics (sd of n=1, skew of constant data) come out as
// NaN and serialize as null.
func summarize(xs []float64, confidence float64) map[string]any {
	n := len(xs)
	mean := stat.Mean(xs, nil)
	sd := math.NaN()
	se := math.NaN()
	ciLow, ciHigh := math.NaN(), math.NaN()
	if n > 1 {
		sd = stat.StdDev(xs, nil)
		se = sd / math.Sqrt(float64(n))
		t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
		q := t.Quantile(1 - (1-confidence)/2)
		ciLow = mean - q*se
		ciHigh = mean + q*se
	}

	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	return map[string]any{
		"n":        n,
		"mean":     mean,
		"sd":       sd,
		"se":       se,
		"ci_lower": ciLow,
		"ci_upper": ciHigh,
		"min":      sorted[0],
		"q1":       stat.Quantile(0.25, stat.Empirical, sorted, nil),
		"median":   stat.Quantile(0.5, stat.Empirical, sorted, nil),
		"q3":       stat.Quantile(0.75, stat.Empirical, sorted, nil),
		"max":      sorted[n-1],
		"skewness": stat.Skew(xs, nil),
		"kurtosis": stat.ExKurtosis(xs, nil),
	}
}
