// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conjoint implements traditional full-profile conjoint
// analysis and a Hierarchical Bayes multinomial logit.
package conjoint

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

// Analyses returns every endpoint in this package.
func Analyses() []stats.Analysis {
	return []stats.Analysis{
		conjointAnalysis{},
		hbAnalysis{},
	}
}

type conjointParams struct {
	Rating     string   `json:"rating" validate:"required"`
	Attributes []string `json:"attributes" validate:"required,min=1"`
}

type conjointAnalysis struct{}

func (conjointAnalysis) Name() string { return "conjoint" }

func (conjointAnalysis) Summary() string {
	return "Full-profile conjoint: part-worths and attribute importance"
}

func (conjointAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p conjointParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	y, factors, err := ratingWithAttributes(table, p.Rating, p.Attributes)
	if err != nil {
		return nil, err
	}
	n := len(y)

	// Effects-code every attribute; the omitted level's part-worth is
	// the negative sum of the others.
	type coded struct {
		levels []string
		cols   [][]float64
	}
	codedAttrs := make([]coded, len(p.Attributes))
	totalCols := 1
	for a, labels := range factors {
		levels, cols := effectsCode(labels)
		if len(levels) < 2 {
			return nil, fmt.Errorf("%w: attribute %q has fewer than 2 levels",
				stats.ErrBadParameter, p.Attributes[a])
		}
		codedAttrs[a] = coded{levels: levels, cols: cols}
		totalCols += len(cols)
	}
	if n <= totalCols {
		return nil, fmt.Errorf("%w: %d profiles for %d model terms",
			stats.ErrInsufficientData, n, totalCols)
	}

	X := mat.NewDense(n, totalCols, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1)
	}
	col := 1
	for _, ca := range codedAttrs {
		for _, c := range ca.cols {
			for i := 0; i < n; i++ {
				X.Set(i, col, c[i])
			}
			col++
		}
	}

	yv := mat.NewVecDense(n, y)
	var beta mat.VecDense
	if err := beta.SolveVec(X, yv); err != nil {
		return nil, fmt.Errorf("%w: singular conjoint design", stats.ErrDegenerate)
	}

	var fitted mat.VecDense
	fitted.MulVec(X, &beta)
	var sse, sst, yMean float64
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)
	for i := 0; i < n; i++ {
		r := y[i] - fitted.AtVec(i)
		sse += r * r
		sst += (y[i] - yMean) * (y[i] - yMean)
	}
	r2 := math.NaN()
	if sst > 0 {
		r2 = 1 - sse/sst
	}

	// Unpack part-worths and importance = range share.
	col = 1
	attrs := make([]map[string]any, len(p.Attributes))
	ranges := make([]float64, len(p.Attributes))
	var rangeSum float64
	for a, ca := range codedAttrs {
		k := len(ca.levels)
		worths := make([]float64, k)
		var last float64
		for j := 0; j < k-1; j++ {
			worths[j] = beta.AtVec(col)
			last -= worths[j]
			col++
		}
		worths[k-1] = last

		lo, hi := worths[0], worths[0]
		levelTable := make([]map[string]any, k)
		for j, level := range ca.levels {
			lo = math.Min(lo, worths[j])
			hi = math.Max(hi, worths[j])
			levelTable[j] = map[string]any{"level": level, "part_worth": worths[j]}
		}
		ranges[a] = hi - lo
		rangeSum += ranges[a]
		attrs[a] = map[string]any{
			"attribute": p.Attributes[a],
			"levels":    levelTable,
			"range":     ranges[a],
		}
	}
	for a := range attrs {
		imp := math.NaN()
		if rangeSum > 0 {
			imp = 100 * ranges[a] / rangeSum
		}
		attrs[a]["importance"] = imp
	}

	return map[string]any{
		"results": map[string]any{
			"intercept":  beta.AtVec(0),
			"attributes": attrs,
			"r_squared":  r2,
			"n":          n,
		},
	}, nil
}

// effectsCode builds sum-to-zero columns; the last sorted level is the
// -1 reference.
func effectsCode(labels []string) ([]string, [][]float64) {
	set := make(map[string]struct{})
	for _, l := range labels {
		set[l] = struct{}{}
	}
	levels := make([]string, 0, len(set))
	for l := range set {
		levels = append(levels, l)
	}
	sort.Strings(levels)

	index := make(map[string]int, len(levels))
	for i, l := range levels {
		index[l] = i
	}

	k := len(levels)
	if k < 2 {
		return levels, nil
	}
	cols := make([][]float64, k-1)
	for j := range cols {
		cols[j] = make([]float64, len(labels))
	}
	for i, l := range labels {
		li := index[l]
		if li == k-1 {
			for j := range cols {
				cols[j][i] = -1
			}
		} else {
			cols[li][i] = 1
		}
	}
	return levels, cols
}

// ratingWithAttributes extracts the rating column and attribute label
// columns with listwise deletion.
func ratingWithAttributes(table *stats.Table, rating string, attributes []string) ([]float64, [][]string, error) {
	if !table.HasColumn(rating) {
		return nil, nil, fmt.Errorf("%w: column %q not present in 'data'",
			stats.ErrBadParameter, rating)
	}
	for _, a := range attributes {
		if !table.HasColumn(a) {
			return nil, nil, fmt.Errorf("%w: column %q not present in 'data'",
				stats.ErrBadParameter, a)
		}
	}

	var y []float64
	factors := make([][]string, len(attributes))
	for i := 0; i < table.Len(); i++ {
		rv, ok := table.Value(i, rating)
		if !ok || rv == nil {
			continue
		}
		rf, ok := stats.Number(rv)
		if !ok {
			continue
		}
		labels := make([]string, len(attributes))
		complete := true
		for j, a := range attributes {
			av, ok := table.Value(i, a)
			if !ok || av == nil {
				complete = false
				break
			}
			labels[j] = fmt.Sprint(av)
		}
		if !complete {
			continue
		}
		y = append(y, rf)
		for j := range attributes {
			factors[j] = append(factors[j], labels[j])
		}
	}
	if len(y) < 3 {
		return nil, nil, fmt.Errorf("%w: conjoint needs at least 3 complete profiles",
			stats.ErrInsufficientData)
	}
	return y, factors, nil
}
