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

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

type mancovaParams struct {
	Variables  []string `json:"variables" validate:"required,min=2"`
	Group      string   `json:"group" validate:"required"`
	Covariates []string `json:"covariates"`
}

type mancovaAnalysis struct{}

func (mancovaAnalysis) Name() string { return "mancova" }

func (mancovaAnalysis) Summary() string {
	return "MANCOVA via Wilks' lambda with Rao's F approximation"
}

func (mancovaAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p mancovaParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	numericCols := append(append([]string{}, p.Variables...), p.Covariates...)
	labels, cols, err := labeledColumns(table, p.Group, numericCols)
	if err != nil {
		return nil, err
	}
	n := len(labels)

	levels, groupCols := effectsCode(labels)
	if len(levels) < 2 {
		return nil, fmt.Errorf("%w: MANCOVA requires at least 2 groups", stats.ErrBadParameter)
	}

	nDV := len(p.Variables)
	Y := mat.NewDense(n, nDV, nil)
	for j := 0; j < nDV; j++ {
		for i := 0; i < n; i++ {
			Y.Set(i, j, cols[j][i])
		}
	}
	covCols := cols[nDV:]

	Xfull := buildDesign(n, covCols, groupCols)
	Xreduced := buildDesign(n, covCols)

	eFull, dfErr, err := residualCrossProduct(Xfull, Y)
	if err != nil {
		return nil, err
	}
	eReduced, _, err := residualCrossProduct(Xreduced, Y)
	if err != nil {
		return nil, err
	}

	var h mat.Dense
	h.Sub(eReduced, eFull)

	var eh mat.Dense
	eh.Add(eFull, &h)

	detE := mat.Det(eFull)
	detEH := mat.Det(&eh)
	if detEH == 0 || detE < 0 || detEH < 0 {
		return nil, fmt.Errorf("%w: singular error matrix", stats.ErrDegenerate)
	}
	lambda := detE / detEH

	dfHyp := len(levels) - 1
	f, df1, df2, pValue := raoF(lambda, float64(nDV), float64(dfHyp), float64(dfErr))

	return map[string]any{
		"results": map[string]any{
			"wilks_lambda": lambda,
			"f":            f,
			"df1":          df1,
			"df2":          df2,
			"p_value":      pValue,
			"n":            n,
			"groups":       levels,
			"variables":    p.Variables,
			"covariates":   p.Covariates,
		},
	}, nil
}

// residualCrossProduct fits multivariate least squares and returns the
// residual sums-of-squares-and-cross-products matrix with error df.
func residualCrossProduct(X *mat.Dense, Y *mat.Dense) (*mat.Dense, int, error) {
	n, p := X.Dims()
	_, q := Y.Dims()
	if n <= p {
		return nil, 0, fmt.Errorf("%w: %d observations for %d model terms",
			stats.ErrInsufficientData, n, p)
	}

	var B mat.Dense
	if err := B.Solve(X, Y); err != nil {
		return nil, 0, fmt.Errorf("%w: singular design matrix", stats.ErrDegenerate)
	}

	var fitted mat.Dense
	fitted.Mul(X, &B)

	R := mat.NewDense(n, q, nil)
	R.Sub(Y, &fitted)

	E := mat.NewDense(q, q, nil)
	E.Mul(R.T(), R)
	return E, n - p, nil
}

// raoF converts Wilks' lambda into Rao's F approximation.
func raoF(lambda, p, q, ve float64) (f, df1, df2, pValue float64) {
	t := 1.0
	if p*p+q*q-5 > 0 {
		t = math.Sqrt((p*p*q*q - 4) / (p*p + q*q - 5))
	}
	w := ve - (p-q+1)/2
	df1 = p * q
	df2 = w*t - (p*q-2)/2
	if df2 <= 0 || lambda <= 0 {
		return math.NaN(), df1, df2, math.NaN()
	}
	lt := math.Pow(lambda, 1/t)
	f = ((1 - lt) / lt) * (df2 / df1)
	dist := distuv.F{D1: df1, D2: df2}
	pValue = 1 - dist.CDF(f)
	return f, df1, df2, pValue
}

// labeledColumns extracts one label column and several numeric columns
// with listwise deletion across all of them.
func labeledColumns(table *stats.Table, labelCol string, numericCols []string) ([]string, [][]float64, error) {
	if !table.HasColumn(labelCol) {
		return nil, nil, fmt.Errorf("%w: column %q not present in 'data'",
			stats.ErrBadParameter, labelCol)
	}
	for _, c := range numericCols {
		if !table.HasColumn(c) {
			return nil, nil, fmt.Errorf("%w: column %q not present in 'data'",
				stats.ErrBadParameter, c)
		}
	}

	var labels []string
	cols := make([][]float64, len(numericCols))
	row := make([]float64, len(numericCols))
	for i := 0; i < table.Len(); i++ {
		lv, ok := table.Value(i, labelCol)
		if !ok || lv == nil {
			continue
		}
		complete := true
		for j, c := range numericCols {
			v, ok := table.Value(i, c)
			if !ok || v == nil {
				complete = false
				break
			}
			f, ok := stats.Number(v)
			if !ok {
				complete = false
				break
			}
			row[j] = f
		}
		if !complete {
			continue
		}
		labels = append(labels, fmt.Sprint(lv))
		for j := range numericCols {
			cols[j] = append(cols[j], row[j])
		}
	}
	if len(labels) < len(numericCols)+2 {
		return nil, nil, fmt.Errorf("%w: too few complete rows for the requested model",
			stats.ErrInsufficientData)
	}
	return labels, cols, nil
}
