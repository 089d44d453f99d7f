// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package regress

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

type ridgeParams struct {
	Dependent    string   `json:"dependent" validate:"required"`
	Independents []string `json:"independents" validate:"required,min=1"`
	Lambda       float64  `json:"lambda" validate:"gte=0"`
}

type ridgeRegression struct{}

func (ridgeRegression) Name() string { return "ridge" }

func (ridgeRegression) Summary() string {
	return "Ridge regression on standardized predictors"
}

func (ridgeRegression) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	p := ridgeParams{Lambda: 1}
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	cols, err := table.Columns(append([]string{p.Dependent}, p.Independents...)...)
	if err != nil {
		return nil, err
	}
	y := cols[0]
	preds := cols[1:]
	n := len(y)
	k := len(preds)
	if n <= k+1 {
		return nil, fmt.Errorf("%w: %d complete rows for %d predictors",
			stats.ErrInsufficientData, n, k)
	}

	// Standardize predictors and center the response; the penalty then
	// treats every coefficient on the same scale.
	yMean := stat.Mean(y, nil)
	yc := make([]float64, n)
	for i, v := range y {
		yc[i] = v - yMean
	}

	means := make([]float64, k)
	sds := make([]float64, k)
	Z := mat.NewDense(n, k, nil)
	for j, col := range preds {
		means[j] = stat.Mean(col, nil)
		sds[j] = stat.StdDev(col, nil)
		if sds[j] == 0 {
			return nil, fmt.Errorf("%w: predictor %q is constant",
				stats.ErrDegenerate, p.Independents[j])
		}
		for i := 0; i < n; i++ {
			Z.Set(i, j, (col[i]-means[j])/sds[j])
		}
	}

	// Solve (Z'Z + lambda I) b = Z'y.
	var ztz mat.Dense
	ztz.Mul(Z.T(), Z)
	for j := 0; j < k; j++ {
		ztz.Set(j, j, ztz.At(j, j)+p.Lambda)
	}
	zty := mat.NewVecDense(k, nil)
	zty.MulVec(Z.T(), mat.NewVecDense(n, yc))

	var bStd mat.VecDense
	if err := bStd.SolveVec(&ztz, zty); err != nil {
		return nil, fmt.Errorf("%w: penalized normal equations are singular",
			stats.ErrDegenerate)
	}

	// Back-transform to the original predictor scale.
	coefs := make([]map[string]any, k)
	intercept := yMean
	var fitted mat.VecDense
	fitted.MulVec(Z, &bStd)
	for j := 0; j < k; j++ {
		raw := bStd.AtVec(j) / sds[j]
		intercept -= raw * means[j]
		coefs[j] = map[string]any{
			"term":            p.Independents[j],
			"b":               raw,
			"b_standardized":  bStd.AtVec(j),
		}
	}

	var sse, sst float64
	for i := 0; i < n; i++ {
		r := yc[i] - fitted.AtVec(i)
		sse += r * r
		sst += yc[i] * yc[i]
	}
	r2 := math.NaN()
	if sst > 0 {
		r2 = 1 - sse/sst
	}

	return map[string]any{
		"results": map[string]any{
			"lambda":       p.Lambda,
			"intercept":    intercept,
			"coefficients": coefs,
			"r_squared":    r2,
			"n":            n,
		},
	}, nil
}
