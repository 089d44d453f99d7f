// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package regress implements linear, ridge, and binary logistic
// regression endpoints.
package regress

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/AleutianStats/pkg/render"
	"github.com/AleutianAI/AleutianStats/services/stats"
)

// Analyses returns every endpoint in this package.
func Analyses() []stats.Analysis {
	return []stats.Analysis{
		linearRegression{},
		ridgeRegression{},
		logisticRegression{},
	}
}

type linearParams struct {
	Dependent    string   `json:"dependent" validate:"required"`
	Independents []string `json:"independents" validate:"required,min=1"`
	Plot         bool     `json:"plot"`
}

type linearRegression struct{}

func (linearRegression) Name() string { return "linear" }

func (linearRegression) Summary() string {
	return "Ordinary least squares with diagnostics"
}

func (linearRegression) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p linearParams
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

	X := designMatrix(preds, n)
	beta, cov, sse, err := olsWithCovariance(X, y)
	if err != nil {
		return nil, err
	}

	fitted := make([]float64, n)
	resid := make([]float64, n)
	var yMean float64
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)
	var sst float64
	for i := 0; i < n; i++ {
		f := beta[0]
		for j, col := range preds {
			f += beta[j+1] * col[i]
		}
		fitted[i] = f
		resid[i] = y[i] - f
		sst += (y[i] - yMean) * (y[i] - yMean)
	}

	dfErr := n - k - 1
	mse := sse / float64(dfErr)

	r2 := math.NaN()
	adjR2 := math.NaN()
	if sst > 0 {
		r2 = 1 - sse/sst
		adjR2 = 1 - (1-r2)*float64(n-1)/float64(dfErr)
	}

	fStat := math.NaN()
	fP := math.NaN()
	if mse > 0 && k > 0 {
		fStat = ((sst - sse) / float64(k)) / mse
		fd := distuv.F{D1: float64(k), D2: float64(dfErr)}
		fP = 1 - fd.CDF(fStat)
	}

	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dfErr)}
	names := append([]string{"(intercept)"}, p.Independents...)
	coefs := make([]map[string]any, len(names))
	for j, name := range names {
		se := math.Sqrt(mse * cov.At(j, j))
		t := math.NaN()
		pv := math.NaN()
		if se > 0 {
			t = beta[j] / se
			pv = 2 * tDist.CDF(-math.Abs(t))
		}
		coefs[j] = map[string]any{
			"term": name, "b": beta[j], "se": se, "t": t, "p_value": pv,
		}
	}

	out := map[string]any{
		"results": map[string]any{
			"coefficients":   coefs,
			"r_squared":      r2,
			"adj_r_squared":  adjR2,
			"f":              fStat,
			"f_p_value":      fP,
			"df_model":       k,
			"df_residual":    dfErr,
			"residual_se":    math.Sqrt(mse),
			"durbin_watson":  durbinWatson(resid),
			"vif":            vifTable(preds, p.Independents),
			"n":              n,
		},
	}
	if p.Plot {
		uri, err := render.FitScatter(fitted, y, 0, 1,
			"Observed vs fitted", "Fitted", p.Dependent)
		if err != nil {
			return nil, err
		}
		out["plot"] = uri
	}
	return out, nil
}

// designMatrix assembles an intercept-first design from predictor
// columns.
func designMatrix(preds [][]float64, n int) *mat.Dense {
	X := mat.NewDense(n, len(preds)+1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1)
		for j, col := range preds {
			X.Set(i, j+1, col[i])
		}
	}
	return X
}

// olsWithCovariance solves least squares and returns coefficients,
// the unscaled covariance (X'X)^-1, and the residual sum of squares.
func olsWithCovariance(X *mat.Dense, y []float64) ([]float64, *mat.Dense, float64, error) {
	n, p := X.Dims()

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: collinear predictors", stats.ErrDegenerate)
	}

	yv := mat.NewVecDense(n, y)
	var beta mat.VecDense
	if err := beta.SolveVec(X, yv); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: singular design matrix", stats.ErrDegenerate)
	}

	var fitted mat.VecDense
	fitted.MulVec(X, &beta)
	var sse float64
	for i := 0; i < n; i++ {
		r := y[i] - fitted.AtVec(i)
		sse += r * r
	}

	coefs := make([]float64, p)
	for j := 0; j < p; j++ {
		coefs[j] = beta.AtVec(j)
	}
	return coefs, &inv, sse, nil
}

// durbinWatson measures first-order residual autocorrelation.
func durbinWatson(resid []float64) float64 {
	var num, den float64
	for i, r := range resid {
		den += r * r
		if i > 0 {
			d := r - resid[i-1]
			num += d * d
		}
	}
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// vifTable regresses each predictor on the rest; a single predictor
// has no collinearity to measure.
func vifTable(preds [][]float64, names []string) []map[string]any {
	out := make([]map[string]any, len(names))
	for j, name := range names {
		vif := 1.0
		if len(preds) > 1 {
			var others [][]float64
			for m, col := range preds {
				if m != j {
					others = append(others, col)
				}
			}
			vif = oneVIF(preds[j], others)
		}
		out[j] = map[string]any{"term": name, "vif": vif}
	}
	return out
}

func oneVIF(target []float64, others [][]float64) float64 {
	n := len(target)
	X := designMatrix(others, n)
	_, _, sse, err := olsWithCovariance(X, target)
	if err != nil {
		return math.Inf(1)
	}
	var mean float64
	for _, v := range target {
		mean += v
	}
	mean /= float64(n)
	var sst float64
	for _, v := range target {
		sst += (v - mean) * (v - mean)
	}
	if sst == 0 || sse == 0 {
		return math.Inf(1)
	}
	r2 := 1 - sse/sst
	if r2 >= 1 {
		return math.Inf(1)
	}
	return 1 / (1 - r2)
}
