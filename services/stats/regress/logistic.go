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
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

const (
	irlsMaxIter = 25
	irlsTol     = 1e-8
)

type logisticParams struct {
	Dependent    string   `json:"dependent" validate:"required"`
	Independents []string `json:"independents" validate:"required,min=1"`
}

type logisticRegression struct{}

func (logisticRegression) Name() string { return "logistic" }

func (logisticRegression) Summary() string {
	return "Binary logistic regression fitted by IRLS"
}

func (logisticRegression) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p logisticParams
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

	var ones int
	for _, v := range y {
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("%w: %q must be coded 0/1, found %v",
				stats.ErrBadParameter, p.Dependent, v)
		}
		if v == 1 {
			ones++
		}
	}
	if ones == 0 || ones == n {
		return nil, fmt.Errorf("%w: %q has a single outcome class",
			stats.ErrDegenerate, p.Dependent)
	}

	X := designMatrix(preds, n)
	beta, cov, iters, err := fitIRLS(X, y)
	if err != nil {
		return nil, err
	}

	// Fitted probabilities and deviances.
	probs := make([]float64, n)
	var deviance float64
	for i := 0; i < n; i++ {
		eta := beta[0]
		for j, col := range preds {
			eta += beta[j+1] * col[i]
		}
		probs[i] = 1 / (1 + math.Exp(-eta))
		if y[i] == 1 {
			deviance -= 2 * math.Log(probs[i])
		} else {
			deviance -= 2 * math.Log(1-probs[i])
		}
	}

	base := float64(ones) / float64(n)
	nullDeviance := -2 * (float64(ones)*math.Log(base) +
		float64(n-ones)*math.Log(1-base))
	mcfadden := 1 - deviance/nullDeviance

	norm := distuv.Normal{Mu: 0, Sigma: 1}
	names := append([]string{"(intercept)"}, p.Independents...)
	coefs := make([]map[string]any, len(names))
	for j, name := range names {
		se := math.Sqrt(cov.At(j, j))
		z := math.NaN()
		pv := math.NaN()
		if se > 0 {
			z = beta[j] / se
			pv = 2 * norm.CDF(-math.Abs(z))
		}
		coefs[j] = map[string]any{
			"term": name, "b": beta[j], "se": se, "z": z, "p_value": pv,
			"odds_ratio": math.Exp(beta[j]),
		}
	}

	// Classification at the 0.5 cutoff.
	var tp, tn, fp, fn int
	for i, pr := range probs {
		predicted := pr >= 0.5
		actual := y[i] == 1
		switch {
		case predicted && actual:
			tp++
		case predicted && !actual:
			fp++
		case !predicted && actual:
			fn++
		default:
			tn++
		}
	}

	return map[string]any{
		"results": map[string]any{
			"coefficients":       coefs,
			"deviance":           deviance,
			"null_deviance":      nullDeviance,
			"mcfadden_r_squared": mcfadden,
			"iterations":         iters,
			"n":                  n,
			"classification": map[string]any{
				"true_positive": tp, "true_negative": tn,
				"false_positive": fp, "false_negative": fn,
				"accuracy": float64(tp+tn) / float64(n),
			},
		},
	}, nil
}

// fitIRLS runs iteratively reweighted least squares and returns
// coefficients with the asymptotic covariance (X'WX)^-1.
func fitIRLS(X *mat.Dense, y []float64) ([]float64, *mat.Dense, int, error) {
	n, p := X.Dims()
	beta := mat.NewVecDense(p, nil)

	w := make([]float64, n)
	z := make([]float64, n)
	var cov mat.Dense

	for iter := 1; iter <= irlsMaxIter; iter++ {
		var eta mat.VecDense
		eta.MulVec(X, beta)

		for i := 0; i < n; i++ {
			mu := 1 / (1 + math.Exp(-eta.AtVec(i)))
			// Clamp away from the boundary to keep the weights finite.
			mu = math.Min(math.Max(mu, 1e-10), 1-1e-10)
			w[i] = mu * (1 - mu)
			z[i] = eta.AtVec(i) + (y[i]-mu)/w[i]
		}

		// Weighted normal equations: X'WX b = X'Wz.
		xtw := mat.NewDense(p, n, nil)
		for j := 0; j < p; j++ {
			for i := 0; i < n; i++ {
				xtw.Set(j, i, X.At(i, j)*w[i])
			}
		}
		var xtwx mat.Dense
		xtwx.Mul(xtw, X)
		if err := cov.Inverse(&xtwx); err != nil {
			return nil, nil, iter, fmt.Errorf("%w: separated or collinear data",
				stats.ErrDegenerate)
		}
		xtwz := mat.NewVecDense(p, nil)
		xtwz.MulVec(xtw, mat.NewVecDense(n, z))

		next := mat.NewVecDense(p, nil)
		next.MulVec(&cov, xtwz)

		var maxDelta float64
		for j := 0; j < p; j++ {
			maxDelta = math.Max(maxDelta, math.Abs(next.AtVec(j)-beta.AtVec(j)))
		}
		beta = next
		if maxDelta < irlsTol {
			coefs := make([]float64, p)
			for j := 0; j < p; j++ {
				coefs[j] = beta.AtVec(j)
			}
			return coefs, &cov, iter, nil
		}
	}
	return nil, nil, irlsMaxIter, fmt.Errorf("%w: IRLS did not converge in %d iterations",
		stats.ErrNoConverge, irlsMaxIter)
}
