// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package survival

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

type aftParams struct {
	Time         string   `json:"time" validate:"required"`
	Event        string   `json:"event" validate:"required"`
	Independents []string `json:"independents" validate:"required,min=1"`
}

type aftAnalysis struct{}

func (aftAnalysis) Name() string { return "aft-weibull" }

func (aftAnalysis) Summary() string {
	return "Weibull accelerated-failure-time model by maximum likelihood"
}

func (aftAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p aftParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	cols, err := table.Columns(append([]string{p.Time, p.Event}, p.Independents...)...)
	if err != nil {
		return nil, err
	}
	times := cols[0]
	events := cols[1]
	preds := cols[2:]
	n := len(times)
	k := len(preds)
	if n <= k+2 {
		return nil, fmt.Errorf("%w: %d complete rows for %d covariates",
			stats.ErrInsufficientData, n, k)
	}

	var nEvents int
	logT := make([]float64, n)
	for i := 0; i < n; i++ {
		if times[i] <= 0 {
			return nil, fmt.Errorf("%w: survival times must be positive, found %v",
				stats.ErrBadParameter, times[i])
		}
		if events[i] != 0 && events[i] != 1 {
			return nil, fmt.Errorf("%w: %q must be coded 0/1, found %v",
				stats.ErrBadParameter, p.Event, events[i])
		}
		if events[i] == 1 {
			nEvents++
		}
		logT[i] = math.Log(times[i])
	}
	if nEvents == 0 {
		return nil, fmt.Errorf("%w: every subject is censored", stats.ErrDegenerate)
	}

	// theta = [beta_0 .. beta_k, log sigma]; the extreme-value
	// log-likelihood of log(T) under the Weibull AFT parameterization.
	negLL := func(theta []float64) float64 {
		logSigma := theta[k+1]
		sigma := math.Exp(logSigma)
		var ll float64
		for i := 0; i < n; i++ {
			eta := theta[0]
			for j := 0; j < k; j++ {
				eta += theta[j+1] * preds[j][i]
			}
			z := (logT[i] - eta) / sigma
			ez := math.Exp(z)
			if events[i] == 1 {
				ll += z - ez - logSigma
			} else {
				ll += -ez
			}
		}
		return -ll
	}

	init := startValues(logT, preds, k)
	result, err := optimize.Minimize(optimize.Problem{Func: negLL}, init,
		&optimize.Settings{Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Iterations: 200,
		}}, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("%w: AFT likelihood optimization failed: %v",
			stats.ErrNoConverge, err)
	}

	theta := result.X
	sigma := math.Exp(theta[k+1])
	ll := -result.F

	ses, seOK := standardErrors(negLL, theta)
	norm := distuv.Normal{Mu: 0, Sigma: 1}
	names := append([]string{"(intercept)"}, p.Independents...)
	coefs := make([]map[string]any, len(names))
	for j, name := range names {
		entry := map[string]any{
			"term":       name,
			"b":          theta[j],
			"time_ratio": math.Exp(theta[j]),
		}
		if seOK && ses[j] > 0 {
			z := theta[j] / ses[j]
			entry["se"] = ses[j]
			entry["z"] = z
			entry["p_value"] = 2 * norm.CDF(-math.Abs(z))
		} else {
			entry["se"] = math.NaN()
			entry["z"] = math.NaN()
			entry["p_value"] = math.NaN()
		}
		coefs[j] = entry
	}

	return map[string]any{
		"results": map[string]any{
			"coefficients":   coefs,
			"scale":          sigma,
			"shape":          1 / sigma,
			"log_likelihood": ll,
			"n":              n,
			"events":         nEvents,
		},
	}, nil
}

// startValues seeds the optimizer with OLS of log(T) on the
// covariates and unit scale.
func startValues(logT []float64, preds [][]float64, k int) []float64 {
	n := len(logT)
	X := mat.NewDense(n, k+1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1)
		for j := 0; j < k; j++ {
			X.Set(i, j+1, preds[j][i])
		}
	}
	init := make([]float64, k+2)
	var beta mat.VecDense
	if err := beta.SolveVec(X, mat.NewVecDense(n, logT)); err == nil {
		for j := 0; j <= k; j++ {
			init[j] = beta.AtVec(j)
		}
	}
	return init
}

// standardErrors inverts a central-difference Hessian of the negative
// log-likelihood at the optimum.
func standardErrors(negLL func([]float64) float64, theta []float64) ([]float64, bool) {
	p := len(theta)
	const h = 1e-4

	hess := mat.NewSymDense(p, nil)
	point := func(deltas map[int]float64) float64 {
		x := append([]float64(nil), theta...)
		for j, d := range deltas {
			x[j] += d
		}
		return negLL(x)
	}
	f0 := negLL(theta)
	for a := 0; a < p; a++ {
		for b := a; b < p; b++ {
			var v float64
			if a == b {
				v = (point(map[int]float64{a: h}) - 2*f0 + point(map[int]float64{a: -h})) / (h * h)
			} else {
				v = (point(map[int]float64{a: h, b: h}) -
					point(map[int]float64{a: h, b: -h}) -
					point(map[int]float64{a: -h, b: h}) +
					point(map[int]float64{a: -h, b: -h})) / (4 * h * h)
			}
			hess.SetSym(a, b, v)
		}
	}

	var cov mat.Dense
	if err := cov.Inverse(hess); err != nil {
		return nil, false
	}
	ses := make([]float64, p)
	for j := 0; j < p; j++ {
		d := cov.At(j, j)
		if d <= 0 {
			return nil, false
		}
		ses[j] = math.Sqrt(d)
	}
	return ses, true
}
