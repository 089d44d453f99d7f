// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package spatial

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

const (
	searchLo  = -0.995
	searchHi  = 0.995
	searchTol = 1e-8
)

type lagParams struct {
	Dependent    string      `json:"dependent" validate:"required"`
	Independents []string    `json:"independents" validate:"required,min=1"`
	Weights      [][]float64 `json:"weights" validate:"required,min=2"`
}

type sarAnalysis struct{}

func (sarAnalysis) Name() string { return "sar" }

func (sarAnalysis) Summary() string {
	return "Spatial lag model by concentrated maximum likelihood"
}

func (sarAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	model, err := spatialModel(req)
	if err != nil {
		return nil, err
	}

	// Concentrated LL over rho: beta is the OLS fit of (y - rho*Wy)
	// on X, so only the 1-D search remains.
	wy := model.lag(model.y)
	profile := func(rho float64) float64 {
		adjusted := make([]float64, model.n)
		for i := range adjusted {
			adjusted[i] = model.y[i] - rho*wy[i]
		}
		sse, err := model.sse(adjusted)
		if err != nil {
			return math.Inf(-1)
		}
		return model.logDet(rho) - float64(model.n)/2*math.Log(sse/float64(model.n))
	}

	rho := goldenMax(profile, searchLo, searchHi)
	adjusted := make([]float64, model.n)
	for i := range adjusted {
		adjusted[i] = model.y[i] - rho*wy[i]
	}
	beta, sse, err := model.fit(adjusted)
	if err != nil {
		return nil, err
	}
	sigma2 := sse / float64(model.n)
	ll := profile(rho) - float64(model.n)/2*(math.Log(2*math.Pi)+1)

	return map[string]any{
		"results": map[string]any{
			"rho":            rho,
			"coefficients":   model.coefTable(beta),
			"sigma_squared":  sigma2,
			"log_likelihood": ll,
			"n":              model.n,
		},
	}, nil
}

type semAnalysis struct{}

func (semAnalysis) Name() string { return "sem" }

func (semAnalysis) Summary() string {
	return "Spatial error model by concentrated maximum likelihood"
}

func (semAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	model, err := spatialModel(req)
	if err != nil {
		return nil, err
	}

	// Concentrated LL over lambda: filter both sides by (I - lambda*W)
	// and fit OLS on the transformed system.
	profile := func(lambda float64) float64 {
		yf, Xf := model.filter(lambda)
		sse, err := sseOf(Xf, yf)
		if err != nil {
			return math.Inf(-1)
		}
		return model.logDet(lambda) - float64(model.n)/2*math.Log(sse/float64(model.n))
	}

	lambda := goldenMax(profile, searchLo, searchHi)
	yf, Xf := model.filter(lambda)
	beta, sse, err := fitOf(Xf, yf)
	if err != nil {
		return nil, err
	}
	sigma2 := sse / float64(model.n)
	ll := profile(lambda) - float64(model.n)/2*(math.Log(2*math.Pi)+1)

	return map[string]any{
		"results": map[string]any{
			"lambda":         lambda,
			"coefficients":   model.coefTable(beta),
			"sigma_squared":  sigma2,
			"log_likelihood": ll,
			"n":              model.n,
		},
	}, nil
}

// spatialData carries the parsed model pieces shared by SAR and SEM:
// response, design matrix, weights, and the weight eigenvalues used by
// the log-determinant.
type spatialData struct {
	y     []float64
	X     *mat.Dense
	W     [][]float64
	names []string
	n     int
	eig   []complex128
}

func spatialModel(req *stats.Request) (*spatialData, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p lagParams
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
	if n <= k+2 {
		return nil, fmt.Errorf("%w: %d complete rows for %d predictors",
			stats.ErrInsufficientData, n, k)
	}
	if err := checkWeights(p.Weights, n); err != nil {
		return nil, err
	}

	X := mat.NewDense(n, k+1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1)
		for j := 0; j < k; j++ {
			X.Set(i, j+1, preds[j][i])
		}
	}

	Wm := mat.NewDense(n, n, nil)
	for i := range p.Weights {
		Wm.SetRow(i, p.Weights[i])
	}
	var eig mat.Eigen
	if !eig.Factorize(Wm, mat.EigenNone) {
		return nil, fmt.Errorf("%w: weight matrix eigendecomposition failed",
			stats.ErrDegenerate)
	}

	return &spatialData{
		y:     y,
		X:     X,
		W:     p.Weights,
		names: append([]string{"(intercept)"}, p.Independents...),
		n:     n,
		eig:   eig.Values(nil),
	}, nil
}

// lag computes W*v.
func (m *spatialData) lag(v []float64) []float64 {
	out := make([]float64, m.n)
	for i := 0; i < m.n; i++ {
		var s float64
		for j := 0; j < m.n; j++ {
			s += m.W[i][j] * v[j]
		}
		out[i] = s
	}
	return out
}

// logDet is log|I - rho*W| via the precomputed eigenvalues.
func (m *spatialData) logDet(rho float64) float64 {
	var sum float64
	for _, ev := range m.eig {
		sum += math.Log(cmplx.Abs(1 - complex(rho, 0)*ev))
	}
	return sum
}

// filter applies (I - lambda*W) to y and every column of X.
func (m *spatialData) filter(lambda float64) ([]float64, *mat.Dense) {
	wy := m.lag(m.y)
	yf := make([]float64, m.n)
	for i := range yf {
		yf[i] = m.y[i] - lambda*wy[i]
	}

	_, p := m.X.Dims()
	Xf := mat.NewDense(m.n, p, nil)
	col := make([]float64, m.n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, m.X)
		wc := m.lag(col)
		for i := 0; i < m.n; i++ {
			Xf.Set(i, j, col[i]-lambda*wc[i])
		}
	}
	return yf, Xf
}

func (m *spatialData) fit(target []float64) ([]float64, float64, error) {
	return fitOf(m.X, target)
}

func (m *spatialData) sse(target []float64) (float64, error) {
	return sseOf(m.X, target)
}

func (m *spatialData) coefTable(beta []float64) []map[string]any {
	out := make([]map[string]any, len(m.names))
	for j, name := range m.names {
		out[j] = map[string]any{"term": name, "b": beta[j]}
	}
	return out
}

func fitOf(X *mat.Dense, y []float64) ([]float64, float64, error) {
	n, p := X.Dims()
	var beta mat.VecDense
	if err := beta.SolveVec(X, mat.NewVecDense(n, y)); err != nil {
		return nil, 0, fmt.Errorf("%w: singular design matrix", stats.ErrDegenerate)
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
	return coefs, sse, nil
}

func sseOf(X *mat.Dense, y []float64) (float64, error) {
	_, sse, err := fitOf(X, y)
	return sse, err
}

// goldenMax runs golden-section search for the maximum of f on
// [lo, hi].
func goldenMax(f func(float64) float64, lo, hi float64) float64 {
	const phi = 0.6180339887498949
	a, b := lo, hi
	c := b - phi*(b-a)
	d := a + phi*(b-a)
	fc, fd := f(c), f(d)
	for b-a > searchTol {
		if fc > fd {
			b, d, fd = d, c, fc
			c = b - phi*(b-a)
			fc = f(c)
		} else {
			a, c, fc = c, d, fd
			d = a + phi*(b-a)
			fd = f(d)
		}
	}
	return (a + b) / 2
}
