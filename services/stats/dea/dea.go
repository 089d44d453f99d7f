// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dea implements input-oriented data envelopment analysis
// (CCR and BCC) with each efficiency score solved as a linear program.
package dea

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

const peerTol = 1e-6

// Analyses returns every endpoint in this package.
func Analyses() []stats.Analysis {
	return []stats.Analysis{deaAnalysis{}}
}

type deaParams struct {
	Unit    string   `json:"unit" validate:"required"`
	Inputs  []string `json:"inputs" validate:"required,min=1"`
	Outputs []string `json:"outputs" validate:"required,min=1"`
	Model   string   `json:"model" validate:"omitempty,oneof=ccr bcc"`
}

type deaAnalysis struct{}

func (deaAnalysis) Name() string { return "dea" }

func (deaAnalysis) Summary() string {
	return "Input-oriented DEA efficiency (CCR/BCC) per decision unit"
}

func (deaAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	p := deaParams{Model: "ccr"}
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	if p.Model == "" {
		p.Model = "ccr"
	}

	units, inputs, outputs, err := deaData(table, p)
	if err != nil {
		return nil, err
	}
	n := len(units)

	scores := make([]map[string]any, n)
	for u := 0; u < n; u++ {
		theta, lambdas, err := solveEnvelope(u, inputs, outputs, p.Model == "bcc")
		if err != nil {
			return nil, fmt.Errorf("unit %q: %w", units[u], err)
		}

		var peers []map[string]any
		for j, l := range lambdas {
			if l > peerTol {
				peers = append(peers, map[string]any{
					"unit": units[j], "lambda": l,
				})
			}
		}
		scores[u] = map[string]any{
			"unit":       units[u],
			"efficiency": theta,
			"efficient":  theta >= 1-peerTol,
			"peers":      peers,
		}
	}

	return map[string]any{
		"results": map[string]any{
			"model":  p.Model,
			"scores": scores,
			"n":      n,
		},
	}, nil
}

// solveEnvelope solves the input-oriented envelopment LP for one unit.
//
// minimize theta subject to
//
//	sum_j lambda_j * x_ij <= theta * x_i0   (inputs)
//	sum_j lambda_j * y_rj >= y_r0           (outputs)
//	sum_j lambda_j = 1                      (BCC only)
//	lambda >= 0
//
// In standard equality form the variables are
// [theta, lambda_1..n, sIn_1..m, sOut_1..r].
func solveEnvelope(unit int, inputs, outputs [][]float64, bcc bool) (float64, []float64, error) {
	n := len(inputs)
	m := len(inputs[0])
	r := len(outputs[0])

	rows := m + r
	if bcc {
		rows++
	}
	cols := 1 + n + m + r

	A := mat.NewDense(rows, cols, nil)
	b := make([]float64, rows)
	c := make([]float64, cols)
	c[0] = 1 // minimize theta

	// Input rows: sum_j lambda_j x_ij - theta*x_i0 + sIn_i = 0.
	for i := 0; i < m; i++ {
		A.Set(i, 0, -inputs[unit][i])
		for j := 0; j < n; j++ {
			A.Set(i, 1+j, inputs[j][i])
		}
		A.Set(i, 1+n+i, 1)
	}
	// Output rows: sum_j lambda_j y_rj - sOut_r = y_r0.
	for q := 0; q < r; q++ {
		row := m + q
		for j := 0; j < n; j++ {
			A.Set(row, 1+j, outputs[j][q])
		}
		A.Set(row, 1+n+m+q, -1)
		b[row] = outputs[unit][q]
	}
	// Convexity row for variable returns to scale.
	if bcc {
		row := m + r
		for j := 0; j < n; j++ {
			A.Set(row, 1+j, 1)
		}
		b[row] = 1
	}

	_, x, err := lp.Simplex(c, A, b, 0, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: envelopment LP failed: %v", stats.ErrNoConverge, err)
	}

	lambdas := make([]float64, n)
	copy(lambdas, x[1:1+n])
	return x[0], lambdas, nil
}

// deaData extracts unit labels with strictly positive input/output
// vectors, row-major per unit.
func deaData(table *stats.Table, p deaParams) ([]string, [][]float64, [][]float64, error) {
	numeric := append(append([]string{}, p.Inputs...), p.Outputs...)
	for _, c := range append([]string{p.Unit}, numeric...) {
		if !table.HasColumn(c) {
			return nil, nil, nil, fmt.Errorf("%w: column %q not present in 'data'",
				stats.ErrBadParameter, c)
		}
	}

	var units []string
	var inputs, outputs [][]float64
	for i := 0; i < table.Len(); i++ {
		uv, ok := table.Value(i, p.Unit)
		if !ok || uv == nil {
			continue
		}
		in := make([]float64, len(p.Inputs))
		out := make([]float64, len(p.Outputs))
		complete := true
		for j, c := range numeric {
			v, ok := table.Value(i, c)
			if !ok || v == nil {
				complete = false
				break
			}
			f, ok := stats.Number(v)
			if !ok || f <= 0 {
				return nil, nil, nil, fmt.Errorf("%w: column %q must be strictly positive",
					stats.ErrBadParameter, c)
			}
			if j < len(p.Inputs) {
				in[j] = f
			} else {
				out[j-len(p.Inputs)] = f
			}
		}
		if !complete {
			continue
		}
		units = append(units, fmt.Sprint(uv))
		inputs = append(inputs, in)
		outputs = append(outputs, out)
	}
	if len(units) < 2 {
		return nil, nil, nil, fmt.Errorf("%w: DEA needs at least 2 decision units",
			stats.ErrInsufficientData)
	}
	return units, inputs, outputs, nil
}
