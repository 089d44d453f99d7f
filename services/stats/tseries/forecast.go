// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tseries implements exponential-smoothing forecasts and
// mean-shift changepoint detection.
package tseries

import (
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianStats/pkg/render"
	"github.com/AleutianAI/AleutianStats/services/stats"
)

// Analyses returns every endpoint in this package.
func Analyses() []stats.Analysis {
	return []stats.Analysis{
		forecastAnalysis{},
		changepointAnalysis{},
	}
}

type forecastParams struct {
	Variable string  `json:"variable" validate:"required"`
	Horizon  int     `json:"horizon" validate:"omitempty,min=1"`
	Method   string  `json:"method" validate:"omitempty,oneof=ses holt"`
	Alpha    float64 `json:"alpha" validate:"omitempty,gt=0,lte=1"`
	Beta     float64 `json:"beta" validate:"omitempty,gt=0,lte=1"`
	Plot     bool    `json:"plot"`
}

type forecastAnalysis struct{}

func (forecastAnalysis) Name() string { return "forecast" }

func (forecastAnalysis) Summary() string {
	return "Simple and Holt exponential smoothing forecasts"
}

func (forecastAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	p := forecastParams{Horizon: 5, Method: "ses", Alpha: 0.3, Beta: 0.1}
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	if p.Method == "" {
		p.Method = "ses"
	}

	y, err := table.Column(p.Variable)
	if err != nil {
		return nil, err
	}
	n := len(y)
	if n < 3 {
		return nil, fmt.Errorf("%w: forecasting needs at least 3 observations, got %d",
			stats.ErrInsufficientData, n)
	}

	var fitted []float64
	var forecast []float64
	switch p.Method {
	case "holt":
		fitted, forecast = holt(y, p.Alpha, p.Beta, p.Horizon)
	default:
		fitted, forecast = ses(y, p.Alpha, p.Horizon)
	}

	var mse float64
	for i, f := range fitted {
		r := y[i] - f
		mse += r * r
	}
	mse /= float64(n)

	out := map[string]any{
		"results": map[string]any{
			"method":   p.Method,
			"alpha":    p.Alpha,
			"fitted":   fitted,
			"forecast": forecast,
			"mse":      mse,
			"horizon":  p.Horizon,
			"n":        n,
		},
	}
	if p.Method == "holt" {
		out["results"].(map[string]any)["beta"] = p.Beta
	}
	if p.Plot {
		uri, err := forecastPlot(y, forecast, p.Variable)
		if err != nil {
			return nil, err
		}
		out["plot"] = uri
	}
	return out, nil
}

// ses runs simple exponential smoothing; the h-step forecast is flat
// at the last level.
func ses(y []float64, alpha float64, horizon int) (fitted, forecast []float64) {
	n := len(y)
	fitted = make([]float64, n)
	level := y[0]
	fitted[0] = level
	for i := 1; i < n; i++ {
		fitted[i] = level
		level = alpha*y[i] + (1-alpha)*level
	}

	forecast = make([]float64, horizon)
	for h := range forecast {
		forecast[h] = level
	}
	return fitted, forecast
}

// holt adds a linear trend component to the smoothing recursion.
func holt(y []float64, alpha, beta float64, horizon int) (fitted, forecast []float64) {
	n := len(y)
	fitted = make([]float64, n)
	level := y[0]
	trend := y[1] - y[0]
	fitted[0] = level
	for i := 1; i < n; i++ {
		fitted[i] = level + trend
		prevLevel := level
		level = alpha*y[i] + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
	}

	forecast = make([]float64, horizon)
	for h := range forecast {
		forecast[h] = level + float64(h+1)*trend
	}
	return fitted, forecast
}

// forecastPlot draws the history and the forecast continuation.
func forecastPlot(y, forecast []float64, name string) (string, error) {
	hist := render.Series{Name: name, X: make([]float64, len(y)), Y: y}
	for i := range y {
		hist.X[i] = float64(i + 1)
	}
	fut := render.Series{Name: "forecast", X: make([]float64, len(forecast)), Y: forecast}
	for i := range forecast {
		fut.X[i] = float64(len(y) + i + 1)
	}
	return render.Lines([]render.Series{hist, fut}, "Forecast", "t", name)
}
