// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package render draws analysis charts in memory and returns them as
// base64 PNG data URIs for embedding in the JSON response.
package render

import (
	"bytes"
	"encoding/base64"
	"fmt"

	mstats "github.com/aclements/go-moremath/stats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	chartWidth  = 6 * vg.Inch
	chartHeight = 4 * vg.Inch
)

// Series is one named line or step curve.
type Series struct {
	Name string
	X    []float64
	Y    []float64
}

// DataURI renders a plot to PNG and wraps it as a data URI.
func DataURI(p *plot.Plot) (string, error) {
	wt, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return "", fmt.Errorf("render chart: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("render chart: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Histogram draws a normalized histogram with a kernel density overlay
// when the sample is large enough for the KDE to be meaningful.
func Histogram(values []float64, bins int, title, xLabel string) (string, error) {
	if len(values) == 0 {
		return "", fmt.Errorf("histogram requires at least one value")
	}
	if bins <= 0 {
		bins = 16
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "density"

	h, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return "", fmt.Errorf("histogram: %w", err)
	}
	h.Normalize(1)
	p.Add(h)

	if len(values) >= 5 {
		kde := &mstats.KDE{Sample: mstats.Sample{Xs: values}}
		fn := plotter.NewFunction(kde.PDF)
		fn.Samples = 200
		p.Add(fn)
	}

	return DataURI(p)
}

// Scatter draws a plain scatter plot.
func Scatter(x, y []float64, title, xLabel, yLabel string) (string, error) {
	p, err := scatterPlot(x, y, title, xLabel, yLabel)
	if err != nil {
		return "", err
	}
	return DataURI(p)
}

// FitScatter draws a scatter plot with a fitted line y = a + b*x.
func FitScatter(x, y []float64, intercept, slope float64, title, xLabel, yLabel string) (string, error) {
	p, err := scatterPlot(x, y, title, xLabel, yLabel)
	if err != nil {
		return "", err
	}
	fit := plotter.NewFunction(func(v float64) float64 { return intercept + slope*v })
	fit.Samples = 100
	p.Add(fit)
	return DataURI(p)
}

// ClusterScatter draws points colored by cluster assignment.
func ClusterScatter(x, y []float64, labels []int, title, xLabel, yLabel string) (string, error) {
	if len(x) != len(y) || len(x) != len(labels) {
		return "", fmt.Errorf("cluster scatter: mismatched lengths")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	byCluster := make(map[int]plotter.XYs)
	maxLabel := 0
	for i, lab := range labels {
		byCluster[lab] = append(byCluster[lab], plotter.XY{X: x[i], Y: y[i]})
		if lab > maxLabel {
			maxLabel = lab
		}
	}
	for lab := 0; lab <= maxLabel; lab++ {
		pts, ok := byCluster[lab]
		if !ok {
			continue
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return "", fmt.Errorf("cluster scatter: %w", err)
		}
		s.GlyphStyle.Color = plotutil.Color(lab)
		p.Add(s)
		p.Legend.Add(fmt.Sprintf("cluster %d", lab), s)
	}

	return DataURI(p)
}

// GroupMeans draws group means as connected points over a nominal axis.
func GroupMeans(groups []string, means []float64, title, yLabel string) (string, error) {
	if len(groups) != len(means) || len(groups) == 0 {
		return "", fmt.Errorf("group means: mismatched or empty inputs")
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = yLabel
	p.NominalX(groups...)

	pts := make(plotter.XYs, len(means))
	for i, m := range means {
		pts[i] = plotter.XY{X: float64(i), Y: m}
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return "", fmt.Errorf("group means: %w", err)
	}
	p.Add(line, points)

	return DataURI(p)
}

// StepCurves draws named step functions, e.g. Kaplan-Meier survival
// curves.
func StepCurves(series []Series, title, xLabel, yLabel string) (string, error) {
	if len(series) == 0 {
		return "", fmt.Errorf("step curves: no series")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	for i, s := range series {
		if len(s.X) != len(s.Y) {
			return "", fmt.Errorf("step curves: series %q has mismatched lengths", s.Name)
		}
		pts := make(plotter.XYs, len(s.X))
		for j := range s.X {
			pts[j] = plotter.XY{X: s.X[j], Y: s.Y[j]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", fmt.Errorf("step curves: %w", err)
		}
		line.StepStyle = plotter.PostStep
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(s.Name, line)
	}

	return DataURI(p)
}

// Lines draws named line series over a shared X axis.
func Lines(series []Series, title, xLabel, yLabel string) (string, error) {
	if len(series) == 0 {
		return "", fmt.Errorf("lines: no series")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	for i, s := range series {
		if len(s.X) != len(s.Y) {
			return "", fmt.Errorf("lines: series %q has mismatched lengths", s.Name)
		}
		pts := make(plotter.XYs, len(s.X))
		for j := range s.X {
			pts[j] = plotter.XY{X: s.X[j], Y: s.Y[j]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", fmt.Errorf("lines: %w", err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(s.Name, line)
	}

	return DataURI(p)
}

// scatterPlot builds the shared scatter skeleton.
func scatterPlot(x, y []float64, title, xLabel, yLabel string) (*plot.Plot, error) {
	if len(x) != len(y) || len(x) == 0 {
		return nil, fmt.Errorf("scatter: mismatched or empty inputs")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i] = plotter.XY{X: x[i], Y: y[i]}
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("scatter: %w", err)
	}
	p.Add(s)
	return p, nil
}
