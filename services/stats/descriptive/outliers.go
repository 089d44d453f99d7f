// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package descriptive

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

type outlierParams struct {
	Variables []string `json:"variables" validate:"required,min=1"`
	Method    string   `json:"method" validate:"omitempty,oneof=iqr zscore"`
	Threshold float64  `json:"threshold" validate:"omitempty,gt=0"`
}

type outlierAnalysis struct{}

func (outlierAnalysis) Name() string { return "outliers" }

func (outlierAnalysis) Summary() string {
	return "Outlier flagging by IQR fences or z-scores"
}

func (outlierAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p outlierParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	if p.Method == "" {
		p.Method = "iqr"
	}
	if p.Threshold == 0 {
		if p.Method == "iqr" {
			p.Threshold = 1.5
		} else {
			p.Threshold = 3.0
		}
	}

	results := make(map[string]any, len(p.Variables))
	for _, name := range p.Variables {
		xs, err := table.Column(name)
		if err != nil {
			return nil, err
		}
		if len(xs) < 4 {
			return nil, fmt.Errorf("%w: column %q needs at least 4 values for outlier detection",
				stats.ErrInsufficientData, name)
		}
		switch p.Method {
		case "zscore":
			results[name] = zScoreOutliers(xs, p.Threshold)
		default:
			results[name] = iqrOutliers(xs, p.Threshold)
		}
	}

	return map[string]any{
		"results": results,
		"method":  p.Method,
	}, nil
}

// iqrOutliers flags values outside [Q1 - k*IQR, Q3 + k*IQR].
func iqrOutliers(xs []float64, k float64) map[string]any {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
	iqr := q3 - q1
	lower := q1 - k*iqr
	upper := q3 + k*iqr

	var values []float64
	for _, x := range xs {
		if x < lower || x > upper {
			values = append(values, x)
		}
	}
	return map[string]any{
		"lower_fence": lower,
		"upper_fence": upper,
		"count":       len(values),
		"values":      values,
	}
}

// zScoreOutliers flags values with |z| above the threshold. A constant
// column has zero spread, so no value can be flagged.
func zScoreOutliers(xs []float64, threshold float64) map[string]any {
	mean := stat.Mean(xs, nil)
	sd := stat.StdDev(xs, nil)

	var values []float64
	if sd > 0 {
		for _, x := range xs {
			if math.Abs((x-mean)/sd) > threshold {
				values = append(values, x)
			}
		}
	}
	return map[string]any{
		"mean":   mean,
		"sd":     sd,
		"count":  len(values),
		"values": values,
	}
}
