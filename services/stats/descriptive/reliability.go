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

	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

type reliabilityParams struct {
	Items []string `json:"items" validate:"required,min=2"`
}

type reliabilityAnalysis struct{}

func (reliabilityAnalysis) Name() string { return "reliability" }

func (reliabilityAnalysis) Summary() string {
	return "Cronbach's alpha with item-dropped alphas"
}

func (reliabilityAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p reliabilityParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	cols, err := table.Columns(p.Items...)
	if err != nil {
		return nil, err
	}
	n := len(cols[0])
	if n < 3 {
		return nil, fmt.Errorf("%w: reliability requires at least 3 complete rows, got %d",
			stats.ErrInsufficientData, n)
	}

	alpha := cronbachAlpha(cols)

	dropped := make(map[string]any, len(p.Items))
	for i, item := range p.Items {
		rest := make([][]float64, 0, len(cols)-1)
		for j := range cols {
			if j != i {
				rest = append(rest, cols[j])
			}
		}
		if len(rest) >= 2 {
			dropped[item] = cronbachAlpha(rest)
		} else {
			dropped[item] = math.NaN()
		}
	}

	return map[string]any{
		"results": map[string]any{
			"alpha":              alpha,
			"items":              p.Items,
			"n":                  n,
			"alpha_item_dropped": dropped,
		},
	}, nil
}

// cronbachAlpha computes alpha from item columns using sample variances
// throughout. A zero-variance total yields NaN, which serializes as
// null rather than failing.
func cronbachAlpha(items [][]float64) float64 {
	k := float64(len(items))
	n := len(items[0])

	totals := make([]float64, n)
	var itemVarSum float64
	for _, col := range items {
		itemVarSum += stat.Variance(col, nil)
		for i, v := range col {
			totals[i] += v
		}
	}

	totalVar := stat.Variance(totals, nil)
	if totalVar == 0 {
		return math.NaN()
	}
	return (k / (k - 1)) * (1 - itemVarSum/totalVar)
}
