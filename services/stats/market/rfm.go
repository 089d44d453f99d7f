// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package market implements marketing analytics: RFM scoring and TURF
// reach analysis.
package market

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

// Analyses returns every endpoint in this package.
func Analyses() []stats.Analysis {
	return []stats.Analysis{
		rfmAnalysis{},
		turfAnalysis{},
	}
}

type rfmParams struct {
	Customer  string `json:"customer" validate:"required"`
	Recency   string `json:"recency" validate:"required"`
	Frequency string `json:"frequency" validate:"required"`
	Monetary  string `json:"monetary" validate:"required"`
}

type rfmAnalysis struct{}

func (rfmAnalysis) Name() string { return "rfm" }

func (rfmAnalysis) Summary() string {
	return "RFM quintile scoring with segment labels"
}

func (rfmAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p rfmParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	customers, metrics, err := rfmData(table, p)
	if err != nil {
		return nil, err
	}
	n := len(customers)

	// Lower recency is better, so its quintile runs reversed.
	rScore := quintiles(metrics[0], true)
	fScore := quintiles(metrics[1], false)
	mScore := quintiles(metrics[2], false)

	segmentIdx := make(map[string][]int)
	rows := make([]map[string]any, n)
	for i, c := range customers {
		seg := segmentLabel(rScore[i], fScore[i], mScore[i])
		segmentIdx[seg] = append(segmentIdx[seg], i)
		rows[i] = map[string]any{
			"customer":  c,
			"recency":   metrics[0][i],
			"frequency": metrics[1][i],
			"monetary":  metrics[2][i],
			"r":         rScore[i],
			"f":         fScore[i],
			"m":         mScore[i],
			"rfm":       fmt.Sprintf("%d%d%d", rScore[i], fScore[i], mScore[i]),
			"segment":   seg,
		}
	}

	segNames := make([]string, 0, len(segmentIdx))
	for s := range segmentIdx {
		segNames = append(segNames, s)
	}
	sort.Strings(segNames)
	segments := make([]map[string]any, 0, len(segNames))
	for _, s := range segNames {
		idx := segmentIdx[s]
		segments = append(segments, map[string]any{
			"segment":        s,
			"count":          len(idx),
			"mean_recency":   stat.Mean(pick(metrics[0], idx), nil),
			"mean_frequency": stat.Mean(pick(metrics[1], idx), nil),
			"mean_monetary":  stat.Mean(pick(metrics[2], idx), nil),
		})
	}

	return map[string]any{
		"results": map[string]any{
			"customers": rows,
			"segments":  segments,
			"n":         n,
		},
	}, nil
}

// quintiles assigns 1..5 by rank; reversed gives the best score to the
// smallest values.
func quintiles(values []float64, reversed bool) []int {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	scores := make([]int, n)
	for rank, i := range idx {
		q := rank * 5 / n // 0..4
		if reversed {
			scores[i] = 5 - q
		} else {
			scores[i] = q + 1
		}
	}
	return scores
}

// segmentLabel maps score triples to the usual marketing buckets.
func segmentLabel(r, f, m int) string {
	switch {
	case r >= 4 && f >= 4 && m >= 4:
		return "champions"
	case r >= 4 && f >= 3:
		return "loyal"
	case r >= 4:
		return "recent"
	case r <= 2 && f >= 4:
		return "at_risk"
	case r <= 2 && f <= 2:
		return "hibernating"
	default:
		return "needs_attention"
	}
}

// rfmData extracts customer labels and the three metric columns with
// listwise deletion.
func rfmData(table *stats.Table, p rfmParams) ([]string, [3][]float64, error) {
	var metrics [3][]float64
	numeric := []string{p.Recency, p.Frequency, p.Monetary}
	for _, c := range append([]string{p.Customer}, numeric...) {
		if !table.HasColumn(c) {
			return nil, metrics, fmt.Errorf("%w: column %q not present in 'data'",
				stats.ErrBadParameter, c)
		}
	}

	var customers []string
	for i := 0; i < table.Len(); i++ {
		cv, ok := table.Value(i, p.Customer)
		if !ok || cv == nil {
			continue
		}
		var vals [3]float64
		complete := true
		for j, c := range numeric {
			v, ok := table.Value(i, c)
			if !ok || v == nil {
				complete = false
				break
			}
			f, isNum := stats.Number(v)
			if !isNum {
				complete = false
				break
			}
			vals[j] = f
		}
		if !complete {
			continue
		}
		customers = append(customers, fmt.Sprint(cv))
		for j := range vals {
			metrics[j] = append(metrics[j], vals[j])
		}
	}
	if len(customers) < 5 {
		return nil, metrics, fmt.Errorf("%w: RFM quintiles need at least 5 customers",
			stats.ErrInsufficientData)
	}
	return customers, metrics, nil
}

// pick gathers the values at the given indices.
func pick(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}
