// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tseries

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

const (
	defaultMinSegment      = 5
	defaultMaxChangepoints = 5
)

type changepointParams struct {
	Variable        string  `json:"variable" validate:"required"`
	MinSegment      int     `json:"min_segment" validate:"omitempty,min=2"`
	MaxChangepoints int     `json:"max_changepoints" validate:"omitempty,min=1"`
	Penalty         float64 `json:"penalty" validate:"omitempty,gte=0"`
}

type changepointAnalysis struct{}

func (changepointAnalysis) Name() string { return "changepoint" }

func (changepointAnalysis) Summary() string {
	return "Mean-shift changepoints by binary segmentation"
}

func (changepointAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	p := changepointParams{
		MinSegment:      defaultMinSegment,
		MaxChangepoints: defaultMaxChangepoints,
	}
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	y, err := table.Column(p.Variable)
	if err != nil {
		return nil, err
	}
	n := len(y)
	if n < 2*p.MinSegment {
		return nil, fmt.Errorf("%w: need at least %d observations for segments of %d, got %d",
			stats.ErrInsufficientData, 2*p.MinSegment, p.MinSegment, n)
	}

	// Default penalty scales with the overall variance so constant
	// noise does not fragment into spurious segments.
	penalty := p.Penalty
	if penalty == 0 {
		penalty = 2 * stat.Variance(y, nil)
	}

	points := binarySegment(y, 0, n, p.MinSegment, p.MaxChangepoints, penalty)
	sort.Ints(points)

	// Segment summary table.
	bounds := append([]int{0}, points...)
	bounds = append(bounds, n)
	segments := make([]map[string]any, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		seg := y[bounds[i]:bounds[i+1]]
		segments = append(segments, map[string]any{
			"start": bounds[i],
			"end":   bounds[i+1] - 1,
			"n":     len(seg),
			"mean":  stat.Mean(seg, nil),
		})
	}

	return map[string]any{
		"results": map[string]any{
			"changepoints": points,
			"segments":     segments,
			"penalty":      penalty,
			"n":            n,
		},
	}, nil
}

// binarySegment recursively splits [lo, hi) at the point with the
// largest SSE reduction, while the reduction beats the penalty.
func binarySegment(y []float64, lo, hi, minSeg, budget int, penalty float64) []int {
	if budget <= 0 || hi-lo < 2*minSeg {
		return nil
	}

	baseSSE := segmentSSE(y[lo:hi])
	bestSplit := -1
	bestSSE := baseSSE
	for s := lo + minSeg; s <= hi-minSeg; s++ {
		sse := segmentSSE(y[lo:s]) + segmentSSE(y[s:hi])
		if sse < bestSSE {
			bestSSE = sse
			bestSplit = s
		}
	}
	if bestSplit < 0 || baseSSE-bestSSE < penalty {
		return nil
	}

	points := []int{bestSplit}
	left := binarySegment(y, lo, bestSplit, minSeg, budget-1, penalty)
	budget -= 1 + len(left)
	points = append(points, left...)
	points = append(points, binarySegment(y, bestSplit, hi, minSeg, budget, penalty)...)
	return points
}

func segmentSSE(seg []float64) float64 {
	m := stat.Mean(seg, nil)
	var sse float64
	for _, v := range seg {
		sse += (v - m) * (v - m)
	}
	return sse
}
