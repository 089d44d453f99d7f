// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cluster implements k-means, k-medoids (PAM), and
// agglomerative hierarchical clustering endpoints.
package cluster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

// Analyses returns every endpoint in this package.
func Analyses() []stats.Analysis {
	return []stats.Analysis{
		kmeansAnalysis{},
		kmedoidsAnalysis{},
		hcaAnalysis{},
	}
}

// points extracts the variable columns into row-major observations
// with listwise deletion.
func points(table *stats.Table, variables []string) ([][]float64, error) {
	cols, err := table.Columns(variables...)
	if err != nil {
		return nil, err
	}
	n := len(cols[0])
	pts := make([][]float64, n)
	for i := 0; i < n; i++ {
		p := make([]float64, len(cols))
		for j := range cols {
			p[j] = cols[j][i]
		}
		pts[i] = p
	}
	return pts, nil
}

// checkK rejects cluster counts the data cannot support. k above the
// number of distinct points can never converge.
func checkK(pts [][]float64, k int) error {
	if k < 2 {
		return fmt.Errorf("%w: 'k' must be at least 2", stats.ErrBadParameter)
	}
	distinct := 0
	for i, p := range pts {
		dup := false
		for j := 0; j < i; j++ {
			if floats.Equal(p, pts[j]) {
				dup = true
				break
			}
		}
		if !dup {
			distinct++
		}
	}
	if k > distinct {
		return fmt.Errorf("%w: 'k' is %d but the data has only %d distinct points",
			stats.ErrBadParameter, k, distinct)
	}
	return nil
}

func euclid(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}

// distanceMatrix computes pairwise Euclidean distances.
func distanceMatrix(pts [][]float64) [][]float64 {
	n := len(pts)
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := euclid(pts[i], pts[j])
			d[i][j] = v
			d[j][i] = v
		}
	}
	return d
}

// silhouette is the mean silhouette coefficient over all points.
func silhouette(dist [][]float64, labels []int, k int) float64 {
	n := len(labels)
	if k < 2 || n < 2 {
		return math.NaN()
	}

	counts := make([]int, k)
	for _, l := range labels {
		counts[l]++
	}

	var total float64
	var used int
	for i := 0; i < n; i++ {
		own := labels[i]
		if counts[own] < 2 {
			continue
		}
		sums := make([]float64, k)
		for j := 0; j < n; j++ {
			if j != i {
				sums[labels[j]] += dist[i][j]
			}
		}
		a := sums[own] / float64(counts[own]-1)
		b := math.Inf(1)
		for c := 0; c < k; c++ {
			if c != own && counts[c] > 0 {
				b = math.Min(b, sums[c]/float64(counts[c]))
			}
		}
		if m := math.Max(a, b); m > 0 {
			total += (b - a) / m
		}
		used++
	}
	if used == 0 {
		return math.NaN()
	}
	return total / float64(used)
}

// clusterSizes tallies labels into per-cluster counts.
func clusterSizes(labels []int, k int) []int {
	sizes := make([]int, k)
	for _, l := range labels {
		sizes[l]++
	}
	return sizes
}
