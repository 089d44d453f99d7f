// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cluster

import (
	"context"
	"math"
	"math/rand"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

const kmedoidsMaxIter = 100

type kmedoidsParams struct {
	Variables []string `json:"variables" validate:"required,min=1"`
	K         int      `json:"k" validate:"required,min=2"`
	Seed      int64    `json:"seed"`
}

type kmedoidsAnalysis struct{}

func (kmedoidsAnalysis) Name() string { return "kmedoids" }

func (kmedoidsAnalysis) Summary() string {
	return "K-medoids (PAM) clustering over actual observations"
}

func (kmedoidsAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	p := kmedoidsParams{Seed: defaultSeed}
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	pts, err := points(table, p.Variables)
	if err != nil {
		return nil, err
	}
	if err := checkK(pts, p.K); err != nil {
		return nil, err
	}

	dist := distanceMatrix(pts)
	rng := rand.New(rand.NewSource(p.Seed))
	medoids := rng.Perm(len(pts))[:p.K]

	labels := make([]int, len(pts))
	assignToMedoids(dist, medoids, labels)

	// Alternate medoid updates and reassignment until stable.
	for iter := 0; iter < kmedoidsMaxIter; iter++ {
		changed := false
		for c := range medoids {
			best := medoids[c]
			bestCost := withinCost(dist, labels, c, best)
			for i := range pts {
				if labels[i] != c || i == best {
					continue
				}
				if cost := withinCost(dist, labels, c, i); cost < bestCost {
					bestCost = cost
					best = i
				}
			}
			if best != medoids[c] {
				medoids[c] = best
				changed = true
			}
		}
		if !assignToMedoids(dist, medoids, labels) && !changed {
			break
		}
	}

	var totalCost float64
	for i, l := range labels {
		totalCost += dist[i][medoids[l]]
	}

	medoidPoints := make([][]float64, p.K)
	for c, m := range medoids {
		medoidPoints[c] = pts[m]
	}

	return map[string]any{
		"results": map[string]any{
			"k":              p.K,
			"labels":         labels,
			"medoid_indices": medoids,
			"medoids":        medoidPoints,
			"sizes":          clusterSizes(labels, p.K),
			"total_cost":     totalCost,
			"silhouette":     silhouette(dist, labels, p.K),
			"n":              len(pts),
		},
	}, nil
}

func assignToMedoids(dist [][]float64, medoids []int, labels []int) bool {
	changed := false
	for i := range labels {
		best := 0
		bestD := math.Inf(1)
		for c, m := range medoids {
			if d := dist[i][m]; d < bestD {
				bestD = d
				best = c
			}
		}
		if labels[i] != best {
			labels[i] = best
			changed = true
		}
	}
	return changed
}

// withinCost sums distances from cluster c's members to a candidate
// medoid.
func withinCost(dist [][]float64, labels []int, c, candidate int) float64 {
	var cost float64
	for i, l := range labels {
		if l == c {
			cost += dist[i][candidate]
		}
	}
	return cost
}
