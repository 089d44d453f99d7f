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
	"fmt"
	"math"
	"math/rand"

	"github.com/AleutianAI/AleutianStats/pkg/render"
	"github.com/AleutianAI/AleutianStats/services/stats"
)

const (
	defaultSeed   = 20250101
	kmeansMaxIter = 300
)

type kmeansParams struct {
	Variables []string `json:"variables" validate:"required,min=1"`
	K         int      `json:"k" validate:"required,min=2"`
	Seed      int64    `json:"seed"`
	Plot      bool     `json:"plot"`
}

type kmeansAnalysis struct{}

func (kmeansAnalysis) Name() string { return "kmeans" }

func (kmeansAnalysis) Summary() string {
	return "K-means clustering with k-means++ seeding"
}

func (kmeansAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	p := kmeansParams{Seed: defaultSeed}
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

	rng := rand.New(rand.NewSource(p.Seed))
	centers := seedPlusPlus(pts, p.K, rng)

	labels := make([]int, len(pts))
	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := assign(pts, centers, labels)
		recenter(pts, labels, centers)
		if !changed && iter > 0 {
			break
		}
	}

	var inertia float64
	for i, pt := range pts {
		d := euclid(pt, centers[labels[i]])
		inertia += d * d
	}

	dist := distanceMatrix(pts)
	out := map[string]any{
		"results": map[string]any{
			"k":          p.K,
			"labels":     labels,
			"centers":    centers,
			"sizes":      clusterSizes(labels, p.K),
			"inertia":    inertia,
			"silhouette": silhouette(dist, labels, p.K),
			"n":          len(pts),
		},
	}
	if p.Plot {
		uri, err := scatterByCluster(pts, labels, p.Variables)
		if err != nil {
			return nil, err
		}
		out["plot"] = uri
	}
	return out, nil
}

// seedPlusPlus picks initial centers with squared-distance-weighted
// sampling.
func seedPlusPlus(pts [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	first := append([]float64(nil), pts[rng.Intn(len(pts))]...)
	centers = append(centers, first)

	d2 := make([]float64, len(pts))
	for len(centers) < k {
		var total float64
		for i, pt := range pts {
			best := math.Inf(1)
			for _, c := range centers {
				d := euclid(pt, c)
				best = math.Min(best, d*d)
			}
			d2[i] = best
			total += best
		}
		if total == 0 {
			// Remaining points coincide with centers; any point works.
			centers = append(centers, append([]float64(nil), pts[rng.Intn(len(pts))]...))
			continue
		}
		target := rng.Float64() * total
		var cum float64
		pick := len(pts) - 1
		for i, v := range d2 {
			cum += v
			if cum >= target {
				pick = i
				break
			}
		}
		centers = append(centers, append([]float64(nil), pts[pick]...))
	}
	return centers
}

func assign(pts, centers [][]float64, labels []int) bool {
	changed := false
	for i, pt := range pts {
		best := 0
		bestD := math.Inf(1)
		for c, center := range centers {
			if d := euclid(pt, center); d < bestD {
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

func recenter(pts [][]float64, labels []int, centers [][]float64) {
	dim := len(pts[0])
	counts := make([]int, len(centers))
	for c := range centers {
		for j := 0; j < dim; j++ {
			centers[c][j] = 0
		}
	}
	for i, pt := range pts {
		c := labels[i]
		counts[c]++
		for j, v := range pt {
			centers[c][j] += v
		}
	}
	for c := range centers {
		if counts[c] == 0 {
			continue
		}
		for j := 0; j < dim; j++ {
			centers[c][j] /= float64(counts[c])
		}
	}
}

// scatterByCluster plots the first two variables colored by label.
func scatterByCluster(pts [][]float64, labels []int, variables []string) (string, error) {
	if len(variables) < 2 {
		return "", fmt.Errorf("%w: scatter plot needs at least 2 variables",
			stats.ErrBadParameter)
	}
	x := make([]float64, len(pts))
	y := make([]float64, len(pts))
	for i, pt := range pts {
		x[i] = pt[0]
		y[i] = pt[1]
	}
	return render.ClusterScatter(x, y, labels, "Clusters", variables[0], variables[1])
}
