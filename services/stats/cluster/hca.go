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

	"github.com/AleutianAI/AleutianStats/services/stats"
)

type hcaParams struct {
	Variables []string `json:"variables" validate:"required,min=1"`
	K         int      `json:"k" validate:"required,min=2"`
	Linkage   string   `json:"linkage" validate:"omitempty,oneof=single complete average ward"`
}

type hcaAnalysis struct{}

func (hcaAnalysis) Name() string { return "hca" }

func (hcaAnalysis) Summary() string {
	return "Agglomerative hierarchical clustering with a k-cluster cut"
}

func (hcaAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	p := hcaParams{Linkage: "average"}
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	if p.Linkage == "" {
		p.Linkage = "average"
	}

	pts, err := points(table, p.Variables)
	if err != nil {
		return nil, err
	}
	if err := checkK(pts, p.K); err != nil {
		return nil, err
	}

	n := len(pts)
	dist := distanceMatrix(pts)

	// Lance-Williams updates over a working copy of the distance matrix.
	// active[i] tracks live clusters; member lists carry the merge state.
	work := make([][]float64, n)
	for i := range work {
		work[i] = append([]float64(nil), dist[i]...)
	}
	active := make([]bool, n)
	sizes := make([]int, n)
	members := make([][]int, n)
	for i := 0; i < n; i++ {
		active[i] = true
		sizes[i] = 1
		members[i] = []int{i}
	}

	type merge struct {
		a, b     int
		distance float64
		size     int
	}
	var history []merge

	labels := make([]int, n)
	remaining := n
	for remaining > p.K {
		// Closest active pair.
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && work[i][j] < best {
					best = work[i][j]
					bi, bj = i, j
				}
			}
		}

		// Merge bj into bi.
		for m := 0; m < n; m++ {
			if !active[m] || m == bi || m == bj {
				continue
			}
			work[bi][m] = lanceWilliams(p.Linkage,
				work[bi][m], work[bj][m], work[bi][bj],
				sizes[bi], sizes[bj], sizes[m])
			work[m][bi] = work[bi][m]
		}
		members[bi] = append(members[bi], members[bj]...)
		sizes[bi] += sizes[bj]
		active[bj] = false
		remaining--
		history = append(history, merge{a: bi, b: bj, distance: best, size: sizes[bi]})
	}

	clusterID := 0
	clusters := make([][]int, 0, p.K)
	for i := 0; i < n; i++ {
		if !active[i] {
			continue
		}
		for _, m := range members[i] {
			labels[m] = clusterID
		}
		clusters = append(clusters, members[i])
		clusterID++
	}

	mergeTable := make([]map[string]any, len(history))
	for i, m := range history {
		mergeTable[i] = map[string]any{
			"step": i + 1, "distance": m.distance, "size": m.size,
		}
	}

	return map[string]any{
		"results": map[string]any{
			"k":          p.K,
			"linkage":    p.Linkage,
			"labels":     labels,
			"sizes":      clusterSizes(labels, p.K),
			"merges":     mergeTable,
			"silhouette": silhouette(dist, labels, p.K),
			"n":          n,
		},
	}, nil
}

// lanceWilliams updates the distance from a merged cluster (i union j)
// to cluster m.
func lanceWilliams(linkage string, dim, djm, dij float64, ni, nj, nm int) float64 {
	switch linkage {
	case "single":
		return math.Min(dim, djm)
	case "complete":
		return math.Max(dim, djm)
	case "ward":
		fi := float64(ni + nm)
		fj := float64(nj + nm)
		ft := float64(ni + nj + nm)
		return math.Sqrt((fi*dim*dim + fj*djm*djm - float64(nm)*dij*dij) / ft)
	default: // average
		fi := float64(ni)
		fj := float64(nj)
		return (fi*dim + fj*djm) / (fi + fj)
	}
}
