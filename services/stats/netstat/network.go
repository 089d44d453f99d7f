// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package netstat computes graph centralities and density from an
// edge-list table.
package netstat

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

const pagerankDamping = 0.85

// Analyses returns every endpoint in this package.
func Analyses() []stats.Analysis {
	return []stats.Analysis{networkAnalysis{}}
}

type networkParams struct {
	Source   string `json:"source" validate:"required"`
	Target   string `json:"target" validate:"required"`
	Directed bool   `json:"directed"`
}

type networkAnalysis struct{}

func (networkAnalysis) Name() string { return "network" }

func (networkAnalysis) Summary() string {
	return "Degree, betweenness, closeness, and PageRank centralities"
}

func (networkAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p networkParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	names, ids, edges, err := edgeList(table, p.Source, p.Target)
	if err != nil {
		return nil, err
	}
	n := len(names)

	// Undirected metrics use the undirected view; PageRank always runs
	// on a directed graph (undirected input becomes edge pairs).
	und := simple.NewUndirectedGraph()
	dir := simple.NewDirectedGraph()
	for _, name := range names {
		und.AddNode(simple.Node(ids[name]))
		dir.AddNode(simple.Node(ids[name]))
	}
	degree := make(map[string]int, n)
	for _, e := range edges {
		f, t := simple.Node(ids[e[0]]), simple.Node(ids[e[1]])
		if und.Edge(f.ID(), t.ID()) == nil {
			und.SetEdge(simple.Edge{F: f, T: t})
		}
		if dir.Edge(f.ID(), t.ID()) == nil {
			dir.SetEdge(simple.Edge{F: f, T: t})
		}
		if !p.Directed && dir.Edge(t.ID(), f.ID()) == nil {
			dir.SetEdge(simple.Edge{F: t, T: f})
		}
	}
	for _, name := range names {
		degree[name] = und.From(ids[name]).Len()
	}

	betweenness := network.Betweenness(und)
	closeness := network.Closeness(und, path.DijkstraAllPaths(und))
	pagerank := network.PageRank(dir, pagerankDamping, 1e-8)

	nodes := make([]map[string]any, n)
	for i, name := range names {
		id := ids[name]
		nodes[i] = map[string]any{
			"node":        name,
			"degree":      degree[name],
			"betweenness": betweenness[id],
			"closeness":   closeness[id],
			"pagerank":    pagerank[id],
		}
	}

	maxEdges := float64(n*(n-1)) / 2
	if p.Directed {
		maxEdges = float64(n * (n - 1))
	}
	uniqueEdges := und.Edges().Len()
	if p.Directed {
		uniqueEdges = dir.Edges().Len()
	}
	density := 0.0
	if maxEdges > 0 {
		density = float64(uniqueEdges) / maxEdges
	}

	return map[string]any{
		"results": map[string]any{
			"nodes":    nodes,
			"directed": p.Directed,
			"n_nodes":  n,
			"n_edges":  uniqueEdges,
			"density":  density,
		},
	}, nil
}

// edgeList reads source/target pairs, assigning dense node IDs in
// sorted name order.
func edgeList(table *stats.Table, srcCol, dstCol string) ([]string, map[string]int64, [][2]string, error) {
	for _, c := range []string{srcCol, dstCol} {
		if !table.HasColumn(c) {
			return nil, nil, nil, fmt.Errorf("%w: column %q not present in 'data'",
				stats.ErrBadParameter, c)
		}
	}

	nameSet := make(map[string]struct{})
	var edges [][2]string
	for i := 0; i < table.Len(); i++ {
		sv, ok := table.Value(i, srcCol)
		if !ok || sv == nil {
			continue
		}
		tv, ok := table.Value(i, dstCol)
		if !ok || tv == nil {
			continue
		}
		s, d := fmt.Sprint(sv), fmt.Sprint(tv)
		if s == d {
			continue // self-loops carry no centrality information
		}
		nameSet[s] = struct{}{}
		nameSet[d] = struct{}{}
		edges = append(edges, [2]string{s, d})
	}
	if len(edges) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: no usable edges", stats.ErrInsufficientData)
	}

	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)
	ids := make(map[string]int64, len(names))
	for i, name := range names {
		ids[name] = int64(i)
	}
	return names, ids, edges, nil
}
