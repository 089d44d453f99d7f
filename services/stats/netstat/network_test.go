// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package netstat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

func newReq(t *testing.T, rows []stats.Row, params map[string]any) *stats.Request {
	t.Helper()
	req, err := stats.NewRequest(rows, params)
	require.NoError(t, err)
	return req
}

func nodesByName(t *testing.T, out map[string]any) map[string]map[string]any {
	t.Helper()
	res, ok := out["results"].(map[string]any)
	require.True(t, ok)
	byName := make(map[string]map[string]any)
	for _, n := range res["nodes"].([]map[string]any) {
		byName[n["node"].(string)] = n
	}
	return byName
}

func edgeRows(pairs [][2]string) []stats.Row {
	rows := make([]stats.Row, len(pairs))
	for i, p := range pairs {
		rows[i] = stats.Row{"from": p[0], "to": p[1]}
	}
	return rows
}

func TestNetworkStarGraph(t *testing.T) {
	rows := edgeRows([][2]string{
		{"hub", "a"}, {"hub", "b"}, {"hub", "c"}, {"hub", "d"},
	})
	req := newReq(t, rows, map[string]any{"source": "from", "target": "to"})

	out, err := networkAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	nodes := nodesByName(t, out)
	require.Len(t, nodes, 5)
	assert.Equal(t, 4, nodes["hub"]["degree"])
	assert.Equal(t, 1, nodes["a"]["degree"])
	assert.Greater(t, nodes["hub"]["betweenness"].(float64), nodes["a"]["betweenness"].(float64))
	assert.Greater(t, nodes["hub"]["pagerank"].(float64), nodes["a"]["pagerank"].(float64))

	res := out["results"].(map[string]any)
	// 4 edges over C(5,2) = 10 possible.
	assert.InDelta(t, 0.4, res["density"].(float64), 1e-12)
}

func TestNetworkPathGraphCloseness(t *testing.T) {
	rows := edgeRows([][2]string{
		{"a", "b"}, {"b", "c"}, {"c", "d"},
	})
	req := newReq(t, rows, map[string]any{"source": "from", "target": "to"})

	out, err := networkAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	nodes := nodesByName(t, out)
	assert.Greater(t, nodes["b"]["closeness"].(float64), nodes["a"]["closeness"].(float64),
		"interior nodes are closer to everyone")
	assert.Greater(t, nodes["b"]["betweenness"].(float64), 0.0)
	assert.InDelta(t, 0.0, nodes["a"]["betweenness"].(float64), 1e-12)
}

func TestNetworkDirectedDensity(t *testing.T) {
	rows := edgeRows([][2]string{
		{"a", "b"}, {"b", "c"},
	})
	req := newReq(t, rows, map[string]any{
		"source": "from", "target": "to", "directed": true,
	})

	out, err := networkAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := out["results"].(map[string]any)
	assert.Equal(t, true, res["directed"])
	// 2 arcs over 3*2 ordered pairs.
	assert.InDelta(t, 2.0/6, res["density"].(float64), 1e-12)
}

func TestNetworkSkipsSelfLoops(t *testing.T) {
	rows := edgeRows([][2]string{
		{"a", "a"}, {"a", "b"},
	})
	req := newReq(t, rows, map[string]any{"source": "from", "target": "to"})

	out, err := networkAnalysis{}.Run(context.Background(), req)
	require.NoError(t, err)

	res := out["results"].(map[string]any)
	assert.Equal(t, 2, res["n_nodes"])
	assert.Equal(t, 1, res["n_edges"])
}

func TestNetworkNoEdges(t *testing.T) {
	rows := []stats.Row{{"from": nil, "to": "b"}}
	req := newReq(t, rows, map[string]any{"source": "from", "target": "to"})

	_, err := networkAnalysis{}.Run(context.Background(), req)
	require.ErrorIs(t, err, stats.ErrInsufficientData)
}
