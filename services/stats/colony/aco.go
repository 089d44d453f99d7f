// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package colony implements an ant-colony traveling-salesman
// heuristic over planar coordinates.
package colony

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

const (
	defaultAnts        = 20
	defaultIterations  = 200
	defaultAlpha       = 1.0
	defaultBeta        = 5.0
	defaultEvaporation = 0.5
	defaultDeposit     = 100.0
	defaultSeed        = 20250101
)

// Analyses returns every endpoint in this package.
func Analyses() []stats.Analysis {
	return []stats.Analysis{acoAnalysis{}}
}

type acoParams struct {
	X           string  `json:"x" validate:"required"`
	Y           string  `json:"y" validate:"required"`
	Ants        int     `json:"ants" validate:"omitempty,min=1"`
	Iterations  int     `json:"iterations" validate:"omitempty,min=1"`
	Alpha       float64 `json:"alpha" validate:"omitempty,gte=0"`
	Beta        float64 `json:"beta" validate:"omitempty,gte=0"`
	Evaporation float64 `json:"evaporation" validate:"omitempty,gt=0,lte=1"`
	Deposit     float64 `json:"deposit" validate:"omitempty,gt=0"`
	Seed        int64   `json:"seed"`
}

type acoAnalysis struct{}

func (acoAnalysis) Name() string { return "aco-tsp" }

func (acoAnalysis) Summary() string {
	return "Ant colony optimization for the traveling-salesman tour"
}

func (acoAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	p := acoParams{
		Ants:        defaultAnts,
		Iterations:  defaultIterations,
		Alpha:       defaultAlpha,
		Beta:        defaultBeta,
		Evaporation: defaultEvaporation,
		Deposit:     defaultDeposit,
		Seed:        defaultSeed,
	}
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	cols, err := table.Columns(p.X, p.Y)
	if err != nil {
		return nil, err
	}
	xs, ys := cols[0], cols[1]
	n := len(xs)
	if n < 3 {
		return nil, fmt.Errorf("%w: a tour needs at least 3 cities, got %d",
			stats.ErrInsufficientData, n)
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := math.Hypot(xs[i]-xs[j], ys[i]-ys[j])
			if d == 0 {
				return nil, fmt.Errorf("%w: cities %d and %d share coordinates",
					stats.ErrBadParameter, i, j)
			}
			dist[i][j] = d
			dist[j][i] = d
		}
	}

	rng := rand.New(rand.NewSource(p.Seed))
	pheromone := make([][]float64, n)
	for i := range pheromone {
		pheromone[i] = make([]float64, n)
		for j := range pheromone[i] {
			pheromone[i][j] = 1
		}
	}

	bestTour := make([]int, 0, n)
	bestLength := math.Inf(1)
	lengths := make([]float64, p.Ants)
	tours := make([][]int, p.Ants)

	for iter := 0; iter < p.Iterations; iter++ {
		for ant := 0; ant < p.Ants; ant++ {
			tour := buildTour(dist, pheromone, p, rng)
			length := tourLength(dist, tour)
			tours[ant] = tour
			lengths[ant] = length
			if length < bestLength {
				bestLength = length
				bestTour = append(bestTour[:0], tour...)
			}
		}

		// Evaporate, then every ant deposits inversely to its length.
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				pheromone[i][j] *= 1 - p.Evaporation
			}
		}
		for ant := 0; ant < p.Ants; ant++ {
			amount := p.Deposit / lengths[ant]
			tour := tours[ant]
			for k := 0; k < n; k++ {
				a, b := tour[k], tour[(k+1)%n]
				pheromone[a][b] += amount
				pheromone[b][a] += amount
			}
		}
	}

	return map[string]any{
		"results": map[string]any{
			"tour":        bestTour,
			"length":      bestLength,
			"cities":      n,
			"ants":        p.Ants,
			"iterations":  p.Iterations,
			"alpha":       p.Alpha,
			"beta":        p.Beta,
			"evaporation": p.Evaporation,
		},
	}, nil
}

// buildTour walks one ant from a random start, choosing the next city
// by pheromone^alpha * (1/d)^beta roulette.
func buildTour(dist, pheromone [][]float64, p acoParams, rng *rand.Rand) []int {
	n := len(dist)
	tour := make([]int, 0, n)
	visited := make([]bool, n)

	current := rng.Intn(n)
	tour = append(tour, current)
	visited[current] = true

	weights := make([]float64, n)
	for len(tour) < n {
		var total float64
		for j := 0; j < n; j++ {
			if visited[j] {
				weights[j] = 0
				continue
			}
			w := math.Pow(pheromone[current][j], p.Alpha) *
				math.Pow(1/dist[current][j], p.Beta)
			weights[j] = w
			total += w
		}

		next := -1
		if total > 0 {
			target := rng.Float64() * total
			var cum float64
			for j := 0; j < n; j++ {
				cum += weights[j]
				if weights[j] > 0 && cum >= target {
					next = j
					break
				}
			}
		}
		if next < 0 {
			// Numerical underflow: fall back to the nearest unvisited.
			bestD := math.Inf(1)
			for j := 0; j < n; j++ {
				if !visited[j] && dist[current][j] < bestD {
					bestD = dist[current][j]
					next = j
				}
			}
		}

		tour = append(tour, next)
		visited[next] = true
		current = next
	}
	return tour
}

func tourLength(dist [][]float64, tour []int) float64 {
	var total float64
	for k := range tour {
		total += dist[tour[k]][tour[(k+1)%len(tour)]]
	}
	return total
}
