// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package survival implements Kaplan-Meier estimation and Weibull
// accelerated-failure-time regression.
package survival

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/AleutianStats/pkg/render"
	"github.com/AleutianAI/AleutianStats/services/stats"
)

// Analyses returns every endpoint in this package.
func Analyses() []stats.Analysis {
	return []stats.Analysis{
		kmAnalysis{},
		aftAnalysis{},
	}
}

type kmParams struct {
	Time  string `json:"time" validate:"required"`
	Event string `json:"event" validate:"required"`
	Group string `json:"group"`
	Plot  bool   `json:"plot"`
}

// subject is one observation: survival time and whether the event was
// observed (1) or censored (0).
type subject struct {
	time  float64
	event bool
}

type kmAnalysis struct{}

func (kmAnalysis) Name() string { return "kaplan-meier" }

func (kmAnalysis) Summary() string {
	return "Kaplan-Meier survival curves with log-rank comparison"
}

func (kmAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	var p kmParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	groups, order, err := survivalData(table, p.Time, p.Event, p.Group)
	if err != nil {
		return nil, err
	}

	curves := make([]map[string]any, 0, len(order))
	var series []render.Series
	for _, g := range order {
		steps := kmCurve(groups[g])
		points := make([]map[string]any, len(steps))
		xs := []float64{0}
		ys := []float64{1}
		for i, s := range steps {
			points[i] = map[string]any{
				"time": s.time, "at_risk": s.atRisk, "events": s.events,
				"survival": s.survival,
			}
			xs = append(xs, s.time)
			ys = append(ys, s.survival)
		}
		curve := map[string]any{
			"group":           g,
			"n":               len(groups[g]),
			"steps":           points,
			"median_survival": medianSurvival(steps),
		}
		curves = append(curves, curve)
		series = append(series, render.Series{Name: g, X: xs, Y: ys})
	}

	res := map[string]any{
		"curves": curves,
	}
	if len(order) > 1 {
		chi2, df, pValue := logRank(groups, order)
		res["log_rank"] = map[string]any{
			"chi_squared": chi2, "df": df, "p_value": pValue,
		}
	}

	out := map[string]any{"results": res}
	if p.Plot {
		uri, err := render.StepCurves(series, "Survival", p.Time, "S(t)")
		if err != nil {
			return nil, err
		}
		out["plot"] = uri
	}
	return out, nil
}

// kmStep is the estimator state after each distinct event time.
type kmStep struct {
	time     float64
	atRisk   int
	events   int
	survival float64
}

// kmCurve computes the product-limit estimate over distinct event
// times.
func kmCurve(subjects []subject) []kmStep {
	sorted := append([]subject(nil), subjects...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].time < sorted[j].time })

	var steps []kmStep
	s := 1.0
	atRisk := len(sorted)
	for i := 0; i < len(sorted); {
		t := sorted[i].time
		events := 0
		removed := 0
		for i < len(sorted) && sorted[i].time == t {
			if sorted[i].event {
				events++
			}
			removed++
			i++
		}
		if events > 0 {
			s *= 1 - float64(events)/float64(atRisk)
			steps = append(steps, kmStep{
				time: t, atRisk: atRisk, events: events, survival: s,
			})
		}
		atRisk -= removed
	}
	return steps
}

// medianSurvival is the first event time where S(t) drops to 0.5 or
// below; null when the curve never reaches it.
func medianSurvival(steps []kmStep) any {
	for _, s := range steps {
		if s.survival <= 0.5 {
			return s.time
		}
	}
	return nil
}

// logRank computes the k-sample log-rank statistic.
func logRank(groups map[string][]subject, order []string) (chi2 float64, df int, p float64) {
	k := len(order)

	// Distinct event times across all groups.
	timeSet := make(map[float64]struct{})
	for _, subjects := range groups {
		for _, s := range subjects {
			if s.event {
				timeSet[s.time] = struct{}{}
			}
		}
	}
	times := make([]float64, 0, len(timeSet))
	for t := range timeSet {
		times = append(times, t)
	}
	sort.Float64s(times)

	observed := make([]float64, k)
	expected := make([]float64, k)
	for _, t := range times {
		var totalRisk, totalEvents float64
		risk := make([]float64, k)
		events := make([]float64, k)
		for gi, g := range order {
			for _, s := range groups[g] {
				if s.time >= t {
					risk[gi]++
				}
				if s.event && s.time == t {
					events[gi]++
				}
			}
			totalRisk += risk[gi]
			totalEvents += events[gi]
		}
		for gi := 0; gi < k; gi++ {
			observed[gi] += events[gi]
			expected[gi] += totalEvents * risk[gi] / totalRisk
		}
	}

	for gi := 0; gi < k; gi++ {
		if expected[gi] > 0 {
			d := observed[gi] - expected[gi]
			chi2 += d * d / expected[gi]
		}
	}
	df = k - 1
	dist := distuv.ChiSquared{K: float64(df)}
	p = 1 - dist.CDF(chi2)
	return chi2, df, p
}

// survivalData reads time/event (and optional group) columns. Without
// a group column every subject lands in one "all" stratum.
func survivalData(table *stats.Table, timeCol, eventCol, groupCol string) (map[string][]subject, []string, error) {
	cols := []string{timeCol, eventCol}
	if groupCol != "" {
		cols = append(cols, groupCol)
	}
	for _, c := range cols {
		if !table.HasColumn(c) {
			return nil, nil, fmt.Errorf("%w: column %q not present in 'data'",
				stats.ErrBadParameter, c)
		}
	}

	groups := make(map[string][]subject)
	var order []string
	for i := 0; i < table.Len(); i++ {
		tv, ok := table.Value(i, timeCol)
		if !ok || tv == nil {
			continue
		}
		ev, ok := table.Value(i, eventCol)
		if !ok || ev == nil {
			continue
		}
		tf, ok1 := stats.Number(tv)
		ef, ok2 := stats.Number(ev)
		if !ok1 || !ok2 {
			continue
		}
		if tf < 0 {
			return nil, nil, fmt.Errorf("%w: negative survival time %v",
				stats.ErrBadParameter, tf)
		}
		if ef != 0 && ef != 1 {
			return nil, nil, fmt.Errorf("%w: %q must be coded 0/1, found %v",
				stats.ErrBadParameter, eventCol, ef)
		}

		label := "all"
		if groupCol != "" {
			gv, ok := table.Value(i, groupCol)
			if !ok || gv == nil {
				continue
			}
			label = fmt.Sprint(gv)
		}
		if _, seen := groups[label]; !seen {
			order = append(order, label)
		}
		groups[label] = append(groups[label], subject{time: tf, event: ef == 1})
	}

	if len(order) == 0 {
		return nil, nil, fmt.Errorf("%w: no usable time/event rows", stats.ErrInsufficientData)
	}
	for _, g := range order {
		if len(groups[g]) < 2 {
			return nil, nil, fmt.Errorf("%w: group %q has fewer than 2 subjects",
				stats.ErrInsufficientData, g)
		}
	}
	return groups, order, nil
}
