// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conjoint

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianStats/services/stats"
)

const (
	hbDefaultDraws = 2000
	hbDefaultBurn  = 1000
	hbDefaultSeed  = 20250101
	hbProposalStep = 0.1
	hbRidge        = 0.05
)

type hbParams struct {
	Respondent string   `json:"respondent" validate:"required"`
	Task       string   `json:"task" validate:"required"`
	Choice     string   `json:"choice" validate:"required"`
	Attributes []string `json:"attributes" validate:"required,min=1"`
	Draws      int      `json:"draws" validate:"omitempty,min=100"`
	Burn       int      `json:"burn" validate:"omitempty,min=0"`
	Seed       int64    `json:"seed"`
}

// choiceTask is one choice set: alternative feature rows and the index
// the respondent picked.
type choiceTask struct {
	alts   [][]float64
	chosen int
}

type hbAnalysis struct{}

func (hbAnalysis) Name() string { return "conjoint-hb" }

func (hbAnalysis) Summary() string {
	return "Hierarchical Bayes multinomial logit for choice-based conjoint"
}

func (hbAnalysis) Run(ctx context.Context, req *stats.Request) (map[string]any, error) {
	table, err := req.RequireData()
	if err != nil {
		return nil, err
	}
	p := hbParams{Draws: hbDefaultDraws, Burn: hbDefaultBurn, Seed: hbDefaultSeed}
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	respondents, tasks, err := choiceData(table, p)
	if err != nil {
		return nil, err
	}
	nResp := len(respondents)
	k := len(p.Attributes)
	rng := rand.New(rand.NewSource(p.Seed))

	betas := make([][]float64, nResp)
	for i := range betas {
		betas[i] = make([]float64, k)
	}

	muSum := make([]float64, k)
	betaSums := make([][]float64, nResp)
	for i := range betaSums {
		betaSums[i] = make([]float64, k)
	}
	var accepted, proposed int

	total := p.Burn + p.Draws
	for iter := 0; iter < total; iter++ {
		// Upper level: population mean and covariance from the current
		// individual draws, with a ridge to keep the covariance proper.
		mu := make([]float64, k)
		for _, b := range betas {
			for j, v := range b {
				mu[j] += v
			}
		}
		for j := range mu {
			mu[j] /= float64(nResp)
		}
		sigma := mat.NewSymDense(k, nil)
		for _, b := range betas {
			for a := 0; a < k; a++ {
				for c := a; c < k; c++ {
					sigma.SetSym(a, c, sigma.At(a, c)+(b[a]-mu[a])*(b[c]-mu[c]))
				}
			}
		}
		for a := 0; a < k; a++ {
			for c := a; c < k; c++ {
				v := sigma.At(a, c) / float64(nResp)
				if a == c {
					v += hbRidge
				}
				sigma.SetSym(a, c, v)
			}
		}
		var sigmaInv mat.Dense
		if err := sigmaInv.Inverse(sigma); err != nil {
			return nil, fmt.Errorf("%w: population covariance became singular",
				stats.ErrNoConverge)
		}

		// Lower level: random-walk Metropolis per respondent.
		for i, id := range respondents {
			current := betas[i]
			proposal := make([]float64, k)
			for j := range proposal {
				proposal[j] = current[j] + hbProposalStep*rng.NormFloat64()
			}

			logRatio := logitLogLik(tasks[id], proposal) - logitLogLik(tasks[id], current) +
				normalLogPrior(proposal, mu, &sigmaInv) - normalLogPrior(current, mu, &sigmaInv)

			proposed++
			if logRatio >= 0 || math.Log(rng.Float64()) < logRatio {
				betas[i] = proposal
				accepted++
			}
		}

		if iter >= p.Burn {
			cur := make([]float64, k)
			for _, b := range betas {
				for j, v := range b {
					cur[j] += v
				}
			}
			for j := range cur {
				muSum[j] += cur[j] / float64(nResp)
			}
			for i, b := range betas {
				for j, v := range b {
					betaSums[i][j] += v
				}
			}
		}
	}

	draws := float64(p.Draws)
	population := make([]map[string]any, k)
	for j, attr := range p.Attributes {
		population[j] = map[string]any{"attribute": attr, "utility": muSum[j] / draws}
	}
	individual := make([]map[string]any, nResp)
	for i, id := range respondents {
		utilities := make([]float64, k)
		for j := range utilities {
			utilities[j] = betaSums[i][j] / draws
		}
		individual[i] = map[string]any{"respondent": id, "utilities": utilities}
	}

	return map[string]any{
		"results": map[string]any{
			"population_utilities": population,
			"individual_utilities": individual,
			"respondents":          nResp,
			"draws":                p.Draws,
			"burn":                 p.Burn,
			"acceptance_rate":      float64(accepted) / float64(proposed),
		},
	}, nil
}

// logitLogLik is the multinomial logit log-likelihood of one
// respondent's choices under beta.
func logitLogLik(tasks []choiceTask, beta []float64) float64 {
	var ll float64
	for _, task := range tasks {
		var denom, chosen float64
		max := math.Inf(-1)
		utils := make([]float64, len(task.alts))
		for a, alt := range task.alts {
			var u float64
			for j, x := range alt {
				u += beta[j] * x
			}
			utils[a] = u
			max = math.Max(max, u)
		}
		for a, u := range utils {
			e := math.Exp(u - max)
			denom += e
			if a == task.chosen {
				chosen = e
			}
		}
		ll += math.Log(chosen / denom)
	}
	return ll
}

// normalLogPrior is the multivariate normal log-density up to its
// constant.
func normalLogPrior(beta, mu []float64, sigmaInv *mat.Dense) float64 {
	k := len(beta)
	diff := make([]float64, k)
	for j := range diff {
		diff[j] = beta[j] - mu[j]
	}
	d := mat.NewVecDense(k, diff)
	var tmp mat.VecDense
	tmp.MulVec(sigmaInv, d)
	return -0.5 * mat.Dot(d, &tmp)
}

// choiceData groups rows into per-respondent choice tasks. Every task
// must have exactly one chosen alternative.
func choiceData(table *stats.Table, p hbParams) ([]string, map[string][]choiceTask, error) {
	for _, c := range append([]string{p.Respondent, p.Task, p.Choice}, p.Attributes...) {
		if !table.HasColumn(c) {
			return nil, nil, fmt.Errorf("%w: column %q not present in 'data'",
				stats.ErrBadParameter, c)
		}
	}

	type taskKey struct{ resp, task string }
	grouped := make(map[taskKey]*choiceTask)
	var keys []taskKey

	for i := 0; i < table.Len(); i++ {
		rv, _ := table.Value(i, p.Respondent)
		tv, _ := table.Value(i, p.Task)
		cv, _ := table.Value(i, p.Choice)
		if rv == nil || tv == nil || cv == nil {
			continue
		}
		chosen, ok := stats.Number(cv)
		if !ok {
			continue
		}
		alt := make([]float64, len(p.Attributes))
		complete := true
		for j, a := range p.Attributes {
			av, ok := table.Value(i, a)
			if !ok || av == nil {
				complete = false
				break
			}
			f, ok := stats.Number(av)
			if !ok {
				complete = false
				break
			}
			alt[j] = f
		}
		if !complete {
			continue
		}

		key := taskKey{resp: fmt.Sprint(rv), task: fmt.Sprint(tv)}
		ct, seen := grouped[key]
		if !seen {
			ct = &choiceTask{chosen: -1}
			grouped[key] = ct
			keys = append(keys, key)
		}
		if chosen == 1 {
			ct.chosen = len(ct.alts)
		}
		ct.alts = append(ct.alts, alt)
	}

	tasks := make(map[string][]choiceTask)
	for _, key := range keys {
		ct := grouped[key]
		if len(ct.alts) < 2 {
			return nil, nil, fmt.Errorf("%w: task %q for respondent %q has fewer than 2 alternatives",
				stats.ErrBadParameter, key.task, key.resp)
		}
		if ct.chosen < 0 {
			return nil, nil, fmt.Errorf("%w: task %q for respondent %q has no chosen alternative",
				stats.ErrBadParameter, key.task, key.resp)
		}
		tasks[key.resp] = append(tasks[key.resp], *ct)
	}
	if len(tasks) < 2 {
		return nil, nil, fmt.Errorf("%w: Hierarchical Bayes needs at least 2 respondents",
			stats.ErrInsufficientData)
	}

	respondents := make([]string, 0, len(tasks))
	for r := range tasks {
		respondents = append(respondents, r)
	}
	sort.Strings(respondents)
	return respondents, tasks, nil
}
