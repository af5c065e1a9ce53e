// Package analysis reduces a simulation result to the numbers people look
// at: how the operator reward was distributed and which prosumers paid most.
package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"microgrid-sim/internal/sim"
)

// RewardSummary describes the per-tick operator reward of a run. NaN
// rewards are counted and excluded from the statistics.
type RewardSummary struct {
	Policy       string  `json:"policy"`
	Ticks        int     `json:"ticks"`
	NaNCount     int     `json:"nan_count"`
	Total        float64 `json:"total"`
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	P05          float64 `json:"p05"`
	P95          float64 `json:"p95"`
	NonConverged int     `json:"non_converged"`
	Transitions  int     `json:"transitions"`
}

func Summarize(res *sim.Result) RewardSummary {
	s := RewardSummary{}
	if res == nil {
		return s
	}
	s.Policy = res.Policy
	s.Ticks = len(res.Ticks)
	s.Transitions = res.Transitions

	vals := make([]float64, 0, len(res.Ticks))
	for _, t := range res.Ticks {
		s.NonConverged += t.NonConverged
		if math.IsNaN(t.Reward) {
			s.NaNCount++
			continue
		}
		vals = append(vals, t.Reward)
		s.Total += t.Reward
	}
	if len(vals) == 0 {
		return s
	}
	sort.Float64s(vals)
	s.Min, s.Max = vals[0], vals[len(vals)-1]
	s.Mean = stat.Mean(vals, nil)
	if len(vals) > 1 {
		s.StdDev = stat.StdDev(vals, nil)
	}
	s.P05 = stat.Quantile(0.05, stat.LinInterp, vals, nil)
	s.P95 = stat.Quantile(0.95, stat.LinInterp, vals, nil)
	return s
}
