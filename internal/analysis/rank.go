package analysis

import (
	"sort"

	"microgrid-sim/internal/sim"
)

type RankedProsumer struct {
	sim.ProsumerSummary
	Rank       int     `json:"rank"`
	CostPerDay float64 `json:"cost_per_day"`
}

// RankProsumers sorts prosumers by total cost ascending; ties keep the
// environment order.
func RankProsumers(res *sim.Result) []RankedProsumer {
	if res == nil {
		return nil
	}
	days := float64(len(res.Ticks))
	out := make([]RankedProsumer, 0, len(res.Prosumers))
	for _, p := range res.Prosumers {
		r := RankedProsumer{ProsumerSummary: p}
		if days > 0 {
			r.CostPerDay = p.Cost / days
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Cost < out[j].Cost
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
