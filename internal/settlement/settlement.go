// Package settlement reconciles a day of prosumer net loads against the
// microgrid and utility tariffs and reduces them to the operator reward.
package settlement

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"microgrid-sim/internal/model"
)

var ErrDimension = errors.New("dimension mismatch")

// Tariff supplies the utility buy/sell prices for a 1-based calendar day.
// *model.Environment implements it.
type Tariff interface {
	Prices(day int) (buy, sell []float64, err error)
}

type Engine struct {
	tariff Tariff
}

func New(t Tariff) *Engine { return &Engine{tariff: t} }

// Settlement is the full money-flow breakdown of one day.
type Settlement struct {
	// BuySplit[h] is the share of positive load settled inside the microgrid:
	// 1 when the microgrid undercuts the utility, 0 when it does not, 0.5
	// when the two buy tariffs are identical all day. SellSplit is the same
	// for negative load.
	BuySplit  []float64
	SellSplit []float64

	MoneyToUtility         float64
	MoneyFromProsumers     float64
	GridMoneyFromProsumers float64
	TotalProsumerCost      float64
	Reward                 float64
}

// Reward is the operator margin for one day. Loads may contain a TotalKey
// entry; it is ignored in favour of total.
func (e *Engine) Reward(loads map[string][]float64, total []float64, day int, mgBuy, mgSell []float64) (float64, error) {
	s, err := e.Settle(loads, total, day, mgBuy, mgSell)
	if err != nil {
		return math.NaN(), err
	}
	return s.Reward, nil
}

func (e *Engine) Settle(loads map[string][]float64, total []float64, day int, mgBuy, mgSell []float64) (*Settlement, error) {
	utilBuy, utilSell, err := e.tariff.Prices(day)
	if err != nil {
		return nil, err
	}
	return Settle(loads, total, utilBuy, utilSell, mgBuy, mgSell)
}

// Settle computes the money flows for explicit tariffs.
func Settle(loads map[string][]float64, total, utilBuy, utilSell, mgBuy, mgSell []float64) (*Settlement, error) {
	n := len(total)
	if len(utilBuy) != n || len(utilSell) != n || len(mgBuy) != n || len(mgSell) != n {
		return nil, fmt.Errorf("%w: total=%d utility=%d/%d microgrid=%d/%d",
			ErrDimension, n, len(utilBuy), len(utilSell), len(mgBuy), len(mgSell))
	}
	names := slices.Sorted(maps.Keys(loads))
	for _, name := range names {
		if l := loads[name]; name != model.TotalKey && len(l) != n {
			return nil, fmt.Errorf("%w: load %q has %d hours, want %d", ErrDimension, name, len(l), n)
		}
	}

	s := &Settlement{
		BuySplit:  routing(mgBuy, utilBuy, func(mg, util float64) bool { return mg < util }),
		SellSplit: routing(mgSell, utilSell, func(mg, util float64) bool { return mg > util }),
	}

	s.MoneyToUtility = floats.Dot(positive(scaled(total, s.BuySplit)), utilBuy) +
		floats.Dot(negative(scaled(total, s.SellSplit)), utilSell)

	// With identical tariffs the grid share is 0.5, not 0; it is informational.
	gridBuy, gridSell := complement(s.BuySplit), complement(s.SellSplit)
	// Summed in name order so the reward is bitwise reproducible.
	for _, name := range names {
		if name == model.TotalKey {
			continue
		}
		l := loads[name]
		pos, neg := positive(l), negative(l)
		s.MoneyFromProsumers += floats.Dot(scaled(pos, s.BuySplit), mgBuy) +
			floats.Dot(scaled(neg, s.SellSplit), mgSell)
		s.GridMoneyFromProsumers += floats.Dot(scaled(pos, gridBuy), utilBuy) +
			floats.Dot(scaled(neg, gridSell), utilSell)
	}

	s.TotalProsumerCost = s.GridMoneyFromProsumers + s.MoneyFromProsumers
	s.Reward = s.MoneyFromProsumers - s.MoneyToUtility
	return s, nil
}

// routing marks each hour 1 or 0 by cmp, or 0.5 everywhere when the two
// price vectors are identical.
func routing(mg, util []float64, cmp func(mg, util float64) bool) []float64 {
	out := make([]float64, len(mg))
	if floats.Equal(mg, util) {
		for h := range out {
			out[h] = 0.5
		}
		return out
	}
	for h := range out {
		if cmp(mg[h], util[h]) {
			out[h] = 1
		}
	}
	return out
}

func scaled(v, w []float64) []float64 {
	out := make([]float64, len(v))
	floats.MulTo(out, v, w)
	return out
}

func positive(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Max(0, x)
	}
	return out
}

func negative(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Min(0, x)
	}
	return out
}

func complement(split []float64) []float64 {
	out := make([]float64, len(split))
	for i, x := range split {
		out[i] = 1 - x
	}
	return out
}
