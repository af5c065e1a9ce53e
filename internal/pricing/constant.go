package pricing

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// ConstantPolicy narrows the utility spread by a fixed fraction on both sides.
type ConstantPolicy struct {
	OffsetMultiplier float64
}

func (p *ConstantPolicy) Name() string { return "constant" }

func (p *ConstantPolicy) Decide(ctx Context) Quote {
	diff := spread(ctx)
	q := Quote{Buy: make([]float64, len(diff)), Sell: make([]float64, len(diff))}
	for h, d := range diff {
		q.Buy[h] = ctx.UtilityBuy[h] - p.OffsetMultiplier*d
		q.Sell[h] = ctx.UtilitySell[h] + p.OffsetMultiplier*d
	}
	return q
}

// UtilityPolicy posts the utility tariff unchanged.
type UtilityPolicy struct{}

func (UtilityPolicy) Name() string { return "utility" }

func (UtilityPolicy) Decide(ctx Context) Quote {
	return Quote{
		Buy:  append([]float64(nil), ctx.UtilityBuy...),
		Sell: append([]float64(nil), ctx.UtilitySell...),
	}
}

// RandomPolicy is ConstantPolicy plus independent Gaussian noise per hour,
// scaled by the utility spread.
type RandomPolicy struct {
	OffsetMultiplier float64
	ScaleMultiplier  float64
	// Src is the noise stream; nil uses the ambient stream.
	Src rand.Source
}

func (p *RandomPolicy) Name() string { return "random" }

func (p *RandomPolicy) Decide(ctx Context) Quote {
	diff := spread(ctx)
	q := Quote{Buy: make([]float64, len(diff)), Sell: make([]float64, len(diff))}
	noise := func(d float64) float64 {
		return distuv.Normal{Mu: 0, Sigma: math.Abs(p.ScaleMultiplier * d), Src: p.Src}.Rand()
	}
	for h, d := range diff {
		q.Buy[h] = ctx.UtilityBuy[h] - p.OffsetMultiplier*d + noise(d)
	}
	for h, d := range diff {
		q.Sell[h] = ctx.UtilitySell[h] + p.OffsetMultiplier*d + noise(d)
	}
	return q
}

// GroupedRandomPolicy shifts the whole day in one randomly chosen direction:
// toward the utility buy side, centred, or toward the sell side.
type GroupedRandomPolicy struct {
	OffsetMultiplier float64
	Src              rand.Source
}

func (p *GroupedRandomPolicy) Name() string { return "grouped_random" }

func (p *GroupedRandomPolicy) Decide(ctx Context) Quote {
	var direction float64
	if p.Src != nil {
		direction = float64(rand.New(p.Src).IntN(3) - 1)
	} else {
		direction = float64(rand.IntN(3) - 1)
	}
	diff := spread(ctx)
	q := Quote{Buy: make([]float64, len(diff)), Sell: make([]float64, len(diff))}
	for h, d := range diff {
		offset := p.OffsetMultiplier * d
		q.Buy[h] = ctx.UtilityBuy[h] + offset*(direction-1)
		q.Sell[h] = ctx.UtilitySell[h] + offset*(direction+1)
	}
	return q
}
