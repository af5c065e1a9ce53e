package pricing

import (
	"errors"
	"fmt"
	"math"
)

var ErrMalformedQuote = errors.New("malformed price quote")

// Context is what a policy sees for one simulated day.
type Context struct {
	Day         int
	Year        int
	UtilityBuy  []float64
	UtilitySell []float64
}

// Quote is the microgrid tariff posted for one day.
type Quote struct {
	Buy  []float64
	Sell []float64
}

// Policy maps the utility tariff of a day to a microgrid tariff. Policies
// must not mutate the context slices. Randomized policies are not safe for
// concurrent use.
type Policy interface {
	Name() string
	Decide(ctx Context) Quote
}

type funcPolicy struct {
	name string
	fn   func(Context) Quote
}

func (f funcPolicy) Name() string             { return f.name }
func (f funcPolicy) Decide(ctx Context) Quote { return f.fn(ctx) }

// Func wraps a plain function as a Policy.
func Func(name string, fn func(Context) Quote) Policy {
	return funcPolicy{name: name, fn: fn}
}

// CheckQuote rejects quotes whose vectors are not n long or hold NaN.
func CheckQuote(q Quote, n int) error {
	if len(q.Buy) != n || len(q.Sell) != n {
		return fmt.Errorf("%w: buy=%d sell=%d, want %d", ErrMalformedQuote, len(q.Buy), len(q.Sell), n)
	}
	for h := 0; h < n; h++ {
		if math.IsNaN(q.Buy[h]) || math.IsNaN(q.Sell[h]) {
			return fmt.Errorf("%w: NaN price at hour %d", ErrMalformedQuote, h)
		}
	}
	return nil
}

// spread returns utility buy minus sell per hour.
func spread(ctx Context) []float64 {
	out := make([]float64, len(ctx.UtilityBuy))
	for h := range out {
		out[h] = ctx.UtilityBuy[h] - ctx.UtilitySell[h]
	}
	return out
}
