package dispatch

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microgrid-sim/internal/model"
)

const feasTol = 1e-6

func newTestOptimizer(t *testing.T) *Optimizer {
	t.Helper()
	opt, err := New(DefaultParams())
	require.NoError(t, err)
	return opt
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// touPrices is cheap overnight and expensive in the evening.
func touPrices() (buy, sell []float64) {
	buy = make([]float64, 24)
	for h := range buy {
		switch {
		case h < 6:
			buy[h] = 0.05
		case h >= 17 && h < 21:
			buy[h] = 0.30
		default:
			buy[h] = 0.12
		}
	}
	sell = make([]float64, 24)
	for h := range sell {
		sell[h] = model.SellRatio * buy[h]
	}
	return buy, sell
}

func assertFeasible(t *testing.T, p model.BatteryParams, count float64, x []float64) {
	t.Helper()
	rate, capacity := p.RateLimit(count), p.Capacity(count)
	cum := 0.0
	for h, v := range x {
		assert.LessOrEqualf(t, math.Abs(v), rate+feasTol, "rate bound at hour %d", h)
		cum += v
		assert.GreaterOrEqualf(t, cum, -feasTol, "state of charge below zero at hour %d", h)
		assert.LessOrEqualf(t, cum, capacity+feasTol, "state of charge above capacity at hour %d", h)
	}
}

func TestSolveZeroBattery(t *testing.T) {
	opt := newTestOptimizer(t)
	buy, sell := touPrices()
	base := constant(24, 2.5)
	base[12] = -1

	plan, err := opt.Solve(base, buy, sell, 0)
	require.NoError(t, err)
	assert.True(t, plan.Converged)
	assert.Equal(t, 0, plan.Iterations)
	assert.Equal(t, constant(24, 0), plan.Battery)
	assert.Equal(t, base, plan.NetLoad)
	assert.Equal(t, 0.0, plan.EnergyCycled)
	assert.Equal(t, 0, plan.ActiveHours)
	assert.InDelta(t, Cost(base, buy, sell), plan.Cost, 1e-12)
}

func TestSolveArbitrageIsFeasibleAndCheaper(t *testing.T) {
	opt := newTestOptimizer(t)
	buy, sell := touPrices()
	base := constant(24, 5)

	plan, err := opt.Solve(base, buy, sell, 2)
	require.NoError(t, err)
	require.True(t, plan.Converged, plan.Failure)
	assert.Empty(t, plan.Failure)
	assertFeasible(t, opt.Params().Battery, 2, plan.Battery)

	baseline := Cost(base, buy, sell)
	assert.Less(t, plan.Cost, baseline-0.01)
	assert.Greater(t, plan.EnergyCycled, 0.0)
	assert.Greater(t, plan.ActiveHours, 0)

	for h := 17; h < 21; h++ {
		assert.Equal(t, model.ActionDischarging, plan.Actions()[h], "hour %d", h)
	}
}

func TestProblemSolveReturnsHourlyPower(t *testing.T) {
	params := DefaultParams()
	buy, sell := touPrices()
	base := constant(24, 5)
	rate, capacity := params.Battery.RateLimit(2), params.Battery.Capacity(2)

	prob := newProblem(base, rate, capacity, params.Battery.Efficiency)
	x, err := prob.solve(buy, sell, initialModes(base, buy, sell), params.Tolerance)
	require.NoError(t, err)
	require.Len(t, x, 24)
	assertFeasible(t, params.Battery, 2, x)
}

func TestSolveConcaveHoursStayFeasible(t *testing.T) {
	opt := newTestOptimizer(t)
	buy := constant(24, 0.10)
	sell := constant(24, 0.06)
	for h := 18; h < 22; h++ {
		sell[h] = 0.25
	}
	base := constant(24, 1)
	for h := 10; h < 15; h++ {
		base[h] = -3
	}

	plan, err := opt.Solve(base, buy, sell, 3)
	require.NoError(t, err)
	require.True(t, plan.Converged, plan.Failure)
	assertFeasible(t, opt.Params().Battery, 3, plan.Battery)
	assert.LessOrEqual(t, plan.Cost, Cost(base, buy, sell)+feasTol)
}

func TestSolveIterationLimitClipsNetLoad(t *testing.T) {
	params := DefaultParams()
	params.MaxIterations = 1
	opt, err := New(params)
	require.NoError(t, err)

	// Hour 1 sells above its buy price, so the first linearization is
	// revised after the battery discharges into it.
	base := []float64{0, 0}
	buy := []float64{0, 0.1}
	sell := []float64{0, 1.0}

	plan, err := opt.Solve(base, buy, sell, 1)
	require.NoError(t, err)
	assert.False(t, plan.Converged)
	assert.NotEmpty(t, plan.Failure)
	assert.Equal(t, 1, plan.Iterations)

	rate := params.Battery.RateLimit(1)
	for h, v := range plan.NetLoad {
		assert.GreaterOrEqual(t, v, base[h]-rate-1e-12)
		assert.LessOrEqual(t, v, base[h]+rate+1e-12)
	}
	assert.InDelta(t, rate, plan.NetLoad[0], 1e-9)

	full := newTestOptimizer(t)
	plan, err = full.Solve(base, buy, sell, 1)
	require.NoError(t, err)
	assert.True(t, plan.Converged)
	assert.Less(t, plan.NetLoad[1], 0.0)
}

func TestSolveDimensionMismatch(t *testing.T) {
	opt := newTestOptimizer(t)
	_, err := opt.Solve(constant(24, 1), constant(23, 0.1), constant(24, 0.06), 1)
	assert.ErrorIs(t, err, ErrDimension)

	_, err = opt.Solve(nil, nil, nil, 1)
	assert.ErrorIs(t, err, ErrDimension)
}

func testProfile(t *testing.T, battery, pv, noise, genNoise float64) *model.Profile {
	t.Helper()
	demand := make([][]float64, 3)
	gen := make([][]float64, 3)
	for d := range demand {
		demand[d] = constant(24, 2)
		gen[d] = make([]float64, 24)
		for h := 8; h < 17; h++ {
			gen[d][h] = 0.01 * float64(d+1)
		}
	}
	p, err := model.NewProfile("Building 1 (kWh)", demand, gen, model.ProfileParams{
		BatteryCount:         battery,
		PVSize:               pv,
		NoiseScale:           noise,
		GenerationNoiseScale: genNoise,
	})
	require.NoError(t, err)
	return p
}

func TestDispatchZeroBatteryIsBaseLoadPlusNoise(t *testing.T) {
	opt := newTestOptimizer(t)
	p := testProfile(t, 0, 100, 0.1, 0.1)
	buy, sell := touPrices()

	res, err := opt.Dispatch(p, 2, 2012, buy, sell, rand.NewPCG(1, 2))
	require.NoError(t, err)
	require.True(t, res.Plan.Converged)

	demand, gen, err := p.Day(2)
	require.NoError(t, err)
	for h := range res.NetLoad {
		assert.InDelta(t, demand[h]-gen[h], res.Plan.NetLoad[h], 1e-12)
		assert.InDelta(t, demand[h]-gen[h]+res.DemandNoise[h]+res.GenerationNoise[h], res.NetLoad[h], 1e-12)
	}
}

func TestDispatchWithoutNoiseMatchesPlan(t *testing.T) {
	opt := newTestOptimizer(t)
	p := testProfile(t, 0, 0, 0, 0)
	res, err := opt.Dispatch(p, 1, 2016, constant(24, 0.1), constant(24, 0.06), nil)
	require.NoError(t, err)
	assert.Equal(t, constant(24, 2), res.NetLoad)

	_, err = opt.Dispatch(p, 4, 2016, constant(24, 0.1), constant(24, 0.06), nil)
	assert.ErrorIs(t, err, model.ErrDayOutOfRange)
}
