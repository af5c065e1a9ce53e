package settlement

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microgrid-sim/internal/model"
)

func repeat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestSettleIdenticalTariffsGiveZeroReward(t *testing.T) {
	demand := repeat(24, 1.0)
	buy, sell := repeat(24, 0.10), repeat(24, 0.06)
	loads := map[string][]float64{
		"Building 1":   demand,
		model.TotalKey: demand,
	}

	s, err := Settle(loads, demand, buy, sell, buy, sell)
	require.NoError(t, err)

	assert.Equal(t, repeat(24, 0.5), s.BuySplit)
	assert.Equal(t, repeat(24, 0.5), s.SellSplit)
	assert.InDelta(t, 1.2, s.MoneyToUtility, 1e-12)
	assert.InDelta(t, 1.2, s.MoneyFromProsumers, 1e-12)
	assert.InDelta(t, 1.2, s.GridMoneyFromProsumers, 1e-12)
	assert.InDelta(t, 2.4, s.TotalProsumerCost, 1e-12)
	assert.InDelta(t, 0.0, s.Reward, 1e-12)
}

func TestSettleDegenerateSplitIsPerDirection(t *testing.T) {
	total := repeat(4, 1)
	utilBuy, utilSell := repeat(4, 0.2), repeat(4, 0.1)
	mgSell := []float64{0.1, 0.15, 0.05, 0.1}

	s, err := Settle(map[string][]float64{"a": total}, total, utilBuy, utilSell, utilBuy, mgSell)
	require.NoError(t, err)
	assert.Equal(t, repeat(4, 0.5), s.BuySplit)
	assert.Equal(t, []float64{0, 1, 0, 0}, s.SellSplit)
}

func TestSettleRouting(t *testing.T) {
	a := []float64{2, -1}
	b := []float64{1, 1}
	total := []float64{3, 0}
	loads := map[string][]float64{"a": a, "b": b, model.TotalKey: {99, 99}}

	s, err := Settle(loads, total,
		[]float64{0.2, 0.2}, []float64{0.1, 0.1},
		[]float64{0.15, 0.25}, []float64{0.12, 0.05},
	)
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 0}, s.BuySplit)
	assert.Equal(t, []float64{1, 0}, s.SellSplit)
	assert.InDelta(t, 0.6, s.MoneyToUtility, 1e-12)
	assert.InDelta(t, 0.45, s.MoneyFromProsumers, 1e-12)
	assert.InDelta(t, 0.1, s.GridMoneyFromProsumers, 1e-12)
	assert.InDelta(t, 0.55, s.TotalProsumerCost, 1e-12)
	assert.InDelta(t, -0.15, s.Reward, 1e-12)
}

func TestSettleRewardIsBitwiseReproducible(t *testing.T) {
	const hours = 6
	build := func(reverse bool) map[string][]float64 {
		loads := make(map[string][]float64)
		for k := 0; k < 12; k++ {
			i := k
			if reverse {
				i = 11 - k
			}
			l := make([]float64, hours)
			for h := range l {
				l[h] = math.Sin(float64(i*hours+h)) * (1 + 0.137*float64(i))
			}
			loads[fmt.Sprintf("building_%d", i)] = l
		}
		return loads
	}
	total := repeat(hours, 0.3)
	utilBuy, utilSell := repeat(hours, 0.21), repeat(hours, 0.09)
	mgBuy := []float64{0.17, 0.23, 0.19, 0.25, 0.2, 0.18}
	mgSell := []float64{0.11, 0.07, 0.13, 0.08, 0.1, 0.12}

	want, err := Settle(build(false), total, utilBuy, utilSell, mgBuy, mgSell)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		got, err := Settle(build(i%2 == 1), total, utilBuy, utilSell, mgBuy, mgSell)
		require.NoError(t, err)
		require.Equal(t, want.Reward, got.Reward, "call %d", i)
		require.Equal(t, want.MoneyFromProsumers, got.MoneyFromProsumers, "call %d", i)
		require.Equal(t, want.GridMoneyFromProsumers, got.GridMoneyFromProsumers, "call %d", i)
	}
}

func TestSettleDimensionMismatch(t *testing.T) {
	_, err := Settle(nil, repeat(24, 1), repeat(23, 0.1), repeat(24, 0.06), repeat(24, 0.1), repeat(24, 0.06))
	assert.ErrorIs(t, err, ErrDimension)

	_, err = Settle(map[string][]float64{"a": {1}}, repeat(2, 1), repeat(2, 0.1), repeat(2, 0.06), repeat(2, 0.1), repeat(2, 0.06))
	assert.ErrorIs(t, err, ErrDimension)
}

func TestSettleNaNLoadPropagates(t *testing.T) {
	load := []float64{math.NaN(), 1}
	r, err := Settle(map[string][]float64{"a": load}, load, repeat(2, 0.1), repeat(2, 0.06), repeat(2, 0.09), repeat(2, 0.07))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(r.Reward))
}

func TestEngineUsesTariffForDay(t *testing.T) {
	env := &model.Environment{
		DayLength:   2,
		UtilityBuy:  [][]float64{{0.1, 0.1}, {0.2, 0.2}},
		UtilitySell: [][]float64{{0.06, 0.06}, {0.12, 0.12}},
	}
	e := New(env)
	load := []float64{1, 1}

	r, err := e.Reward(map[string][]float64{"a": load}, load, 2, []float64{0.2, 0.2}, []float64{0.12, 0.12})
	require.NoError(t, err)
	assert.InDelta(t, 0, r, 1e-12)

	// Undercutting the utility on day 1 costs the operator the difference.
	r, err = e.Reward(map[string][]float64{"a": load}, load, 1, []float64{0.08, 0.08}, []float64{0.06, 0.06})
	require.NoError(t, err)
	assert.InDelta(t, 2*(0.08-0.1), r, 1e-12)

	_, err = e.Reward(nil, load, 3, load, load)
	assert.ErrorIs(t, err, model.ErrDayOutOfRange)
}
