package data

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microgrid-sim/internal/model"
)

func testDescriptor() Descriptor {
	return Descriptor{
		PriceColumn:     1,
		SolarColumn:     2,
		ProsumerColumns: []int{3, 4},
		BatteryCounts:   []float64{10},
		PVSizes:         []float64{20, 40},
		NoiseScale:      0.1,
		DayLength:       24,
	}
}

// buildingCSV writes days*24 rows where price equals the 0-based day index
// and solar equals the hour.
func buildingCSV(days int, blank func(row int) bool) string {
	var b strings.Builder
	b.WriteString("time,price,solar,Building 1 (kWh),Building 2 (kWh)\n")
	for d := 0; d < days; d++ {
		for h := 0; h < 24; h++ {
			row := d*24 + h
			price := fmt.Sprintf("%d", d)
			if blank != nil && blank(row) {
				price = ""
			}
			fmt.Fprintf(&b, "%d,%s,%d,%d,%d\n", row, price, h, 100+h, 200)
		}
	}
	return b.String()
}

func TestReadBuildingCSV(t *testing.T) {
	env, err := ReadBuildingCSV(strings.NewReader(buildingCSV(365, nil)), testDescriptor())
	require.NoError(t, err)

	assert.Equal(t, 365, env.Days())
	require.Len(t, env.Profiles, 2)
	assert.Equal(t, "Building 1", env.Profiles[0].Name)
	assert.Equal(t, "Building 2", env.Profiles[1].Name)
	assert.Equal(t, 10.0, env.Profiles[0].BatteryCount)
	assert.Equal(t, 10.0, env.Profiles[1].BatteryCount)
	assert.Equal(t, 40.0, env.Profiles[1].PVSize)

	buy, sell, err := env.Prices(3)
	require.NoError(t, err)
	assert.Equal(t, 2.0, buy[0])
	assert.InDelta(t, 1.2, sell[5], 1e-12)

	demand, gen, err := env.Profiles[0].Day(1)
	require.NoError(t, err)
	assert.Equal(t, 105.0, demand[5])
	assert.InDelta(t, 20*0.001*12, gen[12], 1e-12)
	assert.InDelta(t, 20*0.001*23, env.Profiles[0].MaxGenerationByHour[23], 1e-12)
}

func TestReadBuildingCSVDropsLeapDay(t *testing.T) {
	env, err := ReadBuildingCSV(strings.NewReader(buildingCSV(366, nil)), testDescriptor())
	require.NoError(t, err)
	require.Equal(t, 365, env.Days())

	buy, _, err := env.Prices(59)
	require.NoError(t, err)
	assert.Equal(t, 58.0, buy[0])
	buy, _, err = env.Prices(60)
	require.NoError(t, err)
	assert.Equal(t, 60.0, buy[0], "29 February removed")
	buy, _, err = env.Prices(365)
	require.NoError(t, err)
	assert.Equal(t, 365.0, buy[0])
}

func TestReadBuildingCSVInterpolatesGaps(t *testing.T) {
	// Blank all of day 1 so it interpolates between day 0 and day 2.
	env, err := ReadBuildingCSV(strings.NewReader(buildingCSV(365, func(row int) bool {
		return row >= 24 && row < 48
	})), testDescriptor())
	require.NoError(t, err)

	buy, _, err := env.Prices(2)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/25, buy[0], 1e-12)
	assert.InDelta(t, 2.0*24/25, buy[23], 1e-12)
}

func TestReadBuildingCSVErrors(t *testing.T) {
	_, err := ReadBuildingCSV(strings.NewReader(buildingCSV(10, nil)), testDescriptor())
	assert.Error(t, err, "too few rows")

	desc := testDescriptor()
	desc.ProsumerColumns = []int{9}
	_, err = ReadBuildingCSV(strings.NewReader(buildingCSV(365, nil)), desc)
	assert.Error(t, err, "column out of range")
}

func TestInterpolate(t *testing.T) {
	nan := math.NaN()
	got := Interpolate([]float64{nan, nan, 1, nan, nan, 4, nan})
	assert.Equal(t, []float64{0, 0, 1, 2, 3, 4, 4}, got)

	assert.Equal(t, []float64{0, 0}, Interpolate([]float64{nan, nan}))
	assert.Empty(t, Interpolate(nil))
}

func TestDescriptorSizing(t *testing.T) {
	d := Descriptor{}
	b, pv := d.sizing(3)
	assert.Equal(t, float64(DefaultBatteryCount), b)
	assert.Equal(t, float64(DefaultPVSize), pv)

	d = Descriptor{BatteryCounts: []float64{1, 2}}
	b, _ = d.sizing(0)
	assert.Equal(t, 1.0, b)
	b, _ = d.sizing(5)
	assert.Equal(t, 2.0, b)
}

func TestSyntheticIsDeterministic(t *testing.T) {
	p := DefaultSyntheticParams()
	a, err := Synthetic(p)
	require.NoError(t, err)
	b, err := Synthetic(p)
	require.NoError(t, err)

	assert.Equal(t, model.YearLength, a.Days())
	require.Len(t, a.Profiles, p.Prosumers)
	assert.Equal(t, a.Profiles[1].Demand, b.Profiles[1].Demand)
	assert.Equal(t, a.SolarConstants, b.SolarConstants)

	buy, sell, err := a.Prices(10)
	require.NoError(t, err)
	assert.Equal(t, p.PeakPrice, buy[18])
	assert.Equal(t, p.OffPeakPrice, buy[3])
	assert.InDelta(t, model.SellRatio*p.PeakPrice, sell[18], 1e-12)

	solar, err := a.Solar(10)
	require.NoError(t, err)
	assert.Zero(t, solar[0])
	assert.Greater(t, solar[12], 0.0)

	_, err = Synthetic(SyntheticParams{})
	assert.Error(t, err)
}

func TestEnvironmentCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "building.csv")
	require.NoError(t, os.WriteFile(path, []byte(buildingCSV(365, nil)), 0o644))

	c := NewEnvironmentCache(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	first, err := c.Load(path, testDescriptor())
	require.NoError(t, err)
	second, err := c.Load(path, testDescriptor())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Len(t, c.store, 1)

	other := testDescriptor()
	other.SellRatio = 0.5
	third, err := c.Load(path, other)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Len(t, c.store, 2)

	now = now.Add(2 * time.Minute)
	key, err := CacheKey(path, testDescriptor())
	require.NoError(t, err)
	_, ok := c.Get(key)
	assert.False(t, ok, "expired")
	assert.Len(t, c.store, 2, "expired entries stay until the next miss")

	other.SellRatio = 0.4
	_, err = c.Load(path, other)
	require.NoError(t, err)
	assert.Len(t, c.store, 1, "a miss prunes expired entries")

	_, err = c.Load(filepath.Join(dir, "missing.csv"), testDescriptor())
	assert.Error(t, err)

	var nilCache *EnvironmentCache
	_, ok = nilCache.Get("x")
	assert.False(t, ok)
	nilCache.Set("x", nil)
	nilCache.Prune()
}
