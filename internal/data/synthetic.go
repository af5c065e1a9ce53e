package data

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"microgrid-sim/internal/model"
)

// SyntheticParams describes a generated environment for demos and tests.
type SyntheticParams struct {
	Prosumers    int
	BatteryCount float64
	PVSize       float64
	// BaseDemand is the mean hourly demand in kWh.
	BaseDemand float64
	// PeakPrice and OffPeakPrice are the utility buy prices in $/kWh.
	PeakPrice    float64
	OffPeakPrice float64
	NoiseScale   float64
	Seed         uint64
}

func DefaultSyntheticParams() SyntheticParams {
	return SyntheticParams{
		Prosumers:    4,
		BatteryCount: DefaultBatteryCount,
		PVSize:       DefaultPVSize,
		BaseDemand:   150,
		PeakPrice:    0.30,
		OffPeakPrice: 0.12,
		NoiseScale:   0.1,
		Seed:         1,
	}
}

// Synthetic builds a full-year environment with a daytime solar bell,
// evening demand peaks and a two-level time-of-use tariff. The same seed
// always yields the same environment.
func Synthetic(p SyntheticParams) (*model.Environment, error) {
	if p.Prosumers <= 0 {
		return nil, fmt.Errorf("prosumers must be positive, got %d", p.Prosumers)
	}
	h := model.DayLength
	rng := rand.New(rand.NewPCG(p.Seed, 0))
	jitter := distuv.Normal{Mu: 1, Sigma: 0.08, Src: rand.NewPCG(p.Seed, 1)}

	env := &model.Environment{DayLength: h}
	solar := make([][]float64, model.YearLength)
	unitGen := make([][]float64, model.YearLength)
	for d := range solar {
		season := 0.75 + 0.25*math.Cos(2*math.Pi*float64(d-172)/float64(model.YearLength))
		cloud := 0.6 + 0.4*rng.Float64()
		solar[d] = make([]float64, h)
		unitGen[d] = make([]float64, h)
		buy := make([]float64, h)
		sell := make([]float64, h)
		for hr := 0; hr < h; hr++ {
			solar[d][hr] = 1000 * season * cloud * sunShape(hr)
			unitGen[d][hr] = DefaultSolarScale * solar[d][hr]
			buy[hr] = p.OffPeakPrice
			if hr >= 16 && hr < 21 {
				buy[hr] = p.PeakPrice
			}
			sell[hr] = model.SellRatio * buy[hr]
		}
		env.UtilityBuy = append(env.UtilityBuy, buy)
		env.UtilitySell = append(env.UtilitySell, sell)
	}
	env.SolarConstants = solar

	for i := 0; i < p.Prosumers; i++ {
		size := 0.7 + 0.6*rng.Float64()
		demand := make([][]float64, model.YearLength)
		for d := range demand {
			demand[d] = make([]float64, h)
			for hr := 0; hr < h; hr++ {
				demand[d][hr] = math.Max(0, p.BaseDemand*size*demandShape(hr)*jitter.Rand())
			}
		}
		prof, err := model.NewProfile(fmt.Sprintf("building_%d", i+1), demand, unitGen, model.ProfileParams{
			BatteryCount:         p.BatteryCount,
			PVSize:               p.PVSize,
			NoiseScale:           p.NoiseScale,
			GenerationNoiseScale: p.NoiseScale,
		})
		if err != nil {
			return nil, err
		}
		env.Profiles = append(env.Profiles, prof)
	}

	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// sunShape is a bell between 06:00 and 18:00 peaking at noon.
func sunShape(hr int) float64 {
	if hr < 6 || hr > 18 {
		return 0
	}
	return math.Sin(math.Pi * float64(hr-6) / 12)
}

func demandShape(hr int) float64 {
	morning := math.Exp(-math.Pow(float64(hr-8), 2) / 8)
	evening := math.Exp(-math.Pow(float64(hr-19), 2) / 6)
	return 0.6 + 0.3*morning + 0.6*evening
}
