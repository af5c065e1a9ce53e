package dispatch

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"gonum.org/v1/gonum/stat/distuv"
)

// DemandNoise draws zero-mean Gaussian noise with per-hour standard deviation
// |net[h]|·scale. A nil src draws from the ambient stream.
func DemandNoise(net []float64, scale float64, src rand.Source) []float64 {
	out := make([]float64, len(net))
	for h, v := range net {
		out[h] = distuv.Normal{Mu: 0, Sigma: math.Abs(v) * scale, Src: src}.Rand()
	}
	return out
}

// GenerationNoise draws zero-mean Gaussian noise with per-hour standard
// deviation |maxGen[h]|·scale from a generator owned by this call and seeded
// from the calendar date, so the same (day, year) always yields the same draws.
func GenerationNoise(day, year int, maxGen []float64, scale float64) []float64 {
	src := rand.NewPCG(GenerationSeed(day, year), 0)
	out := make([]float64, len(maxGen))
	for h, v := range maxGen {
		out[h] = distuv.Normal{Mu: 0, Sigma: math.Abs(v) * scale, Src: src}.Rand()
	}
	return out
}

// GenerationSeed concatenates the decimal day and year, e.g. day 13 of 2012
// seeds 132012.
func GenerationSeed(day, year int) uint64 {
	seed, err := strconv.ParseUint(fmt.Sprintf("%d%d", day, year), 10, 64)
	if err != nil {
		return uint64(day)<<32 ^ uint64(year)
	}
	return seed
}
