package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Calendar and tariff constants consumed by the simulation.
const (
	DayLength  = 24
	YearLength = 365
	SellRatio  = 0.6
)

var ErrDayOutOfRange = errors.New("day out of range")

// Profile is the static data of one prosumer.
// Demand and Generation are day x hour matrices in kWh; Generation is
// already scaled by PVSize.
type Profile struct {
	Name                 string
	Demand               [][]float64
	Generation           [][]float64
	BatteryCount         float64
	PVSize               float64
	NoiseScale           float64
	GenerationNoiseScale float64
	MaxGenerationByHour  []float64
}

type ProfileParams struct {
	BatteryCount         float64
	PVSize               float64
	NoiseScale           float64
	GenerationNoiseScale float64
}

// NewProfile builds a profile from demand and per-unit generation, scaling
// generation by PVSize and deriving the per-hour generation maximum.
func NewProfile(name string, demand, unitGeneration [][]float64, params ProfileParams) (*Profile, error) {
	if len(demand) != len(unitGeneration) {
		return nil, fmt.Errorf("profile %q: %d demand days vs %d generation days", name, len(demand), len(unitGeneration))
	}
	gen := make([][]float64, len(unitGeneration))
	for d, row := range unitGeneration {
		gen[d] = make([]float64, len(row))
		for h, v := range row {
			gen[d][h] = params.PVSize * v
		}
	}
	p := &Profile{
		Name:                 SanitizeName(name),
		Demand:               demand,
		Generation:           gen,
		BatteryCount:         params.BatteryCount,
		PVSize:               params.PVSize,
		NoiseScale:           params.NoiseScale,
		GenerationNoiseScale: params.GenerationNoiseScale,
		MaxGenerationByHour:  maxByHour(gen),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) Validate() error {
	if p.Name == "" {
		return errors.New("profile name is required")
	}
	if len(p.Demand) == 0 {
		return fmt.Errorf("profile %q: no demand data", p.Name)
	}
	if p.BatteryCount < 0 || p.PVSize < 0 {
		return fmt.Errorf("profile %q: battery count and pv size must be >= 0", p.Name)
	}
	if p.NoiseScale < 0 || p.GenerationNoiseScale < 0 {
		return fmt.Errorf("profile %q: noise scales must be >= 0", p.Name)
	}
	if len(p.Generation) != len(p.Demand) {
		return fmt.Errorf("profile %q: %d generation days, want %d", p.Name, len(p.Generation), len(p.Demand))
	}
	hours := len(p.Demand[0])
	for d := range p.Demand {
		if len(p.Demand[d]) != hours || len(p.Generation[d]) != hours {
			return fmt.Errorf("profile %q: day %d has inconsistent hour count", p.Name, d+1)
		}
	}
	if len(p.MaxGenerationByHour) != hours {
		return fmt.Errorf("profile %q: max generation has %d hours, want %d", p.Name, len(p.MaxGenerationByHour), hours)
	}
	return nil
}

func (p *Profile) DayLength() int {
	if len(p.Demand) == 0 {
		return 0
	}
	return len(p.Demand[0])
}

// Day returns demand and scaled generation for a 1-based calendar day.
func (p *Profile) Day(day int) (demand, generation []float64, err error) {
	if day < 1 || day > len(p.Demand) {
		return nil, nil, fmt.Errorf("profile %q day %d: %w", p.Name, day, ErrDayOutOfRange)
	}
	return p.Demand[day-1], p.Generation[day-1], nil
}

// SanitizeName strips unit suffixes from building column labels.
func SanitizeName(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, " (kWh)", ""))
}

func maxByHour(m [][]float64) []float64 {
	if len(m) == 0 {
		return nil
	}
	out := make([]float64, len(m[0]))
	for h := range out {
		out[h] = math.Inf(-1)
	}
	for _, row := range m {
		for h, v := range row {
			if v > out[h] {
				out[h] = v
			}
		}
	}
	return out
}
