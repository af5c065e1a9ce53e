package model

import (
	"errors"
	"fmt"
)

// TotalKey names the aggregate entry in a map of per-prosumer loads.
const TotalKey = "Total"

// Environment is everything the simulation reads but never writes:
// the prosumers and the day x hour utility tariff and solar tables.
type Environment struct {
	DayLength      int
	Profiles       []*Profile
	UtilityBuy     [][]float64
	UtilitySell    [][]float64
	SolarConstants [][]float64
}

func (e *Environment) Validate() error {
	if e == nil {
		return errors.New("environment is nil")
	}
	if e.DayLength <= 0 {
		return errors.New("DayLength must be > 0")
	}
	days := len(e.UtilityBuy)
	if days == 0 {
		return errors.New("environment has no price data")
	}
	if len(e.UtilitySell) != days || len(e.SolarConstants) != days {
		return fmt.Errorf("environment tables disagree on day count: buy=%d sell=%d solar=%d",
			days, len(e.UtilitySell), len(e.SolarConstants))
	}
	for d := 0; d < days; d++ {
		if len(e.UtilityBuy[d]) != e.DayLength || len(e.UtilitySell[d]) != e.DayLength || len(e.SolarConstants[d]) != e.DayLength {
			return fmt.Errorf("environment day %d: expected %d hours", d+1, e.DayLength)
		}
	}
	seen := map[string]bool{}
	for _, p := range e.Profiles {
		if err := p.Validate(); err != nil {
			return err
		}
		if p.Name == TotalKey {
			return fmt.Errorf("prosumer name %q is reserved", TotalKey)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate prosumer name %q", p.Name)
		}
		seen[p.Name] = true
		if p.DayLength() != e.DayLength {
			return fmt.Errorf("profile %q has %d hours per day, want %d", p.Name, p.DayLength(), e.DayLength)
		}
		if len(p.Demand) < days {
			return fmt.Errorf("profile %q covers %d days, want %d", p.Name, len(p.Demand), days)
		}
	}
	return nil
}

func (e *Environment) Days() int { return len(e.UtilityBuy) }

// Prices returns the utility buy/sell vectors for a 1-based calendar day.
func (e *Environment) Prices(day int) (buy, sell []float64, err error) {
	if day < 1 || day > len(e.UtilityBuy) {
		return nil, nil, fmt.Errorf("prices day %d: %w", day, ErrDayOutOfRange)
	}
	return e.UtilityBuy[day-1], e.UtilitySell[day-1], nil
}

// Solar returns the raw solar constants for a 1-based calendar day.
func (e *Environment) Solar(day int) ([]float64, error) {
	if day < 1 || day > len(e.SolarConstants) {
		return nil, fmt.Errorf("solar day %d: %w", day, ErrDayOutOfRange)
	}
	return e.SolarConstants[day-1], nil
}

func (e *Environment) Profile(name string) (*Profile, bool) {
	for _, p := range e.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}
