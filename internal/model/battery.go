package model

import (
	"errors"
	"math"
)

// Physical constants shared by every prosumer battery.
const (
	Efficiency      = 0.95
	CRate           = 0.35
	UnitCapacityKWh = 13.5
)

// BatteryParams defines the physical parameters of one battery unit.
// Units:
// - Efficiency: one-way, 0..1
// - CRate: fraction of capacity per hour
// - UnitCapacityKWh: kWh per unit
type BatteryParams struct {
	Efficiency      float64 `json:"efficiency" yaml:"efficiency"`
	CRate           float64 `json:"c_rate" yaml:"c_rate"`
	UnitCapacityKWh float64 `json:"unit_capacity_kwh" yaml:"unit_capacity_kwh"`
}

func DefaultBatteryParams() BatteryParams {
	return BatteryParams{
		Efficiency:      Efficiency,
		CRate:           CRate,
		UnitCapacityKWh: UnitCapacityKWh,
	}
}

func (p BatteryParams) Validate() error {
	if p.Efficiency <= 0 || p.Efficiency > 1 {
		return errors.New("Efficiency must be in (0, 1]")
	}
	if p.CRate <= 0 {
		return errors.New("CRate must be > 0")
	}
	if p.UnitCapacityKWh <= 0 {
		return errors.New("UnitCapacityKWh must be > 0")
	}
	return nil
}

// Capacity is the storage bound in kWh for count units.
func (p BatteryParams) Capacity(count float64) float64 {
	return p.UnitCapacityKWh * count
}

// RateLimit is the per-hour power bound in kW for count units.
func (p BatteryParams) RateLimit(count float64) float64 {
	return p.CRate * p.UnitCapacityKWh * count
}

// GridFlow returns the change in grid-side net load caused by battery power x.
// Positive x stores energy and draws x/η from the grid, negative x releases
// energy and delivers η|x| to the grid.
func (p BatteryParams) GridFlow(x float64) float64 {
	eta := p.Efficiency
	return ((1/eta-eta)/2)*math.Abs(x) + ((1/eta+eta)/2)*x
}
