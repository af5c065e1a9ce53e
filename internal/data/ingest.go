package data

import (
	"fmt"
	"io"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"microgrid-sim/internal/model"
)

// Descriptor says where things live in a building CSV and how to size the
// prosumers built from it. Column positions are 0-based.
type Descriptor struct {
	PriceColumn     int   `yaml:"price_column" json:"price_column"`
	SolarColumn     int   `yaml:"solar_column" json:"solar_column"`
	ProsumerColumns []int `yaml:"prosumer_columns" json:"prosumer_columns"`

	// BatteryCounts and PVSizes are per prosumer column; missing entries
	// use the last value given, or DefaultBatteryCount / DefaultPVSize.
	BatteryCounts []float64 `yaml:"battery_counts" json:"battery_counts"`
	PVSizes       []float64 `yaml:"pv_sizes" json:"pv_sizes"`

	NoiseScale           float64 `yaml:"noise_scale" json:"noise_scale"`
	GenerationNoiseScale float64 `yaml:"generation_noise_scale" json:"generation_noise_scale"`

	// SolarScale converts the solar constant column to per-unit generation.
	SolarScale float64 `yaml:"solar_scale" json:"solar_scale"`
	SellRatio  float64 `yaml:"sell_ratio" json:"sell_ratio"`
	DayLength  int     `yaml:"day_length" json:"day_length"`
}

const (
	DefaultBatteryCount = 50
	DefaultPVSize       = 100
	DefaultSolarScale   = 0.001
)

// DefaultDescriptor matches the usual building export: time, day of week,
// price, solar constant, temperature, then ten building columns.
func DefaultDescriptor() Descriptor {
	cols := make([]int, 10)
	for i := range cols {
		cols[i] = 5 + i
	}
	return Descriptor{
		PriceColumn:          2,
		SolarColumn:          3,
		ProsumerColumns:      cols,
		NoiseScale:           0.1,
		GenerationNoiseScale: 0.1,
		SolarScale:           DefaultSolarScale,
		SellRatio:            model.SellRatio,
		DayLength:            model.DayLength,
	}
}

func (d Descriptor) withDefaults() Descriptor {
	if d.DayLength <= 0 {
		d.DayLength = model.DayLength
	}
	if d.SolarScale == 0 {
		d.SolarScale = DefaultSolarScale
	}
	if d.SellRatio == 0 {
		d.SellRatio = model.SellRatio
	}
	return d
}

func (d Descriptor) sizing(i int) (battery, pv float64) {
	return pick(d.BatteryCounts, i, DefaultBatteryCount), pick(d.PVSizes, i, DefaultPVSize)
}

func pick(vals []float64, i int, def float64) float64 {
	switch {
	case len(vals) == 0:
		return def
	case i < len(vals):
		return vals[i]
	default:
		return vals[len(vals)-1]
	}
}

func LoadBuildingCSV(path string, desc Descriptor) (*model.Environment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	env, err := ReadBuildingCSV(f, desc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return env, nil
}

// ReadBuildingCSV builds an environment from hourly building data. Gaps are
// linearly interpolated and leading gaps zero filled. A leap-year file
// (366 days) loses its 29 February block.
func ReadBuildingCSV(r io.Reader, desc Descriptor) (*model.Environment, error) {
	desc = desc.withDefaults()
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues([]string{"", "NA", "NaN", "nan", "null"}),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("read building csv: %w", df.Err)
	}

	names := df.Names()
	column := func(i int) ([]float64, error) {
		if i < 0 || i >= len(names) {
			return nil, fmt.Errorf("column %d out of range (%d columns)", i, len(names))
		}
		vals := Interpolate(df.Col(names[i]).Float())
		return yearRows(vals, desc.DayLength)
	}

	price, err := column(desc.PriceColumn)
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	solar, err := column(desc.SolarColumn)
	if err != nil {
		return nil, fmt.Errorf("solar: %w", err)
	}

	env := &model.Environment{
		DayLength:      desc.DayLength,
		UtilityBuy:     reshape(price, desc.DayLength),
		UtilitySell:    reshape(scale(price, desc.SellRatio), desc.DayLength),
		SolarConstants: reshape(solar, desc.DayLength),
	}
	unitGen := reshape(scale(solar, desc.SolarScale), desc.DayLength)

	for i, c := range desc.ProsumerColumns {
		demand, err := column(c)
		if err != nil {
			return nil, fmt.Errorf("prosumer %d: %w", i, err)
		}
		battery, pv := desc.sizing(i)
		p, err := model.NewProfile(names[c], reshape(demand, desc.DayLength), unitGen, model.ProfileParams{
			BatteryCount:         battery,
			PVSize:               pv,
			NoiseScale:           desc.NoiseScale,
			GenerationNoiseScale: desc.GenerationNoiseScale,
		})
		if err != nil {
			return nil, err
		}
		env.Profiles = append(env.Profiles, p)
	}

	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// yearRows trims hourly data to exactly one 365-day year.
func yearRows(vals []float64, dayLength int) ([]float64, error) {
	leapRows := (model.YearLength + 1) * dayLength
	if len(vals) == leapRows {
		feb29 := 59 * dayLength
		out := make([]float64, 0, model.YearLength*dayLength)
		out = append(out, vals[:feb29]...)
		return append(out, vals[feb29+dayLength:]...), nil
	}
	want := model.YearLength * dayLength
	if len(vals) < want {
		return nil, fmt.Errorf("need %d hourly rows, got %d", want, len(vals))
	}
	return vals[:want], nil
}

func reshape(vals []float64, dayLength int) [][]float64 {
	days := len(vals) / dayLength
	out := make([][]float64, days)
	for d := range out {
		out[d] = vals[d*dayLength : (d+1)*dayLength]
	}
	return out
}

func scale(vals []float64, k float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = k * v
	}
	return out
}
