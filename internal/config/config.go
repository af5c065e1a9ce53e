package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"microgrid-sim/internal/data"
	"microgrid-sim/internal/dispatch"
	"microgrid-sim/internal/model"
	"microgrid-sim/internal/pricing"
	"microgrid-sim/internal/sim"
)

// Config is the on-disk configuration shape (YAML). Fields tagged env can
// be overridden from the environment after the file is read.
type Config struct {
	Data       DataConfig       `yaml:"data"`
	Prosumers  ProsumerConfig   `yaml:"prosumers"`
	Simulation SimulationConfig `yaml:"simulation"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Output     OutputConfig     `yaml:"output"`
	Log        LogConfig        `yaml:"log"`
	API        APIConfig        `yaml:"api"`
}

// DataConfig selects the environment. An empty BuildingCSV uses the
// synthetic generator.
type DataConfig struct {
	BuildingCSV     string          `yaml:"building_csv" env:"SIM_BUILDING_CSV"`
	PriceColumn     int             `yaml:"price_column"`
	SolarColumn     int             `yaml:"solar_column"`
	ProsumerColumns []int           `yaml:"prosumer_columns"`
	SolarScale      float64         `yaml:"solar_scale"`
	SellRatio       float64         `yaml:"sell_ratio"`
	DayLength       int             `yaml:"day_length"`
	Synthetic       SyntheticConfig `yaml:"synthetic"`
}

type SyntheticConfig struct {
	Prosumers    int     `yaml:"prosumers" env:"SIM_SYNTHETIC_PROSUMERS"`
	BaseDemand   float64 `yaml:"base_demand"`
	PeakPrice    float64 `yaml:"peak_price"`
	OffPeakPrice float64 `yaml:"off_peak_price"`
	Seed         uint64  `yaml:"seed"`
}

type ProsumerConfig struct {
	BatteryCounts        []float64 `yaml:"battery_counts"`
	PVSizes              []float64 `yaml:"pv_sizes"`
	NoiseScale           float64   `yaml:"noise_scale"`
	GenerationNoiseScale float64   `yaml:"generation_noise_scale"`
}

type SimulationConfig struct {
	NumSteps    int    `yaml:"num_steps" env:"SIM_NUM_STEPS"`
	DayStart    int    `yaml:"day_start" env:"SIM_DAY_START"`
	YearStart   int    `yaml:"year_start" env:"SIM_YEAR_START"`
	Parallelism int    `yaml:"parallelism" env:"SIM_PARALLELISM"`
	Seed        uint64 `yaml:"seed" env:"SIM_SEED"`
}

type OptimizerConfig struct {
	MaxIterations int                 `yaml:"max_iterations" env:"SIM_MAX_ITERATIONS"`
	Tolerance     float64             `yaml:"tolerance"`
	Battery       model.BatteryParams `yaml:"battery"`
}

type PricingConfig struct {
	Policy string         `yaml:"policy" env:"SIM_POLICY"`
	Params map[string]any `yaml:"params"`
	Seed   uint64         `yaml:"seed" env:"SIM_POLICY_SEED"`
}

type OutputConfig struct {
	Dir          string `yaml:"dir" env:"SIM_OUTPUT_DIR"`
	Batch        bool   `yaml:"batch" env:"SIM_BATCH"`
	BatchDir     string `yaml:"batch_dir" env:"SIM_BATCH_DIR"`
	SQLitePath   string `yaml:"sqlite_path" env:"SIM_SQLITE_PATH"`
	PostgresConn string `yaml:"postgres_conn" env:"SIM_POSTGRES_CONN"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY"`
}

type APIConfig struct {
	Addr        string        `yaml:"addr" env:"API_ADDR"`
	Env         string        `yaml:"env" env:"API_ENV"`
	CORSOrigins []string      `yaml:"cors_origins" env:"API_CORS_ORIGINS"`
	CacheTTL    time.Duration `yaml:"cache_ttl" env:"API_CACHE_TTL"`
	// MaxSteps caps num_steps accepted by POST /simulations.
	MaxSteps int `yaml:"max_steps" env:"API_MAX_STEPS"`
}

// Default is a runnable configuration: one synthetic year, constant pricing.
func Default() *Config {
	desc := data.DefaultDescriptor()
	syn := data.DefaultSyntheticParams()
	return &Config{
		Data: DataConfig{
			PriceColumn:     desc.PriceColumn,
			SolarColumn:     desc.SolarColumn,
			ProsumerColumns: desc.ProsumerColumns,
			SolarScale:      desc.SolarScale,
			SellRatio:       desc.SellRatio,
			DayLength:       desc.DayLength,
			Synthetic: SyntheticConfig{
				Prosumers:    syn.Prosumers,
				BaseDemand:   syn.BaseDemand,
				PeakPrice:    syn.PeakPrice,
				OffPeakPrice: syn.OffPeakPrice,
				Seed:         syn.Seed,
			},
		},
		Prosumers: ProsumerConfig{
			BatteryCounts:        []float64{data.DefaultBatteryCount},
			PVSizes:              []float64{data.DefaultPVSize},
			NoiseScale:           0.1,
			GenerationNoiseScale: 0.1,
		},
		Simulation: SimulationConfig{NumSteps: model.YearLength, DayStart: 1, YearStart: 2012},
		Optimizer: OptimizerConfig{
			MaxIterations: dispatch.DefaultMaxIterations,
			Tolerance:     dispatch.DefaultTolerance,
			Battery:       model.DefaultBatteryParams(),
		},
		Pricing: PricingConfig{Policy: "constant", Params: map[string]any{"offset_multiplier": 0.1}},
		Output:  OutputConfig{Dir: "simulated_data", BatchDir: "batch_data"},
		Log:     LogConfig{Level: "info"},
		API:     APIConfig{Addr: ":8080", Env: "development", CacheTTL: data.DefaultCacheTTL, MaxSteps: 3 * model.YearLength},
	}
}

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked reads path over Default() and applies environment
// overrides, without validating. An empty path reads only the environment.
func LoadUnchecked(path string) (*Config, error) {
	c := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		// Relative data paths are interpreted against the config file
		// when that file exists.
		if p := c.Data.BuildingCSV; p != "" && !filepath.IsAbs(p) {
			cand := filepath.Join(filepath.Dir(path), p)
			if _, err := os.Stat(cand); err == nil {
				c.Data.BuildingCSV = cand
			}
		}
	}
	if err := cleanenv.ReadEnv(c); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.SimConfig().Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	if err := c.Optimizer.Battery.Validate(); err != nil {
		return fmt.Errorf("optimizer battery invalid: %w", err)
	}
	if c.Data.DayLength <= 0 {
		return errors.New("data.day_length must be > 0")
	}
	if c.Data.BuildingCSV == "" && c.Data.Synthetic.Prosumers <= 0 {
		return errors.New("data.synthetic.prosumers must be > 0 when no building_csv is set")
	}
	if c.Data.BuildingCSV != "" && len(c.Data.ProsumerColumns) == 0 {
		return errors.New("data.prosumer_columns is required with building_csv")
	}
	if c.Prosumers.NoiseScale < 0 || c.Prosumers.GenerationNoiseScale < 0 {
		return errors.New("prosumers noise scales must be >= 0")
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func (c *Config) SimConfig() sim.Config {
	return sim.Config{
		NumSteps:    c.Simulation.NumSteps,
		DayStart:    c.Simulation.DayStart,
		YearStart:   c.Simulation.YearStart,
		Parallelism: c.Simulation.Parallelism,
		Seed:        c.Simulation.Seed,
	}
}

func (c *Config) OptimizerParams() dispatch.Params {
	return dispatch.Params{
		Battery:       c.Optimizer.Battery,
		MaxIterations: c.Optimizer.MaxIterations,
		Tolerance:     c.Optimizer.Tolerance,
	}
}

func (c *Config) Descriptor() data.Descriptor {
	return data.Descriptor{
		PriceColumn:          c.Data.PriceColumn,
		SolarColumn:          c.Data.SolarColumn,
		ProsumerColumns:      c.Data.ProsumerColumns,
		BatteryCounts:        c.Prosumers.BatteryCounts,
		PVSizes:              c.Prosumers.PVSizes,
		NoiseScale:           c.Prosumers.NoiseScale,
		GenerationNoiseScale: c.Prosumers.GenerationNoiseScale,
		SolarScale:           c.Data.SolarScale,
		SellRatio:            c.Data.SellRatio,
		DayLength:            c.Data.DayLength,
	}
}

func (c *Config) SyntheticParams() data.SyntheticParams {
	p := data.SyntheticParams{
		Prosumers:    c.Data.Synthetic.Prosumers,
		BaseDemand:   c.Data.Synthetic.BaseDemand,
		PeakPrice:    c.Data.Synthetic.PeakPrice,
		OffPeakPrice: c.Data.Synthetic.OffPeakPrice,
		NoiseScale:   c.Prosumers.NoiseScale,
		Seed:         c.Data.Synthetic.Seed,
	}
	p.BatteryCount, p.PVSize = data.DefaultBatteryCount, data.DefaultPVSize
	if n := len(c.Prosumers.BatteryCounts); n > 0 {
		p.BatteryCount = c.Prosumers.BatteryCounts[0]
	}
	if n := len(c.Prosumers.PVSizes); n > 0 {
		p.PVSize = c.Prosumers.PVSizes[0]
	}
	return p
}

// Environment loads the configured building data, or the synthetic
// environment when no file is set. A non-nil cache is consulted for files.
func (c *Config) Environment(cache *data.EnvironmentCache) (*model.Environment, error) {
	if c.Data.BuildingCSV == "" {
		return data.Synthetic(c.SyntheticParams())
	}
	if cache != nil {
		return cache.Load(c.Data.BuildingCSV, c.Descriptor())
	}
	return data.LoadBuildingCSV(c.Data.BuildingCSV, c.Descriptor())
}

func (c *Config) Policy() (pricing.Policy, error) {
	return pricing.Build(c.Pricing.Policy, c.Pricing.Params, c.Pricing.Seed)
}
