package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microgrid-sim/internal/pricing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	p, err := c.Policy()
	require.NoError(t, err)
	assert.Equal(t, "constant", p.Name())
	assert.Equal(t, 365, c.SimConfig().NumSteps)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := writeConfig(t, `
simulation:
  num_steps: 10
  day_start: 200
pricing:
  policy: peak_offset
  params:
    peak_multiplier: 0.5
api:
  cache_ttl: 90s
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, c.Simulation.NumSteps)
	assert.Equal(t, 200, c.Simulation.DayStart)
	assert.Equal(t, 2012, c.Simulation.YearStart, "kept from defaults")
	assert.Equal(t, 90*time.Second, c.API.CacheTTL)
	assert.Equal(t, 0.5, c.Pricing.Params["peak_multiplier"])

	p, err := c.Policy()
	require.NoError(t, err)
	assert.Equal(t, "peak_offset", p.Name())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SIM_NUM_STEPS", "42")
	t.Setenv("SIM_POLICY", "utility")
	t.Setenv("API_ADDR", ":9999")

	c, err := Load(writeConfig(t, "simulation:\n  num_steps: 10\n"))
	require.NoError(t, err)
	assert.Equal(t, 42, c.Simulation.NumSteps)
	assert.Equal(t, "utility", c.Pricing.Policy)
	assert.Equal(t, ":9999", c.API.Addr)

	c, err = LoadUnchecked("")
	require.NoError(t, err)
	assert.Equal(t, 42, c.Simulation.NumSteps)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]func(c *Config){
		"steps":     func(c *Config) { c.Simulation.NumSteps = 0 },
		"day start": func(c *Config) { c.Simulation.DayStart = 400 },
		"battery":   func(c *Config) { c.Optimizer.Battery.Efficiency = 1.5 },
		"policy":    func(c *Config) { c.Pricing.Policy = "nope" },
		"synthetic": func(c *Config) { c.Data.Synthetic.Prosumers = 0 },
		"columns": func(c *Config) {
			c.Data.BuildingCSV = "x.csv"
			c.Data.ProsumerColumns = nil
		},
		"log level": func(c *Config) { c.Log.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}

	c := Default()
	c.Pricing.Policy = "nope"
	_, err := c.Policy()
	assert.ErrorIs(t, err, pricing.ErrUnknownPolicy)
}

func TestEnvironmentFromConfig(t *testing.T) {
	c := Default()
	c.Data.Synthetic.Prosumers = 2
	c.Prosumers.BatteryCounts = []float64{3}

	env, err := c.Environment(nil)
	require.NoError(t, err)
	require.Len(t, env.Profiles, 2)
	assert.Equal(t, 3.0, env.Profiles[0].BatteryCount)

	c.Data.BuildingCSV = filepath.Join(t.TempDir(), "missing.csv")
	_, err = c.Environment(nil)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
