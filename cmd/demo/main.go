package main

import (
	"context"
	"flag"
	"fmt"

	"microgrid-sim/internal/config"
	"microgrid-sim/internal/data"
	"microgrid-sim/internal/dispatch"
	"microgrid-sim/internal/logging"
	"microgrid-sim/internal/pricing"
	"microgrid-sim/internal/sim"
)

// Demo:
// - Build a small synthetic environment
// - Run a pricing policy for a few days
// - Print each day's reward and one prosumer's realized response
func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (optional)")
	n := flag.Int("n", 3, "Number of days to simulate")
	policyName := flag.String("policy", "peak_offset", "Pricing policy")
	flag.Parse()

	cfg, err := config.LoadUnchecked(*cfgPath)
	if err != nil {
		panic(err)
	}
	logger := logging.Setup("warn", true)

	syn := data.DefaultSyntheticParams()
	syn.Prosumers = 3
	if *cfgPath != "" {
		syn = cfg.SyntheticParams()
	}
	env, err := data.Synthetic(syn)
	if err != nil {
		panic(err)
	}
	policy, err := pricing.Build(*policyName, nil, 1)
	if err != nil {
		panic(err)
	}
	opt, err := dispatch.New(cfg.OptimizerParams())
	if err != nil {
		panic(err)
	}

	rec := sim.NewMemoryRecorder()
	driver, err := sim.New(env, policy, sim.WithOptimizer(opt), sim.WithRecorder(rec), sim.WithLogger(logger))
	if err != nil {
		panic(err)
	}
	res, err := driver.Run(context.Background(), sim.Config{NumSteps: *n, DayStart: 172, YearStart: 2012, Seed: 7})
	if err != nil {
		panic(err)
	}

	fmt.Printf("Environment: %d prosumers, %d days\n", len(env.Profiles), env.Days())
	fmt.Printf("Policy=%s\n\n", policy.Name())
	for _, tick := range res.Ticks {
		fmt.Printf("day %3d/%d  reward=%9.2f  non-converged=%d\n", tick.Day, tick.Year, tick.Reward, tick.NonConverged)
	}

	first := env.Profiles[0].Name
	records := rec.Records(first)
	if len(records) == 0 {
		return
	}
	r := records[0]
	fmt.Printf("\n%s on day %d\n", first, r.Day)
	for h := range r.Response {
		fmt.Printf("  %02d:00  buy=%.3f  sell=%.3f  load=%8.2f\n", h, r.AgentBuy[h], r.AgentSell[h], r.Response[h])
	}
}
