package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"microgrid-sim/internal/analysis"
	"microgrid-sim/internal/batch"
	"microgrid-sim/internal/config"
	"microgrid-sim/internal/dispatch"
	"microgrid-sim/internal/logging"
	"microgrid-sim/internal/pricing"
	"microgrid-sim/internal/sim"
	"microgrid-sim/internal/store"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "microgrid",
		Short: "Microgrid prosumer market simulator",
		Long: `Simulates buildings with solar and batteries reacting to posted
microgrid prices, settles each day and writes per-prosumer records and
offline RL batches.

Examples:
  microgrid simulate --config examples/sim.yaml --steps 730
  microgrid rebuild-batch --run-dir simulated_data/<run-id>
  microgrid dispatch --prosumer building_1 --day 200 --policy constant`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config (defaults plus environment when empty)")

	root.AddCommand(simulateCmd(), rebuildCmd(), policiesCmd(), dispatchCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadUnchecked(cfgPath)
	if err != nil {
		return nil, log.Logger, err
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Pretty)
	return cfg, logger, nil
}

func simulateCmd() *cobra.Command {
	var (
		steps     int
		policy    string
		outDir    string
		withBatch bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a simulation and write per-prosumer CSV records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if steps > 0 {
				cfg.Simulation.NumSteps = steps
			}
			if policy != "" {
				cfg.Pricing.Policy = policy
			}
			if outDir != "" {
				cfg.Output.Dir = outDir
			}
			if withBatch {
				cfg.Output.Batch = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runSimulation(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 0, "number of simulated days (overrides config)")
	cmd.Flags().StringVarP(&policy, "policy", "p", "", "pricing policy (overrides config)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "record output directory (overrides config)")
	cmd.Flags().BoolVar(&withBatch, "batch", false, "also write RL batches")
	return cmd
}

func runSimulation(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	env, err := cfg.Environment(nil)
	if err != nil {
		return fmt.Errorf("load environment: %w", err)
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	opt, err := dispatch.New(cfg.OptimizerParams())
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	runDir := filepath.Join(cfg.Output.Dir, policy.Name(), runID)
	csvRec, err := sim.NewCSVRecorder(runDir, env.DayLength)
	if err != nil {
		return err
	}
	defer csvRec.Close()
	recorders := sim.MultiRecorder{csvRec}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
		simCfg := cfg.SimConfig()
		if err := st.CreateRun(ctx, store.Run{
			ID: runID, Policy: policy.Name(), NumSteps: simCfg.NumSteps, DayStart: simCfg.DayStart,
			YearStart: simCfg.YearStart, Seed: int64(simCfg.Seed),
		}); err != nil {
			return err
		}
		recorders = append(recorders, store.RunRecorder{Store: st, RunID: runID})
	}

	opts := []sim.Option{
		sim.WithOptimizer(opt),
		sim.WithRecorder(recorders),
		sim.WithLogger(logger.With().Str("run", runID).Logger()),
	}
	var jw *batch.JSONWriter
	if cfg.Output.Batch {
		jw, err = batch.NewJSONWriter(filepath.Join(cfg.Output.BatchDir, policy.Name()))
		if err != nil {
			return err
		}
		defer jw.Close()
		opts = append(opts, sim.WithBatch(batch.NewConverter(jw)))
	}

	driver, err := sim.New(env, policy, opts...)
	if err != nil {
		return err
	}
	res, err := driver.Run(ctx, cfg.SimConfig())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if err != nil {
		logger.Warn().Int("ticks", len(res.Ticks)).Msg("simulation interrupted, reporting partial run")
	}

	fmt.Printf("Wrote records for %d prosumers to %s\n", len(env.Profiles), runDir)
	if jw != nil {
		fmt.Printf("Wrote %d transitions to %s\n", res.Transitions, jw.Path())
	}
	printSummary(res)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch {
	case cfg.Output.PostgresConn != "":
		return store.NewPostgres(ctx, cfg.Output.PostgresConn)
	case cfg.Output.SQLitePath != "":
		if err := os.MkdirAll(filepath.Dir(cfg.Output.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		return store.NewSQLite(cfg.Output.SQLitePath)
	default:
		return nil, nil
	}
}

func printSummary(res *sim.Result) {
	s := analysis.Summarize(res)
	fmt.Printf("Policy=%s ticks=%d nan=%d non-converged=%d\n", s.Policy, s.Ticks, s.NaNCount, s.NonConverged)
	fmt.Printf("Reward total=$%.2f mean=$%.4f std=%.4f p05=%.4f p95=%.4f\n", s.Total, s.Mean, s.StdDev, s.P05, s.P95)

	fmt.Printf("%-4s %-24s %-10s %-12s %-12s %-8s\n", "rank", "prosumer", "batteries", "cost$", "cycled_kwh", "active_h")
	for _, r := range analysis.RankProsumers(res) {
		fmt.Printf("%-4d %-24s %-10.1f %-12.2f %-12.1f %-8d\n",
			r.Rank, r.Name, r.BatteryCount, r.Cost, r.EnergyCycled, r.ActiveHours)
	}
}

func rebuildCmd() *cobra.Command {
	var runDir, outDir string
	cmd := &cobra.Command{
		Use:   "rebuild-batch",
		Short: "Rebuild RL batches from a run's CSV records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = cfg.Output.BatchDir
			}
			env, err := cfg.Environment(nil)
			if err != nil {
				return fmt.Errorf("load environment: %w", err)
			}
			jw, err := batch.NewJSONWriter(outDir)
			if err != nil {
				return err
			}
			conv := batch.NewConverter(jw)
			rows, err := sim.RebuildBatches(cmd.Context(), runDir, env, conv, logger)
			if cerr := jw.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Printf("Read %d rows, wrote %d transitions to %s\n", rows, conv.Emitted(), jw.Path())
			return nil
		},
	}
	cmd.Flags().StringVar(&runDir, "run-dir", "", "directory of per-prosumer CSV files")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "batch output directory (defaults to output.batch_dir)")
	_ = cmd.MarkFlagRequired("run-dir")
	return cmd
}

func policiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List pricing policies and their parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, info := range pricing.Catalog() {
				fmt.Printf("%s\n  %s\n", info.Name, info.Description)
				for _, p := range info.Parameters {
					fmt.Printf("  - %-18s %-6s default=%v  %s\n", p.Name, p.Type, p.Default, p.Description)
				}
			}
			return nil
		},
	}
}

func dispatchCmd() *cobra.Command {
	var (
		prosumer string
		day      int
		year     int
		policy    string
	)
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Solve one day for one prosumer and print the hourly plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if policy != "" {
				cfg.Pricing.Policy = policy
			}
			env, err := cfg.Environment(nil)
			if err != nil {
				return fmt.Errorf("load environment: %w", err)
			}
			p, ok := env.Profile(prosumer)
			if !ok {
				return fmt.Errorf("unknown prosumer %q", prosumer)
			}
			pol, err := cfg.Policy()
			if err != nil {
				return err
			}
			opt, err := dispatch.New(cfg.OptimizerParams())
			if err != nil {
				return err
			}

			utilBuy, utilSell, err := env.Prices(day)
			if err != nil {
				return err
			}
			q := pol.Decide(pricing.Context{Day: day, Year: year, UtilityBuy: utilBuy, UtilitySell: utilSell})
			if err := pricing.CheckQuote(q, env.DayLength); err != nil {
				return err
			}
			demand, gen, err := p.Day(day)
			if err != nil {
				return err
			}
			base := make([]float64, len(demand))
			floats.SubTo(base, demand, gen)
			plan, err := opt.Solve(base, q.Buy, q.Sell, p.BatteryCount)
			if err != nil {
				return err
			}

			fmt.Printf("%s day %d/%d policy=%s converged=%v iterations=%d\n", p.Name, day, year, pol.Name(), plan.Converged, plan.Iterations)
			fmt.Printf("%-4s %-8s %-8s %-10s %-10s %-12s %-10s\n", "hour", "buy", "sell", "base_kwh", "batt_kwh", "action", "net_kwh")
			for h, a := range plan.Actions() {
				fmt.Printf("%-4d %-8.4f %-8.4f %-10.2f %-10.2f %-12s %-10.2f\n",
					h, q.Buy[h], q.Sell[h], base[h], plan.Battery[h], a, plan.NetLoad[h])
			}
			fmt.Printf("Cost=$%.2f cycled=%.1f kWh active hours=%d\n", plan.Cost, plan.EnergyCycled, plan.ActiveHours)
			return nil
		},
	}
	cmd.Flags().StringVar(&prosumer, "prosumer", "", "prosumer name")
	cmd.Flags().IntVar(&day, "day", 1, "calendar day (1-365)")
	cmd.Flags().IntVar(&year, "year", 2012, "calendar year")
	cmd.Flags().StringVarP(&policy, "policy", "p", "", "pricing policy (overrides config)")
	_ = cmd.MarkFlagRequired("prosumer")
	return cmd
}
