// Package sim drives the daily microgrid market: post prices, let every
// prosumer dispatch its battery, settle the day and emit records.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"microgrid-sim/internal/batch"
	"microgrid-sim/internal/dispatch"
	"microgrid-sim/internal/metrics"
	"microgrid-sim/internal/model"
	"microgrid-sim/internal/pricing"
	"microgrid-sim/internal/settlement"
)

var ErrDimension = dispatch.ErrDimension

type Config struct {
	NumSteps  int `yaml:"num_steps" json:"num_steps"`
	DayStart  int `yaml:"day_start" json:"day_start"`
	YearStart int `yaml:"year_start" json:"year_start"`
	// Parallelism bounds concurrent dispatches; 0 means GOMAXPROCS.
	Parallelism int `yaml:"parallelism" json:"parallelism"`
	// Seed fixes the demand noise streams; 0 picks a random seed.
	Seed uint64 `yaml:"seed" json:"seed"`
}

func (c Config) Validate() error {
	if c.NumSteps <= 0 {
		return errors.New("num_steps must be > 0")
	}
	if c.DayStart < 1 || c.DayStart > model.YearLength {
		return fmt.Errorf("day_start must be within [1, %d]", model.YearLength)
	}
	if c.Parallelism < 0 {
		return errors.New("parallelism must be >= 0")
	}
	return nil
}

type Driver struct {
	env      *model.Environment
	policy   pricing.Policy
	opt      *dispatch.Optimizer
	engine   *settlement.Engine
	recorder Recorder
	conv     *batch.Converter
	logger   zerolog.Logger
	metrics  bool
}

type Option func(*Driver)

func WithRecorder(r Recorder) Option { return func(d *Driver) { d.recorder = r } }

// WithBatch submits every tick from tick 1 onwards to c.
func WithBatch(c *batch.Converter) Option { return func(d *Driver) { d.conv = c } }

func WithOptimizer(o *dispatch.Optimizer) Option { return func(d *Driver) { d.opt = o } }

func WithLogger(l zerolog.Logger) Option { return func(d *Driver) { d.logger = l } }

// WithMetrics reports ticks and dispatches to the prometheus collectors.
func WithMetrics(enabled bool) Option { return func(d *Driver) { d.metrics = enabled } }

func New(env *model.Environment, policy pricing.Policy, opts ...Option) (*Driver, error) {
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("environment invalid: %w", err)
	}
	if policy == nil {
		return nil, errors.New("pricing policy is nil")
	}
	d := &Driver{
		env:    env,
		policy: policy,
		engine: settlement.New(env),
		logger: log.Logger,
	}
	for _, o := range opts {
		o(d)
	}
	if d.opt == nil {
		opt, err := dispatch.New(dispatch.DefaultParams())
		if err != nil {
			return nil, err
		}
		d.opt = opt
	}
	return d, nil
}

// TickSummary is what happened on one tick, across all prosumers.
type TickSummary struct {
	Step         int                    `json:"step"`
	Day          int                    `json:"day"`
	Year         int                    `json:"year"`
	Reward       float64                `json:"reward"`
	Total        []float64              `json:"total"`
	NonConverged int                    `json:"non_converged"`
	Settlement   *settlement.Settlement `json:"settlement"`
}

// ProsumerSummary accumulates one prosumer's outcome over a run. Cost is the
// realized load priced at the posted microgrid tariff.
type ProsumerSummary struct {
	Name         string  `json:"name"`
	BatteryCount float64 `json:"battery_num"`
	PVSize       float64 `json:"pv_size"`
	Cost         float64 `json:"cost"`
	EnergyCycled float64 `json:"energy_cycled"`
	NetImport    float64 `json:"net_import"`
	ActiveHours  int     `json:"active_hours"`
	NonConverged int     `json:"non_converged"`
}

type Result struct {
	Policy      string            `json:"policy"`
	Config      Config            `json:"config"`
	Ticks       []TickSummary     `json:"ticks"`
	Prosumers   []ProsumerSummary `json:"prosumers"`
	Transitions int               `json:"transitions"`
}

// Run executes cfg.NumSteps ticks. Cancelling ctx stops the run between
// ticks; the partial result is returned with the context error.
func (d *Driver) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = runtime.GOMAXPROCS(0)
	}
	if cfg.Seed == 0 {
		cfg.Seed = rand.Uint64()
	}

	// One demand-noise stream per prosumer keeps draws independent of
	// goroutine scheduling.
	streams := make([]rand.Source, len(d.env.Profiles))
	res := &Result{
		Policy:    d.policy.Name(),
		Config:    cfg,
		Ticks:     make([]TickSummary, 0, cfg.NumSteps),
		Prosumers: make([]ProsumerSummary, len(d.env.Profiles)),
	}
	for i, p := range d.env.Profiles {
		streams[i] = rand.NewPCG(cfg.Seed, uint64(i+1))
		res.Prosumers[i] = ProsumerSummary{Name: p.Name, BatteryCount: p.BatteryCount, PVSize: p.PVSize}
	}

	start := time.Now()
	for t := 0; t < cfg.NumSteps; t++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		tick, err := d.step(ctx, cfg, t, streams, res.Prosumers)
		if err != nil {
			return res, err
		}
		res.Ticks = append(res.Ticks, tick)
	}
	if d.conv != nil {
		res.Transitions = d.conv.Emitted()
	}

	d.logger.Info().
		Str("policy", res.Policy).
		Int("steps", cfg.NumSteps).
		Int("prosumers", len(d.env.Profiles)).
		Int("transitions", res.Transitions).
		Dur("took", time.Since(start)).
		Msg("simulation done")
	return res, nil
}

func (d *Driver) step(ctx context.Context, cfg Config, t int, streams []rand.Source, acc []ProsumerSummary) (TickSummary, error) {
	day, year := Calendar(cfg.DayStart, cfg.YearStart, t)
	tick := TickSummary{Step: t, Day: day, Year: year}

	utilBuy, utilSell, err := d.env.Prices(day)
	if err != nil {
		return tick, fmt.Errorf("tick %d: %w", t, err)
	}
	quote := d.policy.Decide(pricing.Context{Day: day, Year: year, UtilityBuy: utilBuy, UtilitySell: utilSell})
	if err := pricing.CheckQuote(quote, d.env.DayLength); err != nil {
		return tick, fmt.Errorf("tick %d day %d: policy %s: %w: %w", t, day, d.policy.Name(), ErrDimension, err)
	}

	results := make([]*dispatch.Result, len(d.env.Profiles))
	took := make([]time.Duration, len(d.env.Profiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallelism)
	for i, p := range d.env.Profiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			begin := time.Now()
			r, err := d.opt.Dispatch(p, day, year, quote.Buy, quote.Sell, streams[i])
			if err != nil {
				return err
			}
			results[i], took[i] = r, time.Since(begin)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return tick, fmt.Errorf("tick %d day %d: %w", t, day, err)
	}

	// Reduce only after every dispatch has joined.
	loads := make(map[string][]float64, len(results)+1)
	tick.Total = make([]float64, d.env.DayLength)
	for i, r := range results {
		name := d.env.Profiles[i].Name
		loads[name] = r.NetLoad
		for h, v := range r.NetLoad {
			tick.Total[h] += v
		}
		if !r.Plan.Converged {
			tick.NonConverged++
			d.logger.Warn().
				Str("prosumer", name).
				Int("day", day).
				Int("year", year).
				Str("reason", r.Plan.Failure).
				Msg("dispatch did not converge, using clipped plan")
		}
		if d.metrics {
			metrics.ObserveDispatch(r.Plan.Converged, r.Plan.Iterations, took[i])
		}
	}
	loads[model.TotalKey] = tick.Total

	s, err := d.engine.Settle(loads, tick.Total, day, quote.Buy, quote.Sell)
	if err != nil {
		return tick, fmt.Errorf("tick %d day %d: %w", t, day, err)
	}
	tick.Settlement = s
	tick.Reward = s.Reward
	if math.IsNaN(tick.Reward) {
		d.logger.Warn().Int("step", t).Int("day", day).Int("year", year).
			Msgf("reward calculation failed on day %d", day)
	}

	for i, r := range results {
		p := d.env.Profiles[i]
		a := &acc[i]
		a.Cost += dispatch.Cost(r.NetLoad, quote.Buy, quote.Sell)
		a.EnergyCycled += r.Plan.EnergyCycled
		a.ActiveHours += r.Plan.ActiveHours
		for _, v := range r.NetLoad {
			a.NetImport += v
		}
		if !r.Plan.Converged {
			a.NonConverged++
		}
		if d.recorder == nil {
			continue
		}
		rec := model.TickRecord{
			Step:         t,
			Year:         year,
			Day:          day,
			ProsumerName: p.Name,
			BatteryCount: p.BatteryCount,
			PVSize:       p.PVSize,
			AgentBuy:     quote.Buy,
			AgentSell:    quote.Sell,
			Response:     r.NetLoad,
			Reward:       tick.Reward,
		}
		if err := d.recorder.Record(ctx, rec); err != nil {
			return tick, fmt.Errorf("record %s tick %d: %w", p.Name, t, err)
		}
	}

	if d.conv != nil && t >= 1 {
		solar, err := d.env.Solar(day)
		if err != nil {
			return tick, err
		}
		obs := Observation(tick.Total, solar, utilBuy)
		if _, err := d.conv.Submit(t, Action(quote.Buy, quote.Sell), obs, tick.Reward); err != nil {
			return tick, fmt.Errorf("batch tick %d: %w", t, err)
		}
	}

	if d.metrics {
		metrics.ObserveTick(d.policy.Name(), tick.Reward)
	}
	d.logger.Debug().Int("step", t).Int("day", day).Int("year", year).Float64("reward", tick.Reward).Msg("tick done")
	return tick, nil
}
