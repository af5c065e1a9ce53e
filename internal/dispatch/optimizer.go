package dispatch

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"microgrid-sim/internal/model"
)

var ErrDimension = errors.New("dimension mismatch")

const (
	DefaultMaxIterations = 10000
	DefaultTolerance     = 1e-10
)

type Params struct {
	Battery model.BatteryParams
	// MaxIterations caps the number of linear programs solved per day.
	MaxIterations int
	// Tolerance is passed to the simplex solver.
	Tolerance float64
}

func DefaultParams() Params {
	return Params{
		Battery:       model.DefaultBatteryParams(),
		MaxIterations: DefaultMaxIterations,
		Tolerance:     DefaultTolerance,
	}
}

// Optimizer chooses each prosumer's daily battery schedule.
//
// The daily problem minimizes
//
//	Σ max(net,0)·buy + Σ min(net,0)·sell
//	net = base + ((1/η-η)/2)|x| + ((1/η+η)/2)x
//
// subject to |x| <= rate and 0 <= cumsum(x) <= capacity. It is solved as a
// linear program over split variables. Hours where sell > buy make the
// objective concave in net; those hours are linearized around the current
// iterate and re-solved until the linearization stops changing.
//
// An Optimizer holds no mutable state and is safe for concurrent use.
type Optimizer struct {
	params Params
}

func New(params Params) (*Optimizer, error) {
	if params.MaxIterations <= 0 {
		params.MaxIterations = DefaultMaxIterations
	}
	if params.Tolerance <= 0 {
		params.Tolerance = DefaultTolerance
	}
	if err := params.Battery.Validate(); err != nil {
		return nil, fmt.Errorf("battery params invalid: %w", err)
	}
	return &Optimizer{params: params}, nil
}

func (o *Optimizer) Params() Params { return o.params }

// Plan is the noiseless outcome of one daily solve.
type Plan struct {
	// Battery is the hourly battery power. Positive stores energy.
	Battery []float64
	// NetLoad is the grid-side load before noise.
	NetLoad []float64
	// Converged is false when the solver failed and NetLoad was clipped.
	Converged bool
	// Failure says why the solver gave up; empty when Converged.
	Failure      string
	Iterations   int
	Cost         float64
	EnergyCycled float64
	ActiveHours  int
}

func (p Plan) Actions() []model.Action {
	out := make([]model.Action, len(p.Battery))
	for h, x := range p.Battery {
		out[h] = model.ActionFromPower(x)
	}
	return out
}

// Result is a plan plus the noise realized on top of it.
type Result struct {
	Plan            Plan
	DemandNoise     []float64
	GenerationNoise []float64
	// NetLoad is the realized load: Plan.NetLoad plus both noise terms.
	NetLoad []float64
}

// Dispatch solves the given 1-based day for a prosumer and applies noise.
// Demand noise is drawn from src, or the ambient stream when src is nil.
// Generation noise is keyed by (day, year) only.
func (o *Optimizer) Dispatch(p *model.Profile, day, year int, buy, sell []float64, src rand.Source) (*Result, error) {
	demand, gen, err := p.Day(day)
	if err != nil {
		return nil, err
	}
	base := make([]float64, len(demand))
	floats.SubTo(base, demand, gen)

	plan, err := o.Solve(base, buy, sell, p.BatteryCount)
	if err != nil {
		return nil, fmt.Errorf("dispatch %q day %d: %w", p.Name, day, err)
	}

	res := &Result{
		Plan:            plan,
		DemandNoise:     DemandNoise(plan.NetLoad, p.NoiseScale, src),
		GenerationNoise: GenerationNoise(day, year, p.MaxGenerationByHour, p.GenerationNoiseScale),
		NetLoad:         make([]float64, len(base)),
	}
	floats.AddTo(res.NetLoad, plan.NetLoad, res.DemandNoise)
	floats.Add(res.NetLoad, res.GenerationNoise)
	return res, nil
}

// Solve computes the battery plan for a day with pre-battery load base
// (demand minus generation). Only input shape problems are returned as
// errors; solver trouble degrades to a clipped plan with Converged=false.
func (o *Optimizer) Solve(base, buy, sell []float64, batteryCount float64) (Plan, error) {
	n := len(base)
	if n == 0 || len(buy) != n || len(sell) != n {
		return Plan{}, fmt.Errorf("%w: base=%d buy=%d sell=%d", ErrDimension, n, len(buy), len(sell))
	}
	rate := o.params.Battery.RateLimit(batteryCount)
	capacity := o.params.Battery.Capacity(batteryCount)
	if rate <= 0 || capacity <= 0 {
		return o.plan(base, buy, sell, make([]float64, n), true, 0), nil
	}

	prob := newProblem(base, rate, capacity, o.params.Battery.Efficiency)
	modes := initialModes(base, buy, sell)
	seen := map[string]bool{modeKey(modes): true}

	var best []float64
	var failure error
	bestCost := math.Inf(1)
	converged := false
	iter := 0
	for iter < o.params.MaxIterations {
		iter++
		x, err := prob.solve(buy, sell, modes, o.params.Tolerance)
		if err != nil {
			failure = err
			break
		}
		net := o.netLoad(base, x)
		if c := Cost(net, buy, sell); c < bestCost {
			best, bestCost = x, c
		}
		next := relinearize(modes, net)
		key := modeKey(next)
		if key == modeKey(modes) || seen[key] {
			converged = true
			break
		}
		seen[key] = true
		modes = next
	}

	if converged {
		return o.plan(base, buy, sell, best, true, iter), nil
	}

	x := best
	if x == nil {
		x = make([]float64, n)
		for h := range x {
			x[h] = capacity
		}
	}
	p := o.plan(base, buy, sell, x, false, iter)
	p.Failure = fmt.Sprintf("iteration limit %d reached", o.params.MaxIterations)
	if failure != nil {
		p.Failure = failure.Error()
	}
	for h := range p.NetLoad {
		p.NetLoad[h] = math.Min(math.Max(p.NetLoad[h], base[h]-rate), base[h]+rate)
	}
	p.Cost = Cost(p.NetLoad, buy, sell)
	return p, nil
}

func (o *Optimizer) netLoad(base, x []float64) []float64 {
	net := make([]float64, len(base))
	for h := range base {
		net[h] = base[h] + o.params.Battery.GridFlow(x[h])
	}
	return net
}

func (o *Optimizer) plan(base, buy, sell, x []float64, converged bool, iter int) Plan {
	net := o.netLoad(base, x)
	active := 0
	for _, v := range x {
		if math.Abs(v) > model.ActiveThresholdKWh {
			active++
		}
	}
	return Plan{
		Battery:      x,
		NetLoad:      net,
		Converged:    converged,
		Iterations:   iter,
		Cost:         Cost(net, buy, sell),
		EnergyCycled: floats.Norm(x, 1),
		ActiveHours:  active,
	}
}

// Cost is the settlement cost of a net load trace: positive load is bought
// at buy, negative load is sold at sell.
func Cost(net, buy, sell []float64) float64 {
	total := 0.0
	for h, v := range net {
		total += math.Max(v, 0)*buy[h] + math.Min(v, 0)*sell[h]
	}
	return total
}
