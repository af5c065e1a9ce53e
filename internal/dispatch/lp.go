package dispatch

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// Column blocks of the standard-form problem, each n wide.
const (
	colCharge    = iota // u: positive part of x
	colDischarge        // v: negative part of x
	colImport           // p: positive part of net
	colExport           // q: negative part of net
	colChargeSlack
	colDischargeSlack
	colSocLowSlack
	colSocHighSlack
	numBlocks
)

// cycleCost is charged per kWh moved through the battery so the solver
// never charges and discharges in the same hour.
const cycleCost = 1e-9

type hourMode uint8

const (
	// modeSplit prices import at buy and export at sell (buy >= sell).
	modeSplit hourMode = iota
	// modeBuy and modeSell price both directions on a single line; used for
	// hours where sell > buy, which would otherwise be unbounded.
	modeBuy
	modeSell
)

// problem is the equality-form LP
//
//	p - q - u/η + ηv            = base      (balance, per hour)
//	u + su                      = rate
//	v + sv                      = rate
//	-Σ_{k<=h}(u-v) + slo        = 0
//	 Σ_{k<=h}(u-v) + shi        = capacity
//
// with every variable >= 0. Balance rows with negative base are negated so
// that the import or export column together with the slacks forms a
// feasible starting basis.
type problem struct {
	n     int
	a     *mat.Dense
	b     []float64
	basic []int
}

func newProblem(base []float64, rate, capacity, eta float64) *problem {
	n := len(base)
	p := &problem{
		n: n,
		a: mat.NewDense(5*n, numBlocks*n, nil),
		b: make([]float64, 5*n),
	}
	for h := 0; h < n; h++ {
		sign := 1.0
		start := p.col(colImport, h)
		if base[h] < 0 {
			sign = -1
			start = p.col(colExport, h)
		}
		p.a.Set(h, p.col(colImport, h), sign)
		p.a.Set(h, p.col(colExport, h), -sign)
		p.a.Set(h, p.col(colCharge, h), -sign/eta)
		p.a.Set(h, p.col(colDischarge, h), sign*eta)
		p.b[h] = sign * base[h]
		p.basic = append(p.basic, start)
	}
	for h := 0; h < n; h++ {
		r := n + h
		p.a.Set(r, p.col(colCharge, h), 1)
		p.a.Set(r, p.col(colChargeSlack, h), 1)
		p.b[r] = rate
		p.basic = append(p.basic, p.col(colChargeSlack, h))

		r = 2*n + h
		p.a.Set(r, p.col(colDischarge, h), 1)
		p.a.Set(r, p.col(colDischargeSlack, h), 1)
		p.b[r] = rate
		p.basic = append(p.basic, p.col(colDischargeSlack, h))
	}
	for h := 0; h < n; h++ {
		lo, hi := 3*n+h, 4*n+h
		for k := 0; k <= h; k++ {
			p.a.Set(lo, p.col(colCharge, k), -1)
			p.a.Set(lo, p.col(colDischarge, k), 1)
			p.a.Set(hi, p.col(colCharge, k), 1)
			p.a.Set(hi, p.col(colDischarge, k), -1)
		}
		p.a.Set(lo, p.col(colSocLowSlack, h), 1)
		p.a.Set(hi, p.col(colSocHighSlack, h), 1)
		p.b[hi] = capacity
		p.basic = append(p.basic, p.col(colSocLowSlack, h))
	}
	for h := 0; h < n; h++ {
		p.basic = append(p.basic, p.col(colSocHighSlack, h))
	}
	return p
}

func (p *problem) col(block, h int) int { return block*p.n + h }

func (p *problem) cost(buy, sell []float64, modes []hourMode) []float64 {
	c := make([]float64, numBlocks*p.n)
	for h := 0; h < p.n; h++ {
		c[p.col(colCharge, h)] = cycleCost
		c[p.col(colDischarge, h)] = cycleCost
		imp, exp := buy[h], sell[h]
		switch modes[h] {
		case modeBuy:
			exp = buy[h]
		case modeSell:
			imp = sell[h]
		}
		c[p.col(colImport, h)] = imp
		c[p.col(colExport, h)] = -exp
	}
	return c
}

// solve runs the simplex for one linearization and returns x = u - v.
func (p *problem) solve(buy, sell []float64, modes []hourMode, tol float64) (x []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simplex: %v", r)
		}
	}()
	basic := append([]int(nil), p.basic...)
	_, opt, err := lp.Simplex(p.cost(buy, sell, modes), p.a, p.b, tol, basic)
	if err != nil {
		return nil, fmt.Errorf("simplex: %w", err)
	}
	x = make([]float64, p.n)
	for h := range x {
		x[h] = opt[p.col(colCharge, h)] - opt[p.col(colDischarge, h)]
	}
	return x, nil
}

func initialModes(base, buy, sell []float64) []hourMode {
	modes := make([]hourMode, len(base))
	for h := range base {
		switch {
		case sell[h] <= buy[h]:
			modes[h] = modeSplit
		case base[h] >= 0:
			modes[h] = modeBuy
		default:
			modes[h] = modeSell
		}
	}
	return modes
}

// relinearize moves every concave hour onto the price line its net load
// currently sits on.
func relinearize(modes []hourMode, net []float64) []hourMode {
	next := make([]hourMode, len(modes))
	for h, m := range modes {
		switch {
		case m == modeSplit:
			next[h] = modeSplit
		case net[h] >= 0:
			next[h] = modeBuy
		default:
			next[h] = modeSell
		}
	}
	return next
}

func modeKey(modes []hourMode) string {
	b := make([]byte, len(modes))
	for i, m := range modes {
		b[i] = byte('0' + m)
	}
	return string(b)
}
