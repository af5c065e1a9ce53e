package handlers

import (
	"errors"
	"math/rand/v2"
	"net/http"

	"github.com/gin-gonic/gin"
	"gonum.org/v1/gonum/floats"

	"microgrid-sim/internal/api/models"
	"microgrid-sim/internal/dispatch"
	"microgrid-sim/internal/model"
	"microgrid-sim/internal/pricing"
)

const defaultYear = 2012

// DispatchHandler runs single-day dispatches
type DispatchHandler struct {
	env *model.Environment
	opt *dispatch.Optimizer
}

func NewDispatchHandler(env *model.Environment, opt *dispatch.Optimizer) *DispatchHandler {
	return &DispatchHandler{env: env, opt: opt}
}

// RunDispatch handles POST /api/v1/dispatch
func (h *DispatchHandler) RunDispatch(c *gin.Context) {
	var req models.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	if req.Year == 0 {
		req.Year = defaultYear
	}

	p, ok := h.env.Profile(req.Prosumer)
	if !ok {
		abortWithError(c, http.StatusNotFound, "PROSUMER_NOT_FOUND", "unknown prosumer "+req.Prosumer, nil)
		return
	}
	utilBuy, utilSell, err := h.env.Prices(req.Day)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_DAY", err.Error(), nil)
		return
	}

	quote := pricing.Quote{Buy: req.Buy, Sell: req.Sell}
	policyName := ""
	if len(req.Buy) == 0 && len(req.Sell) == 0 {
		name := req.Policy.Name
		if name == "" {
			name = "utility"
		}
		policy, err := pricing.Build(name, req.Policy.Params, req.Policy.Seed)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "INVALID_POLICY", err.Error(), nil)
			return
		}
		policyName = policy.Name()
		quote = policy.Decide(pricing.Context{Day: req.Day, Year: req.Year, UtilityBuy: utilBuy, UtilitySell: utilSell})
	}
	if err := pricing.CheckQuote(quote, h.env.DayLength); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_PRICES", err.Error(), map[string]any{"hours": h.env.DayLength})
		return
	}

	demand, gen, err := p.Day(req.Day)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_DAY", err.Error(), nil)
		return
	}
	base := make([]float64, len(demand))
	floats.SubTo(base, demand, gen)

	var plan dispatch.Plan
	var realized []float64
	if req.Noise {
		var src rand.Source
		if req.Seed != 0 {
			src = rand.NewPCG(req.Seed, 1)
		}
		res, err := h.opt.Dispatch(p, req.Day, req.Year, quote.Buy, quote.Sell, src)
		if err != nil {
			h.fail(c, err)
			return
		}
		plan, realized = res.Plan, res.NetLoad
	} else {
		plan, err = h.opt.Solve(base, quote.Buy, quote.Sell, p.BatteryCount)
		if err != nil {
			h.fail(c, err)
			return
		}
		realized = plan.NetLoad
	}

	actions := plan.Actions()
	hours := make([]models.DispatchHour, len(base))
	for hr := range hours {
		hours[hr] = models.DispatchHour{
			Hour:        hr,
			Buy:         models.Float(quote.Buy[hr]),
			Sell:        models.Float(quote.Sell[hr]),
			BaseLoad:    models.Float(base[hr]),
			Battery:     models.Float(plan.Battery[hr]),
			Action:      string(actions[hr]),
			PlannedNet:  models.Float(plan.NetLoad[hr]),
			RealizedNet: models.Float(realized[hr]),
		}
	}
	c.JSON(http.StatusOK, models.DispatchResponse{
		Prosumer:     p.Name,
		Day:          req.Day,
		Year:         req.Year,
		Policy:       policyName,
		Converged:    plan.Converged,
		Failure:      plan.Failure,
		Iterations:   plan.Iterations,
		Cost:         models.Float(plan.Cost),
		EnergyCycled: models.Float(plan.EnergyCycled),
		ActiveHours:  plan.ActiveHours,
		Hours:        hours,
	})
}

func (h *DispatchHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, dispatch.ErrDimension) || errors.Is(err, model.ErrDayOutOfRange) {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	abortWithError(c, http.StatusInternalServerError, "DISPATCH_ERROR", err.Error(), nil)
}
