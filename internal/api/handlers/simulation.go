package handlers

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"microgrid-sim/internal/analysis"
	"microgrid-sim/internal/api/models"
	"microgrid-sim/internal/dispatch"
	"microgrid-sim/internal/model"
	"microgrid-sim/internal/pricing"
	"microgrid-sim/internal/sim"
	"microgrid-sim/internal/store"
)

const defaultMaxSteps = 3 * model.YearLength

type simulationRun struct {
	id        string
	createdAt time.Time
	result    *sim.Result
	records   *sim.MemoryRecorder
}

// SimulationHandler runs simulations synchronously and keeps their results
// in memory for later lookup. A configured store also receives every record.
type SimulationHandler struct {
	env      *model.Environment
	opt      *dispatch.Optimizer
	store    store.Store
	logger   zerolog.Logger
	maxSteps int

	mu   sync.RWMutex
	runs map[string]*simulationRun
}

func NewSimulationHandler(env *model.Environment, opt *dispatch.Optimizer, st store.Store, logger zerolog.Logger, maxSteps int) *SimulationHandler {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	return &SimulationHandler{
		env:      env,
		opt:      opt,
		store:    st,
		logger:   logger,
		maxSteps: maxSteps,
		runs:     map[string]*simulationRun{},
	}
}

// RunSimulation handles POST /api/v1/simulations
func (h *SimulationHandler) RunSimulation(c *gin.Context) {
	var req models.SimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	if req.NumSteps > h.maxSteps {
		abortWithError(c, http.StatusBadRequest, "TOO_MANY_STEPS", "num_steps exceeds the server limit",
			map[string]any{"max_steps": h.maxSteps})
		return
	}
	if req.DayStart == 0 {
		req.DayStart = 1
	}
	if req.YearStart == 0 {
		req.YearStart = defaultYear
	}

	policy, err := pricing.Build(req.Policy.Name, req.Policy.Params, req.Policy.Seed)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_POLICY", err.Error(), nil)
		return
	}
	cfg := sim.Config{
		NumSteps:    req.NumSteps,
		DayStart:    req.DayStart,
		YearStart:   req.YearStart,
		Parallelism: req.Parallelism,
		Seed:        req.Seed,
	}
	if err := cfg.Validate(); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error(), nil)
		return
	}

	run := &simulationRun{id: uuid.NewString(), createdAt: time.Now().UTC(), records: sim.NewMemoryRecorder()}
	var recorder sim.Recorder = run.records
	if h.store != nil {
		if err := h.store.CreateRun(c.Request.Context(), store.Run{
			ID: run.id, Policy: policy.Name(), NumSteps: cfg.NumSteps, DayStart: cfg.DayStart,
			YearStart: cfg.YearStart, Seed: int64(cfg.Seed), CreatedAt: run.createdAt,
		}); err != nil {
			abortWithError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error(), nil)
			return
		}
		recorder = sim.MultiRecorder{run.records, store.RunRecorder{Store: h.store, RunID: run.id}}
	}

	driver, err := sim.New(h.env, policy,
		sim.WithOptimizer(h.opt),
		sim.WithRecorder(recorder),
		sim.WithLogger(h.logger.With().Str("run", run.id).Logger()),
		sim.WithMetrics(true),
	)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "SIMULATION_ERROR", err.Error(), nil)
		return
	}
	res, err := driver.Run(c.Request.Context(), cfg)
	if err != nil {
		status, code := http.StatusInternalServerError, "SIMULATION_ERROR"
		if errors.Is(err, sim.ErrDimension) {
			status, code = http.StatusUnprocessableEntity, "MALFORMED_POLICY_OUTPUT"
		}
		abortWithError(c, status, code, err.Error(), nil)
		return
	}
	run.result = res

	h.mu.Lock()
	h.runs[run.id] = run
	h.mu.Unlock()

	c.JSON(http.StatusCreated, h.response(run, req.IncludeTicks))
}

// GetSimulation handles GET /api/v1/simulations/:id
func (h *SimulationHandler) GetSimulation(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.response(run, true))
}

// ListSimulations handles GET /api/v1/simulations
func (h *SimulationHandler) ListSimulations(c *gin.Context) {
	h.mu.RLock()
	out := make([]models.SimulationResponse, 0, len(h.runs))
	for _, run := range h.runs {
		out = append(out, h.response(run, false))
	}
	h.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"simulations": out})
}

// GetRecords handles GET /api/v1/simulations/:id/records
func (h *SimulationHandler) GetRecords(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	var q models.RecordsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	names := run.records.Names()
	if q.Prosumer != "" {
		if _, ok := h.env.Profile(q.Prosumer); !ok {
			abortWithError(c, http.StatusNotFound, "PROSUMER_NOT_FOUND", "unknown prosumer "+q.Prosumer, nil)
			return
		}
		names = []string{q.Prosumer}
	}
	var recs []model.TickRecord
	for _, name := range names {
		recs = append(recs, run.records.Records(name)...)
	}

	total := len(recs)
	if q.Offset > 0 {
		recs = recs[min(q.Offset, len(recs)):]
	}
	if q.Limit > 0 && q.Limit < len(recs) {
		recs = recs[:q.Limit]
	}
	out := make([]models.Record, len(recs))
	for i, r := range recs {
		out[i] = models.NewRecord(r)
	}
	c.JSON(http.StatusOK, models.RecordsResponse{ID: run.id, Total: total, Records: out})
}

// RankProsumers handles GET /api/v1/simulations/:id/rank
func (h *SimulationHandler) RankProsumers(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.RankResponse{
		ID:       run.id,
		Rankings: models.NewRankings(analysis.RankProsumers(run.result)),
	})
}

func (h *SimulationHandler) lookup(c *gin.Context) (*simulationRun, bool) {
	id := c.Param("id")
	h.mu.RLock()
	run, ok := h.runs[id]
	h.mu.RUnlock()
	if !ok {
		abortWithError(c, http.StatusNotFound, "SIMULATION_NOT_FOUND", "unknown simulation "+id, nil)
	}
	return run, ok
}

func (h *SimulationHandler) response(run *simulationRun, includeTicks bool) models.SimulationResponse {
	resp := models.SimulationResponse{
		ID:        run.id,
		Status:    "completed",
		Policy:    run.result.Policy,
		Config:    run.result.Config,
		CreatedAt: run.createdAt,
		Summary:   analysis.Summarize(run.result),
	}
	if includeTicks {
		resp.Ticks = models.NewTicks(run.result.Ticks)
	}
	return resp
}
