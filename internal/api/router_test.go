package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microgrid-sim/internal/api/models"
	"microgrid-sim/internal/data"
	"microgrid-sim/internal/dispatch"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	env, err := data.Synthetic(data.SyntheticParams{
		Prosumers:    2,
		BatteryCount: 2,
		PVSize:       50,
		BaseDemand:   20,
		PeakPrice:    0.30,
		OffPeakPrice: 0.12,
		NoiseScale:   0.05,
		Seed:         3,
	})
	require.NoError(t, err)
	opt, err := dispatch.New(dispatch.DefaultParams())
	require.NoError(t, err)
	return NewRouter(Deps{Env: env, Optimizer: opt, Logger: zerolog.Nop(), MaxSteps: 10})
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealthAndCatalog(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/policies", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var policies struct {
		Policies []models.PolicyInfo `json:"policies"`
	}
	decode(t, w, &policies)
	assert.Len(t, policies.Policies, 5)

	w = do(t, r, http.MethodGet, "/api/v1/prosumers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var prosumers struct {
		DayLength int                   `json:"day_length"`
		Prosumers []models.ProsumerInfo `json:"prosumers"`
	}
	decode(t, w, &prosumers)
	assert.Equal(t, 24, prosumers.DayLength)
	require.Len(t, prosumers.Prosumers, 2)
	assert.Equal(t, "building_1", prosumers.Prosumers[0].Name)
	assert.InDelta(t, 27.0, prosumers.Prosumers[0].CapacityKWh, 1e-9)

	w = do(t, r, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDispatchEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/dispatch", gin.H{
		"prosumer": "building_1",
		"day":      10,
		"policy":   gin.H{"name": "constant"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.DispatchResponse
	decode(t, w, &resp)
	assert.Equal(t, "constant", resp.Policy)
	assert.Equal(t, 2012, resp.Year)
	require.Len(t, resp.Hours, 24)
	for _, h := range resp.Hours {
		assert.Equal(t, h.PlannedNet, h.RealizedNet, "no noise requested")
		assert.Contains(t, []string{"CHARGING", "IDLE", "DISCHARGING"}, h.Action)
	}

	buy := make([]float64, 24)
	sell := make([]float64, 24)
	for i := range buy {
		buy[i], sell[i] = 0.2, 0.1
	}
	w = do(t, r, http.MethodPost, "/api/v1/dispatch", gin.H{
		"prosumer": "building_2", "day": 1, "buy": buy, "sell": sell, "noise": true, "seed": 9,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var priced models.DispatchResponse
	decode(t, w, &priced)
	assert.Empty(t, priced.Policy)
	assert.Equal(t, models.Float(0.2), priced.Hours[0].Buy)
}

func TestDispatchEndpointErrors(t *testing.T) {
	r := newTestRouter(t)
	cases := []struct {
		name string
		body gin.H
		code int
	}{
		{"missing prosumer", gin.H{"day": 1}, http.StatusBadRequest},
		{"day out of range", gin.H{"prosumer": "building_1", "day": 400}, http.StatusBadRequest},
		{"unknown prosumer", gin.H{"prosumer": "nobody", "day": 1}, http.StatusNotFound},
		{"short prices", gin.H{"prosumer": "building_1", "day": 1, "buy": []float64{1}, "sell": []float64{1}}, http.StatusBadRequest},
		{"unknown policy", gin.H{"prosumer": "building_1", "day": 1, "policy": gin.H{"name": "nope"}}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/api/v1/dispatch", tc.body)
			assert.Equal(t, tc.code, w.Code, w.Body.String())
			var e models.ErrorResponse
			decode(t, w, &e)
			assert.NotEmpty(t, e.Error.Code)
		})
	}
}

func TestSimulationLifecycle(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/simulations", gin.H{
		"policy":        gin.H{"name": "utility"},
		"num_steps":     3,
		"day_start":     100,
		"seed":          5,
		"include_ticks": true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.SimulationResponse
	decode(t, w, &created)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "utility", created.Policy)
	assert.Equal(t, 3, created.Summary.Ticks)
	require.Len(t, created.Ticks, 3)
	assert.Equal(t, 102, created.Ticks[2].Day)

	w = do(t, r, http.MethodGet, "/api/v1/simulations/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/simulations/"+created.ID+"/records?prosumer=building_2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var recs models.RecordsResponse
	decode(t, w, &recs)
	assert.Equal(t, 3, recs.Total)
	require.Len(t, recs.Records, 3)
	assert.Equal(t, "building_2", recs.Records[0].ProsumerName)
	assert.Len(t, recs.Records[0].Response, 24)

	w = do(t, r, http.MethodGet, "/api/v1/simulations/"+created.ID+"/records?limit=2&offset=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &recs)
	assert.Equal(t, 6, recs.Total)
	assert.Len(t, recs.Records, 2)

	w = do(t, r, http.MethodGet, "/api/v1/simulations/"+created.ID+"/records?prosumer=nobody", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/simulations/"+created.ID+"/rank", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rank models.RankResponse
	decode(t, w, &rank)
	require.Len(t, rank.Rankings, 2)
	assert.Equal(t, 1, rank.Rankings[0].Rank)
	assert.LessOrEqual(t, float64(rank.Rankings[0].Cost), float64(rank.Rankings[1].Cost))

	w = do(t, r, http.MethodGet, "/api/v1/simulations", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/simulations/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "microgrid_sim_ticks_total")
}

func TestSimulationRejectsBadRequests(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/simulations", gin.H{"num_steps": 11})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/simulations", gin.H{"num_steps": 2, "policy": gin.H{"name": "nope"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/simulations", gin.H{"num_steps": 2, "day_start": 366})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/simulations", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/simulations", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
