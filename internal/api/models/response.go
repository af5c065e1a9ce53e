package models

import (
	"encoding/json"
	"math"
	"time"

	"microgrid-sim/internal/analysis"
	"microgrid-sim/internal/model"
	"microgrid-sim/internal/sim"
)

// Float encodes NaN and ±Inf as null.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func Floats(v []float64) []Float {
	out := make([]Float, len(v))
	for i, x := range v {
		out[i] = Float(x)
	}
	return out
}

type PolicyInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ParameterInfo `json:"parameters"`
}

// ParameterInfo describes a policy parameter
type ParameterInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "float", "string"
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
}

type ProsumerInfo struct {
	Name                 string  `json:"name"`
	BatteryCount         float64 `json:"battery_num"`
	PVSize               float64 `json:"pv_size"`
	CapacityKWh          float64 `json:"capacity_kwh"`
	RateLimitKW          float64 `json:"rate_limit_kw"`
	NoiseScale           float64 `json:"noise_scale"`
	GenerationNoiseScale float64 `json:"generation_noise_scale"`
}

type DispatchResponse struct {
	Prosumer     string         `json:"prosumer"`
	Day          int            `json:"day"`
	Year         int            `json:"year"`
	Policy       string         `json:"policy,omitempty"`
	Converged    bool           `json:"converged"`
	Failure      string         `json:"failure,omitempty"`
	Iterations   int            `json:"iterations"`
	Cost         Float          `json:"cost"`
	EnergyCycled Float          `json:"energy_cycled"`
	ActiveHours  int            `json:"active_hours"`
	Hours        []DispatchHour `json:"hours"`
}

// DispatchHour is one hour of a daily plan. Battery is positive when
// charging.
type DispatchHour struct {
	Hour        int    `json:"hour"`
	Buy         Float  `json:"buy"`
	Sell        Float  `json:"sell"`
	BaseLoad    Float  `json:"base_load"`
	Battery     Float  `json:"battery"`
	Action      string `json:"action"` // "CHARGING", "DISCHARGING", "IDLE"
	PlannedNet  Float  `json:"planned_net"`
	RealizedNet Float  `json:"realized_net"`
}

type SimulationResponse struct {
	ID        string                 `json:"id"`
	Status    string                 `json:"status"`
	Policy    string                 `json:"policy"`
	Config    sim.Config             `json:"config"`
	CreatedAt time.Time              `json:"created_at"`
	Summary   analysis.RewardSummary `json:"summary"`
	Ticks     []Tick                 `json:"ticks,omitempty"`
}

type Tick struct {
	Step         int     `json:"step"`
	Day          int     `json:"day"`
	Year         int     `json:"year"`
	Reward       Float   `json:"reward"`
	NonConverged int     `json:"non_converged"`
	Total        []Float `json:"total"`
}

func NewTicks(ticks []sim.TickSummary) []Tick {
	out := make([]Tick, len(ticks))
	for i, t := range ticks {
		out[i] = Tick{
			Step:         t.Step,
			Day:          t.Day,
			Year:         t.Year,
			Reward:       Float(t.Reward),
			NonConverged: t.NonConverged,
			Total:        Floats(t.Total),
		}
	}
	return out
}

type Record struct {
	Step         int     `json:"step"`
	Year         int     `json:"year"`
	Day          int     `json:"day"`
	ProsumerName string  `json:"prosumer_name"`
	BatteryCount float64 `json:"battery_num"`
	PVSize       float64 `json:"pv_size"`
	AgentBuy     []Float `json:"agent_buy"`
	AgentSell    []Float `json:"agent_sell"`
	Response     []Float `json:"prosumer_response"`
	Reward       Float   `json:"reward"`
}

func NewRecord(r model.TickRecord) Record {
	return Record{
		Step:         r.Step,
		Year:         r.Year,
		Day:          r.Day,
		ProsumerName: r.ProsumerName,
		BatteryCount: r.BatteryCount,
		PVSize:       r.PVSize,
		AgentBuy:     Floats(r.AgentBuy),
		AgentSell:    Floats(r.AgentSell),
		Response:     Floats(r.Response),
		Reward:       Float(r.Reward),
	}
}

type RecordsResponse struct {
	ID      string   `json:"id"`
	Total   int      `json:"total"`
	Records []Record `json:"records"`
}

type RankResponse struct {
	ID       string    `json:"id"`
	Rankings []Ranking `json:"rankings"`
}

// Ranking represents one ranked prosumer
type Ranking struct {
	Rank         int     `json:"rank"`
	Name         string  `json:"name"`
	Cost         Float   `json:"cost"`
	CostPerDay   Float   `json:"cost_per_day"`
	EnergyCycled Float   `json:"energy_cycled"`
	NetImport    Float   `json:"net_import"`
	ActiveHours  int     `json:"active_hours"`
	NonConverged int     `json:"non_converged"`
	BatteryCount float64 `json:"battery_num"`
	PVSize       float64 `json:"pv_size"`
}

func NewRankings(ranked []analysis.RankedProsumer) []Ranking {
	out := make([]Ranking, len(ranked))
	for i, r := range ranked {
		out[i] = Ranking{
			Rank:         r.Rank,
			Name:         r.Name,
			Cost:         Float(r.Cost),
			CostPerDay:   Float(r.CostPerDay),
			EnergyCycled: Float(r.EnergyCycled),
			NetImport:    Float(r.NetImport),
			ActiveHours:  r.ActiveHours,
			NonConverged: r.NonConverged,
			BatteryCount: r.BatteryCount,
			PVSize:       r.PVSize,
		}
	}
	return out
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
