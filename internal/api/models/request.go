package models

// PolicyConfig selects a pricing policy and its parameters.
type PolicyConfig struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
	Seed   uint64         `json:"seed,omitempty"`
}

// DispatchRequest asks for one prosumer's plan on one day. Prices default to
// the policy's quote for the day when Buy and Sell are omitted.
type DispatchRequest struct {
	Prosumer string       `json:"prosumer" binding:"required"`
	Day      int          `json:"day" binding:"required,min=1,max=365"`
	Year     int          `json:"year,omitempty"`
	Buy      []float64    `json:"buy,omitempty"`
	Sell     []float64    `json:"sell,omitempty"`
	Policy   PolicyConfig `json:"policy,omitempty"`
	// Noise applies demand and generation noise on top of the plan.
	Noise bool   `json:"noise,omitempty"`
	Seed  uint64 `json:"seed,omitempty"`
}

type SimulationRequest struct {
	Policy      PolicyConfig `json:"policy"`
	NumSteps    int          `json:"num_steps" binding:"required,min=1"`
	DayStart    int          `json:"day_start,omitempty"`
	YearStart   int          `json:"year_start,omitempty"`
	Parallelism int          `json:"parallelism,omitempty"`
	Seed        uint64       `json:"seed,omitempty"`
	// IncludeTicks returns per-tick summaries in the response.
	IncludeTicks bool `json:"include_ticks,omitempty"`
}

type RecordsQuery struct {
	Prosumer string `form:"prosumer"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}
