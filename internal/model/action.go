package model

// Action is a human-friendly battery mode for one hour of a dispatch plan.
// Keep these values stable; they are intended for CSV and API output.
type Action string

const (
	ActionCharging    Action = "CHARGING"
	ActionIdle        Action = "IDLE"
	ActionDischarging Action = "DISCHARGING"
)

// ActiveThresholdKWh is the battery power below which an hour counts as idle.
const ActiveThresholdKWh = 0.1

func ActionFromPower(x float64) Action {
	switch {
	case x > ActiveThresholdKWh:
		return ActionCharging
	case x < -ActiveThresholdKWh:
		return ActionDischarging
	default:
		return ActionIdle
	}
}
