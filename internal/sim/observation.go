package sim

// Observation is the RL view of a day: aggregate net demand, the raw solar
// constants and the utility buy price, concatenated as float32.
func Observation(total, solar, utilityBuy []float64) []float32 {
	out := make([]float32, 0, len(total)+len(solar)+len(utilityBuy))
	for _, vec := range [][]float64{total, solar, utilityBuy} {
		for _, v := range vec {
			out = append(out, float32(v))
		}
	}
	return out
}

// Action is the posted microgrid tariff, buy then sell.
func Action(buy, sell []float64) []float64 {
	out := make([]float64, 0, len(buy)+len(sell))
	out = append(out, buy...)
	return append(out, sell...)
}
