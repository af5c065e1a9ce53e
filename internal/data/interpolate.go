package data

import "math"

// Interpolate fills NaN gaps linearly between valid neighbours. Trailing
// gaps repeat the last valid value and leading gaps become zero.
func Interpolate(vals []float64) []float64 {
	out := append([]float64(nil), vals...)
	last := -1
	for i, v := range out {
		if math.IsNaN(v) {
			continue
		}
		if last >= 0 && i-last > 1 {
			step := (v - out[last]) / float64(i-last)
			for j := last + 1; j < i; j++ {
				out[j] = out[last] + step*float64(j-last)
			}
		}
		last = i
	}
	if last >= 0 {
		for j := last + 1; j < len(out); j++ {
			out[j] = out[last]
		}
	}
	for i, v := range out {
		if math.IsNaN(v) {
			out[i] = 0
		}
	}
	return out
}
