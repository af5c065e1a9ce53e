package sim

import "microgrid-sim/internal/model"

// Calendar maps tick t to a 1-based day of year and a year. The year
// advances every YearLength ticks counted from dayStart.
func Calendar(dayStart, yearStart, t int) (day, year int) {
	day = (dayStart-1+t)%model.YearLength + 1
	year = yearStart + (dayStart+t-1)/model.YearLength
	return day, year
}
