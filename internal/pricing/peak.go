package pricing

import (
	"fmt"
	"strings"
)

// PeakParams configures a daily peak window:
// - inside [PeakStart, PeakEnd) the spread is narrowed by PeakMultiplier
// - otherwise by OffsetMultiplier
//
// Times are "HH:MM" on the simulation's day clock; a window whose start is
// after its end wraps across midnight.
type PeakParams struct {
	PeakStart        string
	PeakEnd          string
	OffsetMultiplier float64
	PeakMultiplier   float64
}

type PeakOffsetPolicy struct {
	Params PeakParams

	startMins int
	endMins   int
}

func NewPeakOffsetPolicy(params PeakParams) (*PeakOffsetPolicy, error) {
	start, err := parseHHMM(params.PeakStart)
	if err != nil {
		return nil, err
	}
	end, err := parseHHMM(params.PeakEnd)
	if err != nil {
		return nil, err
	}
	return &PeakOffsetPolicy{Params: params, startMins: start, endMins: end}, nil
}

func (p *PeakOffsetPolicy) Name() string { return "peak_offset" }

func (p *PeakOffsetPolicy) Decide(ctx Context) Quote {
	diff := spread(ctx)
	q := Quote{Buy: make([]float64, len(diff)), Sell: make([]float64, len(diff))}
	slot := 24 * 60 / max(len(diff), 1)
	for h, d := range diff {
		m := p.Params.OffsetMultiplier
		if inWindow(h*slot, p.startMins, p.endMins) {
			m = p.Params.PeakMultiplier
		}
		q.Buy[h] = ctx.UtilityBuy[h] - m*d
		q.Sell[h] = ctx.UtilitySell[h] + m*d
	}
	return q
}

func parseHHMM(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	var h, m int
	if _, err := fmt.Sscanf(parts[0], "%d", &h); err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &m); err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return h*60 + m, nil
}

// inWindow checks whether tMins is in [start, end) on a 24h clock.
// start == end is an empty window.
func inWindow(tMins, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return tMins >= start && tMins < end
	}
	return tMins >= start || tMins < end
}
