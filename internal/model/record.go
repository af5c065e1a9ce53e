package model

import (
	"fmt"
	"strconv"
	"strings"
)

// TickRecord is one row of simulation output: what one prosumer did on one
// simulated day. It is written once and never mutated.
type TickRecord struct {
	Step         int       `json:"step"`
	Year         int       `json:"year"`
	Day          int       `json:"day"`
	ProsumerName string    `json:"prosumer_name"`
	BatteryCount float64   `json:"battery_num"`
	PVSize       float64   `json:"pv_size"`
	AgentBuy     []float64 `json:"agent_buy"`
	AgentSell    []float64 `json:"agent_sell"`
	Response     []float64 `json:"prosumer_response"`
	Reward       float64   `json:"reward"`
}

const (
	colAgentBuy  = "agent_buy_"
	colAgentSell = "agent_sell_"
	colResponse  = "prosumer_response_"
)

// RecordHeader returns the flat column layout for a given day length.
func RecordHeader(dayLength int) []string {
	out := make([]string, 0, 3*dayLength+7)
	for _, prefix := range []string{colAgentBuy, colAgentSell, colResponse} {
		for h := 0; h < dayLength; h++ {
			out = append(out, prefix+strconv.Itoa(h))
		}
	}
	return append(out, "prosumer_name", "step", "year", "day", "battery_num", "pv_size", "reward")
}

// Fields returns the record values in RecordHeader order.
func (r TickRecord) Fields() []string {
	out := make([]string, 0, len(r.AgentBuy)+len(r.AgentSell)+len(r.Response)+7)
	for _, vec := range [][]float64{r.AgentBuy, r.AgentSell, r.Response} {
		for _, v := range vec {
			out = append(out, fmtFloat(v))
		}
	}
	return append(out,
		r.ProsumerName,
		strconv.Itoa(r.Step),
		strconv.Itoa(r.Year),
		strconv.Itoa(r.Day),
		fmtFloat(r.BatteryCount),
		fmtFloat(r.PVSize),
		fmtFloat(r.Reward),
	)
}

// ParseTickRecord reads a row laid out by the given header. Column order is
// taken from the header, so files with extra or reordered columns still parse.
func ParseTickRecord(header, row []string) (TickRecord, error) {
	if len(header) != len(row) {
		return TickRecord{}, fmt.Errorf("row has %d fields, header has %d", len(row), len(header))
	}
	idx := make(map[string]int, len(header))
	hours := 0
	for i, name := range header {
		idx[name] = i
		if strings.HasPrefix(name, colAgentBuy) {
			hours++
		}
	}

	var rec TickRecord
	var err error
	vec := func(prefix string) ([]float64, error) {
		out := make([]float64, hours)
		for h := 0; h < hours; h++ {
			i, ok := idx[prefix+strconv.Itoa(h)]
			if !ok {
				return nil, fmt.Errorf("missing column %s%d", prefix, h)
			}
			if out[h], err = strconv.ParseFloat(row[i], 64); err != nil {
				return nil, fmt.Errorf("column %s%d: %w", prefix, h, err)
			}
		}
		return out, nil
	}
	if rec.AgentBuy, err = vec(colAgentBuy); err != nil {
		return TickRecord{}, err
	}
	if rec.AgentSell, err = vec(colAgentSell); err != nil {
		return TickRecord{}, err
	}
	if rec.Response, err = vec(colResponse); err != nil {
		return TickRecord{}, err
	}

	field := func(name string) (string, error) {
		i, ok := idx[name]
		if !ok {
			return "", fmt.Errorf("missing column %s", name)
		}
		return row[i], nil
	}
	ints := []struct {
		name string
		dst  *int
	}{{"step", &rec.Step}, {"year", &rec.Year}, {"day", &rec.Day}}
	for _, c := range ints {
		s, err := field(c.name)
		if err != nil {
			return TickRecord{}, err
		}
		if *c.dst, err = strconv.Atoi(s); err != nil {
			return TickRecord{}, fmt.Errorf("column %s: %w", c.name, err)
		}
	}
	floats := []struct {
		name string
		dst  *float64
	}{{"battery_num", &rec.BatteryCount}, {"pv_size", &rec.PVSize}, {"reward", &rec.Reward}}
	for _, c := range floats {
		s, err := field(c.name)
		if err != nil {
			return TickRecord{}, err
		}
		if *c.dst, err = strconv.ParseFloat(s, 64); err != nil {
			return TickRecord{}, fmt.Errorf("column %s: %w", c.name, err)
		}
	}
	if rec.ProsumerName, err = field("prosumer_name"); err != nil {
		return TickRecord{}, err
	}
	return rec, nil
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
