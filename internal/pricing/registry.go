package pricing

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

var ErrUnknownPolicy = errors.New("unknown pricing policy")

type ParamInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default"`
}

type Info struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []ParamInfo `json:"parameters"`
}

var (
	offsetParam = ParamInfo{
		Name:        "offset_multiplier",
		Type:        "float",
		Description: "Fraction of the utility buy/sell spread the microgrid gives back on each side",
		Default:     0.1,
	}
	scaleParam = ParamInfo{
		Name:        "scale_multiplier",
		Type:        "float",
		Description: "Standard deviation of hourly price noise as a fraction of the spread",
		Default:     0.1,
	}
)

// Catalog lists the policies Build understands.
func Catalog() []Info {
	return []Info{
		{
			Name:        "constant",
			Description: "Narrows the utility spread by a fixed fraction every hour.",
			Parameters:  []ParamInfo{offsetParam},
		},
		{
			Name:        "random",
			Description: "Constant policy plus independent Gaussian noise on every hourly price.",
			Parameters:  []ParamInfo{offsetParam, scaleParam},
		},
		{
			Name:        "grouped_random",
			Description: "Shifts the whole day toward the buy side, the centre or the sell side at random.",
			Parameters:  []ParamInfo{offsetParam},
		},
		{
			Name:        "peak_offset",
			Description: "Constant policy with a separate multiplier inside a daily peak window.",
			Parameters: []ParamInfo{
				offsetParam,
				{Name: "peak_multiplier", Type: "float", Description: "Spread fraction given back inside the peak window", Default: 0.3},
				{Name: "peak_start", Type: "string", Description: "Peak window start (HH:MM)", Default: "17:00"},
				{Name: "peak_end", Type: "string", Description: "Peak window end (HH:MM)", Default: "21:00"},
			},
		},
		{
			Name:        "utility",
			Description: "Posts the utility tariff unchanged.",
		},
	}
}

// Build constructs a policy by name. A zero seed draws the randomized
// policies' seed from the ambient stream.
func Build(name string, params map[string]any, seed uint64) (Policy, error) {
	if seed == 0 {
		seed = rand.Uint64()
	}
	offset := num(params, "offset_multiplier", 0.1)
	switch strings.TrimSpace(name) {
	case "constant", "":
		return &ConstantPolicy{OffsetMultiplier: offset}, nil
	case "random":
		return &RandomPolicy{
			OffsetMultiplier: offset,
			ScaleMultiplier:  num(params, "scale_multiplier", 0.1),
			Src:              rand.NewPCG(seed, 1),
		}, nil
	case "grouped_random":
		return &GroupedRandomPolicy{OffsetMultiplier: offset, Src: rand.NewPCG(seed, 2)}, nil
	case "peak_offset":
		return NewPeakOffsetPolicy(PeakParams{
			PeakStart:        str(params, "peak_start", "17:00"),
			PeakEnd:          str(params, "peak_end", "21:00"),
			OffsetMultiplier: offset,
			PeakMultiplier:   num(params, "peak_multiplier", 0.3),
		})
	case "utility":
		return UtilityPolicy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

func num(m map[string]any, key string, def float64) float64 {
	if v, ok := m[key]; ok && v != nil {
		switch x := v.(type) {
		case float64:
			return x
		case float32:
			return float64(x)
		case int:
			return float64(x)
		case int64:
			return float64(x)
		}
	}
	return def
}

func str(m map[string]any, key string, def string) string {
	if v, ok := m[key]; ok && v != nil {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return def
}
