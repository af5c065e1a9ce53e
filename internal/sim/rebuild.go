package sim

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"microgrid-sim/internal/batch"
	"microgrid-sim/internal/model"
)

// RebuildBatches replays a CSVRecorder run directory into conv. Rows are
// submitted in file order starting at 0; the first file in name order
// supplies prices, calendar day and reward. It returns the number of rows
// submitted.
func RebuildBatches(ctx context.Context, dir string, env *model.Environment, conv *batch.Converter, logger zerolog.Logger) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return 0, err
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("no record files in %s", dir)
	}
	sort.Strings(paths)

	files := make([][]model.TickRecord, len(paths))
	for i, p := range paths {
		if files[i], err = ReadRecordsCSV(p); err != nil {
			return 0, err
		}
	}
	sentinel := files[0]
	for i, recs := range files[1:] {
		if len(recs) < len(sentinel) {
			return 0, fmt.Errorf("%s has %d rows, %s has %d", paths[i+1], len(recs), paths[0], len(sentinel))
		}
	}

	for idx, rec := range sentinel {
		if err := ctx.Err(); err != nil {
			return idx, err
		}
		if rec.Step != idx {
			logger.Warn().Int("row", idx).Int("step", rec.Step).Msg("misaligned batch data generation")
		}
		total := make([]float64, len(rec.Response))
		for f, recs := range files {
			resp := recs[idx].Response
			if len(resp) != len(total) {
				return idx, fmt.Errorf("%s row %d: %w: %d hours, want %d", paths[f], idx, ErrDimension, len(resp), len(total))
			}
			for h, v := range resp {
				total[h] += v
			}
		}
		solar, err := env.Solar(rec.Day)
		if err != nil {
			return idx, err
		}
		utilBuy, _, err := env.Prices(rec.Day)
		if err != nil {
			return idx, err
		}
		if _, err := conv.Submit(idx, Action(rec.AgentBuy, rec.AgentSell), Observation(total, solar, utilBuy), rec.Reward); err != nil {
			return idx, err
		}
	}
	return len(sentinel), nil
}
