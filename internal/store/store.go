// Package store persists simulation runs and their tick records.
package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"microgrid-sim/internal/model"
)

var ErrNotFound = errors.New("not found")

// Run is the metadata of one simulation run.
type Run struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Policy    string    `json:"policy"`
	NumSteps  int       `json:"num_steps"`
	DayStart  int       `json:"day_start"`
	YearStart int       `json:"year_start"`
	Seed      int64     `json:"seed"`
	CreatedAt time.Time `json:"created_at"`
}

type Store interface {
	CreateRun(ctx context.Context, run Run) error
	Run(ctx context.Context, id string) (Run, error)
	Runs(ctx context.Context) ([]Run, error)
	Record(ctx context.Context, runID string, rec model.TickRecord) error
	// Records returns a run's records in step order; an empty prosumer
	// selects all prosumers.
	Records(ctx context.Context, runID, prosumer string) ([]model.TickRecord, error)
	Close() error
}

// RunRecorder binds a store to one run so it can be handed to the
// simulation driver as a recorder.
type RunRecorder struct {
	Store Store
	RunID string
}

func (r RunRecorder) Record(ctx context.Context, rec model.TickRecord) error {
	return r.Store.Record(ctx, r.RunID, rec)
}

// Floats stores a float vector as comma separated text. Unlike JSON it
// round trips NaN.
type Floats []float64

func (f Floats) Value() (driver.Value, error) {
	parts := make([]string, len(f))
	for i, v := range f {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ","), nil
}

func (f *Floats) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		*f = nil
		return nil
	default:
		return fmt.Errorf("scan floats: unsupported type %T", src)
	}
	if s == "" {
		*f = Floats{}
		return nil
	}
	parts := strings.Split(s, ",")
	out := make(Floats, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return fmt.Errorf("scan floats: %w", err)
		}
		out[i] = v
	}
	*f = out
	return nil
}
