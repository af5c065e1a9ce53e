package sim

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"microgrid-sim/internal/model"
)

// Recorder persists tick records. The driver calls it from a single
// goroutine, in tick order.
type Recorder interface {
	Record(ctx context.Context, rec model.TickRecord) error
}

// CSVRecorder appends each prosumer's records to <dir>/<name>.csv, writing
// the header only when the file is new or empty.
type CSVRecorder struct {
	mu        sync.Mutex
	dir       string
	dayLength int
	files     map[string]*csvFile
}

type csvFile struct {
	f *os.File
	w *csv.Writer
}

func NewCSVRecorder(dir string, dayLength int) (*CSVRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	return &CSVRecorder{dir: dir, dayLength: dayLength, files: map[string]*csvFile{}}, nil
}

func (r *CSVRecorder) Dir() string { return r.dir }

func (r *CSVRecorder) Record(_ context.Context, rec model.TickRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cf, err := r.file(rec.ProsumerName)
	if err != nil {
		return err
	}
	if err := cf.w.Write(rec.Fields()); err != nil {
		return fmt.Errorf("write record %s step %d: %w", rec.ProsumerName, rec.Step, err)
	}
	cf.w.Flush()
	return cf.w.Error()
}

func (r *CSVRecorder) file(name string) (*csvFile, error) {
	if cf, ok := r.files[name]; ok {
		return cf, nil
	}
	path := filepath.Join(r.dir, name+".csv")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	cf := &csvFile{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := cf.w.Write(model.RecordHeader(r.dayLength)); err != nil {
			f.Close()
			return nil, err
		}
	}
	r.files[name] = cf
	return cf, nil
}

func (r *CSVRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, cf := range r.files {
		cf.w.Flush()
		errs = append(errs, cf.w.Error(), cf.f.Close())
		delete(r.files, name)
	}
	return errors.Join(errs...)
}

// ReadRecordsCSV reads a file written by CSVRecorder.
func ReadRecordsCSV(path string) ([]model.TickRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: missing header", path)
	}
	out := make([]model.TickRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := model.ParseTickRecord(rows[0], row)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// MemoryRecorder keeps records grouped by prosumer.
type MemoryRecorder struct {
	mu      sync.Mutex
	records map[string][]model.TickRecord
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{records: map[string][]model.TickRecord{}}
}

func (m *MemoryRecorder) Record(_ context.Context, rec model.TickRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ProsumerName] = append(m.records[rec.ProsumerName], rec)
	return nil
}

// Records returns a copy of one prosumer's records in tick order.
func (m *MemoryRecorder) Records(name string) []model.TickRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TickRecord(nil), m.records[name]...)
}

func (m *MemoryRecorder) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.records))
	for name := range m.records {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// MultiRecorder fans each record out to every recorder. All recorders are
// tried; their errors are joined.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, rec model.TickRecord) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Record(ctx, rec))
	}
	return errors.Join(errs...)
}
