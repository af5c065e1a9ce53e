package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"microgrid-sim/internal/model"
)

// StoredRecord is a tick record as persisted in SQLite. A NaN reward is
// stored as NULL.
type StoredRecord struct {
	ID           uint   `gorm:"primaryKey"`
	RunID        string `gorm:"index:idx_run_prosumer_step,priority:1"`
	ProsumerName string `gorm:"index:idx_run_prosumer_step,priority:2"`
	Step         int    `gorm:"index:idx_run_prosumer_step,priority:3"`
	Year         int
	Day          int
	BatteryCount float64
	PVSize       float64
	AgentBuy     Floats `gorm:"type:text"`
	AgentSell    Floats `gorm:"type:text"`
	Response     Floats `gorm:"type:text"`
	Reward       sql.NullFloat64
}

func newStoredRecord(runID string, rec model.TickRecord) StoredRecord {
	return StoredRecord{
		RunID:        runID,
		ProsumerName: rec.ProsumerName,
		Step:         rec.Step,
		Year:         rec.Year,
		Day:          rec.Day,
		BatteryCount: rec.BatteryCount,
		PVSize:       rec.PVSize,
		AgentBuy:     Floats(rec.AgentBuy),
		AgentSell:    Floats(rec.AgentSell),
		Response:     Floats(rec.Response),
		Reward:       sql.NullFloat64{Float64: rec.Reward, Valid: !math.IsNaN(rec.Reward)},
	}
}

func (s StoredRecord) tickRecord() model.TickRecord {
	reward := math.NaN()
	if s.Reward.Valid {
		reward = s.Reward.Float64
	}
	return model.TickRecord{
		Step:         s.Step,
		Year:         s.Year,
		Day:          s.Day,
		ProsumerName: s.ProsumerName,
		BatteryCount: s.BatteryCount,
		PVSize:       s.PVSize,
		AgentBuy:     []float64(s.AgentBuy),
		AgentSell:    []float64(s.AgentSell),
		Response:     []float64(s.Response),
		Reward:       reward,
	}
}

// SQLite is a file backed store for local runs.
type SQLite struct {
	db *gorm.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Run{}, &StoredRecord{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) CreateRun(ctx context.Context, run Run) error {
	return s.db.WithContext(ctx).Create(&run).Error
}

func (s *SQLite) Run(ctx context.Context, id string) (Run, error) {
	var run Run
	err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

func (s *SQLite) Runs(ctx context.Context) ([]Run, error) {
	var runs []Run
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *SQLite) Record(ctx context.Context, runID string, rec model.TickRecord) error {
	row := newStoredRecord(runID, rec)
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *SQLite) Records(ctx context.Context, runID, prosumer string) ([]model.TickRecord, error) {
	query := s.db.WithContext(ctx).Where("run_id = ?", runID)
	if prosumer != "" {
		query = query.Where("prosumer_name = ?", prosumer)
	}
	var rows []StoredRecord
	if err := query.Order("step asc, prosumer_name asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.TickRecord, len(rows))
	for i, r := range rows {
		out[i] = r.tickRecord()
	}
	return out, nil
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
