package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"microgrid-sim/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sim_runs (
	id TEXT PRIMARY KEY,
	policy TEXT NOT NULL,
	num_steps INTEGER NOT NULL,
	day_start INTEGER NOT NULL,
	year_start INTEGER NOT NULL,
	seed BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS sim_records (
	run_id TEXT NOT NULL REFERENCES sim_runs(id) ON DELETE CASCADE,
	prosumer_name TEXT NOT NULL,
	step INTEGER NOT NULL,
	year INTEGER NOT NULL,
	day INTEGER NOT NULL,
	battery_num DOUBLE PRECISION NOT NULL,
	pv_size DOUBLE PRECISION NOT NULL,
	agent_buy DOUBLE PRECISION[] NOT NULL,
	agent_sell DOUBLE PRECISION[] NOT NULL,
	prosumer_response DOUBLE PRECISION[] NOT NULL,
	reward DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, prosumer_name, step)
);`

// Postgres stores runs in a shared database. Float vectors are native
// float8 arrays; NaN is stored as the float NaN.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) CreateRun(ctx context.Context, run Run) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO sim_runs (id, policy, num_steps, day_start, year_start, seed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Policy, run.NumSteps, run.DayStart, run.YearStart, run.Seed, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

func (p *Postgres) Run(ctx context.Context, id string) (Run, error) {
	var run Run
	err := p.db.QueryRowContext(ctx,
		`SELECT id, policy, num_steps, day_start, year_start, seed, created_at FROM sim_runs WHERE id = $1`, id).
		Scan(&run.ID, &run.Policy, &run.NumSteps, &run.DayStart, &run.YearStart, &run.Seed, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

func (p *Postgres) Runs(ctx context.Context) ([]Run, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, policy, num_steps, day_start, year_start, seed, created_at FROM sim_runs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Policy, &run.NumSteps, &run.DayStart, &run.YearStart, &run.Seed, &run.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (p *Postgres) Record(ctx context.Context, runID string, rec model.TickRecord) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO sim_records (run_id, prosumer_name, step, year, day, battery_num, pv_size,
			agent_buy, agent_sell, prosumer_response, reward)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (run_id, prosumer_name, step) DO UPDATE SET
			agent_buy = EXCLUDED.agent_buy,
			agent_sell = EXCLUDED.agent_sell,
			prosumer_response = EXCLUDED.prosumer_response,
			reward = EXCLUDED.reward`,
		runID, rec.ProsumerName, rec.Step, rec.Year, rec.Day, rec.BatteryCount, rec.PVSize,
		pq.Array(rec.AgentBuy), pq.Array(rec.AgentSell), pq.Array(rec.Response), rec.Reward)
	if err != nil {
		return fmt.Errorf("failed to insert record %s step %d: %w", rec.ProsumerName, rec.Step, err)
	}
	return nil
}

func (p *Postgres) Records(ctx context.Context, runID, prosumer string) ([]model.TickRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT prosumer_name, step, year, day, battery_num, pv_size, agent_buy, agent_sell, prosumer_response, reward
		 FROM sim_records
		 WHERE run_id = $1 AND ($2 = '' OR prosumer_name = $2)
		 ORDER BY step, prosumer_name`, runID, prosumer)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []model.TickRecord
	for rows.Next() {
		var rec model.TickRecord
		if err := rows.Scan(&rec.ProsumerName, &rec.Step, &rec.Year, &rec.Day, &rec.BatteryCount, &rec.PVSize,
			pq.Array(&rec.AgentBuy), pq.Array(&rec.AgentSell), pq.Array(&rec.Response), &rec.Reward); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error { return p.db.Close() }
