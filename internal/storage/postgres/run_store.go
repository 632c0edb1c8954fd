// Package postgres provides an optional Postgres sink for pipeline runs.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for run rows.
type Config struct {
	DSN             string
	RunsTable       string
	ResultsTable    string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// RunStore writes pipeline runs and per-entity results into Postgres.
type RunStore struct {
	pool    pool
	runs    string
	results string
}

// NewRunStore creates a Postgres-backed RunStore using the provided config.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewRunStoreWithPool(p, cfg.RunsTable, cfg.ResultsTable)
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool, runsTable, resultsTable string) (*RunStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if runsTable == "" {
		runsTable = "harvest_runs"
	}
	if resultsTable == "" {
		resultsTable = "harvest_results"
	}
	for _, table := range []string{runsTable, resultsTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &RunStore{pool: p, runs: runsTable, results: resultsTable}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordRun inserts the run summary and its entity results in one transaction.
func (s *RunStore) RecordRun(ctx context.Context, run camp.PipelineRun, results []camp.RunResult) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("run store is not configured")
	}
	if run.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin run tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	runQuery := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	started_at,
	finished_at,
	entities,
	successful,
	needs_review,
	failed,
	avg_quality
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`, s.runs)
	if _, err := tx.Exec(ctx, runQuery,
		run.RunID,
		run.StartedAt,
		run.FinishedAt,
		run.Entities,
		run.Successful,
		run.NeedsReview,
		run.Failed,
		run.AvgQuality,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	resultQuery := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	entity_id,
	quality,
	best_strategy,
	from_cache,
	facts
) VALUES (
	$1,$2,$3,$4,$5,$6
)`, s.results)
	for _, res := range results {
		facts, err := json.Marshal(res.Merged)
		if err != nil {
			return fmt.Errorf("marshal facts for %s: %w", res.EntityID, err)
		}
		if _, err := tx.Exec(ctx, resultQuery,
			run.RunID,
			res.EntityID,
			res.Quality,
			string(res.BestStrategy),
			res.FromCache,
			facts,
		); err != nil {
			return fmt.Errorf("insert result %s: %w", res.EntityID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run tx: %w", err)
	}
	return nil
}
