package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/popdensity/internal/db"
)

const pgSchema = "popdensity"

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to Postgres and returns a store that owns the pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close does not close it.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE SCHEMA IF NOT EXISTS popdensity;

CREATE TABLE IF NOT EXISTS popdensity.runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	region     TEXT NOT NULL DEFAULT '',
	boundary   TEXT NOT NULL,
	raster     TEXT NOT NULL,
	id_field   TEXT NOT NULL,
	radius     DOUBLE PRECISION NOT NULL,
	params     JSONB,
	status     TEXT NOT NULL DEFAULT 'running',
	features   INTEGER NOT NULL DEFAULT 0,
	failed     INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS popdensity.results (
	run_id     TEXT NOT NULL REFERENCES popdensity.runs(id),
	seq        INTEGER NOT NULL,
	feature_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	population DOUBLE PRECISION NOT NULL,
	area_m2    DOUBLE PRECISION NOT NULL,
	density    DOUBLE PRECISION NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, feature_id)
);

CREATE TABLE IF NOT EXISTS popdensity.diagnostics (
	run_id     TEXT NOT NULL REFERENCES popdensity.runs(id),
	seq        INTEGER NOT NULL,
	feature_id TEXT NOT NULL DEFAULT '',
	level      TEXT NOT NULL,
	message    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_region ON popdensity.runs(region);
CREATE INDEX IF NOT EXISTS idx_runs_status ON popdensity.runs(status);
CREATE INDEX IF NOT EXISTS idx_diagnostics_run_id ON popdensity.diagnostics(run_id);
`

var (
	resultColumns     = []string{"run_id", "seq", "feature_id", "kind", "population", "area_m2", "density", "error"}
	diagnosticColumns = []string{"run_id", "seq", "feature_id", "level", "message"}
)

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run Run) (*Run, error) {
	run.ID = uuid.New().String()
	run.Status = RunStatusRunning
	run.CreatedAt = time.Now().UTC()
	run.UpdatedAt = run.CreatedAt

	params, err := json.Marshal(run.Params)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal params")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO popdensity.runs (id, region, boundary, raster, id_field, radius, params, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.Region, run.Boundary, run.Raster, run.IDField, run.Radius,
		params, string(run.Status), run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status RunStatus, features, failed int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE popdensity.runs SET status = $1, features = $2, failed = $3, updated_at = $4 WHERE id = $5`,
		string(status), features, failed, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM popdensity.runs WHERE id = $1`, runID)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM popdensity.runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Region != "" {
		query += fmt.Sprintf(` AND region = $%d`, argIdx)
		args = append(args, filter.Region)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveResults upserts records keyed by (run_id, feature_id).
func (s *PostgresStore) SaveResults(ctx context.Context, runID string, records []Record) error {
	rows := make([][]any, 0, len(records))
	for i, r := range records {
		rows = append(rows, []any{runID, i, r.FeatureID, r.Kind, r.Population, r.AreaM2, r.Density, r.Error})
	}
	_, err := db.Upsert(ctx, s.pool, db.Merge{
		Table:   db.Table{Schema: pgSchema, Name: "results"},
		Columns: resultColumns,
		Keys:    []string{"run_id", "feature_id"},
	}, rows)
	return eris.Wrapf(err, "postgres: save results for run %s", runID)
}

func (s *PostgresStore) ListResults(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT feature_id, kind, population, area_m2, density, error FROM popdensity.results WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.FeatureID, &r.Kind, &r.Population, &r.AreaM2, &r.Density, &r.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list results iterate")
}

// SaveDiagnostics appends diagnostics with COPY.
func (s *PostgresStore) SaveDiagnostics(ctx context.Context, runID string, diags []Diagnostic) error {
	if len(diags) == 0 {
		return nil
	}
	var base int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM popdensity.diagnostics WHERE run_id = $1`, runID,
	).Scan(&base); err != nil {
		return eris.Wrap(err, "postgres: count diagnostics")
	}

	rows := make([][]any, 0, len(diags))
	for i, d := range diags {
		rows = append(rows, []any{runID, base + i, d.FeatureID, d.Level, d.Message})
	}
	_, err := db.Append(ctx, s.pool, db.Table{Schema: pgSchema, Name: "diagnostics"}, diagnosticColumns, rows)
	return eris.Wrapf(err, "postgres: save diagnostics for run %s", runID)
}

func (s *PostgresStore) ListDiagnostics(ctx context.Context, runID string) ([]Diagnostic, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT feature_id, level, message FROM popdensity.diagnostics WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list diagnostics")
	}
	defer rows.Close()

	var out []Diagnostic
	for rows.Next() {
		var d Diagnostic
		if err := rows.Scan(&d.FeatureID, &d.Level, &d.Message); err != nil {
			return nil, eris.Wrap(err, "postgres: scan diagnostic")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list diagnostics iterate")
}

func scanPgRun(row pgx.Row) (*Run, error) {
	var r Run
	var params []byte
	var status string

	if err := row.Scan(&r.ID, &r.Region, &r.Boundary, &r.Raster, &r.IDField, &r.Radius,
		&params, &status, &r.Features, &r.Failed, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &r.Params); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal params")
		}
	}
	return &r, nil
}
