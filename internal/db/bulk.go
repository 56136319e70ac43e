// Package db holds the Postgres pool abstraction and bulk write helpers
// shared by the result store and the PostGIS boundary loader.
package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Table names a relation, optionally inside a schema.
type Table struct {
	Schema string
	Name   string
}

// Identifier returns the pgx identifier for t.
func (t Table) Identifier() pgx.Identifier {
	if t.Schema == "" {
		return pgx.Identifier{t.Name}
	}
	return pgx.Identifier{t.Schema, t.Name}
}

func (t Table) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Append streams rows into t with COPY. Every row must have one value per
// column.
func Append(ctx context.Context, pool Pool, t Table, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := checkWidth(columns, rows); err != nil {
		return 0, eris.Wrapf(err, "db: append to %s", t)
	}

	n, err := pool.CopyFrom(ctx, t.Identifier(), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: append to %s", t)
	}
	zap.L().With(zap.String("component", "db")).Debug("db: appended rows",
		zap.String("table", t.String()), zap.Int64("rows", n))
	return n, nil
}

// Merge describes an insert-or-update keyed on a unique constraint.
type Merge struct {
	Table   Table
	Columns []string
	// Keys form the conflict target.
	Keys []string
	// Update lists the columns overwritten on conflict; empty means every
	// non-key column.
	Update []string
}

func (m Merge) validate() error {
	if len(m.Columns) == 0 {
		return eris.New("no columns")
	}
	if len(m.Keys) == 0 {
		return eris.New("no conflict keys")
	}
	for _, k := range m.Keys {
		if !slices.Contains(m.Columns, k) {
			return eris.Errorf("conflict key %q is not a column", k)
		}
	}
	return nil
}

func (m Merge) updates() []string {
	if len(m.Update) > 0 {
		return m.Update
	}
	var out []string
	for _, c := range m.Columns {
		if !slices.Contains(m.Keys, c) {
			out = append(out, c)
		}
	}
	return out
}

// stage is the temp table rows are copied into before the merge.
func (m Merge) stage() string {
	return "stage_" + m.Table.Name
}

// statement renders the INSERT ... SELECT ... ON CONFLICT for the stage.
func (m Merge) statement() string {
	cols := quoted(m.Columns)
	action := "DO NOTHING"
	if up := m.updates(); len(up) > 0 {
		sets := make([]string, len(up))
		for i, c := range up {
			id := pgx.Identifier{c}.Sanitize()
			sets[i] = id + " = EXCLUDED." + id
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		m.Table.Identifier().Sanitize(), cols, cols,
		pgx.Identifier{m.stage()}.Sanitize(), quoted(m.Keys), action)
}

// Upsert copies rows into a temp stage shaped like m.Table and merges them
// in one transaction. It returns the number of rows inserted or updated.
func Upsert(ctx context.Context, pool Pool, m Merge, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := m.validate(); err != nil {
		return 0, eris.Wrapf(err, "db: upsert into %s", m.Table)
	}
	if err := checkWidth(m.Columns, rows); err != nil {
		return 0, eris.Wrapf(err, "db: upsert into %s", m.Table)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stage := pgx.Identifier{m.stage()}
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		stage.Sanitize(), m.Table.Identifier().Sanitize(),
	)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert stage for %s", m.Table)
	}
	if _, err := tx.CopyFrom(ctx, stage, m.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert copy into stage for %s", m.Table)
	}
	tag, err := tx.Exec(ctx, m.statement())
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert merge into %s", m.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert commit")
	}

	zap.L().With(zap.String("component", "db")).Debug("db: upserted rows",
		zap.String("table", m.Table.String()), zap.Int64("rows", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

func checkWidth(columns []string, rows [][]any) error {
	for i, r := range rows {
		if len(r) != len(columns) {
			return eris.Errorf("row %d has %d values for %d columns", i, len(r), len(columns))
		}
	}
	return nil
}

func quoted(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(out, ", ")
}
