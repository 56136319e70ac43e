package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleRun() Run {
	return Run{
		Region:   "bangladesh",
		Boundary: "bgd_adm2.geojson",
		Raster:   "bgd_pop.asc",
		IDField:  "shapeName",
		Radius:   6_371_007.2,
		Params:   map[string]string{"keep_top": "1"},
	}
}

func TestSQLite_CreateAndGetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, sampleRun())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "bangladesh", got.Region)
	assert.Equal(t, "shapeName", got.IDField)
	assert.Equal(t, 6_371_007.2, got.Radius)
	assert.Equal(t, map[string]string{"keep_top": "1"}, got.Params)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_FinishRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, sampleRun())
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, run.ID, RunStatusComplete, 64, 2))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusComplete, got.Status)
	assert.Equal(t, 64, got.Features)
	assert.Equal(t, 2, got.Failed)

	err = st.FinishRun(ctx, "missing", RunStatusFailed, 0, 0)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := sampleRun()
	b := sampleRun()
	b.Region = "nepal"
	b.Params = nil
	_, err := st.CreateRun(ctx, a)
	require.NoError(t, err)
	rb, err := st.CreateRun(ctx, b)
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, rb.ID, RunStatusComplete, 1, 0))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	nepal, err := st.ListRuns(ctx, RunFilter{Region: "nepal"})
	require.NoError(t, err)
	require.Len(t, nepal, 1)
	assert.Nil(t, nepal[0].Params)

	running, err := st.ListRuns(ctx, RunFilter{Status: RunStatusRunning})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "bangladesh", running[0].Region)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_SaveAndListResults(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, sampleRun())
	require.NoError(t, err)

	records := []Record{
		{FeatureID: "Dhaka", Kind: "Polygon", Population: 100, AreaM2: 1e6, Density: 100},
		{FeatureID: "Bhola", Kind: "MultiPolygon", Population: 400, AreaM2: 4e6, Density: 100},
		{FeatureID: "Broken", Kind: "Point", Error: "unsupported"},
	}
	require.NoError(t, st.SaveResults(ctx, run.ID, records))

	got, err := st.ListResults(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, records, got)

	// Saving again replaces by feature id.
	require.NoError(t, st.SaveResults(ctx, run.ID, []Record{{FeatureID: "Dhaka", Kind: "Polygon", Population: 50, AreaM2: 1e6, Density: 50}}))
	got, err = st.ListResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 50.0, got[0].Density)

	require.NoError(t, st.SaveResults(ctx, run.ID, nil))
}

func TestSQLite_Diagnostics(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, sampleRun())
	require.NoError(t, err)

	require.NoError(t, st.SaveDiagnostics(ctx, run.ID, []Diagnostic{
		{FeatureID: "Dhanmondi-1", Level: "warn", Message: "duplicate identifier"},
	}))
	require.NoError(t, st.SaveDiagnostics(ctx, run.ID, []Diagnostic{
		{Level: "warn", Message: "no overlap"},
	}))

	got, err := st.ListDiagnostics(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Dhanmondi-1", got[0].FeatureID)
	assert.Equal(t, "no overlap", got[1].Message)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	st, err := Open(ctx, "sqlite", filepath.Join(t.TempDir(), "open.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, err = st.CreateRun(ctx, sampleRun())
	assert.NoError(t, err)

	_, err = Open(ctx, "mysql", "x")
	assert.Error(t, err)
}
