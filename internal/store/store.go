// Package store persists density runs and their per-feature results.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run describes one density computation over a boundary set.
type Run struct {
	ID        string            `json:"id"`
	Region    string            `json:"region,omitempty"`
	Boundary  string            `json:"boundary"`
	Raster    string            `json:"raster"`
	IDField   string            `json:"id_field"`
	Radius    float64           `json:"radius"`
	Params    map[string]string `json:"params,omitempty"`
	Status    RunStatus         `json:"status"`
	Features  int               `json:"features"`
	Failed    int               `json:"failed"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Record is the stored density of one feature.
type Record struct {
	FeatureID  string  `json:"feature_id"`
	Kind       string  `json:"kind"`
	Population float64 `json:"population"`
	AreaM2     float64 `json:"area_m2"`
	Density    float64 `json:"density"`
	Error      string  `json:"error,omitempty"`
}

// Diagnostic is a warning or failure recorded during a run.
type Diagnostic struct {
	FeatureID string `json:"feature_id,omitempty"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Region string    `json:"region,omitempty"`
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store defines persistence for density runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run Run) (*Run, error)
	FinishRun(ctx context.Context, runID string, status RunStatus, features, failed int) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Results
	SaveResults(ctx context.Context, runID string, records []Record) error
	ListResults(ctx context.Context, runID string) ([]Record, error)
	SaveDiagnostics(ctx context.Context, runID string, diags []Diagnostic) error
	ListDiagnostics(ctx context.Context, runID string) ([]Diagnostic, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns a migrated store for driver "sqlite" or "postgres".
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		st  Store
		err error
	)
	switch strings.ToLower(driver) {
	case "sqlite", "":
		st, err = NewSQLite(dsn)
	case "postgres", "postgresql":
		st, err = NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
