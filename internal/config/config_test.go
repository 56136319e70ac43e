package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "popdensity.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10.0, cfg.Server.RateLimit)
	assert.Equal(t, 20, cfg.Server.Burst)
	assert.Equal(t, "shapeName", cfg.Boundary.IDField)
	assert.Equal(t, "suffix", cfg.Boundary.DuplicatePolicy)
	assert.Equal(t, "shape_id", cfg.Boundary.PostGIS.IDColumn)
	assert.Equal(t, "geom", cfg.Boundary.PostGIS.GeomColumn)
	assert.InDelta(t, 6_371_007.2, cfg.Density.Radius, 1e-6)
	assert.Equal(t, 0, cfg.Density.Workers)
	assert.Equal(t, time.Duration(0), cfg.Density.MaskTimeout)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
raster:
  path: /data/bgd_pop.asc
boundary:
  id_field: shapeID
  duplicate_policy: fail
  keep_top: 1
density:
  workers: 4
  mask_timeout: 30s
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/bgd_pop.asc", cfg.Raster.Path)
	assert.Equal(t, "shapeID", cfg.Boundary.IDField)
	assert.Equal(t, "fail", cfg.Boundary.DuplicatePolicy)
	assert.Equal(t, 1, cfg.Boundary.KeepTop)
	assert.Equal(t, 4, cfg.Density.Workers)
	assert.Equal(t, 30*time.Second, cfg.Density.MaskTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("POPDENSITY_STORE_DRIVER", "postgres")
	t.Setenv("POPDENSITY_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("POPDENSITY_SERVER_PORT", "3000")
	t.Setenv("POPDENSITY_DENSITY_RADIUS", "6378137")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.InDelta(t, 6_378_137.0, cfg.Density.Radius, 1e-6)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Boundary.IDField = "shapeName"
	cfg.Boundary.DuplicatePolicy = "suffix"
	cfg.Density.Radius = 6_371_007.2
	cfg.Store.Driver = "sqlite"
	cfg.Server.Port = 8080
	cfg.Raster.Path = "pop.asc"
	return cfg
}

func TestValidateDensity_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("density"))
}

func TestValidateDensity_BadValues(t *testing.T) {
	cfg := validDefaults()
	cfg.Density.Radius = 0
	cfg.Density.Workers = -1
	cfg.Boundary.DuplicatePolicy = "ignore"
	cfg.Boundary.IDField = ""
	cfg.Boundary.KeepTop = -2

	err := cfg.Validate("density")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "density.radius must be > 0")
	assert.Contains(t, err.Error(), "density.workers must be between 0 and 256")
	assert.Contains(t, err.Error(), "boundary.duplicate_policy must be suffix or fail")
	assert.Contains(t, err.Error(), "boundary.id_field is required")
	assert.Contains(t, err.Error(), "boundary.keep_top must be >= 0")
}

func TestValidateRuns_Postgres(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required for postgres")

	cfg.Store.DatabaseURL = "postgres://localhost/popdensity"
	assert.NoError(t, cfg.Validate("runs"))

	cfg.Store.Driver = "mysql"
	assert.Error(t, cfg.Validate("runs"))
}

func TestValidateServe(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	cfg.Raster.Path = ""
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.Contains(t, err.Error(), "raster.path is required")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
