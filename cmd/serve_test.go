package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/popdensity/internal/density"
	"github.com/sells-group/popdensity/internal/geometry"
	"github.com/sells-group/popdensity/internal/raster"
)

func testEngine(t *testing.T) *density.Engine {
	t.Helper()
	g, err := raster.ReadASCIIGrid(strings.NewReader(testASC))
	require.NoError(t, err)
	eng, err := density.New(g, density.WithWorkers(2))
	require.NoError(t, err)
	return eng
}

func testOptions() geometry.BuildOptions {
	return geometry.BuildOptions{IdentifierField: "shapeName", Policy: geometry.SuffixOnDuplicate}
}

func postDensity(t *testing.T, mux http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestBuildMux_HealthEndpoint(t *testing.T) {
	mux := buildMux(nil, nil, testOptions())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildMux_Density(t *testing.T) {
	mux := buildMux(testEngine(t), nil, testOptions())

	rr := postDensity(t, mux, "/v1/density", testGeoJSON)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp densityResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)

	assert.Equal(t, "A", resp.Results[0].ID)
	assert.Equal(t, "Polygon", resp.Results[0].Kind)
	assert.InDelta(t, 8.0, resp.Results[0].Population, 1e-9)
	assert.Equal(t, "B", resp.Results[1].ID)
	assert.InDelta(t, 20.0, resp.Results[1].Population, 1e-9)
	assert.Equal(t, "A-2", resp.Results[2].ID)
	assert.InDelta(t, 4.0, resp.Results[2].Population, 1e-9)

	for _, r := range resp.Results {
		assert.Greater(t, r.AreaKm2, 0.0)
		assert.InDelta(t, r.Population/r.AreaKm2, r.Density, 1e-9)
	}

	// One rename and one rejected point.
	require.Len(t, resp.Warnings, 2)
	assert.Contains(t, resp.Warnings[0], `"A-2"`)
	assert.Contains(t, resp.Warnings[1], "Point")
}

func TestBuildMux_DensityIDFieldOverride(t *testing.T) {
	mux := buildMux(testEngine(t), nil, testOptions())

	rr := postDensity(t, mux, "/v1/density?id_field=shapeID", testGeoJSON)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp densityResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "BGD-1", resp.Results[0].ID)
	assert.Equal(t, "BGD-3", resp.Results[2].ID)
}

func TestBuildMux_DensityBadRequests(t *testing.T) {
	mux := buildMux(testEngine(t), nil, testOptions())

	rr := postDensity(t, mux, "/v1/density", "{not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")

	rr = postDensity(t, mux, "/v1/density", `{"type":"FeatureCollection","features":[]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "features are required")

	onlyPoint := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"shapeName":"P"},"geometry":{"type":"Point","coordinates":[1,1]}}]}`
	rr = postDensity(t, mux, "/v1/density", onlyPoint)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "Point")
}

func TestBuildMux_DensityWithoutRaster(t *testing.T) {
	mux := buildMux(nil, nil, testOptions())
	rr := postDensity(t, mux, "/v1/density", testGeoJSON)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestBuildMux_MethodNotAllowed(t *testing.T) {
	mux := buildMux(testEngine(t), nil, testOptions())
	req := httptest.NewRequest(http.MethodGet, "/v1/density", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestBuildMux_RateLimited(t *testing.T) {
	mux := buildMux(testEngine(t), rate.NewLimiter(rate.Every(time.Hour), 1), testOptions())

	rr := postDensity(t, mux, "/v1/density", testGeoJSON)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = postDensity(t, mux, "/v1/density", testGeoJSON)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// Health is never limited.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	hr := httptest.NewRecorder()
	mux.ServeHTTP(hr, req)
	assert.Equal(t, http.StatusOK, hr.Code)
}
