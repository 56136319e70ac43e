package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/popdensity/internal/boundary"
	"github.com/sells-group/popdensity/internal/density"
	"github.com/sells-group/popdensity/internal/geometry"
	"github.com/sells-group/popdensity/internal/report"
)

// maxRequestBytes bounds a POST /v1/density body.
const maxRequestBytes = 64 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve density over HTTP against the configured raster",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		grid, err := loadGrid(cfg.Raster.Path)
		if err != nil {
			return err
		}
		eng, err := newEngine(grid, 0)
		if err != nil {
			return err
		}
		policy, err := geometry.ParseDuplicatePolicy(cfg.Boundary.DuplicatePolicy)
		if err != nil {
			return err
		}

		var limiter *rate.Limiter
		if cfg.Server.RateLimit > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), max(cfg.Server.Burst, 1))
		}

		mux := buildMux(eng, limiter, geometry.BuildOptions{
			IdentifierField: cfg.Boundary.IDField,
			Policy:          policy,
			Extract: geometry.ExtractOptions{
				MinRingArea: cfg.Boundary.MinRingArea,
				KeepTop:     cfg.Boundary.KeepTop,
				Radius:      cfg.Density.Radius,
			},
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.String("raster", cfg.Raster.Path))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// densityResponse is the body of a successful POST /v1/density.
type densityResponse struct {
	Results  []report.Row `json:"results"`
	Warnings []string     `json:"warnings,omitempty"`
}

// buildMux wires the HTTP routes. The identifier field can be overridden per
// request with ?id_field=. A nil limiter disables rate limiting.
func buildMux(eng *density.Engine, limiter *rate.Limiter, opts geometry.BuildOptions) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /v1/density", limit(limiter, func(w http.ResponseWriter, r *http.Request) {
		if eng == nil {
			writeError(w, http.StatusServiceUnavailable, "raster not loaded")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		fc, err := boundary.DecodeGeoJSON(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(fc.Features) == 0 {
			writeError(w, http.StatusBadRequest, "features are required")
			return
		}

		reqOpts := opts
		if f := r.URL.Query().Get("id_field"); f != "" {
			reqOpts.IdentifierField = f
		}
		set, err := geometry.BuildFeatureSet(fc.Features, reqOpts)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if set.Len() == 0 {
			msg := "no features could be extracted"
			if ferr := set.Err(); ferr != nil {
				msg = ferr.Error()
			}
			writeError(w, http.StatusUnprocessableEntity, msg)
			return
		}

		results, err := eng.ForShapes(r.Context(), set.Geometries())
		if err != nil {
			zap.L().Warn("serve: density request had failures", zap.Error(err))
		}
		rows, err := report.Rows(set.Features(), results)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := densityResponse{Results: rows, Warnings: featureDiagnostics(set)}
		for _, res := range results {
			resp.Warnings = append(resp.Warnings, res.Warnings...)
		}
		writeJSON(w, http.StatusOK, resp)
	}))

	return mux
}

// limit answers 429 once the limiter's budget is spent.
func limit(l *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	if l == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
