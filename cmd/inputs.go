package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/popdensity/internal/boundary"
	"github.com/sells-group/popdensity/internal/db"
	"github.com/sells-group/popdensity/internal/density"
	"github.com/sells-group/popdensity/internal/filter"
	"github.com/sells-group/popdensity/internal/geometry"
	"github.com/sells-group/popdensity/internal/raster"
)

// selection holds the flags shared by commands that pick boundary features.
type selection struct {
	boundaries  string
	raster      string
	idField     string
	region      string
	group       string
	filters     []string
	minRingArea float64
	keepTop     int
	onDuplicate string
	strict      bool

	// groupField is the property groupIDs are matched against. It comes
	// from the catalog and is independent of --id-field.
	groupField string
	groupIDs   []string
}

func addSelectionFlags(cmd *cobra.Command) *selection {
	s := &selection{}
	f := cmd.Flags()
	f.StringVar(&s.boundaries, "boundaries", "", "boundary file (.geojson, .json, .shp, .zip); default from config")
	f.StringVar(&s.raster, "raster", "", "population raster as an ESRI ASCII grid; default from config")
	f.StringVar(&s.idField, "id-field", "", "property used as the feature identifier (default from config)")
	f.StringVar(&s.region, "region", "", "region name from the catalog")
	f.StringVar(&s.group, "group", "", "feature group of --region")
	f.StringArrayVar(&s.filters, "filter", nil, "property filter key=value; repeated keys match any of the values")
	f.Float64Var(&s.minRingArea, "min-ring-area", 0, "drop multipolygon parts smaller than this many m²")
	f.IntVar(&s.keepTop, "keep-top", 0, "keep only the n largest parts of each multipolygon (0 keeps all)")
	f.StringVar(&s.onDuplicate, "on-duplicate", "", "duplicate identifier policy: suffix or fail (default from config)")
	f.BoolVar(&s.strict, "strict", false, "fail when any feature is rejected")
	return s
}

// resolve fills unset flags from the region catalog and then from config.
// Explicit flags always win.
func (s selection) resolve(cmd *cobra.Command) (selection, error) {
	flags := cmd.Flags()

	if s.region != "" {
		if cfg.Boundary.Catalog == "" {
			return s, eris.New("--region requires boundary.catalog in config")
		}
		cat, err := boundary.LoadCatalog(cfg.Boundary.Catalog)
		if err != nil {
			return s, err
		}
		region, err := cat.Region(s.region)
		if err != nil {
			return s, err
		}
		if s.boundaries == "" {
			s.boundaries = region.Boundary
		}
		if s.raster == "" {
			s.raster = region.Raster
		}
		if !flags.Changed("id-field") {
			s.idField = region.IDField
		}
		if s.group != "" {
			field, ids, err := region.Group(s.group)
			if err != nil {
				return s, err
			}
			s.groupField, s.groupIDs = field, ids
		}
	} else if s.group != "" {
		return s, eris.New("--group requires --region")
	}

	if s.boundaries == "" {
		s.boundaries = cfg.Boundary.Path
	}
	if s.raster == "" {
		s.raster = cfg.Raster.Path
	}
	if s.idField == "" {
		s.idField = cfg.Boundary.IDField
	}
	if s.onDuplicate == "" {
		s.onDuplicate = cfg.Boundary.DuplicatePolicy
	}
	if !flags.Changed("min-ring-area") {
		s.minRingArea = cfg.Boundary.MinRingArea
	}
	if !flags.Changed("keep-top") {
		s.keepTop = cfg.Boundary.KeepTop
	}
	return s, nil
}

// predicates turns --filter and --group into feature predicates.
func (s selection) predicates() ([]filter.Predicate, error) {
	values, order, err := parseFilters(s.filters)
	if err != nil {
		return nil, err
	}
	preds := make([]filter.Predicate, 0, len(order)+1)
	for _, key := range order {
		preds = append(preds, filter.PropertyIn(key, values[key]))
	}
	if len(s.groupIDs) > 0 {
		preds = append(preds, filter.PropertyIn(s.groupField, s.groupIDs))
	}
	return preds, nil
}

// parseFilters parses key=value pairs. Values that look numeric also match
// numeric properties.
func parseFilters(raw []string) (map[string][]any, []string, error) {
	values := make(map[string][]any)
	var order []string
	for _, kv := range raw {
		key, val, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, nil, eris.Errorf("invalid --filter %q: want key=value", kv)
		}
		val = strings.TrimSpace(val)
		if _, seen := values[key]; !seen {
			order = append(order, key)
		}
		values[key] = append(values[key], val)
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			values[key] = append(values[key], n)
		}
	}
	return values, order, nil
}

// loadFeatures reads the selected boundary source and applies the filters.
func loadFeatures(ctx context.Context, s selection) ([]*geojson.Feature, error) {
	var (
		fc  *geojson.FeatureCollection
		err error
	)
	switch {
	case s.boundaries != "":
		fc, err = boundary.Load(ctx, s.boundaries)
	case cfg.Boundary.PostGIS.Table != "":
		fc, err = loadPostGIS(ctx)
	default:
		return nil, eris.New("no boundaries: pass --boundaries or --region, or configure boundary.postgis.table")
	}
	if err != nil {
		return nil, err
	}

	preds, err := s.predicates()
	if err != nil {
		return nil, err
	}
	features := filter.Apply(fc.Features, preds...)
	zap.L().Debug("boundaries selected",
		zap.String("component", "cli"),
		zap.Int("loaded", len(fc.Features)),
		zap.Int("selected", len(features)),
	)
	return features, nil
}

func loadPostGIS(ctx context.Context) (*geojson.FeatureCollection, error) {
	pg := cfg.Boundary.PostGIS
	pool, err := db.Connect(ctx, pg.DatabaseURL, nil)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	src := &boundary.PostGIS{Pool: pool}
	return src.Load(ctx, boundary.Query{
		Table:      pg.Table,
		IDColumn:   pg.IDColumn,
		GeomColumn: pg.GeomColumn,
		Where:      pg.Where,
	})
}

// buildSet extracts the selected features into a keyed set.
func buildSet(features []*geojson.Feature, s selection) (*geometry.FeatureSet, error) {
	policy, err := geometry.ParseDuplicatePolicy(s.onDuplicate)
	if err != nil {
		return nil, err
	}
	set, err := geometry.BuildFeatureSet(features, geometry.BuildOptions{
		IdentifierField: s.idField,
		Policy:          policy,
		Extract: geometry.ExtractOptions{
			MinRingArea: s.minRingArea,
			KeepTop:     s.keepTop,
			Radius:      cfg.Density.Radius,
		},
	})
	if err != nil {
		return nil, err
	}
	if s.strict {
		if err := set.Err(); err != nil {
			return nil, eris.Wrap(err, "features rejected")
		}
	}
	if set.Len() == 0 {
		return nil, eris.New("no features selected")
	}
	return set, nil
}

func loadGrid(path string) (*raster.Grid, error) {
	if path == "" {
		return nil, eris.New("no raster: pass --raster or set raster.path")
	}
	return raster.LoadASCIIGrid(path)
}

func newEngine(src raster.Source, workers int) (*density.Engine, error) {
	if workers <= 0 {
		workers = cfg.Density.Workers
	}
	return density.New(src,
		density.WithRadius(cfg.Density.Radius),
		density.WithWorkers(workers),
		density.WithMaskTimeout(cfg.Density.MaskTimeout),
	)
}

// featureDiagnostics renders extraction warnings and failures as lines.
func featureDiagnostics(set *geometry.FeatureSet) []string {
	var out []string
	for _, w := range set.Warnings {
		out = append(out, fmt.Sprintf("feature %d: %s", w.Index, w.Message))
	}
	for _, f := range set.Failures {
		out = append(out, f.Error())
	}
	return out
}
