package boundary

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"

	"github.com/sells-group/popdensity/internal/db"
)

// identPattern matches a column or an optionally schema-qualified table name.
// Table and column names are interpolated into SQL, so only plain lowercase
// identifiers are accepted.
var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// Query selects boundary features from a PostGIS table.
type Query struct {
	Table      string
	IDColumn   string
	GeomColumn string
	// Where is appended verbatim; pass values through Args as $1, $2, ...
	Where string
	Args  []any
	Limit int
}

// PostGIS loads boundary features from PostGIS.
type PostGIS struct {
	Pool db.Pool
}

func (q Query) validate() error {
	for name, v := range map[string]string{"table": q.Table, "id column": q.IDColumn, "geometry column": q.GeomColumn} {
		if !identPattern.MatchString(v) {
			return eris.Errorf("boundary: invalid %s %q", name, v)
		}
	}
	if q.IDColumn == q.GeomColumn || strings.Contains(q.IDColumn, ".") || strings.Contains(q.GeomColumn, ".") {
		return eris.Errorf("boundary: invalid columns %q, %q", q.IDColumn, q.GeomColumn)
	}
	return nil
}

// SQL returns the statement Load runs. Every non-geometry column is returned
// as a JSON object for feature properties.
func (q Query) SQL() (string, error) {
	if err := q.validate(); err != nil {
		return "", err
	}
	sql := fmt.Sprintf(
		`SELECT t.%[1]s::text, ST_AsBinary(t.%[2]s), to_jsonb(t) - '%[2]s' FROM %[3]s t`,
		q.IDColumn, q.GeomColumn, q.Table,
	)
	if q.Where != "" {
		sql += " WHERE " + q.Where
	}
	sql += fmt.Sprintf(" ORDER BY t.%s", q.IDColumn)
	if q.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return sql, nil
}

// Load runs q and decodes each row into a feature. The id column value is
// also present in the properties.
func (p *PostGIS) Load(ctx context.Context, q Query) (*geojson.FeatureCollection, error) {
	if p.Pool == nil {
		return nil, eris.New("boundary: postgis pool is nil")
	}
	sql, err := q.SQL()
	if err != nil {
		return nil, err
	}

	rows, err := p.Pool.Query(ctx, sql, q.Args...)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: query %s", q.Table)
	}
	defer rows.Close()

	fc := &geojson.FeatureCollection{}
	for rows.Next() {
		var (
			id        string
			geomBytes []byte
			propBytes []byte
		)
		if err := rows.Scan(&id, &geomBytes, &propBytes); err != nil {
			return nil, eris.Wrapf(err, "boundary: scan %s", q.Table)
		}

		props := map[string]any{}
		if len(propBytes) > 0 {
			if err := json.Unmarshal(propBytes, &props); err != nil {
				return nil, eris.Wrapf(err, "boundary: decode properties of %s", id)
			}
		}

		f := &geojson.Feature{ID: id, Properties: props}
		if len(geomBytes) > 0 {
			g, err := wkb.Unmarshal(geomBytes)
			if err != nil {
				return nil, eris.Wrapf(err, "boundary: decode geometry of %s", id)
			}
			f.Geometry = g
		}
		fc.Features = append(fc.Features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "boundary: iterate %s", q.Table)
	}

	zap.L().With(zap.String("component", "boundary")).Debug("boundary: loaded postgis features",
		zap.String("table", q.Table),
		zap.Int("features", len(fc.Features)),
	)
	return fc, nil
}
