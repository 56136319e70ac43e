package geometry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// DuplicatePolicy decides what BuildFeatureMap does when two features share
// an identifier.
type DuplicatePolicy int

const (
	// SuffixOnDuplicate renames the later feature to "{id}-{index}" and
	// records a warning.
	SuffixOnDuplicate DuplicatePolicy = iota
	// FailOnDuplicate rejects the later feature with ErrDuplicateIdentifier.
	FailOnDuplicate
)

func (p DuplicatePolicy) String() string {
	switch p {
	case SuffixOnDuplicate:
		return "suffix"
	case FailOnDuplicate:
		return "fail"
	default:
		return fmt.Sprintf("DuplicatePolicy(%d)", int(p))
	}
}

// ParseDuplicatePolicy parses "suffix" or "fail".
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "suffix", "":
		return SuffixOnDuplicate, nil
	case "fail":
		return FailOnDuplicate, nil
	default:
		return 0, eris.Errorf("geometry: unknown duplicate policy %q", s)
	}
}

// Feature is an extracted boundary with a unique identifier.
type Feature struct {
	ID         string
	Geometry   Geometry
	Properties map[string]any
}

// Warning is a recovered problem with one input feature.
type Warning struct {
	Index   int
	ID      string
	Message string
}

// FeatureError records why one input feature was rejected.
type FeatureError struct {
	Index int
	ID    string
	Type  string
	Err   error
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("feature %d (id %q, type %s): %v", e.Index, e.ID, e.Type, e.Err)
}

func (e *FeatureError) Unwrap() error { return e.Err }

// FeatureSet is the ordered result of BuildFeatureMap.
type FeatureSet struct {
	features []Feature
	index    map[string]int

	Warnings []Warning
	Failures []*FeatureError
}

// BuildOptions configures BuildFeatureSet.
type BuildOptions struct {
	IdentifierField string
	Policy          DuplicatePolicy
	Extract         ExtractOptions
}

// BuildFeatureMap extracts every feature in order and keys it by the value
// of identifierField. See BuildFeatureSet.
func BuildFeatureMap(features []*geojson.Feature, identifierField string, policy DuplicatePolicy) (*FeatureSet, error) {
	return BuildFeatureSet(features, BuildOptions{IdentifierField: identifierField, Policy: policy})
}

// BuildFeatureSet extracts every feature in order. Features that cannot be
// extracted, or that collide under FailOnDuplicate, are recorded in Failures
// and skipped; the rest of the batch continues. The returned error is only
// set for invalid options.
func BuildFeatureSet(features []*geojson.Feature, opts BuildOptions) (*FeatureSet, error) {
	if opts.IdentifierField == "" {
		return nil, eris.New("geometry: identifier field is required")
	}

	log := zap.L().With(zap.String("component", "geometry"))
	set := &FeatureSet{
		features: make([]Feature, 0, len(features)),
		index:    make(map[string]int, len(features)),
	}

	for idx, f := range features {
		if f == nil {
			set.fail(idx, "", "null", eris.Wrap(ErrUnsupportedGeometryType, "geometry: null feature"))
			continue
		}
		rawType := typeName(f.Geometry)

		id, ok := identifier(f.Properties, opts.IdentifierField)
		if !ok {
			set.fail(idx, "", rawType, eris.Wrapf(ErrMissingIdentifier, "geometry: property %q", opts.IdentifierField))
			continue
		}

		g, err := ExtractWithOptions(f.Geometry, opts.Extract)
		if err != nil {
			set.fail(idx, id, rawType, err)
			continue
		}

		if _, dup := set.index[id]; dup {
			if opts.Policy == FailOnDuplicate {
				set.fail(idx, id, rawType, eris.Wrapf(ErrDuplicateIdentifier, "geometry: id %q", id))
				continue
			}
			renamed := fmt.Sprintf("%s-%d", id, idx)
			if _, taken := set.index[renamed]; taken {
				set.fail(idx, id, rawType, eris.Wrapf(ErrDuplicateIdentifier, "geometry: id %q and suffixed id %q both taken", id, renamed))
				continue
			}
			msg := fmt.Sprintf("duplicate id %q renamed to %q", id, renamed)
			log.Warn("geometry: duplicate feature identifier",
				zap.Int("index", idx),
				zap.String("id", id),
				zap.String("renamed", renamed),
			)
			set.Warnings = append(set.Warnings, Warning{Index: idx, ID: renamed, Message: msg})
			id = renamed
		}

		set.index[id] = len(set.features)
		set.features = append(set.features, Feature{ID: id, Geometry: g, Properties: f.Properties})
	}

	if len(set.Failures) > 0 {
		log.Warn("geometry: features rejected during extraction",
			zap.Int("rejected", len(set.Failures)),
			zap.Int("total", len(features)),
		)
	}
	return set, nil
}

func (s *FeatureSet) fail(idx int, id, rawType string, err error) {
	s.Failures = append(s.Failures, &FeatureError{Index: idx, ID: id, Type: rawType, Err: err})
}

// Len returns the number of extracted features.
func (s *FeatureSet) Len() int { return len(s.features) }

// Features returns the extracted features in input order.
func (s *FeatureSet) Features() []Feature {
	out := make([]Feature, len(s.features))
	copy(out, s.features)
	return out
}

// Get returns the feature with the given identifier.
func (s *FeatureSet) Get(id string) (Feature, bool) {
	i, ok := s.index[id]
	if !ok {
		return Feature{}, false
	}
	return s.features[i], true
}

// IDs returns the identifiers in input order.
func (s *FeatureSet) IDs() []string {
	ids := make([]string, len(s.features))
	for i, f := range s.features {
		ids[i] = f.ID
	}
	return ids
}

// Geometries returns the geometries in input order.
func (s *FeatureSet) Geometries() []Geometry {
	out := make([]Geometry, len(s.features))
	for i, f := range s.features {
		out[i] = f.Geometry
	}
	return out
}

// Map returns the features keyed by identifier.
func (s *FeatureSet) Map() map[string]Geometry {
	out := make(map[string]Geometry, len(s.features))
	for _, f := range s.features {
		out[f.ID] = f.Geometry
	}
	return out
}

// Subset returns the features whose identifiers are in ids, in set order.
func (s *FeatureSet) Subset(ids []string) []Feature {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Feature
	for _, f := range s.features {
		if want[f.ID] {
			out = append(out, f)
		}
	}
	return out
}

// Err joins every per-feature failure, or returns nil.
func (s *FeatureSet) Err() error {
	if len(s.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(s.Failures))
	for i, f := range s.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// identifier renders props[field] as a string. JSON numbers are printed
// without a trailing ".0".
func identifier(props map[string]any, field string) (string, bool) {
	v, ok := props[field]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return fmt.Sprint(t), true
	}
}
