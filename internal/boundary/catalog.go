package boundary

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Catalog names regions with their boundary and raster inputs.
type Catalog struct {
	Regions map[string]Region `yaml:"regions"`
}

// Region is one country or area with a boundary file and a population raster.
type Region struct {
	Name     string              `yaml:"-"`
	Boundary string              `yaml:"boundary"`
	Raster   string              `yaml:"raster"`
	IDField  string              `yaml:"id_field"`
	Groups   map[string][]Member `yaml:"groups"`
}

// Member is one feature of a group, identified by shape id and shape name.
type Member struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// LoadCatalog reads a YAML catalog. Relative paths are resolved against the
// catalog's directory.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: read catalog %s", path)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, eris.Wrap(err, "boundary: parse catalog")
	}

	base := filepath.Dir(path)
	for name, r := range cat.Regions {
		r.Name = name
		if r.IDField == "" {
			r.IDField = "shapeID"
		}
		r.Boundary = resolve(base, r.Boundary)
		r.Raster = resolve(base, r.Raster)
		cat.Regions[name] = r
	}
	return &cat, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Region looks up a region by name, ignoring case.
func (c *Catalog) Region(name string) (Region, error) {
	if r, ok := c.Regions[name]; ok {
		return r, nil
	}
	for k, r := range c.Regions {
		if strings.EqualFold(k, name) {
			return r, nil
		}
	}
	return Region{}, eris.Errorf("boundary: unknown region %q", name)
}

// Names returns the region names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Regions))
	for k := range c.Regions {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Group returns the identifiers of a group's members together with the
// property they must be matched against: names when the region is keyed by
// shapeName, shape ids otherwise.
func (r Region) Group(name string) (field string, ids []string, err error) {
	members, ok := r.Groups[name]
	if !ok {
		for k, m := range r.Groups {
			if strings.EqualFold(k, name) {
				members, ok = m, true
				break
			}
		}
	}
	if !ok {
		return "", nil, eris.Errorf("boundary: region %q has no group %q", r.Name, name)
	}

	byName := strings.EqualFold(r.IDField, "shapeName")
	ids = make([]string, 0, len(members))
	for _, m := range members {
		if byName {
			ids = append(ids, m.Name)
		} else {
			ids = append(ids, m.ID)
		}
	}
	return r.IDField, ids, nil
}
