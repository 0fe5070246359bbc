// Package geo holds the static geography catalog used to fan out
// listing searches across a metro region's sub-areas.
package geo

import (
	_ "embed"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed regions.yaml
var regionsYAML []byte

type catalogFile struct {
	Regions []regionEntry `yaml:"regions"`
}

type regionEntry struct {
	Name       string   `yaml:"name"`
	SubRegions []string `yaml:"sub_regions"`
}

var byRegion, regionNames = mustLoad()

func mustLoad() (map[string][]string, []string) {
	var cf catalogFile
	if err := yaml.Unmarshal(regionsYAML, &cf); err != nil {
		panic(eris.Wrap(err, "geo: parse embedded catalog"))
	}
	m := make(map[string][]string, len(cf.Regions))
	names := make([]string, 0, len(cf.Regions))
	for _, r := range cf.Regions {
		m[strings.ToLower(r.Name)] = r.SubRegions
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return m, names
}

// Regions returns the known region names, sorted.
func Regions() []string {
	out := make([]string, len(regionNames))
	copy(out, regionNames)
	return out
}

// SubRegions returns the ordered sub-region list for a region.
// Region matching is case-insensitive.
func SubRegions(region string) ([]string, error) {
	subs, ok := byRegion[strings.ToLower(strings.TrimSpace(region))]
	if !ok {
		return nil, eris.Errorf("geo: unknown region %q", region)
	}
	return subs, nil
}
