package riot

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// Region is a routing cluster for account and match endpoints.
type Region string

const (
	RegionAmericas Region = "americas"
	RegionAsia     Region = "asia"
	RegionEurope   Region = "europe"
	RegionSEA      Region = "sea"
)

// RegionTable partitions platforms into regions. It is built once and
// never mutated, so it can be shared freely.
type RegionTable struct {
	byPlatform map[string]Region
}

// DefaultRegions returns the platform partition used by the TFT APIs.
func DefaultRegions() *RegionTable {
	t, err := NewRegionTable(map[Region][]string{
		RegionAmericas: {"na1", "br1", "la1", "la2"},
		RegionAsia:     {"kr", "jp1"},
		RegionEurope:   {"eun1", "euw1", "tr1", "ru"},
		RegionSEA:      {"oc1", "ph2", "sg2", "th2", "tw2", "vn2"},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// NewRegionTable builds a table from region membership lists. A platform
// listed under two regions is rejected.
func NewRegionTable(members map[Region][]string) (*RegionTable, error) {
	t := &RegionTable{byPlatform: make(map[string]Region)}
	for region, platforms := range members {
		for _, p := range platforms {
			key := strings.ToLower(strings.TrimSpace(p))
			if key == "" {
				continue
			}
			if existing, ok := t.byPlatform[key]; ok && existing != region {
				return nil, errors.Newf("platform %q listed under both %s and %s", key, existing, region)
			}
			t.byPlatform[key] = region
		}
	}
	return t, nil
}

// Resolve returns the region for platform. Lookup is case-insensitive.
func (t *RegionTable) Resolve(platform string) (Region, error) {
	region, ok := t.byPlatform[strings.ToLower(strings.TrimSpace(platform))]
	if !ok {
		return "", errors.Wrapf(ErrUnknownPlatform, "platform %q", platform)
	}
	return region, nil
}

// Platforms lists every known platform in sorted order.
func (t *RegionTable) Platforms() []string {
	out := make([]string, 0, len(t.byPlatform))
	for p := range t.byPlatform {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
