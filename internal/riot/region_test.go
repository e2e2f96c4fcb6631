package riot

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_CaseInsensitive(t *testing.T) {
	regions := DefaultRegions()

	upper, err := regions.Resolve("NA1")
	require.NoError(t, err)
	lower, err := regions.Resolve("na1")
	require.NoError(t, err)

	assert.Equal(t, RegionAmericas, upper)
	assert.Equal(t, upper, lower)
}

func TestResolve_DefaultPartition(t *testing.T) {
	tests := []struct {
		platform string
		want     Region
	}{
		{"br1", RegionAmericas},
		{"LA2", RegionAmericas},
		{"kr", RegionAsia},
		{"jp1", RegionAsia},
		{"EUW1", RegionEurope},
		{"ru", RegionEurope},
		{"oc1", RegionSEA},
		{"vn2", RegionSEA},
	}

	regions := DefaultRegions()
	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			got, err := regions.Resolve(tt.platform)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_UnknownPlatform(t *testing.T) {
	regions := DefaultRegions()

	for _, platform := range []string{"", "na2", "americas", "xx1"} {
		_, err := regions.Resolve(platform)
		assert.True(t, errors.Is(err, ErrUnknownPlatform), "platform %q: %v", platform, err)
		assert.True(t, IsFatal(err))
	}
}

func TestDefaultRegions_EveryPlatformInOneRegion(t *testing.T) {
	regions := DefaultRegions()
	platforms := regions.Platforms()

	assert.Len(t, platforms, 16)
	for _, p := range platforms {
		_, err := regions.Resolve(p)
		assert.NoError(t, err)
	}
}

func TestNewRegionTable_RejectsOverlap(t *testing.T) {
	_, err := NewRegionTable(map[Region][]string{
		RegionAmericas: {"na1"},
		RegionEurope:   {"NA1"},
	})
	assert.Error(t, err)
}
