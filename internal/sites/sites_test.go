package sites

import (
	"context"
	"strings"
	"testing"

	"github.com/couchcryptid/nexrad-reflectivity-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogue = `id,city,state,lat,lon,alt
KSOX,Santa Ana Mountains,CA,33.8178,-117.6360,946
KNKX, San Diego ,CA,32.9189,-117.0419,291
`

func TestParse(t *testing.T) {
	reg, err := Parse(strings.NewReader(catalogue))
	require.NoError(t, err)

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []domain.RadarSite{
		{ID: "KSOX", City: "Santa Ana Mountains", State: "CA", Lat: 33.8178, Lon: -117.636, Alt: 946},
		{ID: "KNKX", City: "San Diego", State: "CA", Lat: 32.9189, Lon: -117.0419, Alt: 291},
	}, reg.All())
}

func TestRegistry_Get(t *testing.T) {
	reg, err := Parse(strings.NewReader(catalogue))
	require.NoError(t, err)

	site, err := reg.Get("KNKX")
	require.NoError(t, err)
	assert.Equal(t, "San Diego", site.City)

	_, err = reg.Get("KXXX")
	require.ErrorIs(t, err, domain.ErrUnknownSite)
	assert.Contains(t, err.Error(), "KXXX")
}

func TestRegistry_Require(t *testing.T) {
	reg, err := Parse(strings.NewReader(catalogue))
	require.NoError(t, err)

	require.NoError(t, reg.Require([]string{"KSOX", "KNKX"}))
	require.NoError(t, reg.Require(nil))

	err = reg.Require([]string{"KSOX", "KXXX", "KYYY"})
	require.ErrorIs(t, err, domain.ErrUnknownSite)
	assert.Contains(t, err.Error(), "KXXX")
	assert.Contains(t, err.Error(), "KYYY")
	assert.NotContains(t, err.Error(), "KSOX")
}

func TestRegistry_AllReturnsCopy(t *testing.T) {
	reg, err := Parse(strings.NewReader(catalogue))
	require.NoError(t, err)

	all := reg.All()
	all[0].City = "changed"

	site, err := reg.Get("KSOX")
	require.NoError(t, err)
	assert.Equal(t, "Santa Ana Mountains", site.City)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		want string
	}{
		{"bad header", "site,city,state,lat,lon,alt\n", "header"},
		{"empty", "", "read header"},
		{"lowercase id", "id,city,state,lat,lon,alt\nksox,X,CA,33,-117,1\n", "line 2"},
		{"short id", "id,city,state,lat,lon,alt\nKSO,X,CA,33,-117,1\n", "line 2"},
		{"missing city", "id,city,state,lat,lon,alt\nKSOX,,CA,33,-117,1\n", "line 2"},
		{"latitude out of range", "id,city,state,lat,lon,alt\nKSOX,X,CA,91,-117,1\n", "line 2"},
		{"longitude out of range", "id,city,state,lat,lon,alt\nKSOX,X,CA,33,-181,1\n", "line 2"},
		{"non-numeric altitude", "id,city,state,lat,lon,alt\nKSOX,X,CA,33,-117,high\n", "alt"},
		{"wrong column count", "id,city,state,lat,lon,alt\nKSOX,X,CA,33,-117\n", "line 2"},
		{"duplicate", "id,city,state,lat,lon,alt\nKSOX,X,CA,33,-117,1\nKSOX,Y,CA,34,-118,2\n", "duplicate site KSOX"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.csv))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_BundledCatalogue(t *testing.T) {
	reg, err := Load("../../configs/sites.csv")
	require.NoError(t, err)

	site, err := reg.Get("KSOX")
	require.NoError(t, err)
	assert.Equal(t, "CA", site.State)
	assert.NoError(t, reg.CheckReadiness(context.Background()))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("does-not-exist.csv")
	require.Error(t, err)
}

func TestCheckReadiness_Empty(t *testing.T) {
	reg, err := Parse(strings.NewReader("id,city,state,lat,lon,alt\n"))
	require.NoError(t, err)
	assert.Error(t, reg.CheckReadiness(context.Background()))
}
