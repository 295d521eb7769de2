package domain

import (
	"context"
	"time"
)

// Radar moment field names, as requested from an ArchiveGateway.
const (
	FieldReflectivity             = "reflectivity"
	FieldVelocity                 = "velocity"
	FieldSpectrumWidth            = "spectrum_width"
	FieldDifferentialPhase        = "differential_phase"
	FieldCrossCorrelationRatio    = "cross_correlation_ratio"
	FieldDifferentialReflectivity = "differential_reflectivity"
)

// Sweep is one elevation cut in polar form. Field values are stored
// radial-major, so gate g lies on radial g/len(Ranges) at range
// Ranges[g%len(Ranges)], and are NaN where the radar reported no usable return.
type Sweep struct {
	ElevationAngle float64
	Azimuths       []float64 // per radial, degrees clockwise from north
	Elevations     []float64 // per radial, degrees above horizon
	Ranges         []float64 // gate centers, meters from the antenna
	Fields         map[string][]float32
}

// Field returns the named moment's gate values.
func (s *Sweep) Field(name string) ([]float32, bool) {
	v, ok := s.Fields[name]
	return v, ok
}

// NumGates is the number of gates in the sweep.
func (s *Sweep) NumGates() int {
	return len(s.Azimuths) * len(s.Ranges)
}

// Volume is a parsed radar volume scan.
type Volume struct {
	SiteID   string
	ScanTime time.Time
	Lat      float64 // antenna latitude, degrees
	Lon      float64 // antenna longitude, degrees
	Alt      float64 // antenna height above sea level, meters
	Sweeps   []Sweep
}

// GateLocation returns the geodetic position of gate g of sweep s.
func (v *Volume) GateLocation(s *Sweep, g int) (lat, lon, alt float64) {
	radial, bin := g/len(s.Ranges), g%len(s.Ranges)
	return GatePosition(v.Lat, v.Lon, v.Alt, s.Azimuths[radial], s.Elevations[radial], s.Ranges[bin])
}

// ArchiveGateway locates and parses archived radar volumes.
type ArchiveGateway interface {
	// ListAvailable returns, for each of the last hoursBack whole hours that
	// has data, the location of that hour's first volume.
	ListAvailable(ctx context.Context, siteID string, hoursBack int) (map[time.Time]string, error)

	// Parse reads the volume at location, decoding only the named fields.
	Parse(ctx context.Context, location string, fields []string) (*Volume, error)
}
