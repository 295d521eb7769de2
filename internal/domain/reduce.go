package domain

import (
	"fmt"
	"time"

	"github.com/x448/float16"
)

// gateRef addresses one gate of a volume.
type gateRef struct {
	sweep int
	gate  int
}

// Reduce turns a parsed volume into a snapshot: gates whose reflectivity is
// strictly above thresholdDBZ are kept, concatenated sweep by sweep, thinned
// to every stride-th point when downsampleFactor > 1, and narrowed to
// float32 positions and float16 altitude/dBZ. Only surviving gates are
// geolocated.
func Reduce(timestamp time.Time, siteID string, vol *Volume, thresholdDBZ float64, downsampleFactor int) (ReflectivitySnapshot, error) {
	var kept []gateRef
	var dbz []float32

	if vol != nil {
		for i := range vol.Sweeps {
			sweep := &vol.Sweeps[i]
			refl, ok := sweep.Field(FieldReflectivity)
			if !ok {
				return ReflectivitySnapshot{}, fmt.Errorf("sweep %d: missing %s field", i, FieldReflectivity)
			}
			if len(refl) != sweep.NumGates() || len(sweep.Elevations) != len(sweep.Azimuths) {
				return ReflectivitySnapshot{}, fmt.Errorf("sweep %d: %d %s values for %d gates",
					i, len(refl), FieldReflectivity, sweep.NumGates())
			}
			for g, v := range refl {
				// NaN compares false, so masked gates drop out here.
				if float64(v) > thresholdDBZ {
					kept = append(kept, gateRef{sweep: i, gate: g})
					dbz = append(dbz, v)
				}
			}
		}
	}

	stride := downsampleStride(len(dbz), downsampleFactor)
	n := (len(dbz) + stride - 1) / stride

	snap := ReflectivitySnapshot{
		Timestamp: timestamp,
		SiteID:    siteID,
		Lat:       make([]float32, 0, n),
		Lon:       make([]float32, 0, n),
		Alt:       make([]float16.Float16, 0, n),
		DBZ:       make([]float16.Float16, 0, n),
	}
	for i := 0; i < len(dbz); i += stride {
		ref := kept[i]
		lat, lon, alt := vol.GateLocation(&vol.Sweeps[ref.sweep], ref.gate)
		snap.Lat = append(snap.Lat, float32(lat))
		snap.Lon = append(snap.Lon, float32(lon))
		snap.Alt = append(snap.Alt, float16.Fromfloat32(float32(alt)))
		snap.DBZ = append(snap.DBZ, float16.Fromfloat32(dbz[i]))
	}
	return snap, nil
}

// downsampleStride spaces kept points so roughly n/factor of them survive.
// When there are fewer points than the factor only the first is kept.
func downsampleStride(n, factor int) int {
	if factor <= 1 || n == 0 {
		return 1
	}
	target := n / factor
	if target == 0 {
		return n
	}
	return max(1, n/target)
}
