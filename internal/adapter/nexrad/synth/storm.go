package synth

import (
	"math"
	"time"
)

// Cell is a reflectivity core placed relative to the radar. Intensity falls
// off 10 dB at Radius and 40 dB at twice Radius.
type Cell struct {
	Range   float64 // meters
	Azimuth float64 // degrees
	Radius  float64 // meters
	PeakDBZ float64
}

// Scan sizes a synthetic volume.
type Scan struct {
	Elevations []float32 // cut angles, degrees
	Radials    int       // evenly spaced over 360 degrees
	Gates      int
	FirstGate  uint16 // meters
	GateWidth  uint16 // meters
}

// DefaultScan is a coarse three-cut volume out to ~230 km.
func DefaultScan() Scan {
	return Scan{
		Elevations: []float32{0.5, 1.5, 2.4},
		Radials:    360,
		Gates:      460,
		FirstGate:  2125,
		GateWidth:  500,
	}
}

// backgroundDBZ is the level below which gates are reported empty.
const backgroundDBZ = -30

// Storm fills a volume with the given cells. Gates where every cell has
// faded below -30 dBZ carry no data.
func Storm(a Archive, scan Scan, cells []Cell) Archive {
	a.Radials = make([]Radial, 0, len(scan.Elevations)*scan.Radials)
	step := 360 / float64(scan.Radials)
	for e, el := range scan.Elevations {
		for i := range scan.Radials {
			az := float64(i) * step
			dbz := make([]float64, scan.Gates)
			for g := range dbz {
				r := float64(scan.FirstGate) + float64(g)*float64(scan.GateWidth)
				dbz[g] = cellDBZ(cells, r, az)
			}
			a.Radials = append(a.Radials, Radial{
				ElevationNumber: uint8(e + 1),
				Azimuth:         float32(az),
				Elevation:       el,
				Moments:         []Moment{ReflectivityMoment(scan.FirstGate, scan.GateWidth, dbz)},
			})
		}
	}
	return a
}

func cellDBZ(cells []Cell, r, az float64) float64 {
	x, y := polar(r, az)
	best := math.Inf(-1)
	for _, c := range cells {
		cx, cy := polar(c.Range, c.Azimuth)
		d2 := (x-cx)*(x-cx) + (y-cy)*(y-cy)
		v := c.PeakDBZ - 10*d2/(c.Radius*c.Radius)
		best = max(best, v)
	}
	if best < backgroundDBZ {
		return math.NaN()
	}
	return best
}

func polar(r, az float64) (x, y float64) {
	rad := az * math.Pi / 180
	return r * math.Sin(rad), r * math.Cos(rad)
}

// Drift moves cells along a heading at a speed, as seen dt later.
func Drift(cells []Cell, heading, speed float64, dt time.Duration) []Cell {
	dx, dy := polar(speed*dt.Seconds(), heading)
	out := make([]Cell, len(cells))
	for i, c := range cells {
		x, y := polar(c.Range, c.Azimuth)
		x, y = x+dx, y+dy
		c.Range = math.Hypot(x, y)
		c.Azimuth = math.Mod(math.Atan2(x, y)*180/math.Pi+360, 360)
		out[i] = c
	}
	return out
}
