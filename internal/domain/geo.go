package domain

import "math"

const (
	// effectiveEarthRadius is the 4/3 earth radius of standard beam refraction.
	effectiveEarthRadius = 6371000.0 * 4.0 / 3.0
	// projectionEarthRadius is the sphere used to unproject ground distances.
	projectionEarthRadius = 6370997.0
)

// GatePosition locates a gate from the antenna position, the beam's azimuth
// and elevation in degrees, and the slant range in meters. Beam height uses
// the 4/3 effective earth radius model; the ground offset is unprojected with
// an azimuthal equidistant projection centered on the antenna.
func GatePosition(radarLat, radarLon, radarAlt, azimuth, elevation, slantRange float64) (lat, lon, alt float64) {
	el := elevation * math.Pi / 180
	az := azimuth * math.Pi / 180
	r := slantRange
	R := effectiveEarthRadius

	z := math.Sqrt(r*r+R*R+2*r*R*math.Sin(el)) - R
	s := R * math.Asin(r*math.Cos(el)/(R+z))
	x := s * math.Sin(az)
	y := s * math.Cos(az)

	lat, lon = unprojectAEQD(x, y, radarLat, radarLon)
	return lat, lon, z + radarAlt
}

func unprojectAEQD(x, y, lat0, lon0 float64) (lat, lon float64) {
	rho := math.Hypot(x, y)
	if rho == 0 {
		return lat0, lon0
	}
	phi0 := lat0 * math.Pi / 180
	c := rho / projectionEarthRadius

	phi := math.Asin(math.Cos(c)*math.Sin(phi0) + y*math.Sin(c)*math.Cos(phi0)/rho)
	lambda := math.Atan2(x*math.Sin(c), rho*math.Cos(phi0)*math.Cos(c)-y*math.Sin(phi0)*math.Sin(c))

	lat = phi * 180 / math.Pi
	lon = lon0 + lambda*180/math.Pi
	switch {
	case lon > 180:
		lon -= 360
	case lon < -180:
		lon += 360
	}
	return lat, lon
}
