// Package domain models NEXRAD WSR-88D reflectivity data and the reduction of
// a radar volume into a compact point snapshot.
//
// # Data Source
//
// Volumes come from the public NEXRAD Level II archive on S3
// (unidata-nexrad-level2). Keys follow
//
//	YYYY/MM/DD/SITE/SITEYYYYMMDD_HHMMSS_V06
//
// and a site typically publishes a volume every four to ten minutes. The
// service keeps only one volume per UTC hour: the earliest archived in that
// hour, identified by its scan hour (the scan time truncated to the hour).
//
// # Radar Conventions
//
// Geometry:
//
//	A volume is a set of sweeps, one per elevation cut. Each sweep is a fan of
//	radials (azimuth in degrees clockwise from north) and each radial a run of
//	gates at fixed slant ranges in meters. Moment data is stored radial-major:
//	gate g of radial r is index r*len(Ranges)+g.
//
// Geolocation:
//
//	Gate positions use the 4/3 effective earth radius model for beam height
//	and ground distance, then an azimuthal equidistant inverse projection
//	centered on the antenna. See [GatePosition].
//
// Reflectivity:
//
//	dBZ, roughly -32 to 94.5 in 0.5 dB steps. Raw values 0 and 1 mean below
//	threshold and range folded; both decode to NaN, and NaN never passes a
//	threshold comparison.
//
// # Snapshots
//
// [Reduce] keeps gates strictly above the noise floor, in sweep then
// radial-major order, takes every stride-th survivor, and stores them as
// parallel sequences: positions as float32, altitude and dBZ as IEEE half
// precision. Reduction is deterministic for a given volume and parameters.
package domain
