package domain

import "errors"

// ErrUnknownSite is returned when a site id is not in the configured registry.
var ErrUnknownSite = errors.New("unknown radar site")

// RadarSite is the static identity and location of a NEXRAD radar.
type RadarSite struct {
	ID    string  `json:"id"`
	City  string  `json:"city"`
	State string  `json:"state"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Alt   float64 `json:"alt"`
}
