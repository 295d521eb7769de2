package domain

import (
	"context"
	"time"

	"github.com/x448/float16"
)

// ReflectivitySnapshot is one reduced scan: the retained gates of a volume as
// four parallel sequences. Snapshots are shared between readers once built and
// must be treated as read-only.
type ReflectivitySnapshot struct {
	Timestamp time.Time
	SiteID    string
	Lat       []float32
	Lon       []float32
	Alt       []float16.Float16
	DBZ       []float16.Float16
}

// Point is a single retained gate widened back to float32.
type Point struct {
	Lat float32 `json:"lat"`
	Lon float32 `json:"lon"`
	Alt float32 `json:"alt"`
	DBZ float32 `json:"dbz"`
}

// Len is the number of retained points.
func (s ReflectivitySnapshot) Len() int {
	return len(s.DBZ)
}

// Point returns the i-th retained gate.
func (s ReflectivitySnapshot) Point(i int) Point {
	return Point{
		Lat: s.Lat[i],
		Lon: s.Lon[i],
		Alt: s.Alt[i].Float32(),
		DBZ: s.DBZ[i].Float32(),
	}
}

// SnapshotPublisher announces snapshots newly added to the buffer.
type SnapshotPublisher interface {
	Publish(ctx context.Context, snapshot ReflectivitySnapshot) error
}
