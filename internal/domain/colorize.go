package domain

import (
	"fmt"
	"math"
)

// MaxDBZ is the reflectivity mapped to the top of the color ramp.
const MaxDBZ = 80.0

const (
	minOpacity = 0.02
	maxOpacity = 0.2
)

// RGBA is a straight (non-premultiplied) render color.
type RGBA struct {
	R, G, B, A uint8
}

// MarshalJSON encodes the color as [r, g, b, a], the shape point-cloud
// renderers take.
func (c RGBA) MarshalJSON() ([]byte, error) {
	return fmt.Appendf(nil, "[%d,%d,%d,%d]", c.R, c.G, c.B, c.A), nil
}

type colorStop struct {
	at      float64
	r, g, b float64
}

// iceRamp runs white -> very light blue -> light blue.
var iceRamp = []colorStop{
	{at: 0.0, r: 1.0, g: 1.0, b: 1.0},
	{at: 0.5, r: 0.8, g: 0.9, b: 1.0},
	{at: 1.0, r: 0.2, g: 0.5, b: 1.0},
}

// Colorize maps a reflectivity value to its render color. Values at or below
// the threshold get the faintest color; MaxDBZ and above the strongest, which
// is still mostly transparent.
func Colorize(valueDBZ, thresholdDBZ float64) RGBA {
	norm := normalizeDBZ(valueDBZ, thresholdDBZ)
	r, g, b := rampAt(norm)
	opacity := minOpacity + (maxOpacity-minOpacity)*norm

	return RGBA{R: toByte(r), G: toByte(g), B: toByte(b), A: toByte(opacity)}
}

func normalizeDBZ(value, threshold float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	span := MaxDBZ - threshold
	if span <= 0 {
		if value > threshold {
			return 1
		}
		return 0
	}
	return clamp01((value - threshold) / span)
}

func rampAt(x float64) (r, g, b float64) {
	for i := 1; i < len(iceRamp); i++ {
		lo, hi := iceRamp[i-1], iceRamp[i]
		if x <= hi.at {
			f := (x - lo.at) / (hi.at - lo.at)
			return lerp(lo.r, hi.r, f), lerp(lo.g, hi.g, f), lerp(lo.b, hi.b, f)
		}
	}
	last := iceRamp[len(iceRamp)-1]
	return last.r, last.g, last.b
}

func lerp(a, b, f float64) float64 {
	return a + (b-a)*f
}

func clamp01(x float64) float64 {
	return math.Min(1, math.Max(0, x))
}

func toByte(x float64) uint8 {
	return uint8(math.Round(clamp01(x) * 255))
}
