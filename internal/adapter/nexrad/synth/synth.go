// Package synth encodes synthetic NEXRAD Level II archives for fixtures and
// local development.
package synth

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"math"
	"time"
)

const (
	legacyFrameSize = 2432
	msg31HeaderSize = 32
	volBlockSize    = 44
)

// Reflectivity encoding used by the WSR-88D.
const (
	ReflectivityScale  = 2.0
	ReflectivityOffset = 66.0
)

// Moment is one encoded data moment of a radial.
type Moment struct {
	Name      string // three characters, e.g. "REF"
	FirstGate uint16 // meters
	GateWidth uint16 // meters
	WordSize  uint8  // 8 or 16
	Scale     float32
	Offset    float32
	Raw       []uint16
}

// Radial is one message 31 radial.
type Radial struct {
	ElevationNumber uint8
	Azimuth         float32
	Elevation       float32
	Moments         []Moment
}

// Archive describes a whole volume file.
type Archive struct {
	SiteID         string
	ScanTime       time.Time
	Lat, Lon       float32
	SiteHeight     int16  // meters above sea level
	FeedhornHeight uint16 // meters above ground
	Radials        []Radial
	Gzip           bool
}

// ReflectivityMoment encodes dBZ values as an 8-bit REF moment. NaN encodes
// as below threshold.
func ReflectivityMoment(firstGate, gateWidth uint16, dbz []float64) Moment {
	m := Moment{
		Name:      "REF",
		FirstGate: firstGate,
		GateWidth: gateWidth,
		WordSize:  8,
		Scale:     ReflectivityScale,
		Offset:    ReflectivityOffset,
		Raw:       make([]uint16, len(dbz)),
	}
	for i, v := range dbz {
		if math.IsNaN(v) {
			continue
		}
		m.Raw[i] = uint16(min(255, max(2, math.Round(v*ReflectivityScale+ReflectivityOffset))))
	}
	return m
}

// Encode renders the archive as an uncompressed (or gzip-wrapped) Level II
// file, preceded by two legacy metadata frames.
func (a Archive) Encode() []byte {
	days, ms := julian(a.ScanTime)

	var buf bytes.Buffer
	buf.WriteString("AR2V0006.001")
	be(&buf, uint32(days), ms)
	buf.WriteString(pad(a.SiteID, 4))

	buf.Write(legacyFrame(2))
	buf.Write(legacyFrame(5))
	for _, r := range a.Radials {
		buf.Write(a.radialMessage(r, days, ms))
	}

	if !a.Gzip {
		return buf.Bytes()
	}
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, _ = zw.Write(buf.Bytes())
	_ = zw.Close()
	return gz.Bytes()
}

func (a Archive) radialMessage(r Radial, days uint16, ms uint32) []byte {
	blocks := [][]byte{a.volumeBlock()}
	for _, m := range r.Moments {
		blocks = append(blocks, momentBlock(m))
	}

	var body bytes.Buffer
	body.WriteString(pad(a.SiteID, 4))
	be(&body, ms, days, uint16(1), r.Azimuth,
		uint8(0), uint8(0), uint16(0), uint8(1), uint8(1), r.ElevationNumber, uint8(0),
		r.Elevation, uint8(0), uint8(0), uint16(len(blocks)))

	offset := msg31HeaderSize + 4*len(blocks)
	for _, b := range blocks {
		be(&body, uint32(offset))
		offset += len(b)
	}
	for _, b := range blocks {
		body.Write(b)
	}
	if body.Len()%2 == 1 {
		body.WriteByte(0)
	}

	var msg bytes.Buffer
	msg.Write(make([]byte, 12))
	be(&msg, uint16((16+body.Len())/2), uint8(0), uint8(31), uint16(0), days, ms, uint16(1), uint16(1))
	msg.Write(body.Bytes())
	return msg.Bytes()
}

func (a Archive) volumeBlock() []byte {
	var b bytes.Buffer
	b.WriteString("RVOL")
	be(&b, uint16(volBlockSize), uint8(1), uint8(0), a.Lat, a.Lon, a.SiteHeight, a.FeedhornHeight)
	b.Write(make([]byte, volBlockSize-b.Len()))
	return b.Bytes()
}

func momentBlock(m Moment) []byte {
	var b bytes.Buffer
	b.WriteString("D")
	b.WriteString(pad(m.Name, 3))
	be(&b, uint32(0), uint16(len(m.Raw)), m.FirstGate, m.GateWidth,
		int16(0), int16(0), uint8(0), m.WordSize, m.Scale, m.Offset)
	for _, raw := range m.Raw {
		if m.WordSize == 16 {
			be(&b, raw)
		} else {
			b.WriteByte(uint8(raw))
		}
	}
	return b.Bytes()
}

func legacyFrame(msgType uint8) []byte {
	frame := make([]byte, legacyFrameSize)
	binary.BigEndian.PutUint16(frame[12:], 60)
	frame[15] = msgType
	return frame
}

// julian is the Level II date (day 1 is 1970-01-01) and milliseconds past midnight.
func julian(t time.Time) (uint16, uint32) {
	t = t.UTC()
	midnight := t.Truncate(24 * time.Hour)
	return uint16(midnight.Unix()/86400 + 1), uint32(t.Sub(midnight).Milliseconds())
}

func be(b *bytes.Buffer, values ...any) {
	for _, v := range values {
		_ = binary.Write(b, binary.BigEndian, v)
	}
}

func pad(s string, n int) string {
	for len(s) < n {
		s += " "
	}
	return s[:n]
}
