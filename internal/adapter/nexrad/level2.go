package nexrad

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/couchcryptid/nexrad-reflectivity-service/internal/domain"
)

// ErrInvalidArchive reports a Level II file that cannot be decoded.
var ErrInvalidArchive = errors.New("invalid level II archive")

const (
	volumeHeaderSize = 24
	ctmHeaderSize    = 12
	msgHeaderSize    = 16
	legacyFrameSize  = 2432
	msg31HeaderSize  = 32
	volBlockSize     = 20
	momentHeaderSize = 28

	msgTypeDigitalRadar = 31
)

// momentNames maps field names to Level II data moment block names.
var momentNames = map[string]string{
	domain.FieldReflectivity:             "REF",
	domain.FieldVelocity:                 "VEL",
	domain.FieldSpectrumWidth:            "SW ",
	domain.FieldDifferentialReflectivity: "ZDR",
	domain.FieldDifferentialPhase:        "PHI",
	domain.FieldCrossCorrelationRatio:    "RHO",
}

type radial struct {
	elevationNumber int
	azimuth         float64
	elevation       float64
	moments         map[string]moment // by field name
}

type moment struct {
	firstGate float64 // meters
	gateWidth float64 // meters
	values    []float32
}

// at returns the value at slant range r, or NaN outside the moment's gates.
func (m moment) at(r float64) float32 {
	if m.gateWidth <= 0 {
		return float32(math.NaN())
	}
	i := int(math.Round((r - m.firstGate) / m.gateWidth))
	if i < 0 || i >= len(m.values) {
		return float32(math.NaN())
	}
	return m.values[i]
}

type siteLocation struct {
	lat, lon, alt float64
	ok            bool
}

// Decode parses a NEXRAD Level II archive, keeping only the named fields.
// Gzip-wrapped files and bzip2-compressed LDM records are both accepted.
func Decode(data []byte, fields []string) (*domain.Volume, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields requested", ErrInvalidArchive)
	}
	wanted := make(map[string]string, len(fields))
	for _, f := range fields {
		name, ok := momentNames[f]
		if !ok {
			return nil, fmt.Errorf("unknown field %q", f)
		}
		wanted[name] = f
	}

	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		var err error
		if data, err = gunzip(data); err != nil {
			return nil, err
		}
	}
	if len(data) < volumeHeaderSize {
		return nil, fmt.Errorf("%w: short volume header", ErrInvalidArchive)
	}
	header := data[:volumeHeaderSize]
	if !bytes.HasPrefix(header, []byte("AR2V")) && !bytes.HasPrefix(header, []byte("ARCHIVE2")) {
		return nil, fmt.Errorf("%w: bad volume header %q", ErrInvalidArchive, header[:8])
	}

	vol := &domain.Volume{
		SiteID:   string(bytes.TrimRight(header[20:24], "\x00 ")),
		ScanTime: modifiedJulian(binary.BigEndian.Uint32(header[12:16]), binary.BigEndian.Uint32(header[16:20])),
	}

	body := data[volumeHeaderSize:]
	if len(body) >= 8 && bytes.Equal(body[4:7], []byte("BZh")) {
		var err error
		if body, err = decompressRecords(body); err != nil {
			return nil, err
		}
	}

	radials, site, err := readMessages(body, wanted)
	if err != nil {
		return nil, err
	}
	if !site.ok {
		return nil, fmt.Errorf("%w: no volume constants block", ErrInvalidArchive)
	}
	vol.Lat, vol.Lon, vol.Alt = site.lat, site.lon, site.alt
	vol.Sweeps = buildSweeps(radials, fields)
	return vol, nil
}

// modifiedJulian converts a Level II date (day 1 is 1970-01-01) and
// milliseconds past midnight to UTC.
func modifiedJulian(days, ms uint32) time.Time {
	if days == 0 {
		return time.Time{}
	}
	return time.Unix(int64(days-1)*86400, 0).UTC().Add(time.Duration(ms) * time.Millisecond)
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", ErrInvalidArchive, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", ErrInvalidArchive, err)
	}
	return out, nil
}

// decompressRecords inflates the sequence of size-prefixed bzip2 LDM records
// that follows the volume header. A negative size marks the last record.
func decompressRecords(body []byte) ([]byte, error) {
	var out bytes.Buffer
	for off := 0; off+4 <= len(body); {
		size := int(int32(binary.BigEndian.Uint32(body[off:])))
		off += 4
		if size < 0 {
			size = -size
		}
		if size == 0 {
			continue
		}
		if off+size > len(body) {
			return nil, fmt.Errorf("%w: truncated record at offset %d", ErrInvalidArchive, off)
		}
		if _, err := io.Copy(&out, bzip2.NewReader(bytes.NewReader(body[off:off+size]))); err != nil {
			return nil, fmt.Errorf("%w: bzip2 record at offset %d: %v", ErrInvalidArchive, off, err)
		}
		off += size
	}
	return out.Bytes(), nil
}

// readMessages walks the message stream. Message 31 is variable length;
// every other message type occupies a fixed frame.
func readMessages(buf []byte, wanted map[string]string) ([]radial, siteLocation, error) {
	var radials []radial
	var site siteLocation

	for pos := 0; pos+ctmHeaderSize+msgHeaderSize <= len(buf); {
		hdr := buf[pos+ctmHeaderSize:]
		sizeHW := int(binary.BigEndian.Uint16(hdr[0:2]))
		msgType := hdr[3]

		if sizeHW == 0 || msgType != msgTypeDigitalRadar {
			pos += legacyFrameSize
			continue
		}

		if sizeHW*2 < msgHeaderSize {
			return nil, site, fmt.Errorf("%w: message at offset %d shorter than its header", ErrInvalidArchive, pos)
		}
		end := pos + ctmHeaderSize + sizeHW*2
		if end > len(buf) {
			return nil, site, fmt.Errorf("%w: truncated message at offset %d", ErrInvalidArchive, pos)
		}
		r, err := decodeDigitalRadar(buf[pos+ctmHeaderSize+msgHeaderSize:end], wanted, &site)
		if err != nil {
			return nil, site, fmt.Errorf("message at offset %d: %w", pos, err)
		}
		radials = append(radials, r)
		pos = end
	}
	return radials, site, nil
}

// decodeDigitalRadar decodes one message 31 radial. Block pointers are
// offsets from the start of b.
func decodeDigitalRadar(b []byte, wanted map[string]string, site *siteLocation) (radial, error) {
	if len(b) < msg31HeaderSize {
		return radial{}, fmt.Errorf("%w: short radial header", ErrInvalidArchive)
	}
	r := radial{
		azimuth:         float64(readFloat32(b[12:])),
		elevationNumber: int(b[22]),
		elevation:       float64(readFloat32(b[24:])),
		moments:         make(map[string]moment, len(wanted)),
	}

	nBlocks := int(binary.BigEndian.Uint16(b[30:32]))
	if len(b) < msg31HeaderSize+4*nBlocks {
		return radial{}, fmt.Errorf("%w: short block pointer table", ErrInvalidArchive)
	}
	for i := range nBlocks {
		ptr := int(binary.BigEndian.Uint32(b[msg31HeaderSize+4*i:]))
		if ptr == 0 {
			continue
		}
		if ptr+4 > len(b) {
			return radial{}, fmt.Errorf("%w: block pointer %d out of range", ErrInvalidArchive, ptr)
		}
		blockType, name := b[ptr], string(b[ptr+1:ptr+4])

		switch {
		case blockType == 'R' && name == "VOL":
			if site.ok {
				continue
			}
			if ptr+volBlockSize > len(b) {
				return radial{}, fmt.Errorf("%w: short volume block", ErrInvalidArchive)
			}
			vb := b[ptr:]
			site.lat = float64(readFloat32(vb[8:]))
			site.lon = float64(readFloat32(vb[12:]))
			site.alt = float64(int16(binary.BigEndian.Uint16(vb[16:]))) + float64(binary.BigEndian.Uint16(vb[18:]))
			site.ok = true
		case blockType == 'D':
			field, ok := wanted[name]
			if !ok {
				continue
			}
			m, err := decodeMoment(b[ptr:])
			if err != nil {
				return radial{}, fmt.Errorf("%s block: %w", name, err)
			}
			r.moments[field] = m
		}
	}
	return r, nil
}

// decodeMoment decodes a generic data moment block. Raw codes 0 (below
// threshold) and 1 (range folded) carry no value.
func decodeMoment(b []byte) (moment, error) {
	if len(b) < momentHeaderSize {
		return moment{}, fmt.Errorf("%w: short moment header", ErrInvalidArchive)
	}
	nGates := int(binary.BigEndian.Uint16(b[8:10]))
	m := moment{
		firstGate: float64(binary.BigEndian.Uint16(b[10:12])),
		gateWidth: float64(binary.BigEndian.Uint16(b[12:14])),
		values:    make([]float32, nGates),
	}
	wordSize := int(b[19])
	scale, offset := readFloat32(b[20:]), readFloat32(b[24:])
	if scale == 0 {
		return moment{}, fmt.Errorf("%w: zero scale", ErrInvalidArchive)
	}

	data := b[momentHeaderSize:]
	switch wordSize {
	case 8:
		if len(data) < nGates {
			return moment{}, fmt.Errorf("%w: %d gates in %d bytes", ErrInvalidArchive, nGates, len(data))
		}
		for i := range nGates {
			m.values[i] = scaleRaw(uint16(data[i]), scale, offset)
		}
	case 16:
		if len(data) < 2*nGates {
			return moment{}, fmt.Errorf("%w: %d gates in %d bytes", ErrInvalidArchive, nGates, len(data))
		}
		for i := range nGates {
			m.values[i] = scaleRaw(binary.BigEndian.Uint16(data[2*i:]), scale, offset)
		}
	default:
		return moment{}, fmt.Errorf("%w: word size %d", ErrInvalidArchive, wordSize)
	}
	return m, nil
}

func scaleRaw(raw uint16, scale, offset float32) float32 {
	if raw < 2 {
		return float32(math.NaN())
	}
	return (float32(raw) - offset) / scale
}

func readFloat32(b []byte) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(b))
}

// buildSweeps groups radials by elevation number in scan order. Gate ranges
// come from the first requested field present in the cut; other fields are
// sampled at those ranges. Cuts carrying none of the fields are skipped.
func buildSweeps(radials []radial, fields []string) []domain.Sweep {
	var order []int
	byElevation := make(map[int][]radial)
	for _, r := range radials {
		if _, seen := byElevation[r.elevationNumber]; !seen {
			order = append(order, r.elevationNumber)
		}
		byElevation[r.elevationNumber] = append(byElevation[r.elevationNumber], r)
	}

	sweeps := make([]domain.Sweep, 0, len(order))
	for _, num := range order {
		if s, ok := buildSweep(byElevation[num], fields); ok {
			sweeps = append(sweeps, s)
		}
	}
	return sweeps
}

func buildSweep(radials []radial, fields []string) (domain.Sweep, bool) {
	var geometry moment
	found := false
	for _, f := range fields {
		for _, r := range radials {
			if m, ok := r.moments[f]; ok && len(m.values) > len(geometry.values) {
				geometry, found = m, true
			}
		}
		if found {
			break
		}
	}
	if !found {
		return domain.Sweep{}, false
	}

	s := domain.Sweep{
		Azimuths:   make([]float64, len(radials)),
		Elevations: make([]float64, len(radials)),
		Ranges:     make([]float64, len(geometry.values)),
		Fields:     make(map[string][]float32, len(fields)),
	}
	for i := range s.Ranges {
		s.Ranges[i] = geometry.firstGate + float64(i)*geometry.gateWidth
	}

	var elevationSum float64
	for i, r := range radials {
		s.Azimuths[i] = r.azimuth
		s.Elevations[i] = r.elevation
		elevationSum += r.elevation
	}
	s.ElevationAngle = elevationSum / float64(len(radials))

	nGates := len(s.Ranges)
	for _, f := range fields {
		values := make([]float32, len(radials)*nGates)
		for i, r := range radials {
			row := values[i*nGates : (i+1)*nGates]
			m, ok := r.moments[f]
			for g := range row {
				if ok {
					row[g] = m.at(s.Ranges[g])
				} else {
					row[g] = float32(math.NaN())
				}
			}
		}
		s.Fields[f] = values
	}
	return s, true
}
