// Package sites loads the radar site catalogue.
package sites

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/nexrad-reflectivity-service/internal/domain"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var header = []string{"id", "city", "state", "lat", "lon", "alt"}

// record is one validated CSV row.
type record struct {
	ID    string  `validate:"required,len=4,alphanum,uppercase"`
	City  string  `validate:"required"`
	State string  `validate:"required,len=2,alpha,uppercase"`
	Lat   float64 `validate:"gte=-90,lte=90"`
	Lon   float64 `validate:"gte=-180,lte=180"`
	Alt   float64
}

// Registry is an immutable, ordered set of radar sites.
type Registry struct {
	sites []domain.RadarSite
	byID  map[string]int
}

// Load reads a site catalogue CSV with header id,city,state,lat,lon,alt.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sites file: %w", err)
	}
	defer f.Close()

	reg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// Parse reads a site catalogue from r. Every row is validated; duplicate
// ids are rejected.
func Parse(r io.Reader) (*Registry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	cr.TrimLeadingSpace = true

	first, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range header {
		if strings.ToLower(strings.TrimSpace(first[i])) != col {
			return nil, fmt.Errorf("header column %d is %q, want %q", i+1, first[i], col)
		}
	}

	reg := &Registry{byID: make(map[string]int)}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		rec, err := parseRecord(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if _, dup := reg.byID[rec.ID]; dup {
			return nil, fmt.Errorf("line %d: duplicate site %s", line, rec.ID)
		}

		reg.byID[rec.ID] = len(reg.sites)
		reg.sites = append(reg.sites, domain.RadarSite(rec))
	}
	return reg, nil
}

func parseRecord(row []string) (record, error) {
	rec := record{
		ID:    strings.TrimSpace(row[0]),
		City:  strings.TrimSpace(row[1]),
		State: strings.TrimSpace(row[2]),
	}
	coords := []struct {
		name string
		dest *float64
	}{
		{"lat", &rec.Lat},
		{"lon", &rec.Lon},
		{"alt", &rec.Alt},
	}
	for i, c := range coords {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[3+i]), 64)
		if err != nil {
			return rec, fmt.Errorf("invalid %s %q", c.name, row[3+i])
		}
		*c.dest = v
	}

	if err := validate.Struct(rec); err != nil {
		return rec, fmt.Errorf("invalid site %q: %w", rec.ID, err)
	}
	return rec, nil
}

// Get returns the site with the given id.
func (r *Registry) Get(id string) (domain.RadarSite, error) {
	i, ok := r.byID[id]
	if !ok {
		return domain.RadarSite{}, fmt.Errorf("%w: %s", domain.ErrUnknownSite, id)
	}
	return r.sites[i], nil
}

// Require checks that every id is catalogued. The error lists all unknown ids.
func (r *Registry) Require(ids []string) error {
	var errs []error
	for _, id := range ids {
		if _, err := r.Get(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// All returns every site in file order.
func (r *Registry) All() []domain.RadarSite {
	out := make([]domain.RadarSite, len(r.sites))
	copy(out, r.sites)
	return out
}

// Len is the number of sites.
func (r *Registry) Len() int {
	return len(r.sites)
}

// CheckReadiness reports an empty catalogue as not ready.
func (r *Registry) CheckReadiness(_ context.Context) error {
	if len(r.sites) == 0 {
		return errors.New("no radar sites loaded")
	}
	return nil
}
