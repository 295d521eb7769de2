// Command validate performs offline integrity checks on the site catalogue
// and on Level II volumes: every volume must decode, belong to a catalogued
// site, and reduce to a snapshot whose points respect the noise floor and
// lie within radar range.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -sites configs/sites.csv \
//	  -volumes data/mock \
//	  -threshold -20 -factor 20
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/nexrad-reflectivity-service/internal/adapter/nexrad"
	"github.com/couchcryptid/nexrad-reflectivity-service/internal/domain"
	"github.com/couchcryptid/nexrad-reflectivity-service/internal/sites"
)

const (
	// maxRangeKm bounds how far from the antenna a retained gate may lie.
	maxRangeKm = 500
	// antennaToleranceDeg is the allowed catalogue/volume position mismatch.
	antennaToleranceDeg = 0.05
	// float16Slack absorbs half-precision rounding of dBZ near the threshold.
	float16Slack = 0.05
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// decoded is a volume file that parsed.
type decoded struct {
	path string
	vol  *domain.Volume
}

func main() {
	sitesFile := flag.String("sites", "configs/sites.csv", "site catalogue CSV")
	defaultSite := flag.String("default-site", "KSOX", "site that must be in the catalogue")
	volumes := flag.String("volumes", "", "Level II file or directory of files")
	threshold := flag.Float64("threshold", -20, "reflectivity noise floor, dBZ")
	factor := flag.Int("factor", 20, "downsample factor")
	flag.Parse()

	if *volumes == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*sitesFile, *defaultSite, *volumes, *threshold, *factor); code != 0 {
		os.Exit(code)
	}
}

func run(sitesFile, defaultSite, volumesPath string, threshold float64, factor int) int {
	fmt.Println("=== Radar Data Integrity Validation ===")
	fmt.Println()

	registry, err := sites.Load(sitesFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load sites: %v\n", err)
		return 1
	}

	paths, err := volumeFiles(volumesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: find volumes: %v\n", err)
		return 1
	}

	catalogue := validateCatalogue(registry, defaultSite)
	decoding, volumes := validateDecoding(registry, paths)
	reduction := validateReduction(volumes, threshold, factor)
	phases := []*phase{catalogue, decoding, reduction}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Sites: %d catalogued; volumes: %d found, %d decoded\n", registry.Len(), len(paths), len(volumes))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// volumeFiles lists path itself or every regular file below it, skipping
// archive metadata files.
func volumeFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var paths []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && !strings.HasSuffix(p, "_MDM") {
			paths = append(paths, p)
		}
		return nil
	})
	return paths, err
}

// ── Phases ──

func validateCatalogue(registry *sites.Registry, defaultSite string) *phase {
	p := &phase{name: "Site catalogue"}
	if registry.Len() == 0 {
		p.errorf("catalogue is empty")
	}
	if _, err := registry.Get(defaultSite); err != nil {
		p.errorf("default site: %v", err)
	}
	return p
}

func validateDecoding(registry *sites.Registry, paths []string) (*phase, []decoded) {
	p := &phase{name: "Level II decoding"}
	var out []decoded

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			p.errorf("%s: %v", path, err)
			continue
		}
		vol, err := nexrad.Decode(data, []string{domain.FieldReflectivity})
		if err != nil {
			p.errorf("%s: %v", path, err)
			continue
		}
		checkVolume(p, registry, path, vol)
		out = append(out, decoded{path: path, vol: vol})
	}
	return p, out
}

func checkVolume(p *phase, registry *sites.Registry, path string, vol *domain.Volume) {
	if vol.ScanTime.IsZero() {
		p.errorf("%s: missing scan time", path)
	}
	if len(vol.Sweeps) == 0 {
		p.errorf("%s: no reflectivity sweeps", path)
	}
	for i := range vol.Sweeps {
		s := &vol.Sweeps[i]
		refl, _ := s.Field(domain.FieldReflectivity)
		if len(refl) != s.NumGates() {
			p.errorf("%s: sweep %d has %d values for %d gates", path, i, len(refl), s.NumGates())
		}
	}

	site, err := registry.Get(vol.SiteID)
	if err != nil {
		p.errorf("%s: %v", path, err)
		return
	}
	if math.Abs(site.Lat-vol.Lat) > antennaToleranceDeg || math.Abs(site.Lon-vol.Lon) > antennaToleranceDeg {
		p.errorf("%s: antenna at (%.4f, %.4f), catalogue has %s at (%.4f, %.4f)",
			path, vol.Lat, vol.Lon, site.ID, site.Lat, site.Lon)
	}
}

func validateReduction(volumes []decoded, threshold float64, factor int) *phase {
	p := &phase{name: "Scan reduction"}

	for _, d := range volumes {
		snap, err := domain.Reduce(domain.ScanHour(d.vol.ScanTime), d.vol.SiteID, d.vol, threshold, factor)
		if err != nil {
			p.errorf("%s: %v", d.path, err)
			continue
		}
		if len(snap.Lat) != snap.Len() || len(snap.Lon) != snap.Len() || len(snap.Alt) != snap.Len() {
			p.errorf("%s: point sequences differ in length", d.path)
			continue
		}

		for i := range snap.Len() {
			pt := snap.Point(i)
			if float64(pt.DBZ) < threshold-float16Slack {
				p.errorf("%s: point %d at %.1f dBZ is below the %.1f dBZ floor", d.path, i, pt.DBZ, threshold)
			}
			if km := groundKm(d.vol.Lat, d.vol.Lon, float64(pt.Lat), float64(pt.Lon)); km > maxRangeKm {
				p.errorf("%s: point %d is %.0f km from the antenna", d.path, i, km)
			}
		}
		fmt.Printf("  %s: %s %s, %d points\n", filepath.Base(d.path), snap.SiteID,
			snap.Timestamp.Format("2006-01-02 15:04Z"), snap.Len())
	}
	return p
}

// groundKm is the haversine distance between two points.
func groundKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthKm = 6371.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthKm * math.Asin(math.Sqrt(a))
}
