// Command genmock writes synthetic NEXRAD Level II volumes laid out like the
// public archive bucket (YYYY/MM/DD/SITE/SITEYYYYMMDD_HHMMSS_V06), one per hour,
// with storm cells drifting between hours. Use it to exercise the decoder and
// cmd/validate without network access.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -site KSOX \
//	  -hours 3 \
//	  -out data/mock
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/nexrad-reflectivity-service/internal/adapter/nexrad/synth"
	"github.com/couchcryptid/nexrad-reflectivity-service/internal/domain"
	"github.com/couchcryptid/nexrad-reflectivity-service/internal/sites"
	"github.com/jonboulle/clockwork"
)

// baseTime pins the generated hours so fixtures are reproducible.
var baseTime = time.Date(2024, time.February, 4, 19, 30, 0, 0, time.UTC)

// cells seed a squall line southwest of the radar.
var cells = []synth.Cell{
	{Range: 80_000, Azimuth: 230, Radius: 8_000, PeakDBZ: 58},
	{Range: 95_000, Azimuth: 215, Radius: 6_000, PeakDBZ: 52},
	{Range: 70_000, Azimuth: 250, Radius: 10_000, PeakDBZ: 45},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	siteID := flag.String("site", "KSOX", "radar site id from the catalogue")
	sitesFile := flag.String("sites", "configs/sites.csv", "site catalogue CSV")
	hours := flag.Int("hours", 3, "number of whole hours to generate")
	out := flag.String("out", "", "output directory")
	gz := flag.Bool("gzip", false, "gzip-wrap each volume")
	flag.Parse()

	if *out == "" || *hours <= 0 {
		flag.Usage()
		return fmt.Errorf("missing required flags: -out, -hours > 0")
	}

	registry, err := sites.Load(*sitesFile)
	if err != nil {
		return err
	}
	site, err := registry.Get(*siteID)
	if err != nil {
		return err
	}

	domain.SetClock(clockwork.NewFakeClockAt(baseTime))
	defer domain.SetClock(nil)

	window := domain.HourWindow(*hours)
	oldest := window[len(window)-1]
	for _, hour := range window {
		// Volumes start a few minutes into the hour, like real VCP cycles.
		scanTime := hour.Add(3*time.Minute + 42*time.Second)
		archive := synth.Storm(synth.Archive{
			SiteID:         site.ID,
			ScanTime:       scanTime,
			Lat:            float32(site.Lat),
			Lon:            float32(site.Lon),
			SiteHeight:     int16(site.Alt),
			FeedhornHeight: 20,
			Gzip:           *gz,
		}, synth.DefaultScan(), synth.Drift(cells, 60, 15, hour.Sub(oldest)))

		path := filepath.Join(*out, scanTime.Format("2006/01/02"), site.ID,
			fmt.Sprintf("%s%s_V06", site.ID, scanTime.Format("20060102_150405")))
		if err := writeVolume(path, archive.Encode()); err != nil {
			return err
		}
		log.Printf("wrote %s (%d radials)", path, len(archive.Radials))
	}
	return nil
}

func writeVolume(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
