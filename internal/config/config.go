package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// maxThresholdDBZ is the top of the reflectivity scale; a noise floor at or
// above it would discard every gate.
const maxThresholdDBZ = 80

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Snapshot buffer.
	MaxSites         int
	SnapshotsPerSite int
	LookbackHours    int
	ThresholdDBZ     float64
	DownsampleFactor int

	// Site metadata.
	SitesFile   string
	DefaultSite string

	// Level II archive access.
	ArchiveBaseURL   string
	ArchiveTimeout   time.Duration
	ArchiveListTTL   time.Duration
	ArchiveVolumeTTL time.Duration
	ArchiveCacheSize int

	// Snapshot notifications; disabled when no brokers are set.
	KafkaBrokers       []string
	KafkaSnapshotTopic string

	// Periodic prewarm; disabled when no sites are set.
	PrewarmSites    []string
	PrewarmInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		SitesFile:          sharedcfg.EnvOrDefault("SITES_FILE", "configs/sites.csv"),
		DefaultSite:        strings.ToUpper(sharedcfg.EnvOrDefault("DEFAULT_SITE", "KSOX")),
		ArchiveBaseURL:     sharedcfg.EnvOrDefault("ARCHIVE_BASE_URL", "https://unidata-nexrad-level2.s3.amazonaws.com"),
		KafkaSnapshotTopic: sharedcfg.EnvOrDefault("KAFKA_SNAPSHOT_TOPIC", "reflectivity-snapshots"),
	}

	if cfg.MaxSites, err = positiveInt("BUFFER_MAX_SITES", 5); err != nil {
		return nil, err
	}
	if cfg.SnapshotsPerSite, err = positiveInt("BUFFER_SNAPSHOTS_PER_SITE", 3); err != nil {
		return nil, err
	}
	if cfg.LookbackHours, err = positiveInt("BUFFER_LOOKBACK_HOURS", cfg.SnapshotsPerSite); err != nil {
		return nil, err
	}
	if cfg.DownsampleFactor, err = positiveInt("DOWNSAMPLE_FACTOR", 20); err != nil {
		return nil, err
	}
	if cfg.ArchiveCacheSize, err = positiveInt("ARCHIVE_CACHE_SIZE", 4); err != nil {
		return nil, err
	}
	if cfg.ThresholdDBZ, err = threshold(); err != nil {
		return nil, err
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"ARCHIVE_TIMEOUT", "60s", &cfg.ArchiveTimeout},
		{"ARCHIVE_LIST_TTL", "5m", &cfg.ArchiveListTTL},
		{"ARCHIVE_VOLUME_TTL", "1h", &cfg.ArchiveVolumeTTL},
		{"PREWARM_INTERVAL", "10m", &cfg.PrewarmInterval},
	}
	for _, d := range durations {
		if *d.dest, err = positiveDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}
	cfg.PrewarmSites = parseSites(os.Getenv("PREWARM_SITES"))

	return cfg, nil
}

func positiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func positiveDuration(key, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func threshold() (float64, error) {
	s := sharedcfg.EnvOrDefault("REFLECTIVITY_THRESHOLD_DBZ", "-20")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, fmt.Errorf("invalid REFLECTIVITY_THRESHOLD_DBZ: %q", s)
	}
	if v >= maxThresholdDBZ {
		return 0, fmt.Errorf("invalid REFLECTIVITY_THRESHOLD_DBZ: %v is not below %d", v, maxThresholdDBZ)
	}
	return v, nil
}

// parseSites splits a comma-separated site list, upper-casing and dropping blanks.
func parseSites(s string) []string {
	var sites []string
	for _, part := range strings.Split(s, ",") {
		if id := strings.ToUpper(strings.TrimSpace(part)); id != "" {
			sites = append(sites, id)
		}
	}
	return sites
}
