// Package buffer keeps the most recent reflectivity snapshots for a bounded
// set of radar sites and refills them lazily from the archive.
//
// Sites live in an LRU of fixed capacity. Each site owns a window of at most
// SnapshotsPerSite snapshots, newest first, and a freshness cursor: the scan
// hour of the newest snapshot buffered for it. A request for a site that is
// missing triggers a cold fill of LookbackHours; a site with a short window
// triggers a partial fill of just the missing hours; a full window is served
// as is. Hours at or before the cursor are never parsed again.
//
// Archive I/O and reduction run outside the lock. Only the window insert and
// cursor advance are serialized, and an insert is dropped if another refill
// has already buffered that hour or a later one, so concurrent refills may
// duplicate work but never disorder a window.
//
// Evicting a site also forgets its cursor, so a site that comes back is
// filled from scratch instead of sitting on an empty window.
package buffer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/nexrad-reflectivity-service/internal/domain"
	"github.com/couchcryptid/nexrad-reflectivity-service/internal/observability"
)

// Config sizes the buffer and parameterizes scan reduction.
type Config struct {
	MaxSites         int
	SnapshotsPerSite int
	LookbackHours    int
	ThresholdDBZ     float64
	DownsampleFactor int
}

// DefaultConfig mirrors the service defaults.
func DefaultConfig() Config {
	return Config{
		MaxSites:         5,
		SnapshotsPerSite: 3,
		LookbackHours:    3,
		ThresholdDBZ:     -20.0,
		DownsampleFactor: 20,
	}
}

// SiteState describes one buffered site.
type SiteState struct {
	SiteID    string    `json:"site_id"`
	Snapshots int       `json:"snapshots"`
	Freshness time.Time `json:"freshness"`
}

// Buffer is a concurrency-safe, site-keyed cache of recent snapshots.
type Buffer struct {
	gateway   domain.ArchiveGateway
	publisher domain.SnapshotPublisher
	cfg       Config
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu      sync.Mutex
	sites   *siteCache
	cursors map[string]time.Time
}

// New creates an empty Buffer. Pass a nil publisher to disable snapshot
// notifications.
func New(gateway domain.ArchiveGateway, publisher domain.SnapshotPublisher, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Buffer {
	if cfg.LookbackHours <= 0 {
		cfg.LookbackHours = cfg.SnapshotsPerSite
	}
	return &Buffer{
		gateway:   gateway,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		sites:     newSiteCache(cfg.MaxSites),
		cursors:   make(map[string]time.Time),
	}
}

// GetSnapshots returns the site's buffered snapshots, newest first, refilling
// from the archive first if the site is missing or its window is short.
// Archive failures are returned; whatever was buffered before the failure stays.
func (b *Buffer) GetSnapshots(ctx context.Context, siteID string) ([]domain.ReflectivitySnapshot, error) {
	w, hours, fill := b.plan(siteID)
	b.metrics.SnapshotRequests.WithLabelValues(fill).Inc()

	if hours > 0 {
		b.logger.Info("refilling site buffer", "site_id", siteID, "fill", fill, "hours", hours)
		if err := b.AddData(ctx, siteID, hours); err != nil {
			return nil, err
		}
	} else {
		b.logger.Debug("serving buffered snapshots", "site_id", siteID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return w.snapshots(), nil
}

// plan looks the site up, creating its window on a miss, and decides how many
// hours to request.
func (b *Buffer) plan(siteID string) (w *window, hours int, fill string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w, ok := b.sites.get(siteID)
	switch {
	case !ok:
		w = newWindow(b.cfg.SnapshotsPerSite)
		for _, evicted := range b.sites.put(siteID, w) {
			delete(b.cursors, evicted)
			b.metrics.SiteEvictions.Inc()
			b.logger.Info("evicted site from buffer", "site_id", evicted)
		}
		b.metrics.BufferedSites.Set(float64(b.sites.len()))
		return w, b.cfg.LookbackHours, "cold"
	case !w.full():
		return w, b.cfg.SnapshotsPerSite - w.len(), "partial"
	default:
		return w, 0, "hit"
	}
}

// AddData buffers every scan from the last hoursBack hours that is newer than
// the site's freshness cursor, oldest first. An empty listing is a no-op.
// On a failed scan the scans before it stay buffered and the cursor stops at
// the last one inserted.
func (b *Buffer) AddData(ctx context.Context, siteID string, hoursBack int) error {
	cursor := b.Freshness(siteID)

	available, err := b.gateway.ListAvailable(ctx, siteID, hoursBack)
	if err != nil {
		b.metrics.GatewayErrors.WithLabelValues("list").Inc()
		return fmt.Errorf("list archive for %s: %w", siteID, err)
	}
	if len(available) == 0 {
		b.logger.Debug("no archived scans available", "site_id", siteID, "hours", hoursBack)
		return nil
	}

	hours := make([]time.Time, 0, len(available))
	for t := range available {
		hours = append(hours, t)
	}
	slices.SortFunc(hours, func(x, y time.Time) int { return x.Compare(y) })

	for _, hour := range hours {
		if !hour.After(cursor) {
			continue
		}

		snap, err := b.scan(ctx, siteID, hour, available[hour])
		if err != nil {
			return err
		}
		if b.insert(snap) {
			b.publish(ctx, snap)
		}
	}
	return nil
}

// scan parses and reduces one archived volume. No lock is held.
func (b *Buffer) scan(ctx context.Context, siteID string, hour time.Time, location string) (domain.ReflectivitySnapshot, error) {
	vol, err := b.gateway.Parse(ctx, location, []string{domain.FieldReflectivity})
	if err != nil {
		b.metrics.GatewayErrors.WithLabelValues("parse").Inc()
		return domain.ReflectivitySnapshot{}, fmt.Errorf("parse %s scan %s: %w", siteID, hour.Format(time.RFC3339), err)
	}

	start := time.Now()
	snap, err := domain.Reduce(hour, siteID, vol, b.cfg.ThresholdDBZ, b.cfg.DownsampleFactor)
	if err != nil {
		b.metrics.GatewayErrors.WithLabelValues("parse").Inc()
		return domain.ReflectivitySnapshot{}, fmt.Errorf("reduce %s scan %s: %w", siteID, hour.Format(time.RFC3339), err)
	}
	b.metrics.ReduceDuration.Observe(time.Since(start).Seconds())
	b.metrics.ReducedPoints.Observe(float64(snap.Len()))
	return snap, nil
}

// insert places snap at the front of its site's window and advances the
// cursor. It reports false, changing nothing, when the site has been evicted
// or a concurrent refill already buffered this hour or a newer one.
func (b *Buffer) insert(snap domain.ReflectivitySnapshot) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	w, ok := b.sites.peek(snap.SiteID)
	if !ok {
		b.logger.Debug("dropping scan for evicted site", "site_id", snap.SiteID, "scan_time", snap.Timestamp)
		return false
	}
	if !snap.Timestamp.After(b.cursors[snap.SiteID]) {
		return false
	}

	w.pushFront(snap)
	b.cursors[snap.SiteID] = snap.Timestamp
	b.metrics.ScansBuffered.Inc()
	b.logger.Info("buffered scan", "site_id", snap.SiteID, "scan_time", snap.Timestamp, "points", snap.Len())
	return true
}

func (b *Buffer) publish(ctx context.Context, snap domain.ReflectivitySnapshot) {
	if b.publisher == nil {
		return
	}
	if err := b.publisher.Publish(ctx, snap); err != nil {
		b.metrics.SnapshotsPublished.WithLabelValues("error").Inc()
		b.logger.Warn("publish snapshot failed", "site_id", snap.SiteID, "scan_time", snap.Timestamp, "error", err)
		return
	}
	b.metrics.SnapshotsPublished.WithLabelValues("success").Inc()
}

// Freshness returns the site's freshness cursor, or the zero time if nothing
// has been buffered for it.
func (b *Buffer) Freshness(siteID string) time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursors[siteID]
}

// Sites lists buffered sites, most recently requested first.
func (b *Buffer) Sites() []SiteState {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := b.sites.keys()
	states := make([]SiteState, 0, len(keys))
	for _, id := range keys {
		w, _ := b.sites.peek(id)
		states = append(states, SiteState{SiteID: id, Snapshots: w.len(), Freshness: b.cursors[id]})
	}
	return states
}
