// Package scheduler keeps configured sites warm in the snapshot buffer.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/nexrad-reflectivity-service/internal/domain"
	"github.com/go-co-op/gocron"
)

const siteTimeout = 2 * time.Minute

// Warmer fills the buffer for a site.
type Warmer interface {
	GetSnapshots(ctx context.Context, siteID string) ([]domain.ReflectivitySnapshot, error)
}

// Prewarmer periodically requests snapshots for a fixed list of sites.
type Prewarmer struct {
	scheduler *gocron.Scheduler
	target    Warmer
	sites     []string
	interval  time.Duration
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Prewarmer for sites, run every interval.
func New(target Warmer, sites []string, interval time.Duration, logger *slog.Logger) *Prewarmer {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	ctx, cancel := context.WithCancel(context.Background())
	return &Prewarmer{
		scheduler: s,
		target:    target,
		sites:     sites,
		interval:  interval,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the job, which also runs immediately.
func (p *Prewarmer) Start() error {
	if len(p.sites) == 0 {
		p.logger.Info("prewarm disabled: no sites configured")
		return nil
	}

	if _, err := p.scheduler.Every(p.interval).Do(func() { p.RunOnce(p.ctx) }); err != nil {
		return err
	}
	p.logger.Info("prewarm scheduled", "sites", p.sites, "interval", p.interval)
	p.scheduler.StartAsync()
	return nil
}

// RunOnce requests each site in order, so the last site ends up most
// recently used. Failures are logged and do not stop the pass.
func (p *Prewarmer) RunOnce(ctx context.Context) {
	start := time.Now()
	failed := 0
	for _, site := range p.sites {
		if ctx.Err() != nil {
			return
		}
		siteCtx, cancel := context.WithTimeout(ctx, siteTimeout)
		snaps, err := p.target.GetSnapshots(siteCtx, site)
		cancel()
		if err != nil {
			failed++
			p.logger.Warn("prewarm failed", "site_id", site, "error", err)
			continue
		}
		p.logger.Debug("prewarmed site", "site_id", site, "snapshots", len(snaps))
	}
	p.logger.Info("prewarm pass complete", "sites", len(p.sites), "failed", failed, "duration", time.Since(start))
}

// Stop cancels in-flight work and stops future runs.
func (p *Prewarmer) Stop() {
	p.cancel()
	p.scheduler.Stop()
}
