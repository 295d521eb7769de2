package buffer_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/nexrad-reflectivity-service/internal/buffer"
	"github.com/couchcryptid/nexrad-reflectivity-service/internal/domain"
	"github.com/couchcryptid/nexrad-reflectivity-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, time.February, 4, 17, 25, 0, 0, time.UTC)

// hoursAgo returns the scan hour h hours before the current one.
func hoursAgo(h int) time.Time {
	return now.Truncate(time.Hour).Add(-time.Duration(h) * time.Hour)
}

// --- fakes ---

// fakeGateway serves synthetic volumes for the scan hours registered per site.
type fakeGateway struct {
	mu         sync.Mutex
	hours      map[string][]time.Time
	listErr    error
	parseErr   map[string]error
	listCalls  []int
	parseCalls map[string]int

	// block, when set for a site, holds Parse until the channel is closed.
	block   map[string]chan struct{}
	started chan string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		hours:      make(map[string][]time.Time),
		parseErr:   make(map[string]error),
		parseCalls: make(map[string]int),
		block:      make(map[string]chan struct{}),
		started:    make(chan string, 16),
	}
}

func (g *fakeGateway) addHours(site string, hours ...time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hours[site] = append(g.hours[site], hours...)
}

func location(site string, t time.Time) string {
	return fmt.Sprintf("%s/%s", site, t.Format("20060102_15"))
}

func (g *fakeGateway) ListAvailable(_ context.Context, siteID string, hoursBack int) (map[time.Time]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.listCalls = append(g.listCalls, hoursBack)
	if g.listErr != nil {
		return nil, g.listErr
	}

	out := make(map[time.Time]string)
	for _, want := range domain.HourWindow(hoursBack) {
		for _, have := range g.hours[siteID] {
			if have.Equal(want) {
				out[have] = location(siteID, have)
			}
		}
	}
	return out, nil
}

func (g *fakeGateway) Parse(_ context.Context, loc string, fields []string) (*domain.Volume, error) {
	site := strings.SplitN(loc, "/", 2)[0]

	g.mu.Lock()
	g.parseCalls[loc]++
	err := g.parseErr[loc]
	block := g.block[site]
	g.mu.Unlock()

	if block != nil {
		g.started <- site
		<-block
	}
	if err != nil {
		return nil, err
	}
	if len(fields) != 1 || fields[0] != domain.FieldReflectivity {
		return nil, fmt.Errorf("unexpected fields %v", fields)
	}

	return &domain.Volume{
		Lat: 33.8178, Lon: -117.636, Alt: 955,
		Sweeps: []domain.Sweep{{
			ElevationAngle: 0.5,
			Azimuths:       []float64{0},
			Elevations:     []float64{0.5},
			Ranges:         []float64{2000, 4000, 6000},
			Fields:         map[string][]float32{domain.FieldReflectivity: {-30, 15, 40}},
		}},
	}, nil
}

func (g *fakeGateway) totalParses() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.parseCalls {
		n += c
	}
	return n
}

func (g *fakeGateway) lastListCall() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.listCalls[len(g.listCalls)-1]
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []domain.ReflectivitySnapshot
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, s domain.ReflectivitySnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, s)
	return nil
}

// --- helpers ---

func freezeClock(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBuffer(gw domain.ArchiveGateway, pub domain.SnapshotPublisher, maxSites, depth int) *buffer.Buffer {
	cfg := buffer.DefaultConfig()
	cfg.MaxSites = maxSites
	cfg.SnapshotsPerSite = depth
	cfg.LookbackHours = depth
	cfg.DownsampleFactor = 1
	return buffer.New(gw, pub, cfg, discardLogger(), observability.NewMetricsForTesting())
}

func hoursOf(snaps []domain.ReflectivitySnapshot) []time.Time {
	out := make([]time.Time, len(snaps))
	for i, s := range snaps {
		out[i] = s.Timestamp
	}
	return out
}

// --- tests ---

func TestGetSnapshots_ColdFillThenCacheHit(t *testing.T) {
	freezeClock(t)
	gw := newFakeGateway()
	gw.addHours("KSOX", hoursAgo(1), hoursAgo(2), hoursAgo(3))
	b := newBuffer(gw, nil, 5, 3)

	snaps, err := b.GetSnapshots(context.Background(), "KSOX")
	require.NoError(t, err)

	assert.Equal(t, []time.Time{hoursAgo(1), hoursAgo(2), hoursAgo(3)}, hoursOf(snaps))
	assert.Equal(t, hoursAgo(1), b.Freshness("KSOX"))
	assert.Equal(t, 3, gw.totalParses())
	for _, s := range snaps {
		assert.Equal(t, "KSOX", s.SiteID)
		assert.Equal(t, 2, s.Len(), "gates above -20 dBZ")
	}

	again, err := b.GetSnapshots(context.Background(), "KSOX")
	require.NoError(t, err)
	assert.Equal(t, hoursOf(snaps), hoursOf(again))
	assert.Equal(t, 3, gw.totalParses(), "full window must not reparse")
	assert.Len(t, gw.listCalls, 1, "full window must not relist")
}

func TestGetSnapshots_WindowNeverExceedsDepth(t *testing.T) {
	freezeClock(t)
	gw := newFakeGateway()
	gw.addHours("KSOX", hoursAgo(1), hoursAgo(2), hoursAgo(3), hoursAgo(4), hoursAgo(5))

	cfg := buffer.DefaultConfig()
	cfg.SnapshotsPerSite = 3
	cfg.LookbackHours = 5
	b := buffer.New(gw, nil, cfg, discardLogger(), observability.NewMetricsForTesting())

	snaps, err := b.GetSnapshots(context.Background(), "KSOX")
	require.NoError(t, err)

	assert.Equal(t, []time.Time{hoursAgo(1), hoursAgo(2), hoursAgo(3)}, hoursOf(snaps))
	assert.Equal(t, 5, gw.totalParses(), "older hours are parsed then displaced")
}

func TestGetSnapshots_PartialRefillRequestsMissingHours(t *testing.T) {
	clk := clockwork.NewFakeClockAt(now)
	domain.SetClock(clk)
	t.Cleanup(func() { domain.SetClock(nil) })

	gw := newFakeGateway()
	gw.addHours("KSOX", hoursAgo(2), hoursAgo(3))
	b := newBuffer(gw, nil, 5, 3)

	snaps, err := b.GetSnapshots(context.Background(), "KSOX")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{hoursAgo(2), hoursAgo(3)}, hoursOf(snaps))

	// The missing hour is still missing: one hour is requested, nothing reparsed.
	_, err = b.GetSnapshots(context.Background(), "KSOX")
	require.NoError(t, err)
	assert.Equal(t, 1, gw.lastListCall())
	assert.Equal(t, 2, gw.totalParses())

	// An hour later the newest scan shows up.
	clk.Advance(time.Hour)
	gw.addHours("KSOX", hoursAgo(0))

	snaps, err = b.GetSnapshots(context.Background(), "KSOX")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{hoursAgo(0), hoursAgo(2), hoursAgo(3)}, hoursOf(snaps))
	assert.Equal(t, hoursAgo(0), b.Freshness("KSOX"))
	assert.Equal(t, 3, gw.totalParses())
}

func TestGetSnapshots_EmptyListingIsNoop(t *testing.T) {
	freezeClock(t)
	gw := newFakeGateway()
	b := newBuffer(gw, nil, 5, 3)

	snaps, err := b.GetSnapshots(context.Background(), "KSOX")
	require.NoError(t, err)
	assert.Empty(t, snaps)
	assert.True(t, b.Freshness("KSOX").IsZero())

	require.Len(t, b.Sites(), 1)
	assert.Equal(t, "KSOX", b.Sites()[0].SiteID)
}

func TestAddData_FreshnessNeverRegresses(t *testing.T) {
	freezeClock(t)
	gw := newFakeGateway()
	gw.addHours("KSOX", hoursAgo(1), hoursAgo(2))
	b := newBuffer(gw, nil, 5, 3)

	_, err := b.GetSnapshots(context.Background(), "KSOX")
	require.NoError(t, err)
	require.Equal(t, hoursAgo(1), b.Freshness("KSOX"))

	// Asking only for older hours, or hours with no data, leaves the cursor.
	require.NoError(t, b.AddData(context.Background(), "KSOX", 2))
	assert.Equal(t, hoursAgo(1), b.Freshness("KSOX"))

	gw.mu.Lock()
	gw.hours["KSOX"] = nil
	gw.mu.Unlock()
	require.NoError(t, b.AddData(context.Background(), "KSOX", 3))
	assert.Equal(t, hoursAgo(1), b.Freshness("KSOX"))
	assert.Equal(t, 2, gw.totalParses())
}

func TestGetSnapshots_EvictsLeastRecentlyUsedSite(t *testing.T) {
	freezeClock(t)
	gw := newFakeGateway()
	for _, site := range []string{"KSOX", "KNKX", "KVTX"} {
		gw.addHours(site, hoursAgo(1))
	}
	b := newBuffer(gw, nil, 2, 1)
	ctx := context.Background()

	for _, site := range []string{"KSOX", "KNKX", "KSOX", "KVTX"} {
		_, err := b.GetSnapshots(ctx, site)
		require.NoError(t, err)
	}

	states := b.Sites()
	require.Len(t, states, 2)
	assert.Equal(t, "KVTX", states[0].SiteID)
	assert.Equal(t, "KSOX", states[1].SiteID)
	assert.True(t, b.Freshness("KNKX").IsZero(), "evicted site forgets its cursor")
}

func TestGetSnapshots_ReaddedSiteIsRefilled(t *testing.T) {
	freezeClock(t)
	gw := newFakeGateway()
	gw.addHours("KSOX", hoursAgo(1))
	gw.addHours("KNKX", hoursAgo(1))
	b := newBuffer(gw, nil, 1, 1)
	ctx := context.Background()

	_, err := b.GetSnapshots(ctx, "KSOX")
	require.NoError(t, err)
	_, err = b.GetSnapshots(ctx, "KNKX")
	require.NoError(t, err)

	snaps, err := b.GetSnapshots(ctx, "KSOX")
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
	assert.Equal(t, 2, gw.parseCalls[location("KSOX", hoursAgo(1))])
}

func TestGetSnapshots_ParseFailureKeepsEarlierScans(t *testing.T) {
	freezeClock(t)
	gw := newFakeGateway()
	gw.addHours("KSOX", hoursAgo(1), hoursAgo(2), hoursAgo(3))
	gw.parseErr[location("KSOX", hoursAgo(2))] = errors.New("truncated archive")
	b := newBuffer(gw, nil, 5, 3)

	_, err := b.GetSnapshots(context.Background(), "KSOX")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated archive")
	assert.Equal(t, hoursAgo(3), b.Freshness("KSOX"), "cursor stops before the failed hour")

	delete(gw.parseErr, location("KSOX", hoursAgo(2)))

	snaps, err := b.GetSnapshots(context.Background(), "KSOX")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{hoursAgo(1), hoursAgo(2), hoursAgo(3)}, hoursOf(snaps))
	assert.Equal(t, 1, gw.parseCalls[location("KSOX", hoursAgo(3))], "buffered hour is not reparsed")
}

func TestGetSnapshots_ListFailureLeavesStateUnchanged(t *testing.T) {
	freezeClock(t)
	gw := newFakeGateway()
	gw.listErr = errors.New("connection reset")
	b := newBuffer(gw, nil, 5, 3)

	_, err := b.GetSnapshots(context.Background(), "KSOX")
	require.Error(t, err)
	assert.ErrorIs(t, err, gw.listErr)
	assert.True(t, b.Freshness("KSOX").IsZero())

	gw.listErr = nil
	gw.addHours("KSOX", hoursAgo(1))

	snaps, err := b.GetSnapshots(context.Background(), "KSOX")
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestGetSnapshots_PublishesNewScans(t *testing.T) {
	freezeClock(t)
	gw := newFakeGateway()
	gw.addHours("KSOX", hoursAgo(1), hoursAgo(2))
	pub := &recordingPublisher{}
	b := newBuffer(gw, pub, 5, 3)

	_, err := b.GetSnapshots(context.Background(), "KSOX")
	require.NoError(t, err)
	_, err = b.GetSnapshots(context.Background(), "KSOX")
	require.NoError(t, err)

	assert.Equal(t, []time.Time{hoursAgo(2), hoursAgo(1)}, hoursOf(pub.published))
}

func TestGetSnapshots_PublishFailureIsNotFatal(t *testing.T) {
	freezeClock(t)
	gw := newFakeGateway()
	gw.addHours("KSOX", hoursAgo(1))
	b := newBuffer(gw, &recordingPublisher{err: errors.New("broker down")}, 5, 3)

	snaps, err := b.GetSnapshots(context.Background(), "KSOX")
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestGetSnapshots_RefillForEvictedSiteIsInert(t *testing.T) {
	freezeClock(t)
	gw := newFakeGateway()
	gw.addHours("KSOX", hoursAgo(1))
	gw.addHours("KNKX", hoursAgo(1))
	release := make(chan struct{})
	gw.block["KSOX"] = release
	b := newBuffer(gw, nil, 1, 3)

	type result struct {
		snaps []domain.ReflectivitySnapshot
		err   error
	}
	done := make(chan result, 1)
	go func() {
		snaps, err := b.GetSnapshots(context.Background(), "KSOX")
		done <- result{snaps, err}
	}()

	require.Equal(t, "KSOX", <-gw.started)

	// KNKX takes the only slot while KSOX is still parsing.
	_, err := b.GetSnapshots(context.Background(), "KNKX")
	require.NoError(t, err)
	close(release)

	res := <-done
	require.NoError(t, res.err)
	assert.Empty(t, res.snaps)
	assert.True(t, b.Freshness("KSOX").IsZero())

	states := b.Sites()
	require.Len(t, states, 1)
	assert.Equal(t, "KNKX", states[0].SiteID)
	assert.Equal(t, 1, states[0].Snapshots)
}

func TestGetSnapshots_ConcurrentCallersKeepWindowsOrdered(t *testing.T) {
	freezeClock(t)
	gw := newFakeGateway()
	sites := []string{"KSOX", "KNKX", "KVTX", "KEYX"}
	for _, site := range sites {
		gw.addHours(site, hoursAgo(1), hoursAgo(2), hoursAgo(3), hoursAgo(4))
	}
	b := newBuffer(gw, nil, 3, 3)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(site string) {
			defer wg.Done()
			snaps, err := b.GetSnapshots(context.Background(), site)
			assert.NoError(t, err)
			assert.LessOrEqual(t, len(snaps), 3)
			for k := 1; k < len(snaps); k++ {
				assert.True(t, snaps[k-1].Timestamp.After(snaps[k].Timestamp), "window must be strictly newest first")
			}
		}(sites[i%len(sites)])
	}
	wg.Wait()

	states := b.Sites()
	assert.LessOrEqual(t, len(states), 3)
	for _, s := range states {
		assert.LessOrEqual(t, s.Snapshots, 3)
	}
}

func TestNew_LookbackDefaultsToDepth(t *testing.T) {
	freezeClock(t)
	gw := newFakeGateway()
	cfg := buffer.DefaultConfig()
	cfg.SnapshotsPerSite = 4
	cfg.LookbackHours = 0
	b := buffer.New(gw, nil, cfg, discardLogger(), observability.NewMetricsForTesting())

	_, err := b.GetSnapshots(context.Background(), "KSOX")
	require.NoError(t, err)
	assert.Equal(t, 4, gw.lastListCall())
}
