package visits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vlourenco/atalho/internal/processing/links"
)

type memStats struct {
	mu    sync.Mutex
	perID map[string]*links.VisitStats
}

func newMemStats() *memStats {
	return &memStats{perID: make(map[string]*links.VisitStats)}
}

func (m *memStats) Increment(_ context.Context, linkID string, d Deltas) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.perID[linkID]
	if !ok {
		stats = &links.VisitStats{
			LinkID:    linkID,
			Browsers:  make(map[string]int64),
			Systems:   make(map[string]int64),
			Countries: make(map[string]int64),
			Referrers: make(map[string]int64),
		}
		m.perID[linkID] = stats
	}

	stats.Total++
	stats.Browsers[d.Browser]++
	stats.Systems[d.System]++
	if d.Country != "" {
		stats.Countries[d.Country]++
	}
	if d.Referrer != "" {
		stats.Referrers[d.Referrer]++
	}
	return nil
}

func (m *memStats) get(linkID string) *links.VisitStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perID[linkID]
}

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemCounter() *memCounter { return &memCounter{counts: make(map[string]int64)} }

func (m *memCounter) IncrementVisitCount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[id]++
	return nil
}

type stubGeo struct {
	country string
	err     error
}

func (g stubGeo) CountryCode(context.Context, string) (string, error) {
	return g.country, g.err
}

func meta(linkID, ua, referrer, ip string) links.VisitMeta {
	return links.VisitMeta{
		LinkID:     linkID,
		Address:    "go",
		UserAgent:  ua,
		Referrer:   referrer,
		RemoteIP:   ip,
		OccurredAt: time.Now().UTC(),
	}
}

const chromeWindowsUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func TestAggregatorRecord_AllBuckets(t *testing.T) {
	stats := newMemStats()
	counter := newMemCounter()
	agg := NewAggregator(stats, counter, stubGeo{country: "br"})

	err := agg.Record(context.Background(), meta("link-1", chromeWindowsUA, "https://www.reddit.com/r/golang", "203.0.113.9"))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	got := stats.get("link-1")
	if got == nil {
		t.Fatal("no stats written")
	}
	if got.Total != 1 {
		t.Errorf("total = %d, want 1", got.Total)
	}
	if got.Browsers[BrowserChrome] != 1 {
		t.Errorf("browsers = %v, want chrome=1", got.Browsers)
	}
	if got.Systems[SystemWindows] != 1 {
		t.Errorf("systems = %v, want windows=1", got.Systems)
	}
	if got.Countries["BR"] != 1 {
		t.Errorf("countries = %v, want BR=1 (uppercased)", got.Countries)
	}
	if got.Referrers["reddit.com"] != 1 {
		t.Errorf("referrers = %v, want reddit.com=1", got.Referrers)
	}
	if counter.counts["link-1"] != 1 {
		t.Errorf("visit count = %d, want 1", counter.counts["link-1"])
	}
}

func TestAggregatorRecord_GeoFailureOmitsCountry(t *testing.T) {
	stats := newMemStats()
	agg := NewAggregator(stats, newMemCounter(), stubGeo{err: errors.New("upstream timeout")})

	err := agg.Record(context.Background(), meta("link-1", chromeWindowsUA, "", "203.0.113.9"))
	if err != nil {
		t.Fatalf("Record must not fail on geolocation errors: %v", err)
	}

	got := stats.get("link-1")
	if got.Total != 1 {
		t.Errorf("total = %d, want 1", got.Total)
	}
	if len(got.Countries) != 0 {
		t.Errorf("countries = %v, want empty on geo failure", got.Countries)
	}
}

func TestAggregatorRecord_NoRemoteIPSkipsGeo(t *testing.T) {
	stats := newMemStats()
	agg := NewAggregator(stats, newMemCounter(), stubGeo{country: "US"})

	if err := agg.Record(context.Background(), meta("link-1", chromeWindowsUA, "", "")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if got := stats.get("link-1"); len(got.Countries) != 0 {
		t.Errorf("countries = %v, want empty without a source address", got.Countries)
	}
}

func TestAggregatorRecord_EmptyLinkIDIgnored(t *testing.T) {
	stats := newMemStats()
	agg := NewAggregator(stats, newMemCounter(), nil)

	if err := agg.Record(context.Background(), meta("", chromeWindowsUA, "", "")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(stats.perID) != 0 {
		t.Error("stats written for an empty link id")
	}
}

func TestAggregatorRecord_ConcurrentVisits(t *testing.T) {
	stats := newMemStats()
	counter := newMemCounter()
	agg := NewAggregator(stats, counter, stubGeo{country: "DE"})

	const visitors = 64
	var wg sync.WaitGroup
	for range visitors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = agg.Record(context.Background(), meta("link-1", chromeWindowsUA, "https://t.co/x", "203.0.113.9"))
		}()
	}
	wg.Wait()

	got := stats.get("link-1")
	if got.Total != visitors {
		t.Errorf("total = %d, want %d (no lost updates)", got.Total, visitors)
	}
	if got.Browsers[BrowserChrome] != visitors {
		t.Errorf("chrome bucket = %d, want %d", got.Browsers[BrowserChrome], visitors)
	}
	if counter.counts["link-1"] != visitors {
		t.Errorf("visit count = %d, want %d", counter.counts["link-1"], visitors)
	}
}

func TestWorkerPool_DeliversDispatchedVisits(t *testing.T) {
	stats := newMemStats()
	agg := NewAggregator(stats, newMemCounter(), nil)

	pool := NewWorkerPool(agg, 64, 2)
	pool.Start()

	for range 10 {
		pool.Dispatch(meta("link-1", chromeWindowsUA, "", ""))
	}
	pool.Stop()

	got := stats.get("link-1")
	if got == nil || got.Total != 10 {
		t.Fatalf("aggregated total = %v, want 10 after Stop drained the queue", got)
	}
}

func TestWorkerPool_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	stats := newMemStats()
	agg := NewAggregator(stats, newMemCounter(), nil)

	// Workers never started: the queue fills and further dispatches drop.
	pool := NewWorkerPool(agg, 2, 1)

	done := make(chan struct{})
	go func() {
		for range 10 {
			pool.Dispatch(meta("link-1", chromeWindowsUA, "", ""))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}
}
