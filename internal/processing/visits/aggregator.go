package visits

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vlourenco/atalho/internal/infrastructure/logger"
	"github.com/vlourenco/atalho/internal/processing/links"
	"go.uber.org/zap"
)

// Deltas names the buckets one visit increments. Total is always
// incremented; Country and Referrer are omitted when empty.
type Deltas struct {
	Browser  string
	System   string
	Country  string
	Referrer string
}

// StatsWriter applies one visit's deltas atomically per link row. Concurrent
// increments from different requests must all be reflected.
type StatsWriter interface {
	Increment(ctx context.Context, linkID string, d Deltas) error
}

// VisitCounter bumps the link's own visit_count.
type VisitCounter interface {
	IncrementVisitCount(ctx context.Context, id string) error
}

// Geolocator resolves a source address to an ISO country code. An empty
// code with nil error means "unresolvable" and is not an error condition.
type Geolocator interface {
	CountryCode(ctx context.Context, ip string) (string, error)
}

// NoopGeolocator is used when no geolocation collaborator is configured.
type NoopGeolocator struct{}

func (NoopGeolocator) CountryCode(context.Context, string) (string, error) { return "", nil }

type Aggregator struct {
	stats StatsWriter
	links VisitCounter
	geo   Geolocator
}

func NewAggregator(stats StatsWriter, linkCounter VisitCounter, geo Geolocator) *Aggregator {
	if geo == nil {
		geo = NoopGeolocator{}
	}
	return &Aggregator{
		stats: stats,
		links: linkCounter,
		geo:   geo,
	}
}

// Record classifies the request and applies the increments. Geolocation
// failure omits the country bucket but never drops the visit.
func (a *Aggregator) Record(ctx context.Context, meta links.VisitMeta) error {
	if strings.TrimSpace(meta.LinkID) == "" {
		return nil
	}

	d := Deltas{
		Browser:  BrowserOf(meta.UserAgent),
		System:   SystemOf(meta.UserAgent),
		Referrer: ReferrerHost(meta.Referrer),
	}

	if meta.RemoteIP != "" {
		country, err := a.geo.CountryCode(ctx, meta.RemoteIP)
		if err != nil {
			logger.Debug("geolocation lookup failed, omitting country",
				zap.Error(err),
				zap.String("link_id", meta.LinkID),
			)
		} else {
			d.Country = strings.ToUpper(strings.TrimSpace(country))
		}
	}

	if err := a.stats.Increment(ctx, meta.LinkID, d); err != nil {
		return fmt.Errorf("increment visit stats: %w", err)
	}

	if err := a.links.IncrementVisitCount(ctx, meta.LinkID); err != nil {
		return fmt.Errorf("increment visit count: %w", err)
	}

	return nil
}

// recordTimeout bounds a single aggregation run inside the worker pool.
const recordTimeout = 5 * time.Second
