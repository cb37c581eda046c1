package archive

import (
	"context"
	"log/slog"
	"time"

	"github.com/HatiCode/weatherdash/pkg/adapters"
	"github.com/HatiCode/weatherdash/pkg/weather"
)

// DefaultRefreshAfter is how long an archived current-year series is served
// before it is fetched again.
const DefaultRefreshAfter = 24 * time.Hour

// CachingSource is an adapters.Source that serves years from the Archive and
// falls back to the upstream source on a miss.
//
// Completed years never change and are kept forever. The current year is
// refreshed once its entry is older than RefreshAfter. Empty upstream results
// are not archived. Archive failures are logged and never fail a fetch.
type CachingSource struct {
	upstream     adapters.Source
	archive      *Archive
	refreshAfter time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewCachingSource wraps upstream with archive. refreshAfter <= 0 uses
// DefaultRefreshAfter.
func NewCachingSource(upstream adapters.Source, archive *Archive, refreshAfter time.Duration, logger *slog.Logger) *CachingSource {
	if logger == nil {
		logger = slog.Default()
	}
	if refreshAfter <= 0 {
		refreshAfter = DefaultRefreshAfter
	}
	return &CachingSource{
		upstream:     upstream,
		archive:      archive,
		refreshAfter: refreshAfter,
		now:          time.Now,
		logger:       logger,
	}
}

// Name reports the upstream name so archived and live data share metrics labels.
func (c *CachingSource) Name() string { return c.upstream.Name() }

// FetchYear implements adapters.Source.
func (c *CachingSource) FetchYear(ctx context.Context, year int, lat, lon float64) ([]weather.Observation, error) {
	loc := weather.Location{Lat: lat, Lon: lon}
	source := c.upstream.Name()
	now := c.now().UTC()

	entry, found, err := c.archive.Get(ctx, source, year, loc)
	if err != nil {
		c.logger.Warn("archive read failed", "source", source, "year", year, "error", err)
		found = false
	}
	if found && (year < now.Year() || now.Sub(entry.FetchedAt) < c.refreshAfter) {
		return entry.Observations, nil
	}

	obs, err := c.upstream.FetchYear(ctx, year, lat, lon)
	if err != nil {
		if found && ctx.Err() == nil {
			c.logger.Warn("upstream failed, serving stale archive entry",
				"source", source, "year", year, "fetched_at", entry.FetchedAt, "error", err)
			return entry.Observations, nil
		}
		return nil, err
	}

	if len(obs) > 0 {
		if err := c.archive.Put(ctx, source, year, loc, now, obs); err != nil {
			c.logger.Warn("archive write failed", "source", source, "year", year, "error", err)
		}
	}
	return obs, nil
}
