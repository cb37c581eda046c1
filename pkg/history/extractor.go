// Package history assembles the per-calendar-day training sample: the
// observation of one month-day in every year of a range, tagged with its year
// and global temperature anomaly.
//
// Years are fetched concurrently with a bounded fan-out. A year that fails to
// fetch, returns no data or lacks the requested day is skipped; the sample is
// simply shorter. Results are always in increasing-year order.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/weatherdash/pkg/adapters"
	"github.com/HatiCode/weatherdash/pkg/anomaly"
	"github.com/HatiCode/weatherdash/pkg/weather"
)

// DefaultConcurrency is the number of years fetched in parallel.
const DefaultConcurrency = 6

// Skip reasons reported to the Observer.
const (
	SkipFetchFailed = "fetch_failed"
	SkipEmptyYear   = "empty_year"
	SkipNoMatch     = "no_match"
)

// DaySample is the training data for one calendar day at one location.
type DaySample struct {
	Location     weather.Location      `json:"location"`
	MonthDay     string                `json:"month_day"`
	StartYear    int                   `json:"start_year"`
	EndYear      int                   `json:"end_year"`
	Observations []weather.Observation `json:"observations"`
}

// Observer receives extraction telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveFetch(source string, d time.Duration, err error)
	ObserveSkip(reason string)
	ObserveSampleSize(n int)
}

// Extractor builds DaySamples from a historical Source.
type Extractor struct {
	source      adapters.Source
	concurrency int
	observer    Observer
	logger      *slog.Logger
}

// NewExtractor creates an Extractor. concurrency <= 0 uses DefaultConcurrency;
// 1 fetches years strictly in sequence. observer may be nil.
func NewExtractor(source adapters.Source, concurrency int, observer Observer, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Extractor{
		source:      source,
		concurrency: concurrency,
		observer:    observer,
		logger:      logger,
	}
}

// Source returns the underlying historical source.
func (e *Extractor) Source() adapters.Source { return e.source }

// ExtractDaySample collects the observation for monthDay ("MM-DD") in every year
// from startYear to endYear inclusive. Zero bounds default to the anomaly
// table range.
//
// Per-year failures are skipped. If ctx expires before every year completes,
// or the source reports adapters.ErrCircuitOpen, an error is returned rather
// than a partial sample.
func (e *Extractor) ExtractDaySample(ctx context.Context, lat, lon float64, monthDay string, startYear, endYear int) (DaySample, error) {
	md, err := weather.NormalizeMonthDay(monthDay)
	if err != nil {
		return DaySample{}, err
	}
	if startYear == 0 {
		startYear = anomaly.FirstYear
	}
	if endYear == 0 {
		endYear = anomaly.LastYear
	}
	if endYear < startYear {
		return DaySample{}, fmt.Errorf("invalid year range %d-%d", startYear, endYear)
	}

	start := time.Now()
	slots := make([]*weather.Observation, endYear-startYear+1)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for year := startYear; year <= endYear; year++ {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			obs, ok, err := e.fetchDay(gCtx, year, lat, lon, md)
			if ok {
				slots[year-startYear] = &obs
			}
			return err
		})
	}
	groupErr := g.Wait()

	if err := ctx.Err(); err != nil {
		return DaySample{}, fmt.Errorf("extract %s: %w", md, err)
	}
	if groupErr != nil {
		return DaySample{}, fmt.Errorf("extract %s: %w", md, groupErr)
	}

	sample := DaySample{
		Location:  weather.Location{Lat: lat, Lon: lon},
		MonthDay:  md,
		StartYear: startYear,
		EndYear:   endYear,
	}
	for _, obs := range slots {
		if obs != nil {
			sample.Observations = append(sample.Observations, *obs)
		}
	}

	if e.observer != nil {
		e.observer.ObserveSampleSize(len(sample.Observations))
	}
	e.logger.Debug("extracted day sample",
		"source", e.source.Name(),
		"location", sample.Location.String(),
		"month_day", md,
		"years", len(slots),
		"observations", len(sample.Observations),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return sample, nil
}

// fetchDay fetches one year and returns its record for md, tagged with the
// year and the training anomaly. The only error returned is an open upstream
// circuit; every other failure skips the year.
func (e *Extractor) fetchDay(ctx context.Context, year int, lat, lon float64, md string) (weather.Observation, bool, error) {
	start := time.Now()
	records, err := e.source.FetchYear(ctx, year, lat, lon)
	if e.observer != nil {
		e.observer.ObserveFetch(e.source.Name(), time.Since(start), err)
	}

	if err != nil {
		if errors.Is(err, adapters.ErrCircuitOpen) {
			return weather.Observation{}, false, err
		}
		if ctx.Err() == nil {
			e.logger.Debug("skipping year", "year", year, "reason", SkipFetchFailed, "error", err)
			e.skip(SkipFetchFailed)
		}
		return weather.Observation{}, false, nil
	}
	if len(records) == 0 {
		e.logger.Debug("skipping year", "year", year, "reason", SkipEmptyYear)
		e.skip(SkipEmptyYear)
		return weather.Observation{}, false, nil
	}

	for _, rec := range records {
		recMD, ok := weather.MonthDayOf(rec.Date)
		if !ok || recMD != md {
			continue
		}
		rec.Year = year
		rec.Anomaly = anomaly.Lookup(year, anomaly.TrainingDefault)
		return rec, true, nil
	}

	e.logger.Debug("skipping year", "year", year, "reason", SkipNoMatch, "month_day", md)
	e.skip(SkipNoMatch)
	return weather.Observation{}, false, nil
}

func (e *Extractor) skip(reason string) {
	if e.observer != nil {
		e.observer.ObserveSkip(reason)
	}
}
