// Package predictor produces long-range point predictions for a location and
// date from per-calendar-day regression models.
//
// Models are resolved through a storage.Store. On a miss the day sample is
// extracted from history, trained and stored before use. Concurrent misses for
// the same cache key share one extraction.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/HatiCode/weatherdash/pkg/adapters"
	"github.com/HatiCode/weatherdash/pkg/anomaly"
	"github.com/HatiCode/weatherdash/pkg/history"
	"github.com/HatiCode/weatherdash/pkg/models"
	"github.com/HatiCode/weatherdash/pkg/storage"
	"github.com/HatiCode/weatherdash/pkg/weather"
)

// CacheScope selects how model sets are keyed.
type CacheScope string

const (
	// ScopeLocation keys by rounded location and calendar day.
	ScopeLocation CacheScope = "location"
	// ScopeDay keys by calendar day only, so a set trained for one location
	// answers every location.
	ScopeDay CacheScope = "day"
)

// Valid reports whether s is a known scope.
func (s CacheScope) Valid() bool {
	return s == ScopeLocation || s == ScopeDay
}

// CacheKey returns the store key of the model set for (lat, lon, monthDay).
// monthDay must already be normalized.
func CacheKey(scope CacheScope, lat, lon float64, monthDay string) string {
	if scope == ScopeDay {
		return monthDay
	}
	return weather.Location{Lat: lat, Lon: lon}.String() + ":" + monthDay
}

// Observer receives predictor telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveCache(hit bool)
	ObserveTrain(d time.Duration, modeled int)
	ObservePredict(d time.Duration, err error)
}

// Options configures a Predictor.
type Options struct {
	Scope     CacheScope
	StartYear int
	EndYear   int
}

// Predictor resolves model sets and evaluates them for a date.
type Predictor struct {
	extractor *history.Extractor
	store     storage.Store
	opts      Options
	group     singleflight.Group
	observer  Observer
	logger    *slog.Logger
}

// New creates a Predictor. An empty scope defaults to ScopeLocation and zero
// years to the anomaly table range. observer may be nil.
func New(extractor *history.Extractor, store storage.Store, opts Options, observer Observer, logger *slog.Logger) *Predictor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Scope == "" {
		opts.Scope = ScopeLocation
	}
	if opts.StartYear == 0 {
		opts.StartYear = anomaly.FirstYear
	}
	if opts.EndYear == 0 {
		opts.EndYear = anomaly.LastYear
	}
	return &Predictor{
		extractor: extractor,
		store:     store,
		opts:      opts,
		observer:  observer,
		logger:    logger,
	}
}

// Scope returns the configured cache scope.
func (p *Predictor) Scope() CacheScope { return p.opts.Scope }

// Store returns the model cache.
func (p *Predictor) Store() storage.Store { return p.store }

// GetModelsForDay returns the model set for monthDay at (lat, lon), training
// it on a cache miss. A cached set, empty or not, is returned without any
// upstream fetch. Failure to store a freshly trained set is logged and the set
// is still returned.
func (p *Predictor) GetModelsForDay(ctx context.Context, lat, lon float64, monthDay string) (models.ModelSet, error) {
	md, err := weather.NormalizeMonthDay(monthDay)
	if err != nil {
		return models.ModelSet{}, inputError(fmt.Sprintf("Invalid day %q", monthDay), err)
	}
	key := CacheKey(p.opts.Scope, lat, lon, md)

	if set, ok := p.cached(ctx, key); ok {
		return set, nil
	}

	v, err, shared := p.group.Do(key, func() (any, error) {
		// A flight that finished after our cache read has already stored the set.
		if set, found, err := p.store.Get(ctx, key); err == nil && found {
			return set, nil
		}
		return p.train(ctx, key, lat, lon, md)
	})
	if err != nil {
		return models.ModelSet{}, err
	}
	if shared {
		p.logger.Debug("joined in-flight training", "key", key)
	}
	return v.(models.ModelSet), nil
}

func (p *Predictor) cached(ctx context.Context, key string) (models.ModelSet, bool) {
	set, found, err := p.store.Get(ctx, key)
	if err != nil {
		p.logger.Warn("model cache read failed", "key", key, "error", err)
		found = false
	}
	if p.observer != nil {
		p.observer.ObserveCache(found)
	}
	return set, found
}

func (p *Predictor) train(ctx context.Context, key string, lat, lon float64, md string) (models.ModelSet, error) {
	sample, err := p.extractor.ExtractDaySample(ctx, lat, lon, md, p.opts.StartYear, p.opts.EndYear)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, adapters.ErrCircuitOpen) {
			return models.ModelSet{}, upstreamError(err)
		}
		return models.ModelSet{}, fmt.Errorf("extract day sample: %w", err)
	}

	start := time.Now()
	set := models.Train(sample)
	set.Key = key
	if p.observer != nil {
		p.observer.ObserveTrain(time.Since(start), len(set.Models))
	}

	p.logger.Info("trained model set",
		"key", key,
		"source", p.extractor.Source().Name(),
		"sample_size", set.SampleSize,
		"models", len(set.Models),
	)

	if err := p.store.Put(ctx, set); err != nil {
		p.logger.Warn("model cache write failed", "key", key, "error", err)
	}
	return set, nil
}

// Predict returns the prediction for date at (lat, lon). date may be an ISO
// calendar date, an RFC3339 timestamp or a compact YYYYMMDD date.
func (p *Predictor) Predict(ctx context.Context, lat, lon float64, date string) (weather.PredictedDay, error) {
	if strings.TrimSpace(date) == "" {
		p.observePredict(time.Now(), ErrNoDate)
		return weather.PredictedDay{}, ErrNoDate
	}
	t, err := weather.ParseDate(date)
	if err != nil {
		perr := &Error{Kind: KindInput, Message: fmt.Sprintf("Invalid date %q", date), Err: ErrInvalidDate}
		p.observePredict(time.Now(), perr)
		return weather.PredictedDay{}, perr
	}
	return p.PredictTime(ctx, lat, lon, t)
}

// PredictTime is Predict for an already parsed date. Only the year and
// calendar day of t are used.
func (p *Predictor) PredictTime(ctx context.Context, lat, lon float64, t time.Time) (day weather.PredictedDay, err error) {
	start := time.Now()
	defer func() { p.observePredict(start, err) }()

	if t.IsZero() {
		return weather.PredictedDay{}, ErrNoDate
	}
	if !(weather.Location{Lat: lat, Lon: lon}).Valid() {
		return weather.PredictedDay{}, inputError(fmt.Sprintf("Invalid coordinates %.4f,%.4f", lat, lon), nil)
	}

	set, err := p.GetModelsForDay(ctx, lat, lon, weather.MonthDay(t))
	if err != nil {
		return weather.PredictedDay{}, err
	}
	if set.Empty() {
		return weather.PredictedDay{}, ErrInsufficientData
	}

	return Evaluate(set, t), nil
}

// Evaluate applies every model of set at the year of t and its prediction
// anomaly, rounding each value to two decimals.
func Evaluate(set models.ModelSet, t time.Time) weather.PredictedDay {
	year := t.Year()
	a := anomaly.Lookup(year, anomaly.PredictionDefault)

	day := weather.PredictedDay{Date: weather.FormatDate(t)}
	for _, v := range weather.Variables {
		reg, ok := set.Models[v]
		if !ok {
			continue
		}
		day.Set(v, weather.Round2(reg.Predict(year, a)))
	}
	return day
}

func (p *Predictor) observePredict(start time.Time, err error) {
	if p.observer != nil {
		p.observer.ObservePredict(time.Since(start), err)
	}
}

// IsTimeout reports whether err came from an expired or canceled context.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
