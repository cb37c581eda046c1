// Package warmup periodically pre-trains model sets for configured locations
// and the coming calendar days, so that predictions for them are cache hits.
package warmup

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/HatiCode/weatherdash/pkg/models"
	"github.com/HatiCode/weatherdash/pkg/weather"
)

// ModelResolver resolves (and trains on a miss) the model set of one day.
type ModelResolver interface {
	GetModelsForDay(ctx context.Context, lat, lon float64, monthDay string) (models.ModelSet, error)
}

// Warmer resolves the next Days calendar days for every location.
type Warmer struct {
	resolver  ModelResolver
	locations []weather.Location
	days      int
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Warmer. timeout bounds each GetModelsForDay call.
func New(resolver ModelResolver, locations []weather.Location, days int, timeout time.Duration, logger *slog.Logger) *Warmer {
	if logger == nil {
		logger = slog.Default()
	}
	if days < 1 {
		days = 1
	}
	return &Warmer{
		resolver:  resolver,
		locations: locations,
		days:      days,
		timeout:   timeout,
		now:       time.Now,
		logger:    logger,
	}
}

// MonthDays returns the calendar days from today (UTC) through days-1 ahead.
func (w *Warmer) MonthDays() []string {
	today := w.now().UTC()
	out := make([]string, 0, w.days)
	for i := 0; i < w.days; i++ {
		out = append(out, weather.MonthDay(today.AddDate(0, 0, i)))
	}
	return out
}

// RunOnce warms every (location, day) pair in sequence and reports how many
// succeeded and failed. It stops early when ctx is done.
func (w *Warmer) RunOnce(ctx context.Context) (warmed, failed int) {
	start := time.Now()
	days := w.MonthDays()

	for _, loc := range w.locations {
		for _, md := range days {
			if ctx.Err() != nil {
				return warmed, failed
			}

			callCtx, cancel := context.WithTimeout(ctx, w.timeout)
			set, err := w.resolver.GetModelsForDay(callCtx, loc.Lat, loc.Lon, md)
			cancel()

			if err != nil {
				failed++
				w.logger.Warn("warm-up failed", "location", loc.String(), "month_day", md, "error", err)
				continue
			}
			warmed++
			w.logger.Debug("warmed model set", "key", set.Key, "models", len(set.Models))
		}
	}

	w.logger.Info("warm-up complete",
		"locations", len(w.locations),
		"days", len(days),
		"warmed", warmed,
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return warmed, failed
}

// Scheduler runs a Warmer at a fixed interval, starting immediately.
type Scheduler struct {
	scheduler *gocron.Scheduler
	warmer    *Warmer
	interval  time.Duration
	cancel    context.CancelFunc
}

// NewScheduler creates a Scheduler for w.
func NewScheduler(w *Warmer, interval time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		warmer:    w,
		interval:  interval,
	}
}

// Start schedules the warm-up job and starts the underlying scheduler. Jobs
// run with a context derived from ctx that Stop cancels.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.warmer.locations) == 0 {
		s.warmer.logger.Info("warm-up disabled: no locations configured")
		return nil
	}

	ctx, s.cancel = context.WithCancel(ctx)
	_, err := s.scheduler.Every(s.interval).Do(func() {
		s.warmer.RunOnce(ctx)
	})
	if err != nil {
		s.cancel()
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop cancels running jobs and stops the scheduler.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.scheduler.IsRunning() {
		s.scheduler.Stop()
	}
}
