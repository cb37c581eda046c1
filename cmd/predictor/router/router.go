// Package router configures HTTP routes for the predictor's HTTP API.
//
// Routes configured:
//   - GET /predict?lat=<f>&lon=<f>&date=<YYYY-MM-DD> - Long-range prediction for one date
//   - GET /models?lat=<f>&lon=<f>&day=<MM-DD> - Cached model set (never trains)
//   - GET /history?lat=<f>&lon=<f>[&year=<yyyy> | &start=<date>&end=<date>] - Normalized daily series
//     of one year or a date range (default: the last 30 days)
//   - GET /archive/stats - Archive contents per source (when an archive is configured)
//   - GET /healthz - Health check endpoint
//   - GET /metrics - Prometheus metrics endpoint
//
// Errors are returned as {"error":"<msg>"}. Prediction failures map to 400
// for unusable input, 422 when there is not enough history and 504 when the
// request deadline expires while gathering history.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/weatherdash/pkg/adapters"
	"github.com/HatiCode/weatherdash/pkg/archive"
	"github.com/HatiCode/weatherdash/pkg/httpx"
	"github.com/HatiCode/weatherdash/pkg/predictor"
	"github.com/HatiCode/weatherdash/pkg/weather"
)

var validate = validator.New()

const (
	defaultHistoryDays = 30
	maxHistoryDays     = 731
)

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Predictor      *predictor.Predictor
	Source         adapters.Source
	Archive        *archive.Archive
	PredictTimeout time.Duration
	Health         func(ctx context.Context) error
	Metrics        http.Handler
	Logger         *slog.Logger

	// Now is the clock of the default /history window. Defaults to time.Now.
	Now func() time.Time
}

// SetupRoutes configures HTTP endpoints and wraps them with request-id,
// logging and recovery middleware.
func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.PredictTimeout <= 0 {
		d.PredictTimeout = 2 * time.Minute
	}
	if d.Metrics == nil {
		d.Metrics = promhttp.Handler()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	mux := http.NewServeMux()

	if d.Health != nil {
		mux.Handle("GET /healthz", httpx.HealthHandlerWithCheck(d.Health))
	} else {
		mux.Handle("GET /healthz", httpx.HealthHandler())
	}
	mux.Handle("GET /metrics", d.Metrics)

	mux.HandleFunc("GET /predict", handlePredict(d))
	mux.HandleFunc("GET /models", handleModels(d))
	mux.HandleFunc("GET /history", handleHistory(d))
	if d.Archive != nil {
		mux.HandleFunc("GET /archive/stats", handleArchiveStats(d))
	}

	return httpx.Chain(mux,
		httpx.RequestIDMiddleware(),
		httpx.LoggingMiddleware(d.Logger),
		httpx.RecoveryMiddleware(d.Logger),
	)
}

// coordinates are the lat/lon query parameters shared by every route.
type coordinates struct {
	Lat *float64 `validate:"required,gte=-90,lte=90"`
	Lon *float64 `validate:"required,gte=-180,lte=180"`
}

func parseCoordinates(r *http.Request) (coordinates, error) {
	var c coordinates
	var err error
	if c.Lat, err = parseFloatParam(r, "lat"); err != nil {
		return c, err
	}
	if c.Lon, err = parseFloatParam(r, "lon"); err != nil {
		return c, err
	}
	if err := validate.Struct(c); err != nil {
		return c, validationError(err)
	}
	return c, nil
}

func parseFloatParam(r *http.Request, name string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	return &v, nil
}

// validationError turns validator output into a short client message.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	name := strings.ToLower(fe.Field())
	if fe.Tag() == "required" {
		return fmt.Errorf("%s parameter required", name)
	}
	return fmt.Errorf("%s out of range", name)
}

// handlePredict returns a handler for GET /predict.
func handlePredict(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if strings.TrimSpace(date) == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, predictor.ErrNoDate.Message)
			return
		}

		c, err := parseCoordinates(r)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), d.PredictTimeout)
		defer cancel()

		day, err := d.Predictor.Predict(ctx, *c.Lat, *c.Lon, date)
		if err != nil {
			writePredictError(w, r, d.Logger, err)
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, day); err != nil {
			d.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func writePredictError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch predictor.KindOf(err) {
	case predictor.KindInput:
		status, message = http.StatusBadRequest, predictor.MessageOf(err)
	case predictor.KindInsufficientData:
		status, message = http.StatusUnprocessableEntity, predictor.MessageOf(err)
	case predictor.KindUpstream:
		status, message = http.StatusBadGateway, predictor.MessageOf(err)
		if predictor.IsTimeout(err) {
			status = http.StatusGatewayTimeout
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Error("prediction failed",
			"error", err,
			"request_id", httpx.RequestIDFromContext(r.Context()),
		)
	}
	httpx.WriteErrorMessage(w, status, message)
}

// handleModels returns a handler for GET /models?lat=&lon=&day=MM-DD.
func handleModels(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := parseCoordinates(r)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		md, err := weather.NormalizeMonthDay(r.URL.Query().Get("day"))
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		key := predictor.CacheKey(d.Predictor.Scope(), *c.Lat, *c.Lon, md)
		set, found, err := d.Predictor.Store().Get(ctx, key)
		if err != nil {
			d.Logger.Error("failed to get model set", "key", key, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("no models cached for %q", key))
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, set); err != nil {
			d.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleHistory returns a handler for GET /history. The range is either one
// whole year (year=) or start=/end= dates; without either it is the last
// defaultHistoryDays days.
func handleHistory(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := parseCoordinates(r)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		rng, err := parseHistoryRange(r, d.Now())
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), d.PredictTimeout)
		defer cancel()

		from, to := weather.FormatDate(rng.Start), weather.FormatDate(rng.End)
		obs := []weather.Observation{}
		for year := rng.Start.Year(); year <= rng.End.Year(); year++ {
			records, err := d.Source.FetchYear(ctx, year, *c.Lat, *c.Lon)
			if err != nil {
				d.Logger.Warn("history fetch failed", "year", year, "error", err)
				status := http.StatusBadGateway
				if predictor.IsTimeout(err) {
					status = http.StatusGatewayTimeout
				}
				httpx.WriteErrorMessage(w, status, "Failed to fetch weather data")
				return
			}
			for _, rec := range records {
				if rec.Date >= from && rec.Date <= to {
					obs = append(obs, rec)
				}
			}
		}

		resp := map[string]any{
			"source":       d.Source.Name(),
			"location":     weather.Location{Lat: *c.Lat, Lon: *c.Lon},
			"start":        from,
			"end":          to,
			"observations": obs,
		}
		if rng.Year != 0 {
			resp["year"] = rng.Year
		}
		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			d.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// historyRange is the inclusive date range of a /history request.
type historyRange struct {
	Year  int `validate:"omitempty,gte=1940,lte=2100"`
	Start time.Time
	End   time.Time
}

func parseHistoryRange(r *http.Request, now time.Time) (historyRange, error) {
	q := r.URL.Query()
	rawYear, rawStart, rawEnd := q.Get("year"), q.Get("start"), q.Get("end")

	var rng historyRange
	if rawYear != "" {
		if rawStart != "" || rawEnd != "" {
			return rng, errors.New("year cannot be combined with start/end")
		}
		year, err := strconv.Atoi(rawYear)
		if err != nil {
			return rng, fmt.Errorf("invalid year %q", rawYear)
		}
		rng.Year = year
		if err := validate.Struct(rng); err != nil {
			return rng, validationError(err)
		}
		rng.Start = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		rng.End = time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
		return rng, nil
	}

	today := now.UTC()
	rng.End = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if rawEnd != "" {
		end, err := weather.ParseDate(rawEnd)
		if err != nil {
			return rng, fmt.Errorf("invalid end %q", rawEnd)
		}
		rng.End = end
	}
	rng.Start = rng.End.AddDate(0, 0, -defaultHistoryDays)
	if rawStart != "" {
		start, err := weather.ParseDate(rawStart)
		if err != nil {
			return rng, fmt.Errorf("invalid start %q", rawStart)
		}
		rng.Start = start
	}

	switch {
	case rng.End.Before(rng.Start):
		return rng, errors.New("end before start")
	case rng.Start.Year() < 1940 || rng.End.Year() > 2100:
		return rng, errors.New("range out of bounds")
	case rng.End.Sub(rng.Start) > maxHistoryDays*24*time.Hour:
		return rng, fmt.Errorf("range longer than %d days", maxHistoryDays)
	}
	return rng, nil
}

// handleArchiveStats returns a handler for GET /archive/stats.
func handleArchiveStats(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := d.Archive.Stats(r.Context())
		if err != nil {
			d.Logger.Error("failed to read archive stats", "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if stats == nil {
			stats = []archive.SourceStats{}
		}
		if err := httpx.WriteJSON(w, http.StatusOK, map[string]any{"sources": stats}); err != nil {
			d.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}
