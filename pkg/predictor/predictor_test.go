package predictor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HatiCode/weatherdash/pkg/adapters"
	"github.com/HatiCode/weatherdash/pkg/history"
	"github.com/HatiCode/weatherdash/pkg/models"
	"github.com/HatiCode/weatherdash/pkg/storage"
	"github.com/HatiCode/weatherdash/pkg/weather"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// linearSource returns one record per year for 07-15 whose temp_c grows by
// 0.1 °C per year from 10 °C in 2000.
type linearSource struct {
	calls   atomic.Int64
	gate    chan struct{}
	empty   bool
	breaker bool
}

func (s *linearSource) Name() string { return "fake" }

func (s *linearSource) FetchYear(ctx context.Context, year int, _, _ float64) ([]weather.Observation, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.empty {
		return nil, nil
	}
	if s.breaker {
		return nil, fmt.Errorf("fake %d: %w", year, adapters.ErrCircuitOpen)
	}
	temp := 10 + 0.1*float64(year-2000)
	precip := 2.0
	return []weather.Observation{
		{Date: fmt.Sprintf("%d-07-14", year)},
		{Date: fmt.Sprintf("%d-07-15", year), TempC: &temp, PrecipMM: &precip},
	}, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	hits     int
	misses   int
	trains   int
	predicts int
	errs     int
}

func (o *recordingObserver) ObserveCache(hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

func (o *recordingObserver) ObserveTrain(time.Duration, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.trains++
}

func (o *recordingObserver) ObservePredict(_ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.predicts++
	if err != nil {
		o.errs++
	}
}

type failingStore struct {
	puts atomic.Int64
}

func (s *failingStore) Put(context.Context, models.ModelSet) error {
	s.puts.Add(1)
	return errors.New("store unavailable")
}

func (s *failingStore) Get(context.Context, string) (models.ModelSet, bool, error) {
	return models.ModelSet{}, false, nil
}

func newTestPredictor(src *linearSource, store storage.Store, obs Observer) *Predictor {
	ex := history.NewExtractor(src, 4, nil, discard)
	return New(ex, store, Options{StartYear: 2000, EndYear: 2010}, obs, discard)
}

func TestPredict_NoDate(t *testing.T) {
	src := &linearSource{}
	p := newTestPredictor(src, storage.NewMemoryStore(), nil)

	for _, date := range []string{"", "   "} {
		_, err := p.Predict(context.Background(), 44.43, 26.10, date)
		if !errors.Is(err, ErrNoDate) {
			t.Errorf("Predict(%q) error = %v, want ErrNoDate", date, err)
		}
		if MessageOf(err) != "No date provided" {
			t.Errorf("message = %q", MessageOf(err))
		}
	}
	if src.calls.Load() != 0 {
		t.Errorf("input errors must not fetch, got %d calls", src.calls.Load())
	}
}

func TestPredict_InvalidInput(t *testing.T) {
	src := &linearSource{}
	p := newTestPredictor(src, storage.NewMemoryStore(), nil)

	_, err := p.Predict(context.Background(), 44.43, 26.10, "not-a-date")
	if !errors.Is(err, ErrInvalidDate) {
		t.Errorf("error = %v, want ErrInvalidDate", err)
	}
	if KindOf(err) != KindInput {
		t.Errorf("kind = %q, want %q", KindOf(err), KindInput)
	}

	_, err = p.Predict(context.Background(), 95, 26.10, "2030-07-15")
	if KindOf(err) != KindInput {
		t.Errorf("invalid latitude kind = %q, want %q", KindOf(err), KindInput)
	}

	if src.calls.Load() != 0 {
		t.Errorf("input errors must not fetch, got %d calls", src.calls.Load())
	}
}

func TestPredict_Success(t *testing.T) {
	src := &linearSource{}
	obs := &recordingObserver{}
	p := newTestPredictor(src, storage.NewMemoryStore(), obs)

	day, err := p.Predict(context.Background(), 44.43, 26.10, "2030-07-15")
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if day.Date != "2030-07-15" {
		t.Errorf("Date = %q, want 2030-07-15", day.Date)
	}

	temp, ok := day.Value(weather.TempC)
	if !ok {
		t.Fatal("expected temp_c prediction")
	}
	if temp != 13 {
		t.Errorf("temp_c = %v, want 13", temp)
	}
	if precip, _ := day.Value(weather.PrecipMM); precip != 2 {
		t.Errorf("precip_mm = %v, want 2", precip)
	}
	if _, ok := day.Value(weather.WindMPS); ok {
		t.Error("wind_mps had no data and must be absent")
	}
	if day.Len() != 2 {
		t.Errorf("Len = %d, want 2", day.Len())
	}
	if src.calls.Load() != 11 {
		t.Errorf("expected one fetch per year (11), got %d", src.calls.Load())
	}
	if obs.misses != 1 || obs.trains != 1 || obs.predicts != 1 || obs.errs != 0 {
		t.Errorf("unexpected observer counts %+v", obs)
	}
}

func TestPredict_CacheHitDoesNotFetch(t *testing.T) {
	src := &linearSource{}
	obs := &recordingObserver{}
	p := newTestPredictor(src, storage.NewMemoryStore(), obs)
	ctx := context.Background()

	first, err := p.Predict(ctx, 44.43, 26.10, "2030-07-15")
	if err != nil {
		t.Fatalf("first Predict: %v", err)
	}
	calls := src.calls.Load()

	// Same calendar day in another year and format reuses the set.
	second, err := p.Predict(ctx, 44.43, 26.10, "20310715")
	if err != nil {
		t.Fatalf("second Predict: %v", err)
	}
	if src.calls.Load() != calls {
		t.Errorf("cache hit must not fetch, calls %d -> %d", calls, src.calls.Load())
	}
	if obs.hits != 1 {
		t.Errorf("hits = %d, want 1", obs.hits)
	}

	a, _ := first.Value(weather.TempC)
	b, _ := second.Value(weather.TempC)
	if b-a < 0.09 || b-a > 0.11 {
		t.Errorf("expected +0.1 per year, got %v -> %v", a, b)
	}
}

func TestPredict_CacheScope(t *testing.T) {
	tests := []struct {
		name      string
		scope     CacheScope
		wantCalls int64
	}{
		{name: "location scope trains per location", scope: ScopeLocation, wantCalls: 22},
		{name: "day scope shares across locations", scope: ScopeDay, wantCalls: 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &linearSource{}
			ex := history.NewExtractor(src, 4, nil, discard)
			p := New(ex, storage.NewMemoryStore(), Options{Scope: tt.scope, StartYear: 2000, EndYear: 2010}, nil, discard)

			for _, lat := range []float64{10, 20} {
				if _, err := p.Predict(context.Background(), lat, 0, "2030-07-15"); err != nil {
					t.Fatalf("Predict: %v", err)
				}
			}
			if src.calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", src.calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestPredict_InsufficientData(t *testing.T) {
	src := &linearSource{empty: true}
	store := storage.NewMemoryStore()
	p := newTestPredictor(src, store, nil)

	_, err := p.Predict(context.Background(), 44.43, 26.10, "2030-07-15")
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("error = %v, want ErrInsufficientData", err)
	}
	if MessageOf(err) != "Not enough historical data" {
		t.Errorf("message = %q", MessageOf(err))
	}
	if store.Len() != 1 {
		t.Errorf("empty model set must be cached, store has %d", store.Len())
	}
	if src.calls.Load() != 11 {
		t.Fatalf("calls after first predict = %d, want 11", src.calls.Load())
	}

	_, err = p.Predict(context.Background(), 44.43, 26.10, "2031-07-15")
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("second error = %v, want ErrInsufficientData", err)
	}
	if src.calls.Load() != 11 {
		t.Errorf("second predict for the same day fetched again, calls = %d", src.calls.Load())
	}
}

func TestPredict_OpenCircuitIsUpstreamError(t *testing.T) {
	src := &linearSource{breaker: true}
	store := storage.NewMemoryStore()
	p := newTestPredictor(src, store, nil)

	_, err := p.Predict(context.Background(), 44.43, 26.10, "2030-07-15")
	if KindOf(err) != KindUpstream {
		t.Fatalf("kind = %q, want %q (err %v)", KindOf(err), KindUpstream, err)
	}
	if IsTimeout(err) {
		t.Errorf("open circuit must not be reported as a timeout: %v", err)
	}
	if store.Len() != 0 {
		t.Error("samples cut short by an open circuit must not be cached")
	}
}

func TestGetModelsForDay_PutFailureStillReturns(t *testing.T) {
	src := &linearSource{}
	store := &failingStore{}
	p := newTestPredictor(src, store, nil)

	set, err := p.GetModelsForDay(context.Background(), 44.43, 26.10, "7-15")
	if err != nil {
		t.Fatalf("GetModelsForDay: %v", err)
	}
	if set.Empty() {
		t.Fatal("expected trained models")
	}
	if set.Key != "44.43,26.10:07-15" {
		t.Errorf("Key = %q", set.Key)
	}
	if store.puts.Load() != 1 {
		t.Errorf("puts = %d, want 1", store.puts.Load())
	}
}

func TestGetModelsForDay_InvalidDay(t *testing.T) {
	p := newTestPredictor(&linearSource{}, storage.NewMemoryStore(), nil)

	_, err := p.GetModelsForDay(context.Background(), 0, 0, "13-01")
	if KindOf(err) != KindInput {
		t.Errorf("kind = %q, want %q", KindOf(err), KindInput)
	}
}

func TestGetModelsForDay_ConcurrentMissesShareTraining(t *testing.T) {
	src := &linearSource{gate: make(chan struct{})}
	obs := &recordingObserver{}
	p := newTestPredictor(src, storage.NewMemoryStore(), obs)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.GetModelsForDay(context.Background(), 44.43, 26.10, "07-15")
			errs <- err
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("GetModelsForDay: %v", err)
		}
	}
	if src.calls.Load() != 11 {
		t.Errorf("concurrent misses must share one extraction, calls = %d", src.calls.Load())
	}
	if obs.trains != 1 {
		t.Errorf("trains = %d, want 1", obs.trains)
	}
}

func TestPredict_DeadlineIsUpstreamError(t *testing.T) {
	src := &linearSource{gate: make(chan struct{})}
	store := storage.NewMemoryStore()
	p := newTestPredictor(src, store, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := p.Predict(ctx, 44.43, 26.10, "2030-07-15")
	if KindOf(err) != KindUpstream {
		t.Fatalf("kind = %q, want %q (err %v)", KindOf(err), KindUpstream, err)
	}
	if !IsTimeout(err) {
		t.Errorf("expected deadline in error chain, got %v", err)
	}
	if store.Len() != 0 {
		t.Error("partial samples must not be cached")
	}
}

func TestEvaluate(t *testing.T) {
	set := models.ModelSet{
		Models: map[weather.Variable]models.Regression{
			weather.TempC:       {Intercept: 0.004, Coefficients: [2]float64{0, 10}},
			weather.PressureKPa: {Intercept: 101.3251},
		},
	}

	tests := []struct {
		name     string
		date     time.Time
		wantTemp float64
	}{
		// 2020 is tabulated at 0.86.
		{name: "tabulated year", date: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), wantTemp: 8.6},
		// 2040 falls back to the prediction default 1.3.
		{name: "future year", date: time.Date(2040, 1, 2, 0, 0, 0, 0, time.UTC), wantTemp: 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			day := Evaluate(set, tt.date)
			if got, _ := day.Value(weather.TempC); got != tt.wantTemp {
				t.Errorf("temp_c = %v, want %v", got, tt.wantTemp)
			}
			if got, _ := day.Value(weather.PressureKPa); got != 101.33 {
				t.Errorf("pressure_kpa = %v, want 101.33", got)
			}
			if day.Len() != 2 {
				t.Errorf("Len = %d, want 2", day.Len())
			}
		})
	}
}

func TestCacheKey(t *testing.T) {
	tests := []struct {
		scope CacheScope
		lat   float64
		lon   float64
		want  string
	}{
		{ScopeLocation, 44.4268, 26.1025, "44.43,26.10:07-15"},
		{ScopeLocation, -33.8688, 151.2093, "-33.87,151.21:07-15"},
		{ScopeDay, 44.4268, 26.1025, "07-15"},
	}

	for _, tt := range tests {
		if got := CacheKey(tt.scope, tt.lat, tt.lon, "07-15"); got != tt.want {
			t.Errorf("CacheKey(%s, %v, %v) = %q, want %q", tt.scope, tt.lat, tt.lon, got, tt.want)
		}
	}
}
