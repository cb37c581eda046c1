package warmup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/HatiCode/weatherdash/pkg/models"
	"github.com/HatiCode/weatherdash/pkg/weather"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingResolver struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (r *recordingResolver) GetModelsForDay(_ context.Context, lat, lon float64, md string) (models.ModelSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := weather.Location{Lat: lat, Lon: lon}.String() + ":" + md
	r.calls = append(r.calls, key)
	if r.fail[md] {
		return models.ModelSet{}, errors.New("upstream down")
	}
	return models.ModelSet{Key: key}, nil
}

func (r *recordingResolver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestWarmer_MonthDays(t *testing.T) {
	w := New(&recordingResolver{}, nil, 4, time.Second, discard)
	w.now = func() time.Time { return time.Date(2027, 12, 30, 23, 0, 0, 0, time.UTC) }

	got := w.MonthDays()
	want := []string{"12-30", "12-31", "01-01", "01-02"}
	if len(got) != len(want) {
		t.Fatalf("MonthDays() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("MonthDays()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWarmer_RunOnce(t *testing.T) {
	r := &recordingResolver{fail: map[string]bool{"03-02": true}}
	locs := []weather.Location{{Lat: 44.43, Lon: 26.10}, {Lat: -33.87, Lon: 151.21}}
	w := New(r, locs, 3, time.Second, discard)
	w.now = func() time.Time { return time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC) }

	warmed, failed := w.RunOnce(context.Background())
	if warmed != 4 || failed != 2 {
		t.Errorf("warmed=%d failed=%d, want 4 and 2", warmed, failed)
	}
	if r.calls[0] != "44.43,26.10:03-01" || r.calls[5] != "-33.87,151.21:03-03" {
		t.Errorf("unexpected call order %v", r.calls)
	}
}

func TestWarmer_RunOnceCanceled(t *testing.T) {
	r := &recordingResolver{}
	w := New(r, []weather.Location{{Lat: 1, Lon: 2}}, 5, time.Second, discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if warmed, failed := w.RunOnce(ctx); warmed != 0 || failed != 0 {
		t.Errorf("canceled run warmed=%d failed=%d", warmed, failed)
	}
	if r.count() != 0 {
		t.Errorf("expected no calls after cancel, got %d", r.count())
	}
}

func TestScheduler_RunsImmediately(t *testing.T) {
	r := &recordingResolver{}
	w := New(r, []weather.Location{{Lat: 1, Lon: 2}}, 2, time.Second, discard)
	s := NewScheduler(w, time.Hour)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for r.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if r.count() != 2 {
		t.Errorf("expected first run to warm 2 days, got %d calls", r.count())
	}
}

func TestScheduler_NoLocations(t *testing.T) {
	s := NewScheduler(New(&recordingResolver{}, nil, 7, time.Second, discard), time.Hour)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
}
