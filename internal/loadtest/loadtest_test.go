package loadtest

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/restreviews/restsync/internal/store"
)

func newFixture(t *testing.T, restaurants, reviewsEach int) *Fixture {
	t.Helper()
	f, err := CreateFixture(filepath.Join(t.TempDir(), "load.db"), restaurants, reviewsEach)
	if err != nil {
		t.Fatalf("CreateFixture() failed: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestCreateFixture(t *testing.T) {
	f := newFixture(t, 30, 4)

	if len(f.RestaurantIDs) != 30 {
		t.Errorf("RestaurantIDs = %d, want 30", len(f.RestaurantIDs))
	}
	if f.Reviews != 120 {
		t.Errorf("Reviews = %d, want 120", f.Reviews)
	}

	ctx := context.Background()
	restaurants, err := f.Store.Restaurants(ctx)
	if err != nil {
		t.Fatalf("Restaurants() failed: %v", err)
	}
	if len(restaurants) != 30 {
		t.Errorf("stored restaurants = %d, want 30", len(restaurants))
	}
	reviews, err := f.Store.ReviewsByRestaurant(ctx, 7)
	if err != nil {
		t.Fatalf("ReviewsByRestaurant() failed: %v", err)
	}
	if len(reviews) != 4 {
		t.Errorf("reviews for restaurant 7 = %d, want 4", len(reviews))
	}
}

func TestConcurrentReads_Small(t *testing.T) {
	f := newFixture(t, 50, 3)

	stats, err := f.RunConcurrentReads(context.Background(), 10, 6)
	if err != nil {
		t.Fatalf("RunConcurrentReads() failed: %v", err)
	}
	if stats.Errors > 0 {
		t.Errorf("got %d read errors", stats.Errors)
	}
	if stats.Operations != 60 {
		t.Errorf("Operations = %d, want 60", stats.Operations)
	}
	if stats.Min > stats.P50 || stats.P50 > stats.P99 || stats.P99 > stats.Max {
		t.Errorf("percentiles out of order: %+v", stats)
	}
}

func TestOfflineWrites_ExactlyOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load test in short mode")
	}

	tests := []struct {
		name     string
		failRate float64
		drainers int
	}{
		{name: "healthy api", failRate: 0, drainers: 1},
		{name: "flaky api", failRate: 0.3, drainers: 2},
		{name: "api down until the end", failRate: 1, drainers: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10, 0)

			report, err := f.RunOfflineWrites(context.Background(), 5, 8, tt.drainers, tt.failRate)
			if err != nil {
				t.Fatalf("RunOfflineWrites() failed: %v", err)
			}

			if report.Queued != 40 {
				t.Errorf("Queued = %d, want 40", report.Queued)
			}
			if report.Missing != 0 || report.Duplicates != 0 {
				t.Errorf("report = %+v, want every review delivered exactly once", report)
			}

			pending, err := f.Store.Count(context.Background(), store.ReviewQueue)
			if err != nil {
				t.Fatalf("Count() failed: %v", err)
			}
			if pending != 0 {
				t.Errorf("queue still holds %d entries", pending)
			}
		})
	}
}

func TestComputeLatencyStats(t *testing.T) {
	durations := make([]time.Duration, 100)
	for i := range durations {
		durations[len(durations)-1-i] = time.Duration(i+1) * time.Millisecond
	}

	s := computeLatencyStats(durations)
	if s.Min != time.Millisecond || s.Max != 100*time.Millisecond {
		t.Errorf("Min/Max = %v/%v", s.Min, s.Max)
	}
	if s.P50 != 51*time.Millisecond || s.P95 != 96*time.Millisecond || s.P99 != 100*time.Millisecond {
		t.Errorf("P50/P95/P99 = %v/%v/%v", s.P50, s.P95, s.P99)
	}
	if s.Mean != 50500*time.Microsecond {
		t.Errorf("Mean = %v, want 50.5ms", s.Mean)
	}

	if empty := computeLatencyStats(nil); empty.Operations != 0 {
		t.Errorf("empty stats = %+v", empty)
	}
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	(&WriteReport{Queued: 3, Delivered: 3}).Print(&buf)
	computeLatencyStats([]time.Duration{time.Millisecond}).Print(&buf)

	for _, want := range []string{"Queued:        3", "Operations:    1"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}
