// Package loadtest exercises the local store and the write-behind queues
// under concurrent access.
//
// Readers simulate many front ends browsing the cache at once. Writers
// simulate clients queuing reviews against a flaky API while drains run
// concurrently; the run checks that every review reaches the API exactly
// once.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/restreviews/restsync/internal/engine"
	apperrors "github.com/restreviews/restsync/internal/errors"
	"github.com/restreviews/restsync/internal/schema"
	"github.com/restreviews/restsync/internal/store"
)

var (
	cuisines      = []string{"Asian", "Pizza", "American", "Mexican", "Italian"}
	neighborhoods = []string{"Manhattan", "Brooklyn", "Queens"}
)

// Fixture is a populated store for load testing.
type Fixture struct {
	Store         *store.Store
	RestaurantIDs []int
	Reviews       int
}

// LatencyStats captures per-operation latency.
type LatencyStats struct {
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
	Operations int
	Errors     int
}

// CreateFixture opens a store at path and fills it with numRestaurants
// restaurants carrying reviewsEach reviews apiece. Names, cuisines and
// neighborhoods are deterministic.
func CreateFixture(path string, numRestaurants, reviewsEach int) (*Fixture, error) {
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	s.SetLogger(log.New(io.Discard, "", 0))

	ctx := context.Background()
	f := &Fixture{Store: s, RestaurantIDs: make([]int, 0, numRestaurants)}

	restaurants := make([]schema.Restaurant, numRestaurants)
	for i := range restaurants {
		id := i + 1
		restaurants[i] = schema.Restaurant{
			ID:           id,
			Name:         fmt.Sprintf("Restaurant %d", id),
			CuisineType:  cuisines[i%len(cuisines)],
			Neighborhood: neighborhoods[i%len(neighborhoods)],
			Address:      fmt.Sprintf("%d Test Street", id),
		}
		f.RestaurantIDs = append(f.RestaurantIDs, id)
	}
	if err := s.PutRestaurants(ctx, restaurants...); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to insert restaurants: %w", err)
	}

	reviews := make([]schema.Review, 0, numRestaurants*reviewsEach)
	for _, id := range f.RestaurantIDs {
		for j := 0; j < reviewsEach; j++ {
			reviews = append(reviews, schema.Review{
				ID:           len(reviews) + 1,
				RestaurantID: id,
				Name:         fmt.Sprintf("Reviewer %d", j),
				Rating:       j%5 + 1,
				Comments:     "Load test review",
			})
		}
	}
	if len(reviews) > 0 {
		if err := s.PutReviews(ctx, reviews...); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to insert reviews: %w", err)
		}
	}
	f.Reviews = len(reviews)

	return f, nil
}

// Close closes the fixture's store.
func (f *Fixture) Close() error {
	if f.Store != nil {
		return f.Store.Close()
	}
	return nil
}

// RunConcurrentReads simulates numClients front ends, each performing
// readsPerClient reads. Reads rotate through the full restaurant list, a
// cuisine index lookup and one restaurant's reviews.
func (f *Fixture) RunConcurrentReads(ctx context.Context, numClients, readsPerClient int) (*LatencyStats, error) {
	if len(f.RestaurantIDs) == 0 {
		return nil, fmt.Errorf("fixture has no restaurants")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		durations = make([]time.Duration, 0, numClients*readsPerClient)
		errCount  int
	)

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(client int) {
			defer wg.Done()

			local := make([]time.Duration, 0, readsPerClient)
			failures := 0
			for j := 0; j < readsPerClient; j++ {
				start := time.Now()
				var err error
				switch (client + j) % 3 {
				case 0:
					_, err = f.Store.Restaurants(ctx)
				case 1:
					_, err = f.Store.GetAllByIndex(ctx, store.Restaurants, store.IndexCuisine, cuisines[j%len(cuisines)])
				default:
					_, err = f.Store.ReviewsByRestaurant(ctx, f.RestaurantIDs[(client+j)%len(f.RestaurantIDs)])
				}
				local = append(local, time.Since(start))
				if err != nil {
					failures++
				}
			}

			mu.Lock()
			durations = append(durations, local...)
			errCount += failures
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if len(durations) == 0 {
		return nil, fmt.Errorf("no reads completed")
	}
	stats := computeLatencyStats(durations)
	stats.Errors = errCount
	return stats, nil
}

// WriteReport summarizes a RunOfflineWrites run.
type WriteReport struct {
	Queued     int
	Delivered  int
	Duplicates int
	Missing    int
	Drains     int
	Elapsed    time.Duration
}

// RunOfflineWrites has numWriters clients each queue writesEach reviews
// while drainers goroutines keep replaying the queue against an API that
// fails the given share of requests. It finishes with a final drain against
// a healthy API and reports what reached it.
func (f *Fixture) RunOfflineWrites(ctx context.Context, numWriters, writesEach, drainers int, failRate float64) (*WriteReport, error) {
	api := newFlakyAPI(failRate)
	eng, err := engine.New(api, f.Store, engine.Config{
		ReplayPolicy: engine.ReplayConfirmed,
		Logger:       log.New(io.Discard, "", 0),
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	report := &WriteReport{}

	var stopped atomic.Bool
	var drains atomic.Int64
	var drainWG sync.WaitGroup
	for i := 0; i < drainers; i++ {
		drainWG.Add(1)
		go func() {
			defer drainWG.Done()
			for !stopped.Load() && ctx.Err() == nil {
				eng.PostReviewQueue(ctx)
				drains.Add(1)
				time.Sleep(time.Millisecond)
			}
		}()
	}

	var writeWG sync.WaitGroup
	errc := make(chan error, numWriters)
	for w := 0; w < numWriters; w++ {
		writeWG.Add(1)
		go func(writer int) {
			defer writeWG.Done()
			for j := 0; j < writesEach; j++ {
				draft := schema.NewDraftReview(f.RestaurantIDs[(writer+j)%len(f.RestaurantIDs)],
					fmt.Sprintf("writer-%d", writer), j%5+1, fmt.Sprintf("review %d/%d", writer, j))
				if _, err := f.Store.EnqueueReview(ctx, draft); err != nil {
					errc <- fmt.Errorf("writer %d enqueue %d failed: %w", writer, j, err)
					return
				}
			}
		}(w)
	}
	writeWG.Wait()
	stopped.Store(true)
	drainWG.Wait()

	close(errc)
	if err := <-errc; err != nil {
		return nil, err
	}
	report.Queued = numWriters * writesEach
	report.Drains = int(drains.Load())

	api.setFailRate(0)
	final := eng.PostReviewQueue(ctx)
	if final.Err != nil {
		return nil, fmt.Errorf("final drain failed: %w", final.Err)
	}
	report.Drains++

	seen := api.delivered()
	for _, n := range seen {
		report.Delivered++
		if n > 1 {
			report.Duplicates += n - 1
		}
	}
	report.Missing = report.Queued - report.Delivered
	report.Elapsed = time.Since(start)
	return report, nil
}

// flakyAPI is an in-process API that fails a share of requests.
type flakyAPI struct {
	mu       sync.Mutex
	rng      *rand.Rand
	failRate float64
	posts    map[string]int
}

func newFlakyAPI(failRate float64) *flakyAPI {
	return &flakyAPI{
		rng:      rand.New(rand.NewSource(42)),
		failRate: failRate,
		posts:    make(map[string]int),
	}
}

func (a *flakyAPI) setFailRate(r float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failRate = r
}

func (a *flakyAPI) fail() bool {
	return a.failRate > 0 && a.rng.Float64() < a.failRate
}

func (a *flakyAPI) delivered() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.posts))
	for k, v := range a.posts {
		out[k] = v
	}
	return out
}

func (a *flakyAPI) FetchRestaurants(ctx context.Context) ([]schema.Restaurant, error) {
	return nil, apperrors.New(apperrors.CodeNetwork, "not served")
}

func (a *flakyAPI) FetchReviews(ctx context.Context, restaurantID int) ([]schema.Review, error) {
	return nil, apperrors.New(apperrors.CodeNetwork, "not served")
}

func (a *flakyAPI) PostReview(ctx context.Context, draft schema.DraftReview) (*schema.Review, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail() {
		return nil, apperrors.New(apperrors.CodeNetwork, "injected failure")
	}
	key := draft.Name + "|" + draft.Comments
	a.posts[key]++
	r := draft.AsReview()
	r.ID = len(a.posts)
	return &r, nil
}

func (a *flakyAPI) PutFavorite(ctx context.Context, restaurantID int, current bool) (*schema.Restaurant, error) {
	return nil, apperrors.New(apperrors.CodeNetwork, "not served")
}

func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       sum / time.Duration(len(sorted)),
		P50:        sorted[len(sorted)*50/100],
		P95:        sorted[len(sorted)*95/100],
		P99:        sorted[len(sorted)*99/100],
		Operations: len(sorted),
	}
}

// Print writes the statistics to w.
func (s *LatencyStats) Print(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Operations:    %d\n", s.Operations)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}

// Print writes the report to w.
func (r *WriteReport) Print(w io.Writer) {
	fmt.Fprintf(w, "Offline Writes:\n")
	fmt.Fprintf(w, "  Queued:        %d\n", r.Queued)
	fmt.Fprintf(w, "  Delivered:     %d\n", r.Delivered)
	fmt.Fprintf(w, "  Duplicates:    %d\n", r.Duplicates)
	fmt.Fprintf(w, "  Missing:       %d\n", r.Missing)
	fmt.Fprintf(w, "  Drains:        %d\n", r.Drains)
	fmt.Fprintf(w, "  Elapsed:       %v\n", r.Elapsed.Round(time.Millisecond))
}
