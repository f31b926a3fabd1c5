package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/restreviews/restsync/internal/errors"
	"github.com/restreviews/restsync/internal/remote"
	"github.com/restreviews/restsync/internal/schema"
	"github.com/restreviews/restsync/internal/store"
)

var errOffline = apperrors.New(apperrors.CodeNetwork, "connection refused")

// fakeRemote is an in-memory restaurant API.
type fakeRemote struct {
	mu sync.Mutex

	restaurants []schema.Restaurant
	reviews     map[int][]schema.Review
	nextReview  int

	offline  bool
	failPost func(schema.DraftReview) bool

	calls        map[string]int
	posted       []schema.DraftReview
	favoriteSent []bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		restaurants: []schema.Restaurant{
			{ID: 1, Name: "Mission Chinese Food", CuisineType: "Asian", Neighborhood: "Manhattan"},
			{ID: 2, Name: "Emily", CuisineType: "Pizza", Neighborhood: "Brooklyn"},
			{ID: 3, Name: "Kang Ho Dong Baekjeong", CuisineType: "Asian", Neighborhood: "Manhattan"},
			{ID: 4, Name: "Katz's Delicatessen", CuisineType: "American", Neighborhood: "Manhattan"},
			{ID: 5, Name: "Roberta's Pizza", CuisineType: "Pizza", Neighborhood: "Brooklyn"},
			{ID: 6, Name: "Hometown BBQ", CuisineType: "American", Neighborhood: "Brooklyn"},
			{ID: 7, Name: "Superiority Burger", CuisineType: "American", Neighborhood: "Queens"},
		},
		reviews: map[int][]schema.Review{
			1: {{ID: 1, RestaurantID: 1, Name: "Steve", Rating: 4, Comments: "Solid"}},
			2: {{ID: 2, RestaurantID: 2, Name: "Morgan", Rating: 5, Comments: "Best slice"}},
		},
		nextReview: 100,
		calls:      map[string]int{},
	}
}

func (f *fakeRemote) setOffline(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = v
}

func (f *fakeRemote) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRemote) FetchRestaurants(ctx context.Context) ([]schema.Restaurant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["FetchRestaurants"]++
	if f.offline {
		return nil, errOffline
	}
	return append([]schema.Restaurant(nil), f.restaurants...), nil
}

func (f *fakeRemote) FetchReviews(ctx context.Context, restaurantID int) ([]schema.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["FetchReviews"]++
	if f.offline {
		return nil, errOffline
	}
	return append([]schema.Review(nil), f.reviews[restaurantID]...), nil
}

func (f *fakeRemote) PostReview(ctx context.Context, draft schema.DraftReview) (*schema.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["PostReview"]++
	if f.offline || (f.failPost != nil && f.failPost(draft)) {
		return nil, errOffline
	}
	f.posted = append(f.posted, draft)
	f.nextReview++
	r := draft.AsReview()
	r.ID = f.nextReview
	f.reviews[draft.RestaurantID] = append(f.reviews[draft.RestaurantID], r)
	return &r, nil
}

func (f *fakeRemote) PutFavorite(ctx context.Context, restaurantID int, current bool) (*schema.Restaurant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["PutFavorite"]++
	if f.offline {
		return nil, errOffline
	}
	f.favoriteSent = append(f.favoriteSent, !current)
	for i := range f.restaurants {
		if f.restaurants[i].ID == restaurantID {
			f.restaurants[i].IsFavorite = schema.FavoriteFlag(!current)
			r := f.restaurants[i]
			return &r, nil
		}
	}
	return nil, apperrors.New(apperrors.CodeNetwork, "unexpected status 404")
}

// recorder collects engine events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	s.SetLogger(quietLogger())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestEngine(t *testing.T, remote Remote, local LocalStore, mutate ...func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger = quietLogger()
	for _, m := range mutate {
		m(&cfg)
	}
	e, err := New(remote, local, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return e
}

func TestFetchRestaurants_CachedSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	s := openStore(t)
	if err := s.PutRestaurants(ctx, schema.Restaurant{ID: 42, Name: "Cached Only"}); err != nil {
		t.Fatalf("PutRestaurants() failed: %v", err)
	}

	e := newTestEngine(t, remote, s)
	got, err := e.FetchRestaurants(ctx)
	if err != nil {
		t.Fatalf("FetchRestaurants() failed: %v", err)
	}

	if len(got) != 1 || got[0].ID != 42 {
		t.Errorf("FetchRestaurants() = %+v, want the cached record only", got)
	}
	if n := remote.callCount("FetchRestaurants"); n != 0 {
		t.Errorf("network calls = %d, want 0", n)
	}
}

func TestFetchRestaurants_MissFetchesOnceWithoutCaching(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	s := openStore(t)
	e := newTestEngine(t, remote, s)

	got, err := e.FetchRestaurants(ctx)
	if err != nil {
		t.Fatalf("FetchRestaurants() failed: %v", err)
	}
	if diff := cmp.Diff(remote.restaurants, got); diff != "" {
		t.Errorf("FetchRestaurants() mismatch (-want +got):\n%s", diff)
	}
	if n := remote.callCount("FetchRestaurants"); n != 1 {
		t.Errorf("network calls = %d, want 1", n)
	}

	if n, _ := s.Count(ctx, store.Restaurants); n != 0 {
		t.Errorf("cached restaurants = %d, want 0 (read path must not write through)", n)
	}
}

func TestFetchRestaurants_NoCacheNoNetwork(t *testing.T) {
	remote := newFakeRemote()
	remote.setOffline(true)
	e := newTestEngine(t, remote, openStore(t))

	_, err := e.FetchRestaurants(context.Background())
	if !apperrors.Is(err, apperrors.CodeNetwork) {
		t.Errorf("FetchRestaurants() error = %v, want NETWORK_ERROR", err)
	}
}

func TestFetchReviewsByID(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	s := openStore(t)
	e := newTestEngine(t, remote, s)

	got, err := e.FetchReviewsByID(ctx, 1)
	if err != nil {
		t.Fatalf("FetchReviewsByID() failed: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Steve" {
		t.Errorf("FetchReviewsByID() = %+v", got)
	}

	if err := s.PutReviews(ctx, schema.Review{ID: 9, RestaurantID: 1, Name: "Cached", Rating: 2, Comments: "x"}); err != nil {
		t.Fatalf("PutReviews() failed: %v", err)
	}
	got, err = e.FetchReviewsByID(ctx, 1)
	if err != nil {
		t.Fatalf("FetchReviewsByID() failed: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Cached" {
		t.Errorf("FetchReviewsByID() = %+v, want cached review", got)
	}
	if n := remote.callCount("FetchReviews"); n != 1 {
		t.Errorf("network calls = %d, want 1", n)
	}
}

func TestFetchRestaurantByID(t *testing.T) {
	e := newTestEngine(t, newFakeRemote(), openStore(t))
	ctx := context.Background()

	r, err := e.FetchRestaurantByID(ctx, 3)
	if err != nil {
		t.Fatalf("FetchRestaurantByID(3) failed: %v", err)
	}
	if r.Name != "Kang Ho Dong Baekjeong" {
		t.Errorf("FetchRestaurantByID(3) = %q", r.Name)
	}

	_, err = e.FetchRestaurantByID(ctx, 99)
	if !IsNotFound(err) {
		t.Errorf("FetchRestaurantByID(99) error = %v, want NOT_FOUND", err)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("errors.Is(err, ErrNotFound) = false for %v", err)
	}
}

func TestFetchRestaurantByCuisineAndNeighborhood(t *testing.T) {
	e := newTestEngine(t, newFakeRemote(), openStore(t))

	tests := []struct {
		name         string
		cuisine      string
		neighborhood string
		wantIDs      []int
	}{
		{name: "no filter", cuisine: "all", neighborhood: "all", wantIDs: []int{1, 2, 3, 4, 5, 6, 7}},
		{name: "cuisine only", cuisine: "Pizza", neighborhood: "all", wantIDs: []int{2, 5}},
		{name: "neighborhood only", cuisine: "all", neighborhood: "Queens", wantIDs: []int{7}},
		{name: "both", cuisine: "American", neighborhood: "Manhattan", wantIDs: []int{4}},
		{name: "no match", cuisine: "Thai", neighborhood: "all", wantIDs: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.FetchRestaurantByCuisineAndNeighborhood(context.Background(), tt.cuisine, tt.neighborhood)
			if err != nil {
				t.Fatalf("FetchRestaurantByCuisineAndNeighborhood() failed: %v", err)
			}
			ids := []int{}
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			if diff := cmp.Diff(tt.wantIDs, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchByCuisineAndByNeighborhood(t *testing.T) {
	e := newTestEngine(t, newFakeRemote(), openStore(t))
	ctx := context.Background()

	asian, err := e.FetchRestaurantByCuisine(ctx, "Asian")
	if err != nil {
		t.Fatalf("FetchRestaurantByCuisine() failed: %v", err)
	}
	if len(asian) != 2 {
		t.Errorf("FetchRestaurantByCuisine(Asian) returned %d, want 2", len(asian))
	}

	brooklyn, err := e.FetchRestaurantByNeighborhood(ctx, "Brooklyn")
	if err != nil {
		t.Fatalf("FetchRestaurantByNeighborhood() failed: %v", err)
	}
	if len(brooklyn) != 3 {
		t.Errorf("FetchRestaurantByNeighborhood(Brooklyn) returned %d, want 3", len(brooklyn))
	}
}

func TestFetchNeighborhoodsAndCuisines_DistinctInFirstSeenOrder(t *testing.T) {
	e := newTestEngine(t, newFakeRemote(), openStore(t))
	ctx := context.Background()

	neighborhoods, err := e.FetchNeighborhoods(ctx)
	if err != nil {
		t.Fatalf("FetchNeighborhoods() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"Manhattan", "Brooklyn", "Queens"}, neighborhoods); diff != "" {
		t.Errorf("FetchNeighborhoods() mismatch (-want +got):\n%s", diff)
	}

	cuisines, err := e.FetchCuisines(ctx)
	if err != nil {
		t.Fatalf("FetchCuisines() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"Asian", "Pizza", "American"}, cuisines); diff != "" {
		t.Errorf("FetchCuisines() mismatch (-want +got):\n%s", diff)
	}
}

func TestAddReview_Online(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	s := openStore(t)
	rec := &recorder{}
	e := newTestEngine(t, remote, s, func(c *Config) { c.Notifier = rec })

	out := e.AddReview(ctx, schema.NewDraftReview(1, "Ana", 5, "Great dumplings"))
	if !out.OK() {
		t.Fatalf("AddReview() kind = %v, err = %v", out.Kind, out.Err)
	}
	if out.Message != MsgReviewAdded {
		t.Errorf("Message = %q, want %q", out.Message, MsgReviewAdded)
	}
	if out.Value == nil || out.Value.ID == 0 {
		t.Errorf("Value = %+v, want server-assigned review", out.Value)
	}
	if n, _ := s.Count(ctx, store.ReviewQueue); n != 0 {
		t.Errorf("review queue = %d, want 0", n)
	}
	if diff := cmp.Diff([]string{EventReviewPosted}, rec.types()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestAddReview_OfflineQueuesExactDraft(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.setOffline(true)
	s := openStore(t)
	e := newTestEngine(t, remote, s)

	draft := schema.NewDraftReview(2, "Lee", 3, "Crust was fine")
	out := e.AddReview(ctx, draft)

	if out.Kind != KindQueued {
		t.Fatalf("AddReview() kind = %v, want queued", out.Kind)
	}
	if out.Unrecoverable() {
		t.Error("Unrecoverable() = true for a queued review")
	}
	if out.Message != MsgReviewQueued {
		t.Errorf("Message = %q, want %q", out.Message, MsgReviewQueued)
	}

	pending, err := s.PendingReviews(ctx)
	if err != nil {
		t.Fatalf("PendingReviews() failed: %v", err)
	}
	if diff := cmp.Diff([]schema.DraftReview{draft}, pending); diff != "" {
		t.Errorf("queued payload mismatch (-want +got):\n%s", diff)
	}
}

func TestAddReview_AcceptedWithoutBodyIsNotReplayed(t *testing.T) {
	var (
		mu    sync.Mutex
		posts int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			mu.Lock()
			posts++
			mu.Unlock()
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	s := openStore(t)
	client := remote.New(srv.URL, remote.Options{Logger: quietLogger()})
	e := newTestEngine(t, client, s)

	out := e.AddReview(ctx, schema.NewDraftReview(1, "Ana", 5, "Accepted"))
	if !out.OK() || out.Message != MsgReviewAdded {
		t.Fatalf("AddReview() = %v %q (err %v), want ok", out.Kind, out.Message, out.Err)
	}

	for i := 0; i < 3; i++ {
		if drained := e.PostReviewQueue(ctx); drained.Value.Attempted != 0 {
			t.Errorf("drain %d attempted %d replays, want 0", i, drained.Value.Attempted)
		}
	}
	if n, err := s.Count(ctx, store.ReviewQueue); err != nil || n != 0 {
		t.Errorf("queued reviews = %d (err %v), want 0", n, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if posts != 1 {
		t.Errorf("server received %d posts, want 1", posts)
	}
}

func TestAddReview_InvalidDraftSendsNothing(t *testing.T) {
	remote := newFakeRemote()
	e := newTestEngine(t, remote, openStore(t))

	out := e.AddReview(context.Background(), schema.NewDraftReview(1, "Ana", 9, "too many stars"))
	if out.Kind != KindFailed {
		t.Fatalf("AddReview() kind = %v, want failed", out.Kind)
	}
	if !apperrors.Is(out.Err, apperrors.CodeValidation) {
		t.Errorf("Err = %v, want VALIDATION_ERROR", out.Err)
	}
	if n := remote.callCount("PostReview"); n != 0 {
		t.Errorf("PostReview calls = %d, want 0", n)
	}
}

// failingQueueStore is a store whose queues reject writes.
type failingQueueStore struct {
	*store.Store
}

func (f failingQueueStore) EnqueueReview(context.Context, schema.DraftReview) (int64, error) {
	return 0, errors.New("disk full")
}

func (f failingQueueStore) EnqueueFavorite(context.Context, schema.QueuedFavorite, bool) (int64, error) {
	return 0, errors.New("disk full")
}

func TestWrites_UnrecoverableWhenQueueFails(t *testing.T) {
	remote := newFakeRemote()
	remote.setOffline(true)
	e := newTestEngine(t, remote, failingQueueStore{openStore(t)})
	ctx := context.Background()

	review := e.AddReview(ctx, schema.NewDraftReview(1, "Ana", 4, "ok"))
	if !review.Unrecoverable() || review.Message != MsgTryLater {
		t.Errorf("AddReview() = %v %q, want unrecoverable %q", review.Kind, review.Message, MsgTryLater)
	}

	fav := e.ToggleFavorite(ctx, 1, false)
	if !fav.Unrecoverable() {
		t.Errorf("ToggleFavorite() kind = %v, want unrecoverable", fav.Kind)
	}
}

func TestNetworkOnlyMode(t *testing.T) {
	tests := []struct {
		name  string
		local LocalStore
	}{
		{name: "nil interface", local: nil},
		{name: "typed nil store", local: (*store.Store)(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			remote := newFakeRemote()
			e := newTestEngine(t, remote, tt.local)

			if e.StoreAvailable() {
				t.Fatal("StoreAvailable() = true")
			}

			got, err := e.FetchRestaurants(ctx)
			if err != nil || len(got) != 7 {
				t.Fatalf("FetchRestaurants() = %d records, %v", len(got), err)
			}
			if err := e.UpdateDB(ctx); err != nil {
				t.Errorf("UpdateDB() failed: %v", err)
			}

			remote.setOffline(true)

			review := e.AddReview(ctx, schema.NewDraftReview(1, "Ana", 4, "ok"))
			if !review.Unrecoverable() {
				t.Errorf("AddReview() kind = %v, want unrecoverable", review.Kind)
			}
			if !apperrors.Is(review.Err, apperrors.CodeStoreUnavailable) {
				t.Errorf("AddReview() err = %v, want STORE_UNAVAILABLE", review.Err)
			}

			fav := e.ToggleFavorite(ctx, 1, false)
			if !fav.Unrecoverable() || fav.Message != MsgTryLater {
				t.Errorf("ToggleFavorite() = %v %q", fav.Kind, fav.Message)
			}

			if out := e.PostReviewQueue(ctx); !out.OK() || out.Value.Attempted != 0 {
				t.Errorf("PostReviewQueue() = %+v", out)
			}
			if _, err := e.PendingReviews(ctx); !errors.Is(err, apperrors.ErrStoreUnavailable) {
				t.Errorf("PendingReviews() error = %v", err)
			}
			stats, err := e.QueueStats(ctx)
			if err != nil || stats.StoreAvailable {
				t.Errorf("QueueStats() = %+v, %v", stats, err)
			}
		})
	}
}

func TestPostReviewQueue_SecondReplayFails(t *testing.T) {
	tests := []struct {
		policy        ReplayPolicy
		wantKind      Kind
		wantMessage   string
		wantRemaining []string
		wantResult    DrainResult
	}{
		{
			policy:        ReplayLossy,
			wantKind:      KindOK,
			wantMessage:   MsgChangesDropped,
			wantRemaining: []string{},
			wantResult:    DrainResult{Attempted: 2, Succeeded: 1, Failed: 1, Dropped: 1, Remaining: 0},
		},
		{
			policy:        ReplayConfirmed,
			wantKind:      KindQueued,
			wantMessage:   MsgReviewQueued,
			wantRemaining: []string{"second"},
			wantResult:    DrainResult{Attempted: 2, Succeeded: 1, Failed: 1, Dropped: 0, Remaining: 1},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			ctx := context.Background()
			remote := newFakeRemote()
			s := openStore(t)
			e := newTestEngine(t, remote, s, func(c *Config) { c.ReplayPolicy = tt.policy })

			for _, name := range []string{"first", "second"} {
				if _, err := s.EnqueueReview(ctx, schema.NewDraftReview(1, name, 4, "queued while offline")); err != nil {
					t.Fatalf("EnqueueReview() failed: %v", err)
				}
			}
			remote.failPost = func(d schema.DraftReview) bool { return d.Name == "second" }

			out := e.PostReviewQueue(ctx)
			if out.Kind != tt.wantKind {
				t.Errorf("PostReviewQueue() kind = %v, want %v (err %v)", out.Kind, tt.wantKind, out.Err)
			}
			if out.Message != tt.wantMessage {
				t.Errorf("PostReviewQueue() message = %q, want %q", out.Message, tt.wantMessage)
			}
			if diff := cmp.Diff(tt.wantResult, out.Value); diff != "" {
				t.Errorf("DrainResult mismatch (-want +got):\n%s", diff)
			}

			pending, err := s.PendingReviews(ctx)
			if err != nil {
				t.Fatalf("PendingReviews() failed: %v", err)
			}
			names := []string{}
			for _, d := range pending {
				names = append(names, d.Name)
			}
			if diff := cmp.Diff(tt.wantRemaining, names); diff != "" {
				t.Errorf("remaining queue mismatch (-want +got):\n%s", diff)
			}

			if len(remote.posted) != 1 || remote.posted[0].Name != "first" {
				t.Errorf("posted = %+v, want only first", remote.posted)
			}
		})
	}
}

func TestPostReviewQueue_ConfirmedRetriesOnNextDrain(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	s := openStore(t)
	e := newTestEngine(t, remote, s)

	remote.setOffline(true)
	if out := e.AddReview(ctx, schema.NewDraftReview(1, "Ana", 4, "later")); out.Kind != KindQueued {
		t.Fatalf("AddReview() kind = %v", out.Kind)
	}
	if out := e.PostReviewQueue(ctx); out.Kind != KindQueued || out.Value.Remaining != 1 {
		t.Fatalf("offline drain = %+v", out)
	}

	remote.setOffline(false)
	out := e.PostReviewQueue(ctx)
	if !out.OK() || out.Message != MsgReviewsReplayed {
		t.Errorf("online drain = %v %q", out.Kind, out.Message)
	}
	if out.Value.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", out.Value.Remaining)
	}
}

func TestSaveFavoriteQueue_LossyAllFailed(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	s := openStore(t)
	e := newTestEngine(t, remote, s, func(c *Config) { c.ReplayPolicy = ReplayLossy })

	if _, err := s.EnqueueFavorite(ctx, schema.QueuedFavorite{ID: 1, IsFavorite: false}, true); err != nil {
		t.Fatalf("EnqueueFavorite() failed: %v", err)
	}
	remote.setOffline(true)

	out := e.SaveFavoriteQueue(ctx)
	if out.Kind != KindOK || out.Message != MsgChangesDropped {
		t.Errorf("SaveFavoriteQueue() = %v %q, want ok with %q", out.Kind, out.Message, MsgChangesDropped)
	}
	want := DrainResult{Attempted: 1, Failed: 1, Dropped: 1}
	if diff := cmp.Diff(want, out.Value); diff != "" {
		t.Errorf("DrainResult mismatch (-want +got):\n%s", diff)
	}
}

func TestPostReviewQueue_Empty(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(t, newFakeRemote(), openStore(t), func(c *Config) { c.Notifier = rec })

	out := e.PostReviewQueue(context.Background())
	if !out.OK() || out.Message != "" || out.Value.Attempted != 0 {
		t.Errorf("PostReviewQueue() = %+v", out)
	}
	if len(rec.types()) != 0 {
		t.Errorf("events = %v, want none", rec.types())
	}
}

func TestToggleFavorite_Online(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	s := openStore(t)
	e := newTestEngine(t, remote, s)

	out := e.ToggleFavorite(ctx, 2, false)
	if !out.OK() || out.Value != Favorited {
		t.Fatalf("ToggleFavorite() = %v %q, want ok favorited", out.Kind, out.Value)
	}
	if diff := cmp.Diff([]bool{true}, remote.favoriteSent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}

	cached, err := s.Restaurants(ctx)
	if err != nil {
		t.Fatalf("Restaurants() failed: %v", err)
	}
	if len(cached) != 1 || cached[0].ID != 2 || !bool(cached[0].IsFavorite) {
		t.Errorf("cached = %+v, want restaurant 2 favorited", cached)
	}

	out = e.ToggleFavorite(ctx, 2, true)
	if !out.OK() || out.Value != Unfavorited {
		t.Errorf("ToggleFavorite() = %v %q, want ok unfavorited", out.Kind, out.Value)
	}
}

func TestToggleFavorite_OfflineQueuesPreToggleState(t *testing.T) {
	tests := []struct {
		coalesce bool
		want     []schema.QueuedFavorite
	}{
		{coalesce: true, want: []schema.QueuedFavorite{{ID: 1, IsFavorite: true}}},
		{coalesce: false, want: []schema.QueuedFavorite{{ID: 1, IsFavorite: false}, {ID: 1, IsFavorite: true}}},
	}

	for _, tt := range tests {
		name := "coalesced"
		if !tt.coalesce {
			name = "not coalesced"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			remote := newFakeRemote()
			remote.setOffline(true)
			s := openStore(t)
			e := newTestEngine(t, remote, s, func(c *Config) { c.CoalesceFavorites = tt.coalesce })

			first := e.ToggleFavorite(ctx, 1, false)
			if first.Kind != KindQueued || first.Value != Favorited || first.Message != MsgFavoriteQueued {
				t.Errorf("first toggle = %v %q %q", first.Kind, first.Value, first.Message)
			}
			second := e.ToggleFavorite(ctx, 1, true)
			if second.Kind != KindQueued || second.Value != Unfavorited {
				t.Errorf("second toggle = %v %q", second.Kind, second.Value)
			}

			got, err := e.PendingFavorites(ctx)
			if err != nil {
				t.Fatalf("PendingFavorites() failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("queue mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSaveFavoriteQueue_SendsInverse(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	s := openStore(t)
	e := newTestEngine(t, remote, s)

	if _, err := s.EnqueueFavorite(ctx, schema.QueuedFavorite{ID: 3, IsFavorite: false}, false); err != nil {
		t.Fatalf("EnqueueFavorite() failed: %v", err)
	}
	if _, err := s.EnqueueFavorite(ctx, schema.QueuedFavorite{ID: 4, IsFavorite: true}, false); err != nil {
		t.Fatalf("EnqueueFavorite() failed: %v", err)
	}

	out := e.SaveFavoriteQueue(ctx)
	if !out.OK() || out.Message != MsgFavoritesSaved {
		t.Fatalf("SaveFavoriteQueue() = %v %q (err %v)", out.Kind, out.Message, out.Err)
	}
	if diff := cmp.Diff([]bool{true, false}, remote.favoriteSent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	if n, _ := s.Count(ctx, store.FavoriteQueue); n != 0 {
		t.Errorf("favorite queue = %d, want 0", n)
	}

	cached, err := e.FetchRestaurantByID(ctx, 3)
	if err != nil {
		t.Fatalf("FetchRestaurantByID() failed: %v", err)
	}
	if !bool(cached.IsFavorite) {
		t.Error("cached restaurant 3 not favorited after replay")
	}
}

func TestUpdateDB_OverwritesWithoutRemovingStale(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	s := openStore(t)
	rec := &recorder{}
	e := newTestEngine(t, remote, s, func(c *Config) {
		c.Notifier = rec
		c.RefreshConcurrency = 2
	})

	if err := s.PutRestaurants(ctx,
		schema.Restaurant{ID: 1, Name: "Stale name"},
		schema.Restaurant{ID: 99, Name: "Closed down"},
	); err != nil {
		t.Fatalf("PutRestaurants() failed: %v", err)
	}

	if err := e.UpdateDB(ctx); err != nil {
		t.Fatalf("UpdateDB() failed: %v", err)
	}

	cached, err := s.Restaurants(ctx)
	if err != nil {
		t.Fatalf("Restaurants() failed: %v", err)
	}
	if len(cached) != 8 {
		t.Errorf("cached restaurants = %d, want 8", len(cached))
	}
	byID := map[int]string{}
	for _, r := range cached {
		byID[r.ID] = r.Name
	}
	if byID[1] != "Mission Chinese Food" {
		t.Errorf("restaurant 1 = %q, want overwritten", byID[1])
	}
	if byID[99] != "Closed down" {
		t.Errorf("restaurant 99 = %q, want kept", byID[99])
	}

	if n := remote.callCount("FetchReviews"); n != 7 {
		t.Errorf("review fetches = %d, want 7", n)
	}
	reviews, _ := s.ReviewsByRestaurant(ctx, 2)
	if len(reviews) != 1 || reviews[0].Name != "Morgan" {
		t.Errorf("cached reviews for 2 = %+v", reviews)
	}

	if diff := cmp.Diff([]string{EventRefreshed}, rec.types()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRefreshInBackground(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.setOffline(true)
	s := openStore(t)
	e := newTestEngine(t, remote, s)

	if err := <-e.RefreshInBackground(ctx); !apperrors.Is(err, apperrors.CodeNetwork) {
		t.Errorf("offline refresh error = %v, want NETWORK_ERROR", err)
	}

	remote.setOffline(false)
	done := e.RefreshInBackground(ctx)
	e.Wait()
	if err := <-done; err != nil {
		t.Errorf("refresh error = %v", err)
	}
	if n, _ := s.Count(ctx, store.Restaurants); n != 7 {
		t.Errorf("cached restaurants = %d, want 7", n)
	}
}

func TestHandleOnline(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	s := openStore(t)
	e := newTestEngine(t, remote, s)

	remote.setOffline(true)
	e.AddReview(ctx, schema.NewDraftReview(1, "Ana", 5, "Written on the subway"))
	e.ToggleFavorite(ctx, 1, false)

	remote.setOffline(false)
	res := e.HandleOnline(ctx, 1)

	if !res.Reviews.OK() || res.Reviews.Message != MsgReviewsReplayed {
		t.Errorf("Reviews = %v %q", res.Reviews.Kind, res.Reviews.Message)
	}
	if !res.Favorites.OK() || res.Favorites.Message != MsgFavoritesSaved {
		t.Errorf("Favorites = %v %q", res.Favorites.Kind, res.Favorites.Message)
	}
	if res.RefreshErr != nil {
		t.Errorf("RefreshErr = %v", res.RefreshErr)
	}

	reviews, err := s.ReviewsByRestaurant(ctx, 1)
	if err != nil {
		t.Fatalf("ReviewsByRestaurant() failed: %v", err)
	}
	if len(reviews) != 2 {
		t.Errorf("cached reviews = %d, want 2 after refresh", len(reviews))
	}

	stats, err := e.QueueStats(ctx)
	if err != nil {
		t.Fatalf("QueueStats() failed: %v", err)
	}
	if diff := cmp.Diff(QueueStats{StoreAvailable: true}, stats); diff != "" {
		t.Errorf("QueueStats mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRestaurantPage(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	s := openStore(t)
	e := newTestEngine(t, remote, s)

	if _, err := e.UpdateRestaurants(ctx); err != nil {
		t.Fatalf("UpdateRestaurants() failed: %v", err)
	}

	remote.failPost = func(d schema.DraftReview) bool { return d.RestaurantID == 2 }
	if _, err := s.EnqueueReview(ctx, schema.NewDraftReview(1, "Queued", 4, "replayed on load")); err != nil {
		t.Fatalf("EnqueueReview() failed: %v", err)
	}
	if _, err := s.EnqueueReview(ctx, schema.NewDraftReview(2, "Stuck", 2, "still offline")); err != nil {
		t.Fatalf("EnqueueReview() failed: %v", err)
	}

	page, err := e.LoadRestaurantPage(ctx, 1)
	if err != nil {
		t.Fatalf("LoadRestaurantPage() failed: %v", err)
	}
	if page.Restaurant.ID != 1 {
		t.Errorf("Restaurant.ID = %d", page.Restaurant.ID)
	}
	names := []string{}
	for _, r := range page.Reviews {
		names = append(names, r.Name)
	}
	if diff := cmp.Diff([]string{"Steve", "Queued"}, names); diff != "" {
		t.Errorf("reviews mismatch (-want +got):\n%s", diff)
	}
	if len(page.Pending) != 0 {
		t.Errorf("Pending = %+v, want none for restaurant 1", page.Pending)
	}

	page, err = e.LoadRestaurantPage(ctx, 2)
	if err != nil {
		t.Fatalf("LoadRestaurantPage(2) failed: %v", err)
	}
	if len(page.Pending) != 1 || page.Pending[0].Name != "Stuck" {
		t.Errorf("Pending = %+v, want the stuck draft", page.Pending)
	}

	if _, err := e.LoadRestaurantPage(ctx, 404); !IsNotFound(err) {
		t.Errorf("LoadRestaurantPage(404) error = %v, want NOT_FOUND", err)
	}
}

func TestParseReplayPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ReplayPolicy
		wantErr bool
	}{
		{in: "", want: ReplayConfirmed},
		{in: "confirmed", want: ReplayConfirmed},
		{in: " LOSSY ", want: ReplayLossy},
		{in: "sometimes", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseReplayPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseReplayPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseReplayPolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew_RequiresRemote(t *testing.T) {
	if _, err := New(nil, nil, DefaultConfig()); err == nil {
		t.Error("New(nil, ...) succeeded, want error")
	}
}
