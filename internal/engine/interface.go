// Package engine is the offline-first synchronization engine.
//
// Reads are served from the local store when it holds data and fall back to
// the remote API otherwise. Writes go to the remote API first; when that
// fails they are queued in the local store and replayed on the next online
// transition or page load.
//
// The engine owns no global state. It holds the remote client and the local
// store handle it was given; the caller opens and closes the store.
package engine

import (
	"context"

	"github.com/restreviews/restsync/internal/schema"
	"github.com/restreviews/restsync/internal/store"
)

// Remote is the restaurant API as the engine uses it.
//
// Every call is a single attempt. Failures should carry
// errors.CodeNetwork so the engine can tell them apart from local faults.
// A write that returns a nil error has been accepted by the server and is
// never queued or replayed again.
type Remote interface {
	FetchRestaurants(ctx context.Context) ([]schema.Restaurant, error)
	FetchReviews(ctx context.Context, restaurantID int) ([]schema.Review, error)
	PostReview(ctx context.Context, draft schema.DraftReview) (*schema.Review, error)

	// PutFavorite sends the inverse of current and returns the updated
	// restaurant.
	PutFavorite(ctx context.Context, restaurantID int, current bool) (*schema.Restaurant, error)
}

// LocalStore is the persistent cache and queue storage.
//
// *store.Store implements LocalStore. A nil LocalStore puts the engine in
// network-only mode: nothing is cached and failed writes cannot be queued.
type LocalStore interface {
	Restaurants(ctx context.Context) ([]schema.Restaurant, error)
	ReviewsByRestaurant(ctx context.Context, restaurantID int) ([]schema.Review, error)
	PutRestaurants(ctx context.Context, restaurants ...schema.Restaurant) error
	PutReviews(ctx context.Context, reviews ...schema.Review) error

	EnqueueReview(ctx context.Context, draft schema.DraftReview) (int64, error)
	EnqueueFavorite(ctx context.Context, fav schema.QueuedFavorite, coalesce bool) (int64, error)
	PendingReviews(ctx context.Context) ([]schema.DraftReview, error)
	PendingFavorites(ctx context.Context) ([]schema.QueuedFavorite, error)

	OpenCursor(ctx context.Context, c store.Collection) (*store.Cursor, error)
	Count(ctx context.Context, c store.Collection) (int, error)
}

// Notifier receives engine events. Implementations must not block.
type Notifier interface {
	Notify(Event)
}

var _ LocalStore = (*store.Store)(nil)
