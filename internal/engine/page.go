package engine

import (
	"context"
	"fmt"

	apperrors "github.com/restreviews/restsync/internal/errors"
	"github.com/restreviews/restsync/internal/schema"
	"github.com/restreviews/restsync/internal/store"
)

// OnlineResult reports what HandleOnline replayed.
type OnlineResult struct {
	Reviews   Outcome[DrainResult]
	Favorites Outcome[DrainResult]

	// RefreshErr is set when the follow-up review refresh failed.
	RefreshErr error
}

// HandleOnline runs the work owed on an offline to online transition:
// replay the review queue, replay the favorite queue, then refresh the
// reviews of restaurantID when it is positive.
func (e *Engine) HandleOnline(ctx context.Context, restaurantID int) OnlineResult {
	e.logger.Printf("Back online, replaying queues")

	res := OnlineResult{
		Reviews:   e.PostReviewQueue(ctx),
		Favorites: e.SaveFavoriteQueue(ctx),
	}

	if restaurantID > 0 {
		if err := e.UpdateReviews(ctx, restaurantID); err != nil {
			e.logger.Printf("Warning: %v", err)
			res.RefreshErr = err
		}
	}
	return res
}

// RestaurantPage is the data behind a restaurant detail view.
type RestaurantPage struct {
	Restaurant schema.Restaurant
	Reviews    []schema.Review

	// Pending holds this restaurant's queued drafts, not yet on the server.
	Pending []schema.Review

	Replay Outcome[DrainResult]
}

// LoadRestaurantPage replays the review queue, refreshes the restaurant's
// reviews and then reads the restaurant and its reviews. Replay and refresh
// failures are logged; only a failed read is returned as an error.
func (e *Engine) LoadRestaurantPage(ctx context.Context, restaurantID int) (*RestaurantPage, error) {
	page := &RestaurantPage{Replay: e.PostReviewQueue(ctx)}
	if page.Replay.Err != nil {
		e.logger.Printf("Warning: review replay: %v", page.Replay.Err)
	}

	if err := e.UpdateReviews(ctx, restaurantID); err != nil {
		e.logger.Printf("Warning: %v", err)
	}

	restaurant, err := e.FetchRestaurantByID(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	page.Restaurant = *restaurant

	reviews, err := e.FetchReviewsByID(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	page.Reviews = reviews

	if e.local != nil {
		drafts, err := e.local.PendingReviews(ctx)
		if err != nil {
			e.logger.Printf("Warning: failed to read pending reviews: %v", err)
		}
		for _, d := range drafts {
			if d.RestaurantID == restaurantID {
				page.Pending = append(page.Pending, d.AsReview())
			}
		}
	}

	return page, nil
}

// QueueStats summarizes the pending-operation queues.
type QueueStats struct {
	StoreAvailable   bool `json:"store_available"`
	PendingReviews   int  `json:"pending_reviews"`
	PendingFavorites int  `json:"pending_favorites"`
}

// QueueStats counts the queued operations.
func (e *Engine) QueueStats(ctx context.Context) (QueueStats, error) {
	if e.local == nil {
		return QueueStats{}, nil
	}

	reviews, err := e.local.Count(ctx, store.ReviewQueue)
	if err != nil {
		return QueueStats{}, fmt.Errorf("failed to count review queue: %w", err)
	}
	favorites, err := e.local.Count(ctx, store.FavoriteQueue)
	if err != nil {
		return QueueStats{}, fmt.Errorf("failed to count favorite queue: %w", err)
	}

	return QueueStats{StoreAvailable: true, PendingReviews: reviews, PendingFavorites: favorites}, nil
}

// IsNotFound reports whether err means a requested restaurant does not
// exist.
func IsNotFound(err error) bool {
	return apperrors.Is(err, apperrors.CodeNotFound)
}
