package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/restreviews/restsync/internal/schema"
)

// UpdateRestaurants fetches every restaurant from the server and overwrites
// the cached copies by id. Cached restaurants missing from the response are
// kept. The fetched restaurants are returned.
func (e *Engine) UpdateRestaurants(ctx context.Context) ([]schema.Restaurant, error) {
	restaurants, err := e.remote.FetchRestaurants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh restaurants: %w", err)
	}
	if e.local == nil {
		return restaurants, nil
	}

	if err := e.local.PutRestaurants(ctx, restaurants...); err != nil {
		return nil, fmt.Errorf("failed to cache restaurants: %w", err)
	}
	e.logger.Printf("Refreshed %d restaurants", len(restaurants))
	return restaurants, nil
}

// UpdateReviews fetches a restaurant's reviews and overwrites the cached
// copies by id.
func (e *Engine) UpdateReviews(ctx context.Context, restaurantID int) error {
	reviews, err := e.remote.FetchReviews(ctx, restaurantID)
	if err != nil {
		return fmt.Errorf("failed to refresh reviews for restaurant %d: %w", restaurantID, err)
	}
	if e.local == nil {
		return nil
	}

	if err := e.local.PutReviews(ctx, reviews...); err != nil {
		return fmt.Errorf("failed to cache reviews for restaurant %d: %w", restaurantID, err)
	}
	return nil
}

// UpdateDB refreshes the restaurants and then every restaurant's reviews,
// at most Config.RefreshConcurrency at a time. A failed review refresh is
// logged and does not stop the others; the first such error is returned.
func (e *Engine) UpdateDB(ctx context.Context) error {
	restaurants, err := e.UpdateRestaurants(ctx)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(e.cfg.RefreshConcurrency)

	for _, r := range restaurants {
		id := r.ID
		g.Go(func() error {
			if err := e.UpdateReviews(ctx, id); err != nil {
				e.logger.Printf("Warning: %v", err)
				return err
			}
			return nil
		})
	}

	err = g.Wait()
	e.emit(Event{Type: EventRefreshed, Error: errString(err)})
	return err
}

// RefreshInBackground runs UpdateDB without blocking the caller. Errors are
// logged. The returned channel yields UpdateDB's result and is then closed;
// callers that do not care may ignore it.
func (e *Engine) RefreshInBackground(ctx context.Context) <-chan error {
	done := make(chan error, 1)

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		defer close(done)

		err := e.UpdateDB(ctx)
		if err != nil {
			e.logger.Printf("Background refresh failed: %v", err)
		}
		done <- err
	}()

	return done
}
