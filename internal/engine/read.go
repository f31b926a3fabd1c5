package engine

import (
	"context"
	"fmt"

	apperrors "github.com/restreviews/restsync/internal/errors"
	"github.com/restreviews/restsync/internal/schema"
)

// AllFilter disables a cuisine or neighborhood filter.
const AllFilter = "all"

// FetchRestaurants returns the cached restaurants when the store holds any,
// without contacting the server. Otherwise it fetches them from the server.
// A network result is not written to the store; UpdateRestaurants does that.
func (e *Engine) FetchRestaurants(ctx context.Context) ([]schema.Restaurant, error) {
	if e.local != nil {
		cached, err := e.local.Restaurants(ctx)
		if err != nil {
			e.logger.Printf("Warning: failed to read cached restaurants: %v", err)
		} else if len(cached) > 0 {
			return cached, nil
		}
	}

	restaurants, err := e.remote.FetchRestaurants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch restaurants: %w", err)
	}
	return restaurants, nil
}

// FetchReviewsByID returns the reviews for a restaurant, cache first.
func (e *Engine) FetchReviewsByID(ctx context.Context, restaurantID int) ([]schema.Review, error) {
	if e.local != nil {
		cached, err := e.local.ReviewsByRestaurant(ctx, restaurantID)
		if err != nil {
			e.logger.Printf("Warning: failed to read cached reviews for restaurant %d: %v", restaurantID, err)
		} else if len(cached) > 0 {
			return cached, nil
		}
	}

	reviews, err := e.remote.FetchReviews(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reviews for restaurant %d: %w", restaurantID, err)
	}
	return reviews, nil
}

// FetchRestaurantByID returns one restaurant. The error carries
// errors.CodeNotFound when no restaurant has that id.
func (e *Engine) FetchRestaurantByID(ctx context.Context, id int) (*schema.Restaurant, error) {
	restaurants, err := e.FetchRestaurants(ctx)
	if err != nil {
		return nil, err
	}
	for i := range restaurants {
		if restaurants[i].ID == id {
			return &restaurants[i], nil
		}
	}
	return nil, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("restaurant %d does not exist", id))
}

// FetchRestaurantByCuisine returns the restaurants serving cuisine.
func (e *Engine) FetchRestaurantByCuisine(ctx context.Context, cuisine string) ([]schema.Restaurant, error) {
	restaurants, err := e.FetchRestaurants(ctx)
	if err != nil {
		return nil, err
	}
	return filter(restaurants, func(r schema.Restaurant) bool { return r.CuisineType == cuisine }), nil
}

// FetchRestaurantByNeighborhood returns the restaurants in neighborhood.
func (e *Engine) FetchRestaurantByNeighborhood(ctx context.Context, neighborhood string) ([]schema.Restaurant, error) {
	restaurants, err := e.FetchRestaurants(ctx)
	if err != nil {
		return nil, err
	}
	return filter(restaurants, func(r schema.Restaurant) bool { return r.Neighborhood == neighborhood }), nil
}

// FetchRestaurantByCuisineAndNeighborhood applies both filters. Either may be
// AllFilter.
func (e *Engine) FetchRestaurantByCuisineAndNeighborhood(ctx context.Context, cuisine, neighborhood string) ([]schema.Restaurant, error) {
	results, err := e.FetchRestaurants(ctx)
	if err != nil {
		return nil, err
	}
	if cuisine != AllFilter {
		results = filter(results, func(r schema.Restaurant) bool { return r.CuisineType == cuisine })
	}
	if neighborhood != AllFilter {
		results = filter(results, func(r schema.Restaurant) bool { return r.Neighborhood == neighborhood })
	}
	return results, nil
}

// FetchNeighborhoods returns each neighborhood once, in first-seen order.
func (e *Engine) FetchNeighborhoods(ctx context.Context) ([]string, error) {
	restaurants, err := e.FetchRestaurants(ctx)
	if err != nil {
		return nil, err
	}
	return distinct(restaurants, func(r schema.Restaurant) string { return r.Neighborhood }), nil
}

// FetchCuisines returns each cuisine once, in first-seen order.
func (e *Engine) FetchCuisines(ctx context.Context) ([]string, error) {
	restaurants, err := e.FetchRestaurants(ctx)
	if err != nil {
		return nil, err
	}
	return distinct(restaurants, func(r schema.Restaurant) string { return r.CuisineType }), nil
}

func filter(in []schema.Restaurant, keep func(schema.Restaurant) bool) []schema.Restaurant {
	out := make([]schema.Restaurant, 0, len(in))
	for _, r := range in {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func distinct(in []schema.Restaurant, field func(schema.Restaurant) string) []string {
	seen := make(map[string]bool, len(in))
	out := []string{}
	for _, r := range in {
		v := field(r)
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
