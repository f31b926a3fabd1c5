package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/restreviews/restsync/internal/schema"
)

// Restaurants returns every cached restaurant.
func (s *Store) Restaurants(ctx context.Context) ([]schema.Restaurant, error) {
	records, err := s.GetAll(ctx, Restaurants)
	if err != nil {
		return nil, err
	}
	return decodeAll[schema.Restaurant](records)
}

// ReviewsByRestaurant returns the cached reviews for one restaurant.
func (s *Store) ReviewsByRestaurant(ctx context.Context, restaurantID int) ([]schema.Review, error) {
	records, err := s.GetAllByIndex(ctx, Reviews, IndexRestaurant, restaurantID)
	if err != nil {
		return nil, err
	}
	return decodeAll[schema.Review](records)
}

// PutRestaurants overwrites the given restaurants by id. Restaurants absent
// from the slice are left untouched.
func (s *Store) PutRestaurants(ctx context.Context, restaurants ...schema.Restaurant) error {
	values := make([][]byte, 0, len(restaurants))
	for i := range restaurants {
		if err := restaurants[i].Validate(); err != nil {
			return fmt.Errorf("invalid restaurant: %w", err)
		}
		data, err := json.Marshal(restaurants[i])
		if err != nil {
			return fmt.Errorf("failed to marshal restaurant %d: %w", restaurants[i].ID, err)
		}
		values = append(values, data)
	}
	return s.PutAll(ctx, Restaurants, values)
}

// PutReviews overwrites the given reviews by id. Reviews without a server id
// are rejected.
func (s *Store) PutReviews(ctx context.Context, reviews ...schema.Review) error {
	values := make([][]byte, 0, len(reviews))
	for i := range reviews {
		if reviews[i].ID <= 0 {
			return fmt.Errorf("review for restaurant %d has no server id", reviews[i].RestaurantID)
		}
		data, err := json.Marshal(reviews[i])
		if err != nil {
			return fmt.Errorf("failed to marshal review %d: %w", reviews[i].ID, err)
		}
		values = append(values, data)
	}
	return s.PutAll(ctx, Reviews, values)
}

// EnqueueReview appends a draft to the review queue and returns its key.
func (s *Store) EnqueueReview(ctx context.Context, draft schema.DraftReview) (int64, error) {
	data, err := json.Marshal(draft)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal draft review: %w", err)
	}
	return s.Put(ctx, ReviewQueue, data)
}

// EnqueueFavorite appends a pending toggle to the favorite queue. With
// coalesce set, earlier pending toggles for the same restaurant are replaced
// in the same transaction so only the latest survives.
func (s *Store) EnqueueFavorite(ctx context.Context, fav schema.QueuedFavorite, coalesce bool) (int64, error) {
	data, err := json.Marshal(fav)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal favorite: %w", err)
	}

	if !coalesce {
		return s.Put(ctx, FavoriteQueue, data)
	}

	key, n, err := s.ReplaceByIndex(ctx, FavoriteQueue, IndexTarget, fav.ID, data)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Printf("Coalesced %d pending favorite toggle(s) for restaurant %d", n, fav.ID)
	}
	return key, nil
}

// PendingReviews returns the queued drafts in queue order.
func (s *Store) PendingReviews(ctx context.Context) ([]schema.DraftReview, error) {
	records, err := s.GetAll(ctx, ReviewQueue)
	if err != nil {
		return nil, err
	}
	return decodeAll[schema.DraftReview](records)
}

// PendingFavorites returns the queued favorite toggles in queue order.
func (s *Store) PendingFavorites(ctx context.Context) ([]schema.QueuedFavorite, error) {
	records, err := s.GetAll(ctx, FavoriteQueue)
	if err != nil {
		return nil, err
	}
	return decodeAll[schema.QueuedFavorite](records)
}

func decodeAll[T any](records []Record) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		var v T
		if err := json.Unmarshal(rec.Value, &v); err != nil {
			return nil, fmt.Errorf("failed to decode record %d: %w", rec.Key, err)
		}
		out = append(out, v)
	}
	return out, nil
}
