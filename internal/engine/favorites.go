package engine

import (
	"context"

	apperrors "github.com/restreviews/restsync/internal/errors"
	"github.com/restreviews/restsync/internal/schema"
	"github.com/restreviews/restsync/internal/store"
)

// ToggleFavorite flips a restaurant's favorite flag. current is the state
// the caller is displaying before the toggle.
//
// The outcome's Value is the state the toggle moves to, for both KindOK and
// KindQueued, so the caller can update its indicator either way. On KindOK
// the restaurant returned by the server is written to the store.
func (e *Engine) ToggleFavorite(ctx context.Context, restaurantID int, current bool) Outcome[FavoriteState] {
	next := stateAfterToggle(current)

	restaurant, err := e.remote.PutFavorite(ctx, restaurantID, current)
	if err == nil {
		if e.local != nil && restaurant != nil && restaurant.ID > 0 {
			if perr := e.local.PutRestaurants(ctx, *restaurant); perr != nil {
				e.logger.Printf("Warning: failed to cache restaurant %d: %v", restaurantID, perr)
			}
		}
		e.emit(Event{Type: EventFavoriteSaved, Kind: KindOK.String(), RestaurantID: restaurantID, Message: string(next)})
		return ok(next, "")
	}

	e.logger.Printf("Saving favorite for restaurant %d failed, queuing: %v", restaurantID, err)

	if e.local == nil {
		return e.favoriteUnrecoverable(restaurantID, next, apperrors.Wrap(apperrors.CodeStoreUnavailable, "cannot queue favorite", err))
	}

	fav := schema.QueuedFavorite{ID: restaurantID, IsFavorite: schema.FavoriteFlag(current)}
	if _, qerr := e.local.EnqueueFavorite(ctx, fav, e.cfg.CoalesceFavorites); qerr != nil {
		e.logger.Printf("Warning: failed to queue favorite: %v", qerr)
		return e.favoriteUnrecoverable(restaurantID, next, qerr)
	}

	e.emit(Event{Type: EventFavoriteQueued, Kind: KindQueued.String(), RestaurantID: restaurantID, Message: MsgFavoriteQueued, Error: err.Error()})
	return queued(next, MsgFavoriteQueued, err)
}

func (e *Engine) favoriteUnrecoverable(restaurantID int, next FavoriteState, err error) Outcome[FavoriteState] {
	e.emit(Event{Type: EventWriteFailed, Kind: KindUnrecoverable.String(), RestaurantID: restaurantID, Message: MsgTryLater, Error: err.Error()})
	return unrecoverable(next, err)
}

// SaveFavoriteQueue replays the queued favorite toggles. Each entry sends
// the inverse of the state it recorded. A successful replay also refreshes
// the cached restaurant.
func (e *Engine) SaveFavoriteQueue(ctx context.Context) Outcome[DrainResult] {
	if e.local == nil {
		return ok(DrainResult{}, "")
	}

	e.favoriteMu.Lock()
	defer e.favoriteMu.Unlock()

	res, err := drain(ctx, e, store.FavoriteQueue, func(ctx context.Context, fav schema.QueuedFavorite) error {
		restaurant, err := e.remote.PutFavorite(ctx, fav.ID, bool(fav.IsFavorite))
		if err != nil {
			return err
		}
		if restaurant != nil && restaurant.ID > 0 {
			if perr := e.local.PutRestaurants(ctx, *restaurant); perr != nil {
				e.logger.Printf("Warning: failed to cache restaurant %d: %v", fav.ID, perr)
			}
		}
		return nil
	})
	return e.drainOutcome(store.FavoriteQueue, res, err, MsgFavoritesSaved, MsgFavoriteQueued)
}

// PendingFavorites returns the queued toggles in replay order.
func (e *Engine) PendingFavorites(ctx context.Context) ([]schema.QueuedFavorite, error) {
	if e.local == nil {
		return nil, apperrors.ErrStoreUnavailable
	}
	return e.local.PendingFavorites(ctx)
}
