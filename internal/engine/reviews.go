package engine

import (
	"context"

	apperrors "github.com/restreviews/restsync/internal/errors"
	"github.com/restreviews/restsync/internal/schema"
	"github.com/restreviews/restsync/internal/store"
)

// AddReview posts a draft. When the post fails the draft is queued and the
// outcome is KindQueued; when it cannot be queued either the outcome is
// KindUnrecoverable. A draft that does not validate is KindFailed and
// nothing is sent.
//
// On KindOK the server-assigned review is returned but not cached; call
// UpdateReviews to pick it up.
func (e *Engine) AddReview(ctx context.Context, draft schema.DraftReview) Outcome[*schema.Review] {
	draft.Sanitize()
	if err := draft.Validate(); err != nil {
		return failed[*schema.Review](apperrors.Wrap(apperrors.CodeValidation, "invalid review", err))
	}

	review, err := e.remote.PostReview(ctx, draft)
	if err == nil {
		e.emit(Event{Type: EventReviewPosted, Kind: KindOK.String(), RestaurantID: draft.RestaurantID, Message: MsgReviewAdded})
		return ok(review, MsgReviewAdded)
	}

	e.logger.Printf("Posting review for restaurant %d failed, queuing: %v", draft.RestaurantID, err)

	if e.local == nil {
		return e.reviewUnrecoverable(draft, apperrors.Wrap(apperrors.CodeStoreUnavailable, "cannot queue review", err))
	}
	if _, qerr := e.local.EnqueueReview(ctx, draft); qerr != nil {
		e.logger.Printf("Warning: failed to queue review: %v", qerr)
		return e.reviewUnrecoverable(draft, qerr)
	}

	e.emit(Event{Type: EventReviewQueued, Kind: KindQueued.String(), RestaurantID: draft.RestaurantID, Message: MsgReviewQueued, Error: err.Error()})
	return queued[*schema.Review](nil, MsgReviewQueued, err)
}

func (e *Engine) reviewUnrecoverable(draft schema.DraftReview, err error) Outcome[*schema.Review] {
	e.emit(Event{Type: EventWriteFailed, Kind: KindUnrecoverable.String(), RestaurantID: draft.RestaurantID, Message: MsgTryLater, Error: err.Error()})
	return unrecoverable[*schema.Review](nil, err)
}

// PostReviewQueue replays the queued reviews. Without a local store there
// is nothing to replay and the outcome is an empty KindOK.
func (e *Engine) PostReviewQueue(ctx context.Context) Outcome[DrainResult] {
	if e.local == nil {
		return ok(DrainResult{}, "")
	}

	e.reviewMu.Lock()
	defer e.reviewMu.Unlock()

	res, err := drain(ctx, e, store.ReviewQueue, func(ctx context.Context, draft schema.DraftReview) error {
		_, err := e.remote.PostReview(ctx, draft)
		return err
	})
	return e.drainOutcome(store.ReviewQueue, res, err, MsgReviewsReplayed, MsgReviewQueued)
}

// PendingReviews returns the queued drafts in replay order.
func (e *Engine) PendingReviews(ctx context.Context) ([]schema.DraftReview, error) {
	if e.local == nil {
		return nil, apperrors.ErrStoreUnavailable
	}
	return e.local.PendingReviews(ctx)
}
