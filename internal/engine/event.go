package engine

import "time"

// Event types.
const (
	EventReviewPosted   = "review.posted"
	EventReviewQueued   = "review.queued"
	EventFavoriteSaved  = "favorite.saved"
	EventFavoriteQueued = "favorite.queued"
	EventWriteFailed    = "write.failed"
	EventReplayed       = "queue.replayed"
	EventQueueDrained   = "queue.drained"
	EventRefreshed      = "store.refreshed"
)

// Event describes something the engine did, for live front ends.
type Event struct {
	Type         string       `json:"type"`
	Kind         string       `json:"kind,omitempty"`
	Queue        string       `json:"queue,omitempty"`
	RestaurantID int          `json:"restaurant_id,omitempty"`
	OpID         string       `json:"op_id,omitempty"`
	Message      string       `json:"message,omitempty"`
	Error        string       `json:"error,omitempty"`
	Drain        *DrainResult `json:"drain,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

func (e *Engine) emit(ev Event) {
	if e.notifier == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	e.notifier.Notify(ev)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
