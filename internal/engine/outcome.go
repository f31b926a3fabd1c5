package engine

import "fmt"

// Kind classifies the result of a write.
type Kind int

const (
	// KindOK means the write reached the server.
	KindOK Kind = iota

	// KindQueued means the write failed and was saved for replay. The caller
	// should show the optimistic result together with Message.
	KindQueued

	// KindUnrecoverable means the write failed and could not be queued. The
	// caller must report a hard failure.
	KindUnrecoverable

	// KindFailed means the request itself was rejected before any attempt,
	// for example a draft that does not validate.
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindQueued:
		return "queued"
	case KindUnrecoverable:
		return "unrecoverable"
	case KindFailed:
		return "failed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Outcome is the tagged result of an engine write.
type Outcome[T any] struct {
	Kind    Kind
	Value   T
	Message string
	Err     error
}

// OK reports whether the write reached the server.
func (o Outcome[T]) OK() bool { return o.Kind == KindOK }

// Unrecoverable reports whether the caller must show a hard failure.
func (o Outcome[T]) Unrecoverable() bool { return o.Kind == KindUnrecoverable }

func ok[T any](v T, msg string) Outcome[T] {
	return Outcome[T]{Kind: KindOK, Value: v, Message: msg}
}

func queued[T any](v T, msg string, cause error) Outcome[T] {
	return Outcome[T]{Kind: KindQueued, Value: v, Message: msg, Err: cause}
}

func unrecoverable[T any](v T, err error) Outcome[T] {
	return Outcome[T]{Kind: KindUnrecoverable, Value: v, Message: MsgTryLater, Err: err}
}

func failed[T any](err error) Outcome[T] {
	return Outcome[T]{Kind: KindFailed, Err: err}
}

// FavoriteState is the favorite status a toggle moves a restaurant to.
type FavoriteState string

const (
	Favorited   FavoriteState = "favorited"
	Unfavorited FavoriteState = "unfavorited"
)

func stateAfterToggle(current bool) FavoriteState {
	if current {
		return Unfavorited
	}
	return Favorited
}

// DrainResult counts what a queue replay did.
type DrainResult struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	// Dropped counts entries removed from the queue without a confirmed
	// send: failed replays under the lossy policy and undecodable entries.
	Dropped int `json:"dropped"`

	Remaining int `json:"remaining"`
}

// User-facing messages.
const (
	MsgReviewAdded     = "Review Added!"
	MsgReviewQueued    = "It appears you're offline. We'll post your review as soon as you connect!"
	MsgFavoriteQueued  = "It appears you're offline but we'll remember your favorite and save it when you connect!"
	MsgTryLater        = "It appears you're offline. Please try again later."
	MsgReviewsReplayed = "You are back online and your review has been posted!"
	MsgFavoritesSaved  = "You are back online and your favorite has been saved!"

	// MsgChangesDropped replaces the replayed message when a drain removed
	// entries without delivering them. The drain is still KindOK: the queue
	// is settled and nothing is left to retry.
	MsgChangesDropped = "You are back online, but some changes saved while offline could not be sent and were discarded."
)
