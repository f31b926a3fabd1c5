package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Review is a review as stored by the server. ID is zero until the server
// has assigned one.
type Review struct {
	ID           int        `json:"id,omitempty"`
	RestaurantID int        `json:"restaurant_id"`
	Name         string     `json:"name"`
	Rating       int        `json:"rating"`
	Comments     string     `json:"comments"`
	CreatedAt    *Timestamp `json:"createdAt,omitempty"`
	UpdatedAt    *Timestamp `json:"updatedAt,omitempty"`
}

// DraftReview is a client-authored review that has not been confirmed by the
// server. Queued drafts are replayed exactly as they were stored.
type DraftReview struct {
	RestaurantID int        `json:"restaurant_id"`
	Name         string     `json:"name"`
	Rating       int        `json:"rating"`
	Comments     string     `json:"comments"`
	CreatedAt    *Timestamp `json:"createdAt,omitempty"`
	UpdatedAt    *Timestamp `json:"updatedAt,omitempty"`
}

// UnmarshalJSON decodes a review, accepting id, restaurant_id and rating as
// numbers or numeric strings. Web clients post the rating field's string
// value, and the server returns it as stored.
func (r *Review) UnmarshalJSON(data []byte) error {
	type plain Review
	aux := struct {
		*plain
		ID           looseInt `json:"id"`
		RestaurantID looseInt `json:"restaurant_id"`
		Rating       looseInt `json:"rating"`
	}{plain: (*plain)(r), ID: looseInt(r.ID), RestaurantID: looseInt(r.RestaurantID), Rating: looseInt(r.Rating)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.ID, r.RestaurantID, r.Rating = int(aux.ID), int(aux.RestaurantID), int(aux.Rating)
	return nil
}

// UnmarshalJSON decodes a draft with the same leniency as Review.
func (d *DraftReview) UnmarshalJSON(data []byte) error {
	type plain DraftReview
	aux := struct {
		*plain
		RestaurantID looseInt `json:"restaurant_id"`
		Rating       looseInt `json:"rating"`
	}{plain: (*plain)(d), RestaurantID: looseInt(d.RestaurantID), Rating: looseInt(d.Rating)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.RestaurantID, d.Rating = int(aux.RestaurantID), int(aux.Rating)
	return nil
}

// looseInt is an integer that may arrive as a JSON number or a string.
// null and "" decode as zero.
type looseInt int

func (n *looseInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*n = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
		if s == "" {
			*n = 0
			return nil
		}
	}
	if v, err := strconv.Atoi(s); err == nil {
		*n = looseInt(v)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return fmt.Errorf("invalid integer %s", data)
	}
	*n = looseInt(f)
	return nil
}

// NewDraftReview builds a draft stamped with the current time.
func NewDraftReview(restaurantID int, name string, rating int, comments string) DraftReview {
	now := NewTimestamp(time.Now())
	return DraftReview{
		RestaurantID: restaurantID,
		Name:         name,
		Rating:       rating,
		Comments:     comments,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Validate checks the draft before it is sent.
func (d *DraftReview) Validate() error {
	if d.RestaurantID <= 0 {
		return fmt.Errorf("restaurant_id must be positive (got %d)", d.RestaurantID)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if d.Rating < 1 || d.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5 (got %d)", d.Rating)
	}
	if strings.TrimSpace(d.Comments) == "" {
		return fmt.Errorf("comments are required")
	}
	return nil
}

// Sanitize escapes angle brackets in the free-text fields.
func (d *DraftReview) Sanitize() {
	d.Name = CleanInput(d.Name)
	d.Comments = CleanInput(d.Comments)
}

// AsReview returns the draft as an unsaved Review, for display alongside
// confirmed reviews.
func (d DraftReview) AsReview() Review {
	return Review{
		RestaurantID: d.RestaurantID,
		Name:         d.Name,
		Rating:       d.Rating,
		Comments:     d.Comments,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// CleanInput replaces < and > with their HTML entities.
func CleanInput(s string) string {
	return strings.NewReplacer("<", "&lt;", ">", "&gt;").Replace(s)
}

// QueuedFavorite is a pending favorite toggle. IsFavorite holds the state
// before the toggle; replaying it sends the inverse.
type QueuedFavorite struct {
	ID         int          `json:"id"`
	IsFavorite FavoriteFlag `json:"is_favorite"`
}

// Timestamp is a point in time that the API encodes as epoch milliseconds.
// RFC 3339 strings are accepted on input.
type Timestamp struct {
	time.Time
}

// NewTimestamp returns a Timestamp truncated to millisecond precision.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t.Truncate(time.Millisecond)}
}

// MarshalJSON encodes the time as epoch milliseconds.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.UnixMilli())
}

// UnmarshalJSON accepts epoch milliseconds or an RFC 3339 string.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		ts.Time = t
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	ts.Time = time.UnixMilli(ms)
	return nil
}
