// Package schema defines the restaurant and review records exchanged with the
// restaurant API and kept in the local store.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LatLng is a map coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Restaurant is a directory entry. IDs are assigned by the server; the
// client never creates restaurants.
type Restaurant struct {
	ID             int               `json:"id"`
	Name           string            `json:"name"`
	CuisineType    string            `json:"cuisine_type"`
	Neighborhood   string            `json:"neighborhood"`
	Address        string            `json:"address"`
	LatLng         LatLng            `json:"latlng"`
	Photograph     string            `json:"photograph,omitempty"`
	OperatingHours map[string]string `json:"operating_hours,omitempty"`
	IsFavorite     FavoriteFlag      `json:"is_favorite"`
	CreatedAt      *Timestamp        `json:"createdAt,omitempty"`
	UpdatedAt      *Timestamp        `json:"updatedAt,omitempty"`
}

// Validate checks the fields the store relies on for keys and indexes.
func (r *Restaurant) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("id must be positive (got %d)", r.ID)
	}
	return nil
}

// URLForRestaurant returns the page URL for a restaurant.
func URLForRestaurant(r Restaurant) string {
	return fmt.Sprintf("./restaurant.html?id=%d", r.ID)
}

// ImageURLForRestaurant returns the image URL for a restaurant.
func ImageURLForRestaurant(r Restaurant) string {
	return fmt.Sprintf("/img/%s", r.Photograph)
}

// FavoriteFlag is a boolean that travels as the strings "true" and "false".
// The API also sends bare JSON booleans on some responses; both decode.
type FavoriteFlag bool

// WireValue returns the string form used on the wire.
func (f FavoriteFlag) WireValue() string {
	if f {
		return "true"
	}
	return "false"
}

// MarshalJSON encodes the flag as a JSON string.
func (f FavoriteFlag) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.WireValue())
}

// UnmarshalJSON accepts "true"/"false" strings, bare booleans and null.
func (f *FavoriteFlag) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = false
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = str
	}
	v, err := ParseFavorite(s)
	if err != nil {
		return err
	}
	*f = FavoriteFlag(v)
	return nil
}

// ParseFavorite converts the wire string to a bool. An empty string reads
// as false, matching records created before favorites existed.
func ParseFavorite(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, nil
	case "false", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid is_favorite value %q", s)
	}
}
