// Package remote is a thin client for the restaurant HTTP JSON API.
//
// The client holds no state beyond its base URL and issues every request
// exactly once. Retrying is the caller's concern.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	apperrors "github.com/restreviews/restsync/internal/errors"
	"github.com/restreviews/restsync/internal/schema"
)

// DefaultBaseURL is the development server address.
const DefaultBaseURL = "http://localhost:1337/"

const contentType = "application/json; charset=utf-8"

// Options configures a Client.
type Options struct {
	// Timeout bounds each request. Zero leaves timing to the transport.
	Timeout time.Duration

	// HTTPClient overrides the underlying client. Timeout is ignored when set.
	HTTPClient *http.Client

	Logger *log.Logger
}

// Client issues requests against the restaurant API.
type Client struct {
	mu      sync.RWMutex
	baseURL string

	http   *http.Client
	logger *log.Logger
}

// New creates a client for baseURL. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}

	c := &Client{http: hc, logger: logger}
	c.SetBaseURL(baseURL)
	return c
}

// SetBaseURL replaces the API base URL. A trailing slash is added when
// missing.
func (c *Client) SetBaseURL(baseURL string) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = baseURL
}

// BaseURL returns the current API base URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// FetchRestaurants returns every restaurant.
func (c *Client) FetchRestaurants(ctx context.Context) ([]schema.Restaurant, error) {
	var out []schema.Restaurant
	if err := c.do(ctx, http.MethodGet, "restaurants", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchReviews returns the reviews for one restaurant.
func (c *Client) FetchReviews(ctx context.Context, restaurantID int) ([]schema.Review, error) {
	var out []schema.Review
	path := fmt.Sprintf("reviews/?restaurant_id=%d", restaurantID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PostReview sends a draft and returns the stored review. When the server
// accepts the draft but its response cannot be decoded, the draft itself is
// returned without an ID and the error is nil.
func (c *Client) PostReview(ctx context.Context, draft schema.DraftReview) (*schema.Review, error) {
	body, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal review: %w", err)
	}

	var out schema.Review
	if err := c.do(ctx, http.MethodPost, "reviews", body, &out); err != nil {
		if !accepted(err) {
			return nil, err
		}
		c.logger.Printf("Warning: review for restaurant %d was accepted but the response was unreadable: %v", draft.RestaurantID, err)
		out = draft.AsReview()
	}
	return &out, nil
}

// PutFavorite toggles a restaurant's favorite flag. current is the state
// before the toggle; the inverse is what gets sent. An accepted request
// with an unreadable response yields a restaurant holding only the ID and
// the new flag.
func (c *Client) PutFavorite(ctx context.Context, restaurantID int, current bool) (*schema.Restaurant, error) {
	next := schema.FavoriteFlag(!current)
	path := fmt.Sprintf("restaurants/%d/?is_favorite=%s", restaurantID, next.WireValue())

	var out schema.Restaurant
	if err := c.do(ctx, http.MethodPut, path, nil, &out); err != nil {
		if !accepted(err) {
			return nil, err
		}
		c.logger.Printf("Warning: favorite for restaurant %d was accepted but the response was unreadable: %v", restaurantID, err)
		out = schema.Restaurant{ID: restaurantID, IsFavorite: next}
	}
	return &out, nil
}

// accepted reports whether err came from a request the server answered
// with a 2xx status. Such a write has been delivered and must not be
// retried.
func accepted(err error) bool {
	return apperrors.Is(err, apperrors.CodeDecode)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	target := c.BaseURL() + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeNetwork, "failed to build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Printf("%s %s: %v", method, target, err)
		return apperrors.Wrap(apperrors.CodeNetwork, fmt.Sprintf("%s %s", method, target), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Printf("%s %s: status %d", method, target, resp.StatusCode)
		return apperrors.New(apperrors.CodeNetwork,
			fmt.Sprintf("%s %s: unexpected status %d: %s", method, target, resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.CodeDecode, fmt.Sprintf("failed to decode %s %s response", method, target), err)
	}
	return nil
}
