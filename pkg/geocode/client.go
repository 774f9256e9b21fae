// Package geocode provides forward geocoding of street addresses via the
// Mapbox Geocoding v6 API.
package geocode

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Client resolves free-form addresses into structured, geocoded addresses.
type Client interface {
	// Forward geocodes a single free-form address. It returns ErrNoMatch when
	// the query resolves to zero features.
	Forward(ctx context.Context, query string) (*Address, error)
}

// Address is the normalized geocoding output. Longitude and Latitude are nil
// when the matched feature carried no coordinates; callers decide whether a
// coordinate-less match is usable.
type Address struct {
	Line1       string   `json:"line1"`
	FullAddress string   `json:"full_address"`
	City        *string  `json:"city,omitempty"`
	State       *string  `json:"state,omitempty"`
	PostalCode  *string  `json:"postal_code,omitempty"`
	CountryCode *string  `json:"country_code,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
}

// ErrNoMatch indicates the geocoder returned no features for a query.
var ErrNoMatch = fmt.Errorf("geocode: no match")

// APIError represents a non-2xx response from the geocoding API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("geocode: api returned status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithBaseURL overrides the API base URL, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *client) {
		c.baseURL = baseURL
	}
}

// WithCountry restricts results to a country code.
func WithCountry(country string) Option {
	return func(c *client) {
		c.country = country
	}
}

// WithLimit caps the number of candidate features requested.
func WithLimit(limit int) Option {
	return func(c *client) {
		c.limit = limit
	}
}

type client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	country    string
	limit      int
}

// NewClient creates a geocoding Client with the given API token.
func NewClient(token string, opts ...Option) Client {
	c := &client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.mapbox.com/search/geocode/v6",
		token:      token,
		country:    "us",
		limit:      1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
