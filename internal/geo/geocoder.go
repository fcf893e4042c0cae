package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/zerohunger/foodbridge/internal/logctx"
)

// Coordinates is a resolved geographic position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Geocoder resolves a free-text address into coordinates. Resolution always
// happens before listing creation and never inside a store transaction.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (Coordinates, error)
}

// ErrNoMatch is returned when the geocoding service has no result for the
// address.
var ErrNoMatch = errors.New("no coordinates found for address")

// LookupError represents a failed geocoding request: network errors, non-2xx
// responses or undecodable payloads.
type LookupError struct {
	StatusCode int   // HTTP status code, 0 for non-HTTP failures
	Err        error // Underlying error, if any
}

func (e *LookupError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("geocoding lookup failed (HTTP %d)", e.StatusCode)
	}

	return fmt.Sprintf("geocoding lookup failed: %v", e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Client resolves addresses against a Nominatim-compatible search API.
type Client struct {
	baseURL   string
	userAgent string
	hc        *http.Client
}

// NewClient creates a geocoding client. Nominatim's usage policy requires an
// identifying User-Agent.
func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		hc:        &http.Client{Timeout: timeout},
	}
}

// Resolve looks up the address and returns the first match.
func (c *Client) Resolve(ctx context.Context, address string) (Coordinates, error) {
	logger := logctx.LoggerFromContext(ctx)

	endpoint := fmt.Sprintf("%s/search?format=json&limit=1&q=%s", c.baseURL, url.QueryEscape(address))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Coordinates{}, &LookupError{Err: err}
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.hc.Do(req)
	if err != nil {
		logger.ErrorContext(ctx, "geocoding request failed", "err", err)

		return Coordinates{}, &LookupError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, &LookupError{StatusCode: resp.StatusCode}
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Coordinates{}, &LookupError{Err: err}
	}

	if len(results) == 0 {
		return Coordinates{}, ErrNoMatch
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Coordinates{}, &LookupError{Err: fmt.Errorf("malformed latitude %q: %w", results[0].Lat, err)}
	}

	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Coordinates{}, &LookupError{Err: fmt.Errorf("malformed longitude %q: %w", results[0].Lon, err)}
	}

	logger.DebugContext(ctx, "address resolved", "lat", lat, "lon", lon)

	return Coordinates{Latitude: lat, Longitude: lon}, nil
}
