// Package geocoder resolves place names to coordinates through the Google
// Geocoding API, optionally behind a Redis cache.
package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kilianp07/freightmatch/core/source"
)

// DefaultBaseURL is the public Google Maps API endpoint.
const DefaultBaseURL = "https://maps.googleapis.com"

const geocodePath = "/maps/api/geocode/json"

// Options configures a GoogleClient.
type Options struct {
	APIKey   string
	BaseURL  string
	Region   string
	Language string
	Timeout  time.Duration
	// RatePerSecond limits outgoing requests. Zero disables limiting.
	RatePerSecond float64
	Burst         int
}

// GoogleClient calls the Google Geocoding API.
type GoogleClient struct {
	key        string
	baseURL    string
	region     string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGoogleClient creates a client from opts.
func NewGoogleClient(opts Options) *GoogleClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return &GoogleClient{
		key:        opts.APIKey,
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		region:     opts.Region,
		language:   opts.Language,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    limiter,
	}
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode returns the coordinates of the first match for location. It
// returns source.ErrNotFound when the API finds nothing.
func (c *GoogleClient) Geocode(ctx context.Context, location string) (float64, float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, 0, fmt.Errorf("geocode rate limit: %w", err)
	}
	params := url.Values{}
	params.Set("address", location)
	params.Set("key", c.key)
	if c.region != "" {
		params.Set("region", c.region)
	}
	if c.language != "" {
		params.Set("language", c.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+geocodePath+"?"+params.Encode(), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("geocode http status %d", resp.StatusCode)
	}
	var out geocodeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, 0, fmt.Errorf("unmarshal response: %w", err)
	}
	switch out.Status {
	case "OK":
		if len(out.Results) == 0 {
			return 0, 0, source.ErrNotFound
		}
		loc := out.Results[0].Geometry.Location
		return loc.Lat, loc.Lng, nil
	case "ZERO_RESULTS":
		return 0, 0, source.ErrNotFound
	default:
		return 0, 0, fmt.Errorf("geocode status %s: %s", out.Status, out.ErrorMessage)
	}
}
