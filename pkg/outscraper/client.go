// Package outscraper provides a client for the Outscraper Google Maps
// search API.
package outscraper

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.outscraper.cloud"

// Client performs map-listing search operations.
type Client interface {
	// MapsSearch runs a synchronous maps search for a single query and
	// returns the task result. Non-success task statuses are reported in
	// the response, not as an error.
	MapsSearch(ctx context.Context, query string, limit int) (*MapsSearchResponse, error)
}

// MapsSearchResponse is the task envelope returned by the API.
type MapsSearchResponse struct {
	Status string      `json:"status"`
	Data   [][]Listing `json:"data"`
}

// Success reports whether the task completed successfully.
func (r *MapsSearchResponse) Success() bool {
	return r.Status == "Success"
}

// Results flattens the per-query result groups into a single slice.
func (r *MapsSearchResponse) Results() []Listing {
	var out []Listing
	for _, group := range r.Data {
		out = append(out, group...)
	}
	return out
}

// Listing is one business record returned by a maps search.
type Listing struct {
	Name        string  `json:"name"`
	FullAddress string  `json:"full_address"`
	Phone       string  `json:"phone"`
	Site        string  `json:"site"`
	Rating      float64 `json:"rating"`
	Reviews     int     `json:"reviews"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates an Outscraper API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) MapsSearch(ctx context.Context, query string, limit int) (*MapsSearchResponse, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("async", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/maps/search-v3?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "outscraper: create request")
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "outscraper: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "outscraper: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("outscraper: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result MapsSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "outscraper: unmarshal response")
	}

	return &result, nil
}
