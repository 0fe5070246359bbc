// Package verifier provides a client for an Emailable-style email
// deliverability verification API.
package verifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.emailable.com/v1"

// ErrTimeout is returned when the provider reports it could not finish
// checking the address in time (HTTP 408). Callers treat this as a
// distinct outcome, not a transport failure.
var ErrTimeout = eris.New("verifier: verification timed out")

// Client performs single-address deliverability checks.
type Client interface {
	Verify(ctx context.Context, email string) (*VerifyResponse, error)
}

// VerifyResponse holds the provider's judgment for one address.
type VerifyResponse struct {
	Email  string `json:"email"`
	Status string `json:"state"`
	Score  int    `json:"score"`
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

// NewClient creates a verification API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Verify(ctx context.Context, email string) (*VerifyResponse, error) {
	q := url.Values{}
	q.Set("email", email)
	q.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/verify?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "verifier: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "verifier: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "verifier: read response")
	}

	// 408-equivalent: the provider gave up on this address. Callers
	// record a timeout outcome rather than an error.
	if resp.StatusCode == http.StatusRequestTimeout {
		return nil, ErrTimeout
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("verifier: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result VerifyResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "verifier: unmarshal response")
	}

	return &result, nil
}
