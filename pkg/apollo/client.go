// Package apollo provides a client for the Apollo.io contact database:
// a two-call search-then-match protocol keyed by company domain.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.apollo.io/v1"

// Client performs contact search and enrichment operations.
type Client interface {
	// SearchPeople finds people at a domain, filtered by seniority tags.
	SearchPeople(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	// MatchPerson enriches a single person/domain pair, requesting a
	// verified email address.
	MatchPerson(ctx context.Context, req MatchRequest) (*MatchResponse, error)
}

// SearchRequest is the people-search payload.
type SearchRequest struct {
	Domains     []string `json:"q_organization_domains_list"`
	Seniorities []string `json:"person_seniorities"`
	Page        int      `json:"page"`
	PerPage     int      `json:"per_page"`
}

// SearchResponse holds the people returned for a search.
type SearchResponse struct {
	People []Person `json:"people"`
}

// Person is one candidate contact.
type Person struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Title     string `json:"title"`
}

// MatchRequest identifies the person to enrich.
type MatchRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Domain      string `json:"domain"`
	RevealEmail bool   `json:"reveal_personal_emails"`
}

// MatchResponse holds the enriched person, if matched.
type MatchResponse struct {
	Person *MatchedPerson `json:"person"`
}

// MatchedPerson carries the enriched email and its provider-side status.
type MatchedPerson struct {
	Email       string `json:"email"`
	EmailStatus string `json:"email_status"`
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

// NewClient creates an Apollo API client.
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

func (c *httpClient) SearchPeople(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var result SearchResponse
	if err := c.post(ctx, "/mixed_people/search", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) MatchPerson(ctx context.Context, req MatchRequest) (*MatchResponse, error) {
	var result MatchResponse
	if err := c.post(ctx, "/people/match", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "apollo: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "apollo: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "apollo: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "apollo: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("apollo: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "apollo: unmarshal response")
	}

	return nil
}
