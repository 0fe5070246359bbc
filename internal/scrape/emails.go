// Package scrape extracts contact email addresses from business
// websites by fetching a small fixed set of likely contact pages.
package scrape

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/leadgen-cli/internal/discovery"
)

const (
	fetchTimeout = 8 * time.Second
	maxBodyBytes = 1024 * 1024
)

// candidatePaths are the page variants tried on each site, in order.
var candidatePaths = []string{"", "/contact", "/about", "/contact-us", "/about-us"}

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// placeholderEmails are boilerplate addresses left in site templates.
var placeholderEmails = map[string]struct{}{
	"email@example.com":   {},
	"example@example.com": {},
	"name@example.com":    {},
	"info@example.com":    {},
	"your@email.com":      {},
	"user@domain.com":     {},
	"test@test.com":       {},
}

// assetSuffixes catch regex hits that are really asset filenames, e.g.
// "logo@2x.png" matching as an address ending in ".png".
var assetSuffixes = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp",
	".css", ".js", ".woff", ".woff2", ".ttf", ".ico", ".mp4",
}

// noiseSubstrings mark artifacts of error trackers and bundlers that
// commonly appear in inlined scripts.
var noiseSubstrings = []string{"sentry", "wixpress", "webpack"}

// Scraper fetches pages and extracts same-domain email addresses.
type Scraper struct {
	client *http.Client
}

// NewScraper creates a Scraper with bounded fetch timeouts.
func NewScraper() *Scraper {
	return &Scraper{
		client: &http.Client{
			Timeout: fetchTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 5 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
	}
}

// Emails scrapes the candidate pages of a website and returns the
// deduplicated addresses found on the site's own domain. A failed page
// is skipped; Emails never returns an error for per-page failures.
func (s *Scraper) Emails(ctx context.Context, website string) []string {
	base := strings.TrimRight(website, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	siteDomain := discovery.NormalizeDomain(base)
	if siteDomain == "" {
		return nil
	}

	log := zap.L().With(zap.String("website", website))

	var found []string
	seen := make(map[string]struct{})

	for _, path := range candidatePaths {
		body, ok := s.fetch(ctx, base+path)
		if !ok {
			continue
		}
		for _, raw := range emailRe.FindAllString(body, -1) {
			email := strings.ToLower(raw)
			if _, dup := seen[email]; dup {
				continue
			}
			if !keepEmail(email, siteDomain) {
				continue
			}
			seen[email] = struct{}{}
			found = append(found, email)
		}
	}

	if len(found) > 0 {
		log.Debug("scraped emails", zap.Int("count", len(found)))
	}

	return found
}

// fetch GETs a page and returns its decoded text. Non-HTML responses,
// HTTP errors, and timeouts all report !ok.
func (s *Scraper) fetch(ctx context.Context, pageURL string) (string, bool) {
	reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; LeadgenBot/1.0)")

	resp, err := s.client.Do(req)
	if err != nil {
		zap.L().Debug("page fetch failed", zap.String("url", pageURL), zap.Error(err))
		return "", false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return "", false
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err == nil && !strings.HasPrefix(mediaType, "text/") {
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", false
	}

	// Decode legacy charsets so the regex sees clean text.
	if cs, ok := params["charset"]; ok && !strings.EqualFold(cs, "utf-8") {
		if enc, encErr := htmlindex.Get(cs); encErr == nil {
			if decoded, decErr := enc.NewDecoder().Bytes(body); decErr == nil {
				body = decoded
			}
		}
	}

	return string(body), true
}

// keepEmail filters placeholder addresses, asset-file artifacts, tooling
// noise, and addresses outside the target site's domain.
func keepEmail(email, siteDomain string) bool {
	if _, bad := placeholderEmails[email]; bad {
		return false
	}
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(email, suffix) {
			return false
		}
	}
	for _, noise := range noiseSubstrings {
		if strings.Contains(email, noise) {
			return false
		}
	}

	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := email[at+1:]
	return domain == siteDomain || strings.HasSuffix(domain, "."+siteDomain)
}
