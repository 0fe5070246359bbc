package scrape

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localSite serves pages on localhost so scraped addresses can live on a
// subdomain of the site's own host ("mail.localhost" etc).
func localSite(t *testing.T, pages map[string]string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	_, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	return fmt.Sprintf("http://localhost:%s", port)
}

func TestEmails_FindsAndDedupsAcrossPages(t *testing.T) {
	site := localSite(t, map[string]string{
		"/": `<html><body>
			Reach us at <a href="mailto:Sales@mail.localhost">Sales@mail.localhost</a>
		</body></html>`,
		"/contact": `<p>sales@mail.localhost or support@mail.localhost</p>`,
	})

	emails := NewScraper().Emails(context.Background(), site)

	assert.Equal(t, []string{"sales@mail.localhost", "support@mail.localhost"}, emails)
}

func TestEmails_FiltersForeignDomains(t *testing.T) {
	site := localSite(t, map[string]string{
		"/contact": `<p>Write to owner@mail.localhost, not info@gmail.com.</p>`,
	})

	emails := NewScraper().Emails(context.Background(), site)

	assert.Equal(t, []string{"owner@mail.localhost"}, emails)
}

func TestEmails_SkipsNonTextPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("brochure@mail.localhost"))
	}))
	defer srv.Close()

	_, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)

	emails := NewScraper().Emails(context.Background(), fmt.Sprintf("http://localhost:%s", port))

	assert.Empty(t, emails)
}

func TestEmails_UnreachableSiteReturnsNil(t *testing.T) {
	// Closed port; every candidate page fails and is skipped.
	emails := NewScraper().Emails(context.Background(), "http://localhost:1")
	assert.Empty(t, emails)
}

func TestEmails_EmptyWebsite(t *testing.T) {
	assert.Empty(t, NewScraper().Emails(context.Background(), ""))
}

func TestKeepEmail(t *testing.T) {
	cases := []struct {
		email string
		keep  bool
	}{
		{"dana@aceplumbing.com", true},
		{"dana@mail.aceplumbing.com", true},
		{"dana@gmail.com", false},
		{"dana@notaceplumbing.com", false},
		{"info@example.com", false},
		{"logo@2x.png", false},
		{"a1b2c3@sentry.aceplumbing.com", false},
		{"bundle@webpack.aceplumbing.com", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.keep, keepEmail(tc.email, "aceplumbing.com"), "email %q", tc.email)
	}
}
