package job

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/discovery"
	"github.com/sells-group/leadgen-cli/internal/enrich"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/verify"
)

type fakeFinder struct {
	listings []model.BusinessListing
	err      error
	block    chan struct{} // when set, Find waits until closed
}

func (f *fakeFinder) Find(_ context.Context, _ discovery.Params, onProgress discovery.Progress) ([]model.BusinessListing, error) {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	if onProgress != nil {
		onProgress("somewhere", 1, len(f.listings))
	}
	return f.listings, nil
}

type fakeScraper struct {
	emails map[string][]string // keyed by website URL
}

func (f *fakeScraper) Emails(_ context.Context, website string) []string {
	return f.emails[website]
}

type fakeEnricher struct {
	contacts map[string][]model.Contact // keyed by domain
	asked    []string
}

func (f *fakeEnricher) Domain(_ context.Context, domain string, sum *enrich.RunSummary) []model.Contact {
	f.asked = append(f.asked, domain)
	sum.Businesses++
	return f.contacts[domain]
}

type fakeVerifier struct {
	outcomes map[string]verify.Outcome // missing entries verify safe
}

func (f *fakeVerifier) Run(_ context.Context, emails []string, onProgress verify.Progress) map[string]verify.Outcome {
	out := make(map[string]verify.Outcome, len(emails))
	for i, email := range emails {
		outcome, ok := f.outcomes[email]
		if !ok {
			outcome = verify.OutcomeSafe
		}
		out[email] = outcome
		if onProgress != nil {
			onProgress(i+1, email, outcome)
		}
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func twoListings() []model.BusinessListing {
	return []model.BusinessListing{
		{
			Name:    "Ace Plumbing",
			Website: "https://aceplumbing.com",
			Domain:  "aceplumbing.com",
			City:    "Naperville",
			Query:   "plumbers in Naperville, Chicago",
		},
		{
			Name:    "Best Drains",
			Website: "https://bestdrains.com",
			Domain:  "bestdrains.com",
			City:    "Evanston",
			Query:   "plumbers in Evanston, Chicago",
		},
	}
}

func startReq() model.StartRequest {
	return model.StartRequest{ServiceCategory: "plumbers", Region: "Chicago"}
}

func waitTerminal(t *testing.T, o *Orchestrator) model.JobStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s := o.Status(); s.State.Terminal() {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state")
	return model.JobStatus{}
}

func TestRun_FullPipeline(t *testing.T) {
	finder := &fakeFinder{listings: twoListings()}
	scraper := &fakeScraper{emails: map[string][]string{
		"https://aceplumbing.com": {"dana@aceplumbing.com"},
	}}
	enricher := &fakeEnricher{contacts: map[string][]model.Contact{
		"bestdrains.com": {{Name: "Pat Muller", Title: "Owner", Email: "pat@bestdrains.com"}},
	}}
	verifier := &fakeVerifier{}

	o := New(finder, scraper, enricher, verifier)
	id, err := o.Start(startReq())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	status := waitTerminal(t, o)
	assert.Equal(t, model.JobCompleted, status.State)
	assert.Equal(t, id, status.ID)
	assert.Equal(t, 2, status.ListingsFound)
	assert.Equal(t, 2, status.WebsitesFound)
	assert.Equal(t, 2, status.EmailsFound)
	assert.Equal(t, 2, status.EmailsVerified)
	assert.True(t, status.CSVReady)
	assert.NotNil(t, status.CompletedAt)

	// Only the business with no scraped email was enriched.
	assert.Equal(t, []string{"bestdrains.com"}, enricher.asked)

	doc, ok := o.CSV()
	require.True(t, ok)
	assert.Contains(t, doc, "dana@aceplumbing.com")
	assert.Contains(t, doc, "pat@bestdrains.com")
}

func TestRun_UnsafeEmailsExcludedFromExport(t *testing.T) {
	finder := &fakeFinder{listings: twoListings()}
	scraper := &fakeScraper{emails: map[string][]string{
		"https://aceplumbing.com": {"dana@aceplumbing.com"},
		"https://bestdrains.com":  {"hello@bestdrains.com"},
	}}
	verifier := &fakeVerifier{outcomes: map[string]verify.Outcome{
		"hello@bestdrains.com": verify.OutcomeUnsafe,
	}}

	o := New(finder, scraper, nil, verifier)
	_, err := o.Start(startReq())
	require.NoError(t, err)

	status := waitTerminal(t, o)
	assert.Equal(t, model.JobCompleted, status.State)
	assert.Equal(t, 1, status.EmailsVerified)

	doc, ok := o.CSV()
	require.True(t, ok)
	assert.Contains(t, doc, "dana@aceplumbing.com")
	assert.NotContains(t, doc, "hello@bestdrains.com")
}

func TestRun_NilVerifierTreatsAllAsVerified(t *testing.T) {
	finder := &fakeFinder{listings: twoListings()}
	scraper := &fakeScraper{emails: map[string][]string{
		"https://aceplumbing.com": {"dana@aceplumbing.com"},
		"https://bestdrains.com":  {"hello@bestdrains.com"},
	}}

	o := New(finder, scraper, nil, nil)
	_, err := o.Start(startReq())
	require.NoError(t, err)

	status := waitTerminal(t, o)
	assert.Equal(t, model.JobCompleted, status.State)
	assert.Equal(t, 2, status.EmailsVerified)
	assert.True(t, status.CSVReady)
}

func TestRun_NilFinderFailsJob(t *testing.T) {
	o := New(nil, &fakeScraper{}, nil, nil)
	_, err := o.Start(startReq())
	require.NoError(t, err)

	status := waitTerminal(t, o)
	assert.Equal(t, model.JobError, status.State)
	assert.Contains(t, status.Error, "maps search provider not configured")

	ok, reason := o.CanStart()
	assert.False(t, ok)
	assert.Contains(t, reason, "cooldown")
}

func TestRun_NoListingsCompletesWithoutCSV(t *testing.T) {
	o := New(&fakeFinder{}, &fakeScraper{}, nil, nil)
	_, err := o.Start(startReq())
	require.NoError(t, err)

	status := waitTerminal(t, o)
	assert.Equal(t, model.JobCompleted, status.State)
	assert.Equal(t, "no listings matched this search", status.Message)
	assert.False(t, status.CSVReady)

	_, ok := o.CSV()
	assert.False(t, ok)
}

func TestRun_NoVerifiedEmailsCompletesWithoutCSV(t *testing.T) {
	finder := &fakeFinder{listings: twoListings()}
	verifier := &fakeVerifier{outcomes: map[string]verify.Outcome{}}

	o := New(finder, &fakeScraper{}, nil, verifier)
	_, err := o.Start(startReq())
	require.NoError(t, err)

	status := waitTerminal(t, o)
	assert.Equal(t, model.JobCompleted, status.State)
	assert.Contains(t, status.Message, "nothing to export")

	_, ok := o.CSV()
	assert.False(t, ok)
}

func TestStart_RejectsWhileRunning(t *testing.T) {
	finder := &fakeFinder{block: make(chan struct{})}
	o := New(finder, &fakeScraper{}, nil, nil)

	_, err := o.Start(startReq())
	require.NoError(t, err)

	ok, reason := o.CanStart()
	assert.False(t, ok)
	assert.Equal(t, "a job is already running", reason)

	_, err = o.Start(startReq())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	close(finder.block)
	waitTerminal(t, o)
}

func TestStart_Validation(t *testing.T) {
	o := New(&fakeFinder{}, &fakeScraper{}, nil, nil)

	_, err := o.Start(model.StartRequest{Region: "Chicago"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serviceCategory")

	_, err = o.Start(model.StartRequest{ServiceCategory: "plumbers", Region: "Atlantis"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown region")
}

func TestCooldown_BlocksThenClears(t *testing.T) {
	clock := newFakeClock()
	o := New(&fakeFinder{}, &fakeScraper{}, nil, nil).WithNow(clock.Now)

	_, err := o.Start(startReq())
	require.NoError(t, err)
	waitTerminal(t, o)

	ok, reason := o.CanStart()
	assert.False(t, ok)
	assert.Contains(t, reason, "cooldown active")
	assert.Equal(t, CooldownPeriod, o.CooldownRemaining())

	clock.Advance(9 * time.Minute)
	ok, _ = o.CanStart()
	assert.False(t, ok)

	clock.Advance(time.Minute + time.Second)
	ok, reason = o.CanStart()
	assert.True(t, ok)
	assert.Empty(t, reason)
	assert.Equal(t, time.Duration(0), o.CooldownRemaining())
}

func TestClearData_KeepsCooldown(t *testing.T) {
	clock := newFakeClock()
	finder := &fakeFinder{listings: twoListings()}
	scraper := &fakeScraper{emails: map[string][]string{
		"https://aceplumbing.com": {"dana@aceplumbing.com"},
	}}

	o := New(finder, scraper, nil, nil).WithNow(clock.Now)
	_, err := o.Start(startReq())
	require.NoError(t, err)
	waitTerminal(t, o)

	_, ok := o.CSV()
	require.True(t, ok)

	o.ClearData()

	status := o.Status()
	assert.Equal(t, model.JobIdle, status.State)
	assert.Empty(t, status.ID)

	_, ok = o.CSV()
	assert.False(t, ok)

	canStart, reason := o.CanStart()
	assert.False(t, canStart)
	assert.Contains(t, reason, "cooldown")
}

func TestSubscribe_ImmediateSnapshotAndUpdates(t *testing.T) {
	finder := &fakeFinder{listings: twoListings()}
	scraper := &fakeScraper{emails: map[string][]string{
		"https://aceplumbing.com": {"dana@aceplumbing.com"},
	}}

	o := New(finder, scraper, nil, nil)
	id, ch := o.Subscribe()
	defer o.Unsubscribe(id)

	first := <-ch
	assert.Equal(t, model.JobIdle, first.State)

	_, err := o.Start(startReq())
	require.NoError(t, err)

	var last model.JobStatus
	timeout := time.After(5 * time.Second)
	for !last.State.Terminal() {
		select {
		case s := <-ch:
			last = s
		case <-timeout:
			t.Fatal("no terminal snapshot observed")
		}
	}
	assert.Equal(t, model.JobCompleted, last.State)
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	o := New(&fakeFinder{}, &fakeScraper{}, nil, nil)
	id, ch := o.Subscribe()
	<-ch

	o.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)

	// Broadcasting after removal must not panic.
	o.ClearData()
}

func TestRun_FinderErrorFailsJob(t *testing.T) {
	finder := &fakeFinder{err: eris.New("outscraper: 500")}
	o := New(finder, &fakeScraper{}, nil, nil)

	_, err := o.Start(startReq())
	require.NoError(t, err)

	status := waitTerminal(t, o)
	assert.Equal(t, model.JobError, status.State)
	assert.True(t, strings.Contains(status.Error, "listing discovery"))
}
