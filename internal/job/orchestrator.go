// Package job owns the lead-enrichment pipeline: a single-flight state
// machine that sequences discovery, scraping, enrichment, and
// verification over one listing set and publishes progress snapshots to
// live observers.
package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/discovery"
	"github.com/sells-group/leadgen-cli/internal/enrich"
	"github.com/sells-group/leadgen-cli/internal/export"
	"github.com/sells-group/leadgen-cli/internal/geo"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/verify"
)

// CooldownPeriod is the mandatory wait after a job reaches a terminal
// state before another may start. It bounds paid-provider exposure and
// keeps scraping targets from being hammered back to back.
const CooldownPeriod = 10 * time.Minute

const defaultMaxResults = 50

// Finder discovers business listings for a search request.
type Finder interface {
	Find(ctx context.Context, p discovery.Params, onProgress discovery.Progress) ([]model.BusinessListing, error)
}

// Scraper extracts candidate emails from one business website.
type Scraper interface {
	Emails(ctx context.Context, website string) []string
}

// Enricher resolves contacts for a domain with no scraped email.
type Enricher interface {
	Domain(ctx context.Context, domain string, sum *enrich.RunSummary) []model.Contact
}

// Verifier classifies a batch of candidate emails.
type Verifier interface {
	Run(ctx context.Context, emails []string, onProgress verify.Progress) map[string]verify.Outcome
}

// Orchestrator runs at most one pipeline job at a time. It is the sole
// writer of the job status; every other component reports back through
// return values and progress callbacks.
type Orchestrator struct {
	finder   Finder
	scraper  Scraper
	enricher Enricher // nil skips the enrichment stage
	verifier Verifier // nil treats every candidate as verified

	mu            sync.Mutex
	status        model.JobStatus
	listings      []model.BusinessListing
	csv           string
	cooldownUntil time.Time
	subs          map[string]chan model.JobStatus
	summary       enrich.RunSummary

	now func() time.Time // injectable for testing
}

// New creates an Orchestrator in the idle state.
func New(finder Finder, scraper Scraper, enricher Enricher, verifier Verifier) *Orchestrator {
	return &Orchestrator{
		finder:   finder,
		scraper:  scraper,
		enricher: enricher,
		verifier: verifier,
		status:   model.JobStatus{State: model.JobIdle, Message: "idle"},
		subs:     make(map[string]chan model.JobStatus),
		now:      time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (o *Orchestrator) WithNow(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// CanStart reports whether a new job may begin, with the blocking
// reason when it may not.
func (o *Orchestrator) CanStart() (bool, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.canStartLocked()
}

func (o *Orchestrator) canStartLocked() (bool, string) {
	if o.status.State == model.JobRunning {
		return false, "a job is already running"
	}
	if remaining := o.cooldownUntil.Sub(o.now()); remaining > 0 {
		return false, fmt.Sprintf("cooldown active, %s remaining", remaining.Round(time.Second))
	}
	return true, ""
}

// CooldownRemaining returns how long until the cooldown clears.
func (o *Orchestrator) CooldownRemaining() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if remaining := o.cooldownUntil.Sub(o.now()); remaining > 0 {
		return remaining
	}
	return 0
}

// Start validates the request, replaces the previous job with a fresh
// one, and launches the pipeline without blocking the caller.
func (o *Orchestrator) Start(req model.StartRequest) (string, error) {
	if req.ServiceCategory == "" {
		return "", eris.New("job: serviceCategory is required")
	}
	subRegions, err := geo.SubRegions(req.Region)
	if err != nil {
		return "", err
	}
	if req.MaxResults <= 0 {
		req.MaxResults = defaultMaxResults
	}
	if req.MinReviews < 0 {
		req.MinReviews = 0
	}

	o.mu.Lock()
	if ok, reason := o.canStartLocked(); !ok {
		o.mu.Unlock()
		return "", eris.Errorf("job: cannot start: %s", reason)
	}

	id := uuid.New().String()
	started := o.now()
	o.status = model.JobStatus{
		ID:        id,
		State:     model.JobRunning,
		Stage:     model.StageDiscover,
		Message:   "starting",
		StartedAt: &started,
	}
	o.listings = nil
	o.csv = ""
	o.broadcastLocked()
	o.mu.Unlock()

	go o.run(req, subRegions)

	return id, nil
}

// Status returns a snapshot of the current job status.
func (o *Orchestrator) Status() model.JobStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// CSV returns the completed job's CSV payload, if one exists.
func (o *Orchestrator) CSV() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status.State != model.JobCompleted || o.csv == "" {
		return "", false
	}
	return o.csv, true
}

// ClearData resets to the empty idle state, releasing the listing
// buffer and CSV payload. The cooldown clock is unaffected.
func (o *Orchestrator) ClearData() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = model.JobStatus{State: model.JobIdle, Message: "idle"}
	o.listings = nil
	o.csv = ""
	o.broadcastLocked()
}

// Subscribe registers an observer. The returned channel immediately
// carries the current snapshot, then one snapshot per status change.
// Slow observers miss snapshots rather than blocking the pipeline.
func (o *Orchestrator) Subscribe() (string, <-chan model.JobStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := uuid.New().String()
	ch := make(chan model.JobStatus, 16)
	o.subs[id] = ch
	ch <- o.status
	return id, ch
}

// Unsubscribe removes an observer and closes its channel.
func (o *Orchestrator) Unsubscribe(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ch, ok := o.subs[id]; ok {
		delete(o.subs, id)
		close(ch)
	}
}

// update applies a mutation to the status and broadcasts the result.
func (o *Orchestrator) update(fn func(s *model.JobStatus)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.status)
	o.broadcastLocked()
}

func (o *Orchestrator) broadcastLocked() {
	for _, ch := range o.subs {
		select {
		case ch <- o.status:
		default:
		}
	}
}

// run executes the pipeline stages in order. Stage-unit failures are
// absorbed inside the stages; anything that escapes here is fatal and
// lands the job in the error state.
func (o *Orchestrator) run(req model.StartRequest, subRegions []string) {
	defer func() {
		if r := recover(); r != nil {
			o.fail(eris.Errorf("job: pipeline panic: %v", r))
		}
	}()

	ctx := context.Background()
	log := zap.L().With(zap.String("job_id", o.Status().ID))

	// The maps search provider is mandatory; without credentials the
	// job fails outright rather than completing empty.
	if o.finder == nil {
		o.fail(eris.New("job: maps search provider not configured"))
		return
	}

	// Stage 1: listing discovery.
	o.update(func(s *model.JobStatus) {
		s.Stage = model.StageDiscover
		s.Progress = 0
		s.Total = len(subRegions)
		s.Message = "searching listings"
	})

	listings, err := o.finder.Find(ctx, discovery.Params{
		Category:   req.ServiceCategory,
		Region:     req.Region,
		SubRegions: subRegions,
		MinReviews: req.MinReviews,
		MaxResults: req.MaxResults,
	}, func(sub string, searched, accepted int) {
		o.update(func(s *model.JobStatus) {
			s.Progress = searched
			s.ListingsFound = accepted
			s.Message = "searched " + sub
		})
	})
	if err != nil {
		o.fail(eris.Wrap(err, "job: listing discovery"))
		return
	}

	o.mu.Lock()
	o.listings = listings
	o.status.ListingsFound = len(listings)
	o.mu.Unlock()

	if len(listings) == 0 {
		o.complete("no listings matched this search")
		return
	}

	// Stage 2: website email scraping.
	o.update(func(s *model.JobStatus) {
		s.Stage = model.StageScrape
		s.Progress = 0
		s.Total = len(listings)
		s.Message = "scraping websites"
	})

	emailsByListing := make(map[int][]string)
	uniqueEmails := make(map[string]struct{})
	websites := 0
	for i, listing := range listings {
		if listing.Website != "" {
			websites++
			found := o.scraper.Emails(ctx, listing.Website)
			if len(found) > 0 {
				emailsByListing[i] = found
				for _, e := range found {
					uniqueEmails[e] = struct{}{}
				}
			}
		}
		o.update(func(s *model.JobStatus) {
			s.Progress = i + 1
			s.WebsitesFound = websites
			s.EmailsFound = len(uniqueEmails)
			s.Message = "scraped " + listing.Domain
		})
	}

	// Stage 3: contact enrichment for businesses with no scraped email.
	if o.enricher != nil {
		var pending []int
		for i := range listings {
			if len(emailsByListing[i]) == 0 && listings[i].Domain != "" {
				pending = append(pending, i)
			}
		}

		o.summary.Reset()
		o.update(func(s *model.JobStatus) {
			s.Stage = model.StageEnrich
			s.Progress = 0
			s.Total = len(pending)
			s.Message = "enriching contacts"
		})

		for n, idx := range pending {
			contacts := o.enricher.Domain(ctx, listings[idx].Domain, &o.summary)
			for _, contact := range contacts {
				if _, dup := uniqueEmails[contact.Email]; dup {
					continue
				}
				uniqueEmails[contact.Email] = struct{}{}
				emailsByListing[idx] = append(emailsByListing[idx], contact.Email)
			}
			o.update(func(s *model.JobStatus) {
				s.Progress = n + 1
				s.EmailsFound = len(uniqueEmails)
				s.Message = "enriched " + listings[idx].Domain
			})
		}
		log.Info("enrichment stage complete", o.summary.Fields()...)
	} else {
		log.Info("enrichment skipped, provider not configured")
	}

	// Stage 4: verification. Without a configured provider every
	// discovered email is treated as verified, by policy.
	candidates := orderedEmails(listings, emailsByListing)
	verified := make(map[string]bool, len(candidates))

	if o.verifier == nil {
		for _, e := range candidates {
			verified[e] = true
		}
		o.update(func(s *model.JobStatus) {
			s.Stage = model.StageVerify
			s.Progress = len(candidates)
			s.Total = len(candidates)
			s.EmailsVerified = len(candidates)
			s.Message = "verification skipped, provider not configured"
		})
	} else {
		o.update(func(s *model.JobStatus) {
			s.Stage = model.StageVerify
			s.Progress = 0
			s.Total = len(candidates)
			s.Message = "verifying emails"
		})
		outcomes := o.verifier.Run(ctx, candidates, func(done int, email string, outcome verify.Outcome) {
			o.update(func(s *model.JobStatus) {
				s.Progress = done
				if outcome == verify.OutcomeSafe {
					s.EmailsVerified++
				}
				s.Message = "verified " + email
			})
		})
		for email, outcome := range outcomes {
			if outcome == verify.OutcomeSafe {
				verified[email] = true
			}
		}
	}

	// Stage 5: CSV assembly.
	o.update(func(s *model.JobStatus) {
		s.Stage = model.StageExport
		s.Message = "assembling export"
	})

	rows := export.Rows(listings, emailsByListing, verified, req.LimitOnePerDomain)
	if len(rows) == 0 {
		o.complete("no verified emails found, nothing to export")
		return
	}

	doc, err := export.BuildCSV(rows)
	if err != nil {
		o.fail(eris.Wrap(err, "job: build csv"))
		return
	}

	o.mu.Lock()
	o.csv = doc
	o.mu.Unlock()

	o.complete(fmt.Sprintf("exported %d contacts", len(rows)))
}

// orderedEmails returns the candidate pool flattened in listing order.
func orderedEmails(listings []model.BusinessListing, emailsByListing map[int][]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for i := range listings {
		for _, e := range emailsByListing[i] {
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

// complete moves the job to the completed state and starts the cooldown.
func (o *Orchestrator) complete(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	done := o.now()
	o.status.State = model.JobCompleted
	o.status.Stage = ""
	o.status.Message = msg
	o.status.CompletedAt = &done
	o.status.CSVReady = o.csv != ""
	o.cooldownUntil = done.Add(CooldownPeriod)
	o.broadcastLocked()
}

// fail moves the job to the error state and starts the cooldown.
func (o *Orchestrator) fail(err error) {
	zap.L().Error("job failed", zap.Error(err))
	o.mu.Lock()
	defer o.mu.Unlock()
	done := o.now()
	o.status.State = model.JobError
	o.status.Stage = ""
	o.status.Error = err.Error()
	o.status.Message = "job failed: " + err.Error()
	o.status.CompletedAt = &done
	o.cooldownUntil = done.Add(CooldownPeriod)
	o.broadcastLocked()
}
