// Package enrich implements the contact-enrichment fallback stage for
// businesses whose websites yielded no scraped email.
package enrich

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/pkg/apollo"
)

const (
	// maxEnrichPerDomain caps paid match calls per business.
	maxEnrichPerDomain = 2
	searchPageSize     = 10
	// interMatchDelay paces match calls to the provider's rate limit.
	interMatchDelay = 1 * time.Second
)

// searchSeniorities are the provider's seniority tags included in every
// people search.
var searchSeniorities = []string{"owner", "founder", "c_suite", "vp", "director", "manager"}

// titleRanks orders candidates for enrichment: the earlier a keyword
// appears here, the higher the candidate ranks. Unmatched titles rank
// last.
var titleRanks = []string{
	"owner", "founder", "ceo", "president", "chief",
	"vp", "vice president", "director", "manager",
}

// RunSummary accumulates enrichment usage for one pipeline run. It is
// owned by the orchestrator: reset before the stage, logged after.
type RunSummary struct {
	Businesses     int
	ContactsFound  int
	EnrichAttempts int
	VerifiedEmails int
	CreditsUsed    int
}

// Reset zeroes all counters.
func (s *RunSummary) Reset() { *s = RunSummary{} }

// Fields renders the summary as structured log fields.
func (s *RunSummary) Fields() []zap.Field {
	return []zap.Field{
		zap.Int("businesses", s.Businesses),
		zap.Int("contacts_found", s.ContactsFound),
		zap.Int("enrich_attempts", s.EnrichAttempts),
		zap.Int("verified_emails", s.VerifiedEmails),
		zap.Int("credits_used", s.CreditsUsed),
	}
}

// Enricher resolves contacts for a domain via the contact database.
type Enricher struct {
	client  apollo.Client
	limiter *rate.Limiter
}

// NewEnricher creates an Enricher over the given contact-database client.
func NewEnricher(client apollo.Client) *Enricher {
	return &Enricher{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(interMatchDelay), 1),
	}
}

// Domain searches people at a domain, ranks them by seniority, and
// enriches the top candidates into contacts with provider-verified
// emails. Per-candidate failures are skipped; Domain never fails a
// business outright.
func (e *Enricher) Domain(ctx context.Context, domain string, sum *RunSummary) []model.Contact {
	log := zap.L().With(zap.String("domain", domain))
	sum.Businesses++

	resp, err := e.client.SearchPeople(ctx, apollo.SearchRequest{
		Domains:     []string{domain},
		Seniorities: searchSeniorities,
		Page:        1,
		PerPage:     searchPageSize,
	})
	if err != nil {
		log.Warn("people search failed", zap.Error(err))
		return nil
	}

	people := resp.People
	sum.ContactsFound += len(people)
	if len(people) == 0 {
		return nil
	}

	sort.SliceStable(people, func(i, j int) bool {
		return rankTitle(people[i].Title) < rankTitle(people[j].Title)
	})

	var contacts []model.Contact
	attempted := 0
	for _, person := range people {
		if attempted >= maxEnrichPerDomain {
			break
		}
		if person.FirstName == "" && person.LastName == "" {
			continue
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return contacts
		}

		attempted++
		sum.EnrichAttempts++
		// Count the credit up front; the provider refunds no-match
		// responses but not transport failures.
		sum.CreditsUsed++

		match, err := e.client.MatchPerson(ctx, apollo.MatchRequest{
			FirstName:   person.FirstName,
			LastName:    person.LastName,
			Domain:      domain,
			RevealEmail: true,
		})
		if err != nil {
			log.Warn("person match failed",
				zap.String("name", person.FirstName+" "+person.LastName),
				zap.Error(err),
			)
			continue
		}
		if match.Person == nil || match.Person.Email == "" {
			sum.CreditsUsed--
			continue
		}

		if strings.EqualFold(match.Person.EmailStatus, "verified") {
			sum.VerifiedEmails++
		}
		contacts = append(contacts, model.Contact{
			Name:  strings.TrimSpace(person.FirstName + " " + person.LastName),
			Title: person.Title,
			Email: strings.ToLower(match.Person.Email),
		})
	}

	return contacts
}

// rankTitle maps a job title to its seniority rank; lower wins.
func rankTitle(title string) int {
	t := strings.ToLower(title)
	for i, keyword := range titleRanks {
		if strings.Contains(t, keyword) {
			return i
		}
	}
	return len(titleRanks)
}
