package main

import (
	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/discovery"
	"github.com/sells-group/leadgen-cli/internal/enrich"
	"github.com/sells-group/leadgen-cli/internal/job"
	"github.com/sells-group/leadgen-cli/internal/scrape"
	"github.com/sells-group/leadgen-cli/internal/verify"
	"github.com/sells-group/leadgen-cli/pkg/apollo"
	"github.com/sells-group/leadgen-cli/pkg/outscraper"
	"github.com/sells-group/leadgen-cli/pkg/verifier"
)

// newOrchestrator wires pipeline stages from configured providers.
// Optional providers (contact database, verifier) are left nil when no
// key is configured; the orchestrator applies its fallback policy.
func newOrchestrator(cfg *config.Config) *job.Orchestrator {
	var finder job.Finder
	if cfg.Outscraper.Key != "" {
		finder = discovery.NewFinder(outscraper.NewClient(
			cfg.Outscraper.Key,
			outscraper.WithBaseURL(cfg.Outscraper.BaseURL),
		))
	}

	var enricher job.Enricher
	if cfg.Apollo.Key != "" {
		enricher = enrich.NewEnricher(apollo.NewClient(
			cfg.Apollo.Key,
			apollo.WithBaseURL(cfg.Apollo.BaseURL),
		))
	}

	var batchVerifier job.Verifier
	if cfg.Verifier.Key != "" {
		batchVerifier = verify.NewRunner(verifier.NewClient(
			cfg.Verifier.Key,
			verifier.WithBaseURL(cfg.Verifier.BaseURL),
		))
	}

	return job.New(finder, scrape.NewScraper(), enricher, batchVerifier)
}
