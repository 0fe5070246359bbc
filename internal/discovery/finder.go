// Package discovery implements the listing discovery stage: fanning a
// category search across a region's sub-areas and normalizing the
// results into deduplicated business listings.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/pkg/outscraper"
)

const (
	// interQueryDelay paces sub-region queries to stay under the
	// provider's rate limit.
	interQueryDelay = 2 * time.Second
	// perQueryLimit caps results requested per sub-region query.
	perQueryLimit = 20
)

// Params configures one discovery run.
type Params struct {
	Category   string
	Region     string
	SubRegions []string
	MinReviews int
	MaxResults int
}

// Progress is invoked after each sub-region is searched.
type Progress func(subRegion string, searched, accepted int)

// Finder discovers business listings via the maps search provider.
type Finder struct {
	client  outscraper.Client
	limiter *rate.Limiter
}

// NewFinder creates a Finder over the given search client.
func NewFinder(client outscraper.Client) *Finder {
	return &Finder{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(interQueryDelay), 1),
	}
}

// Find searches each sub-region in order and returns accepted listings.
// A failed sub-region query is logged and skipped; scanning stops once
// MaxResults listings are accepted. Domains are unique across the run,
// first seen wins.
func (f *Finder) Find(ctx context.Context, p Params, onProgress Progress) ([]model.BusinessListing, error) {
	log := zap.L().With(zap.String("category", p.Category), zap.String("region", p.Region))

	var accepted []model.BusinessListing
	seen := make(map[string]struct{})

	for i, sub := range p.SubRegions {
		if len(accepted) >= p.MaxResults {
			break
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return accepted, err
		}

		query := fmt.Sprintf("%s in %s, %s", p.Category, sub, p.Region)
		resp, err := f.client.MapsSearch(ctx, query, perQueryLimit)
		if err != nil {
			log.Warn("sub-region search failed", zap.String("sub_region", sub), zap.Error(err))
			f.report(onProgress, sub, i+1, len(accepted))
			continue
		}
		if !resp.Success() {
			// Non-success task status yields zero results for this query.
			log.Warn("sub-region search returned non-success status",
				zap.String("sub_region", sub),
				zap.String("status", resp.Status),
			)
			f.report(onProgress, sub, i+1, len(accepted))
			continue
		}

		for _, item := range resp.Results() {
			if len(accepted) >= p.MaxResults {
				break
			}
			if item.Site == "" {
				continue
			}
			domain := NormalizeDomain(item.Site)
			if domain == "" {
				continue
			}
			if _, dup := seen[domain]; dup {
				continue
			}
			if item.Reviews < p.MinReviews {
				continue
			}
			seen[domain] = struct{}{}
			accepted = append(accepted, model.BusinessListing{
				Name:    item.Name,
				Address: item.FullAddress,
				Phone:   item.Phone,
				Website: item.Site,
				Domain:  domain,
				Rating:  item.Rating,
				Reviews: item.Reviews,
				City:    sub,
				Query:   query,
			})
		}

		f.report(onProgress, sub, i+1, len(accepted))
	}

	log.Info("discovery complete",
		zap.Int("sub_regions", len(p.SubRegions)),
		zap.Int("accepted", len(accepted)),
	)

	return accepted, nil
}

func (f *Finder) report(onProgress Progress, sub string, searched, accepted int) {
	if onProgress != nil {
		onProgress(sub, searched, accepted)
	}
}

// NormalizeDomain derives a lowercase registrable host from a website
// URL: scheme, path, port, and a leading "www." are stripped.
func NormalizeDomain(site string) string {
	s := strings.TrimSpace(site)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	return host
}
