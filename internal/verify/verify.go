// Package verify implements the email deliverability verification stage.
package verify

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen-cli/pkg/verifier"
)

// interCheckDelay paces verification calls.
const interCheckDelay = 500 * time.Millisecond

// Outcome classifies one address after verification.
type Outcome string

// Verification outcomes. Only OutcomeSafe admits an address into the
// final export.
const (
	OutcomeSafe    Outcome = "safe"
	OutcomeUnsafe  Outcome = "unsafe"
	OutcomeError   Outcome = "error"
	OutcomeTimeout Outcome = "timeout"
)

// Progress is invoked after each address is checked.
type Progress func(done int, email string, outcome Outcome)

// Runner binds a verification client for use as a pipeline stage.
type Runner struct {
	client verifier.Client
}

// NewRunner creates a Runner over the given verification client.
func NewRunner(client verifier.Client) *Runner {
	return &Runner{client: client}
}

// Run checks the batch via the bound client.
func (r *Runner) Run(ctx context.Context, emails []string, onProgress Progress) map[string]Outcome {
	return Run(ctx, r.client, emails, onProgress)
}

// Run checks each candidate email sequentially and returns the outcome
// per address. Provider failures classify the address, never abort the
// batch.
func Run(ctx context.Context, client verifier.Client, emails []string, onProgress Progress) map[string]Outcome {
	log := zap.L().With(zap.Int("batch", len(emails)))
	limiter := rate.NewLimiter(rate.Every(interCheckDelay), 1)

	outcomes := make(map[string]Outcome, len(emails))
	for i, email := range emails {
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		outcome := check(ctx, client, email)
		outcomes[email] = outcome
		if outcome == OutcomeError || outcome == OutcomeTimeout {
			log.Warn("verification did not succeed",
				zap.String("email", email),
				zap.String("outcome", string(outcome)),
			)
		}

		if onProgress != nil {
			onProgress(i+1, email, outcome)
		}
	}

	return outcomes
}

func check(ctx context.Context, client verifier.Client, email string) Outcome {
	resp, err := client.Verify(ctx, email)
	if err != nil {
		if eris.Is(err, verifier.ErrTimeout) {
			return OutcomeTimeout
		}
		return OutcomeError
	}
	return Classify(resp.Status)
}

// Classify maps a provider status string to an outcome. Matching is
// case-insensitive; anything not recognized as deliverable is unsafe.
func Classify(status string) Outcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "deliverable", "safe", "valid":
		return OutcomeSafe
	default:
		return OutcomeUnsafe
	}
}
