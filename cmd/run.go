package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
)

var (
	runCategory     string
	runRegion       string
	runMinReviews   int
	runMaxResults   int
	runOnePerDomain bool
	runOutPath      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the enrichment pipeline once and write the CSV locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		orc := newOrchestrator(cfg)

		subID, updates := orc.Subscribe()
		defer orc.Unsubscribe(subID)

		jobID, err := orc.Start(model.StartRequest{
			ServiceCategory:   runCategory,
			Region:            runRegion,
			MinReviews:        runMinReviews,
			MaxResults:        runMaxResults,
			LimitOnePerDomain: runOnePerDomain,
		})
		if err != nil {
			return err
		}

		log := zap.L().With(zap.String("job_id", jobID))

		var final model.JobStatus
		for status := range updates {
			if status.State == model.JobRunning && status.Stage != "" {
				log.Info("progress",
					zap.String("stage", string(status.Stage)),
					zap.Int("progress", status.Progress),
					zap.Int("total", status.Total),
					zap.String("message", status.Message),
				)
			}
			if status.State.Terminal() {
				final = status
				break
			}
		}

		if final.State == model.JobError {
			return eris.Errorf("run: %s", final.Error)
		}

		log.Info("job complete",
			zap.Int("listings", final.ListingsFound),
			zap.Int("emails_found", final.EmailsFound),
			zap.Int("emails_verified", final.EmailsVerified),
		)

		doc, ok := orc.CSV()
		if !ok {
			log.Info("no contacts to export")
			return nil
		}
		defer orc.ClearData()

		if err := os.WriteFile(runOutPath, []byte(doc), 0o644); err != nil {
			return eris.Wrap(err, "run: write csv")
		}
		log.Info("csv written", zap.String("path", runOutPath))

		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runCategory, "category", "", "service category to search (required)")
	runCmd.Flags().StringVar(&runRegion, "region", "", "target region (required)")
	runCmd.Flags().IntVar(&runMinReviews, "min-reviews", 0, "minimum review count per listing")
	runCmd.Flags().IntVar(&runMaxResults, "max-results", 50, "maximum listings to accept")
	runCmd.Flags().BoolVar(&runOnePerDomain, "one-per-domain", false, "export at most one email per business")
	runCmd.Flags().StringVar(&runOutPath, "out", "leads.csv", "output CSV path")
	_ = runCmd.MarkFlagRequired("category")
	_ = runCmd.MarkFlagRequired("region")
	rootCmd.AddCommand(runCmd)
}
