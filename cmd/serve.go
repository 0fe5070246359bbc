package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgen-cli/internal/geo"
	"github.com/sells-group/leadgen-cli/internal/job"
	"github.com/sells-group/leadgen-cli/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lead-generation API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		orc := newOrchestrator(cfg)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(orc),
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

// newRouter builds the API routes over the orchestrator.
func newRouter(orc *job.Orchestrator) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/regions", handleRegions)

	r.Route("/api/jobs", func(r chi.Router) {
		r.Post("/", handleStart(orc))
		r.Get("/current", handleStatus(orc))
		r.Get("/stream", handleStream(orc))
		r.Get("/download", handleDownload(orc))
	})

	return r
}

func handleRegions(w http.ResponseWriter, _ *http.Request) {
	regions := make(map[string][]string)
	for _, name := range geo.Regions() {
		subs, err := geo.SubRegions(name)
		if err != nil {
			continue
		}
		regions[name] = subs
	}
	writeJSON(w, http.StatusOK, map[string]any{"regions": regions})
}

func handleStart(orc *job.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		if req.ServiceCategory == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "serviceCategory is required",
				"field": "serviceCategory",
			})
			return
		}
		if _, err := geo.SubRegions(req.Region); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("unknown region %q", req.Region),
				"field": "region",
			})
			return
		}

		if ok, reason := orc.CanStart(); !ok {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": reason})
			return
		}

		jobID, err := orc.Start(req)
		if err != nil {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
	}
}

// statusResponse is the status payload plus remaining cooldown.
type statusResponse struct {
	model.JobStatus
	CooldownRemainingMs int64 `json:"cooldownRemainingMs"`
}

func handleStatus(orc *job.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{
			JobStatus:           orc.Status(),
			CooldownRemainingMs: orc.CooldownRemaining().Milliseconds(),
		})
	}
}

func handleStream(orc *job.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		subID, updates := orc.Subscribe()
		defer orc.Unsubscribe(subID)

		heartbeat := time.NewTicker(15 * time.Second)
		defer heartbeat.Stop()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				_, _ = fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case status, open := <-updates:
				if !open {
					return
				}
				payload, err := json.Marshal(status)
				if err != nil {
					zap.L().Warn("marshal status event failed", zap.Error(err))
					continue
				}
				_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
			}
		}
	}
}

func handleDownload(orc *job.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		doc, ok := orc.CSV()
		if !ok {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "no completed export available"})
			return
		}

		// One-shot retrieval: the buffered data is released once served.
		defer orc.ClearData()

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=leads-%s.csv", orc.Status().ID))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(doc))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
