package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Harshitk-cp/beliefgraph/internal/api/handlers"
	mw "github.com/Harshitk-cp/beliefgraph/internal/api/middleware"
	"github.com/Harshitk-cp/beliefgraph/internal/buildconfig"
	"github.com/Harshitk-cp/beliefgraph/internal/config"
	"github.com/Harshitk-cp/beliefgraph/internal/domain"
	"github.com/Harshitk-cp/beliefgraph/internal/metrics"
	"github.com/Harshitk-cp/beliefgraph/internal/service"
	"github.com/Harshitk-cp/beliefgraph/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router  *chi.Mux
	Gateway *service.Gateway
	Janitor *service.SessionJanitor
}

type pinger interface {
	Ping(ctx context.Context) error
}

// DataVersions identifies the embedded data sets served by the process.
type DataVersions struct {
	Vocabulary int
	Units      int
	Constants  int
}

func NewApp(ks domain.KnowledgeStore, gateway *service.Gateway, recorder *metrics.Recorder, versions DataVersions, logger *zap.Logger) *App {
	janitor := service.NewSessionJanitor(gateway, logger)
	janitor.SetTTL(config.SessionIdleTTL())

	knowledgeHandler := handlers.NewKnowledgeHandler(gateway, logger)

	r := chi.NewRouter()

	app := &App{
		Router:  r,
		Gateway: gateway,
		Janitor: janitor,
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)                                                 // Generate/extract request ID first
	r.Use(mw.Session)                                                   // Bind the conversation session
	r.Use(middleware.RealIP)                                            // Extract real IP
	r.Use(mw.Metrics(recorder))                                         // Collect metrics
	r.Use(mw.Logging(logger))                                           // Log all requests
	r.Use(middleware.Recoverer)                                         // Recover from panics
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst())) // Rate limiting

	r.Get("/health", healthHandler(ks, versions))
	r.Method(http.MethodGet, "/metrics", recorder.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/relations", knowledgeHandler.Relations)

		// Facts
		r.Post("/facts", knowledgeHandler.Learn)
		r.Get("/facts/{subject}", knowledgeHandler.AskFact)
		r.Delete("/triples/{id}", knowledgeHandler.Retract)

		// Reasoning
		r.Get("/compare", knowledgeHandler.Compare)
		r.Get("/derive/{subject}", knowledgeHandler.Derive)
		r.Get("/classes/{class}/members", knowledgeHandler.Members)

		// Opinions and audit
		r.Get("/opinions", knowledgeHandler.AskOpinion)
		r.Get("/audit/{subject}", knowledgeHandler.Audit)
	})

	return app
}

func healthHandler(ks domain.KnowledgeStore, versions DataVersions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if p, ok := ks.(pinger); ok {
			if err := p.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"build":  buildconfig.VersionInfo(versions.Vocabulary, versions.Units, versions.Constants),
		})
	}
}

// Ensure stores satisfy interfaces at compile time.
var (
	_ domain.KnowledgeStore   = (*store.InMemoryStore)(nil)
	_ domain.KnowledgeStore   = (*store.SQLiteStore)(nil)
	_ domain.KnowledgeStore   = (*store.PostgresStore)(nil)
	_ pinger                  = (*store.SQLiteStore)(nil)
	_ pinger                  = (*store.PostgresStore)(nil)
	_ service.MetricsRecorder = (*metrics.Recorder)(nil)
	_ mw.RequestObserver      = (*metrics.Recorder)(nil)
)
