package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LazyMisha/prmptlaba/internal/library"
	"github.com/LazyMisha/prmptlaba/internal/storage"
)

// DefaultRequestTimeout bounds a whole enhancement request.
const DefaultRequestTimeout = 30 * time.Second

// Enhancer turns a prompt into its improved form for a target.
type Enhancer interface {
	Enhance(ctx context.Context, target, prompt string) (string, error)
}

// Deps holds everything the HTTP handlers call into.
type Deps struct {
	Enhancer    Enhancer
	History     *storage.HistoryStore
	Collections *storage.CollectionStore
	Prompts     *storage.SavedPromptStore
	Library     *library.Library

	// Gatherer backs /metrics; nil leaves the route unregistered.
	Gatherer prometheus.Gatherer

	// Token guards /api/* when non-empty.
	Token          string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewHandler returns the router for the local prmptlaba API.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = DefaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestID)
	r.Use(AccessLog(deps.Logger))

	r.Get("/health", handleHealth)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Post("/enhance", handleEnhance(deps))
		r.Get("/targets", handleTargets)

		r.Get("/history", handleListHistory(deps))
		r.Post("/history", handleSaveHistory(deps))
		r.Delete("/history", handleClearHistory(deps))
		r.Get("/history/{id}", handleGetHistory(deps))
		r.Delete("/history/{id}", handleDeleteHistory(deps))

		r.Get("/collections", handleListCollections(deps))
		r.Post("/collections", handleCreateCollection(deps))
		r.Put("/collections/order", handleReorderCollections(deps))
		r.Get("/collections/{id}", handleGetCollection(deps))
		r.Patch("/collections/{id}", handleUpdateCollection(deps))
		r.Delete("/collections/{id}", handleDeleteCollection(deps))

		r.Get("/prompts", handleListPrompts(deps))
		r.Post("/prompts", handleSavePrompt(deps))
		r.Get("/prompts/{id}", handleGetPrompt(deps))
		r.Patch("/prompts/{id}", handleUpdatePrompt(deps))
		r.Delete("/prompts/{id}", handleDeletePrompt(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}
