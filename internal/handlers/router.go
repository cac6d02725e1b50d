package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/xelth-com/salonsync/internal/backfill"
	"github.com/xelth-com/salonsync/internal/buildinfo"
	"github.com/xelth-com/salonsync/internal/middleware"
	"github.com/xelth-com/salonsync/internal/models"
	"github.com/xelth-com/salonsync/internal/sync"
)

// Backfiller runs paginated backfills
type Backfiller interface {
	Run(ctx context.Context, kind backfill.Kind, opts backfill.RunOptions) (backfill.BatchResult, error)
	MaxPages() int
}

// EnrichmentRunner runs vendor and cost enrichment jobs
type EnrichmentRunner interface {
	BackfillVendors(ctx context.Context, opts backfill.EnrichOptions) (backfill.EnrichResult, error)
	BackfillCosts(ctx context.Context, opts backfill.EnrichOptions) (backfill.EnrichResult, error)
}

// SyncStateLister exposes persisted backfill progress
type SyncStateLister interface {
	ListSyncStates(ctx context.Context) ([]models.SyncState, error)
}

// RepLookup resolves free-text rep references
type RepLookup interface {
	ResolveRep(ctx context.Context, q sync.RepQuery) *sync.RepRef
}

// Deps are the collaborators the HTTP surface is wired to
type Deps struct {
	Backfill  Backfiller
	Enrich    EnrichmentRunner
	States    SyncStateLister
	Reps      RepLookup
	Webhooks  http.Handler
	Feed      http.Handler
	JWTSecret string

	DefaultRPM       int
	DefaultEnrichRPM int
	DefaultPageSize  int
}

// Router wraps the mux router and its collaborators
type Router struct {
	*mux.Router
	deps Deps
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(deps Deps) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		deps:   deps,
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Platform push notifications authenticate by HMAC, not JWT
	if deps.Webhooks != nil {
		r.Handle("/webhooks/shopify", deps.Webhooks).Methods("POST")
	}
	if deps.Feed != nil {
		r.Handle("/ws", deps.Feed)
	}

	// Operator API (protected)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(deps.JWTSecret))
	api.HandleFunc("/sync/backfill/{kind}", r.runBackfill).Methods("POST")
	api.HandleFunc("/sync/enrich/vendors", r.enrichVendors).Methods("POST")
	api.HandleFunc("/sync/enrich/costs", r.enrichCosts).Methods("POST")
	api.HandleFunc("/sync/state", r.listSyncState).Methods("GET")
	api.HandleFunc("/reps/resolve", r.resolveRep).Methods("POST")

	return r
}

// WithCORS wraps the router for the operator dashboard origins
func (r *Router) WithCORS(allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		return r
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"build":  buildinfo.Current(),
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
