package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/xelth-com/salonsync/internal/backfill"
)

type backfillResponse struct {
	backfill.BatchResult
	Error string `json:"error,omitempty"`
}

type enrichResponse struct {
	backfill.EnrichResult
	Error string `json:"error,omitempty"`
}

// runBackfill imports one or more pages of customers or orders
func (r *Router) runBackfill(w http.ResponseWriter, req *http.Request) {
	kind, err := backfill.ParseKind(mux.Vars(req)["kind"])
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if r.deps.Backfill == nil {
		respondError(w, http.StatusServiceUnavailable, "backfill not configured")
		return
	}

	q := req.URL.Query()
	limit, err := intParam(q, "limit", r.deps.DefaultPageSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	pages, err := intParam(q, "pages", 1)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if pages < 1 {
		respondError(w, http.StatusBadRequest, "pages must be at least 1")
		return
	}
	rpm, err := intParam(q, "rpm", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Operator runs never move the scheduler's persisted cursor
	opts := backfill.RunOptions{
		Cursor: backfill.SyncCursor{
			PageInfo: firstParam(q, "pageInfo", "page_info"),
			Limit:    backfill.ClampLimit(limit),
		},
		Pages: pages,
		RPM:   backfill.ClampRPM(rpm, r.deps.DefaultRPM),
	}
	if pages > r.deps.Backfill.MaxPages() {
		opts.Pages = r.deps.Backfill.MaxPages()
	}

	// Filters are only meaningful without a cursor
	if opts.Cursor.PageInfo == "" {
		filters := &backfill.Filters{Status: q.Get("status")}
		for name, dst := range map[string]**time.Time{
			"createdAtMin": &filters.CreatedAtMin,
			"createdAtMax": &filters.CreatedAtMax,
			"updatedAtMin": &filters.UpdatedAtMin,
		} {
			t, err := timeParam(q, name)
			if err != nil {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			*dst = t
		}
		opts.Filters = filters
	}

	res, err := r.deps.Backfill.Run(req.Context(), kind, opts)
	if err != nil {
		log.Printf("❌ Backfill %s request failed: %v", kind, err)
		respondJSON(w, http.StatusBadGateway, backfillResponse{BatchResult: res, Error: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, backfillResponse{BatchResult: res})
}

func (r *Router) enrichVendors(w http.ResponseWriter, req *http.Request) {
	if r.deps.Enrich == nil {
		respondError(w, http.StatusServiceUnavailable, "enrichment not configured")
		return
	}
	r.runEnrichment(w, req, "vendor", r.deps.Enrich.BackfillVendors)
}

func (r *Router) enrichCosts(w http.ResponseWriter, req *http.Request) {
	if r.deps.Enrich == nil {
		respondError(w, http.StatusServiceUnavailable, "enrichment not configured")
		return
	}
	r.runEnrichment(w, req, "cost", r.deps.Enrich.BackfillCosts)
}

type enrichJob func(ctx context.Context, opts backfill.EnrichOptions) (backfill.EnrichResult, error)

func (r *Router) runEnrichment(w http.ResponseWriter, req *http.Request, name string, job enrichJob) {
	q := req.URL.Query()
	rpm, err := intParam(q, "rpm", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := intParam(q, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := job(req.Context(), backfill.EnrichOptions{
		RPM:   backfill.ClampEnrichRPM(rpm, r.deps.DefaultEnrichRPM),
		Limit: limit,
	})
	if err != nil {
		log.Printf("❌ %s enrichment failed: %v", name, err)
		respondJSON(w, http.StatusInternalServerError, enrichResponse{EnrichResult: res, Error: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, enrichResponse{EnrichResult: res})
}

// listSyncState returns the persisted resume point of every resource
func (r *Router) listSyncState(w http.ResponseWriter, req *http.Request) {
	if r.deps.States == nil {
		respondError(w, http.StatusServiceUnavailable, "sync state not configured")
		return
	}
	states, err := r.deps.States.ListSyncStates(req.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(states),
		"states": states,
	})
}

func firstParam(q url.Values, names ...string) string {
	for _, n := range names {
		if v := q.Get(n); v != "" {
			return v
		}
	}
	return ""
}

func intParam(q url.Values, name string, def int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return n, nil
}

func timeParam(q url.Values, name string) (*time.Time, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("invalid " + name + ": expected RFC3339 or YYYY-MM-DD")
}
