package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/xelth-com/salonsync/internal/sync"
)

// resolveRep maps a free-text rep reference onto a canonical rep
func (r *Router) resolveRep(w http.ResponseWriter, req *http.Request) {
	if r.deps.Reps == nil {
		respondError(w, http.StatusServiceUnavailable, "rep mapping not configured")
		return
	}

	var q sync.RepQuery
	if err := json.NewDecoder(req.Body).Decode(&q); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if q.ID == nil && strings.TrimSpace(q.Name) == "" {
		respondError(w, http.StatusBadRequest, "id or name is required")
		return
	}

	ref := r.deps.Reps.ResolveRep(req.Context(), q)
	if ref == nil {
		respondError(w, http.StatusNotFound, "no matching sales rep")
		return
	}
	respondJSON(w, http.StatusOK, ref)
}
