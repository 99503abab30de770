package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"media-cache/internal/indexer"
	"media-cache/internal/logging"
)

// ReconcileCache checks the index against the cache root. The dry_run,
// verify and remove_orphans query parameters map onto indexer.Options.
func (h *Handlers) ReconcileCache(w http.ResponseWriter, r *http.Request) {
	if h.reconciler == nil {
		writeJSONError(w, "reconciliation is disabled", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	var opts indexer.Options
	for name, dst := range map[string]*bool{
		"dry_run":        &opts.DryRun,
		"verify":         &opts.Verify,
		"remove_orphans": &opts.RemoveOrphans,
	} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeJSONError(w, name+" must be a boolean", http.StatusBadRequest)
			return
		}
		*dst = parsed
	}

	report, err := h.reconciler.Reconcile(r.Context(), opts)
	switch {
	case errors.Is(err, indexer.ErrRunning):
		writeJSONError(w, "reconciliation already running", http.StatusConflict)
	case err != nil:
		logging.Error("Reconciliation failed: %v", err)
		writeJSONError(w, "reconciliation failed", http.StatusInternalServerError)
	default:
		writeJSONResponse(w, http.StatusOK, report)
	}
}

// GetReconcileStatus reports whether a reconciliation is running and the
// last report.
func (h *Handlers) GetReconcileStatus(w http.ResponseWriter, _ *http.Request) {
	if h.reconciler == nil {
		writeJSONError(w, "reconciliation is disabled", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONResponse(w, http.StatusOK, h.reconciler.Status())
}
