package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-cache/internal/indexer"
)

type busyReconciler struct{}

func (busyReconciler) Reconcile(context.Context, indexer.Options) (*indexer.Report, error) {
	return nil, indexer.ErrRunning
}

func (busyReconciler) Status() indexer.Status { return indexer.Status{Running: true} }

func reconcileRequest(query string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/api/cache/reconcile"+query, http.NoBody)
}

func TestReconcileCache(t *testing.T) {
	env := newTestEnv(t)
	env.h.SetReconciler(indexer.New(env.db, env.cacheDir, 0, indexer.Options{}))

	w := httptest.NewRecorder()
	env.h.GetMedia(w, mediaRequest(http.MethodGet, env.url("/notes.txt")))
	require.Equal(t, http.StatusOK, w.Code)

	entries, err := env.db.ListEntries(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, os.Remove(entries[0].CachedPath))

	w = httptest.NewRecorder()
	env.h.ReconcileCache(w, reconcileRequest("?dry_run=true&verify=1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report indexer.Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.True(t, report.DryRun)
	assert.Equal(t, []string{entries[0].Locator}, report.Stale)
	assert.Zero(t, report.RemovedEntries)

	w = httptest.NewRecorder()
	env.h.ReconcileCache(w, reconcileRequest(""))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.Equal(t, int64(1), report.RemovedEntries)

	n, err := env.db.CountEntries(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	w = httptest.NewRecorder()
	env.h.GetReconcileStatus(w, httptest.NewRequest(http.MethodGet, "/api/cache/reconcile", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	var status indexer.Status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.False(t, status.Running)
	require.NotNil(t, status.LastReport)
	assert.Len(t, status.LastReport.Stale, 1)
}

func TestReconcileCache_Errors(t *testing.T) {
	h := newStubHandlers()

	w := httptest.NewRecorder()
	h.ReconcileCache(w, reconcileRequest(""))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	h.GetReconcileStatus(w, httptest.NewRequest(http.MethodGet, "/api/cache/reconcile", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	h.SetReconciler(busyReconciler{})

	w = httptest.NewRecorder()
	h.ReconcileCache(w, reconcileRequest("?verify=perhaps"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.ReconcileCache(w, reconcileRequest("?dry_run=true"))
	assert.Equal(t, http.StatusConflict, w.Code)
}
