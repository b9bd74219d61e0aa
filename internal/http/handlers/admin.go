package handlers

import (
	"net/http"
)

// SweepStuckJobs handles POST /v1/admin/reaper/stuck-jobs. The sweep
// itself never touches credits; the refund reconciler runs right after
// so swept jobs get their compensating refund through the same
// exactly-once path as ordinary failures.
func (a *App) SweepStuckJobs(w http.ResponseWriter, r *http.Request) {
	swept, err := a.Stuck.Sweep(r.Context())
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	refunded, err := a.Reconciler.Reconcile(r.Context())
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"swept":    swept,
		"refunded": refunded,
	})
}

// RunRetention handles POST /v1/admin/reaper/retention.
func (a *App) RunRetention(w http.ResponseWriter, r *http.Request) {
	result, err := a.Retention.Sweep(r.Context())
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"failed_generations": result.FailedGenerations,
		"sessions":           result.Sessions,
		"orphan_generations": result.OrphanGenerations,
	})
}
