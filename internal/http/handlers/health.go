package handlers

import "net/http"

// Healthz handles GET /v1/healthz.
func (a *App) Healthz(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
