package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/staging"
)

type createGenerationRequest struct {
	Type      string `json:"type"`
	ImageURL  string `json:"image_url"`
	Style     string `json:"style"`
	RoomType  string `json:"room_type"`
	SessionID string `json:"session_id"`
}

type jobResponse struct {
	JobID        string   `json:"job_id"`
	Type         string   `json:"type"`
	Status       string   `json:"status"`
	ResultURLs   []string `json:"result_urls"`
	ErrorMessage string   `json:"error_message,omitempty"`
	CreditsUsed  int      `json:"credits_used"`
}

// CreateGeneration handles POST /v1/generations. The call is synchronous:
// the response carries the terminal job, 201 when it completed and 502
// when the provider side failed (the debit was already refunded).
func (a *App) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	user, err := a.currentUser(r)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}

	var body createGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_json", "request body must be valid json")
		return
	}

	job, err := a.Generations.StartGeneration(r.Context(), user.ID, staging.GenerationRequest{
		Type:      domain.JobType(body.Type),
		ImageURL:  body.ImageURL,
		Style:     body.Style,
		RoomType:  body.RoomType,
		SessionID: body.SessionID,
	})
	if err != nil {
		a.serviceError(w, r, err)
		return
	}

	resp := jobResponse{
		JobID:       job.ID,
		Type:        string(job.Type),
		Status:      string(job.Status),
		ResultURLs:  job.ResultURLs,
		CreditsUsed: job.CreditsUsed,
	}
	if job.Status == domain.JobStatusFailed {
		resp.ErrorMessage = job.ErrorMessage
		a.json(w, http.StatusBadGateway, resp)
		return
	}
	a.json(w, http.StatusCreated, resp)
}

// GetGeneration handles GET /v1/generations/{jobID}.
func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	user, err := a.currentUser(r)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	view, err := a.Generations.JobStatus(r.Context(), chi.URLParam(r, "jobID"), user.ID)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, view)
}
