package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

type createSessionRequest struct {
	OriginalImageURL string `json:"original_image_url"`
	RoomState        string `json:"room_state"`
}

type selectEmptyRoomRequest struct {
	ImageURL string `json:"image_url"`
}

// CreateSession handles POST /v1/sessions.
func (a *App) CreateSession(w http.ResponseWriter, r *http.Request) {
	user, err := a.currentUser(r)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	var body createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_json", "request body must be valid json")
		return
	}
	session, err := a.Sessions.CreateSession(r.Context(), user.ID, body.OriginalImageURL, domain.RoomState(body.RoomState))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, session)
}

// ListSessions handles GET /v1/sessions and returns each session with its
// generation history.
func (a *App) ListSessions(w http.ResponseWriter, r *http.Request) {
	user, err := a.currentUser(r)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	histories, err := a.Sessions.ListSessionsWithHistory(r.Context(), user.ID)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"sessions": histories})
}

// SelectEmptyRoom handles POST /v1/sessions/{sessionID}/empty-room.
func (a *App) SelectEmptyRoom(w http.ResponseWriter, r *http.Request) {
	user, err := a.currentUser(r)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	var body selectEmptyRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_json", "request body must be valid json")
		return
	}
	session, err := a.Sessions.SelectEmptyRoom(r.Context(), user.ID, chi.URLParam(r, "sessionID"), body.ImageURL)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, session)
}
