package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"server/internal/domain"
)

// GetCredits handles GET /v1/credits: current balance plus the most
// recent transactions (limit query param, default 50).
func (a *App) GetCredits(w http.ResponseWriter, r *http.Request) {
	user, err := a.currentUser(r)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	balance, err := a.Credits.Balance(r.Context(), user.ID)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	txs, err := a.Credits.Transactions(r.Context(), user.ID, limit)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	if txs == nil {
		txs = []domain.CreditTransaction{}
	}
	a.json(w, http.StatusOK, map[string]any{
		"balance":      balance,
		"transactions": txs,
	})
}

type grantCreditsRequest struct {
	UserID      string `json:"user_id"`
	Amount      int    `json:"amount"`
	Description string `json:"description"`
}

// GrantCredits handles POST /v1/admin/credits/grant, the operator top-up.
func (a *App) GrantCredits(w http.ResponseWriter, r *http.Request) {
	var body grantCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_json", "request body must be valid json")
		return
	}
	if body.UserID == "" {
		a.validationError(w, &domain.ValidationError{Field: "user_id", Reason: "required"})
		return
	}
	if body.Amount <= 0 {
		a.validationError(w, &domain.ValidationError{Field: "amount", Reason: "must be positive"})
		return
	}
	if _, err := a.Users.GetByID(r.Context(), body.UserID); err != nil {
		a.serviceError(w, r, err)
		return
	}
	desc := body.Description
	if desc == "" {
		desc = "manual credit grant"
	}
	if err := a.Credits.Grant(r.Context(), body.UserID, body.Amount, desc); err != nil {
		a.serviceError(w, r, err)
		return
	}
	balance, err := a.Credits.Balance(r.Context(), body.UserID)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"user_id": body.UserID,
		"granted": body.Amount,
		"balance": balance,
	})
}
