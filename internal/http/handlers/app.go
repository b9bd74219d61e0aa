package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/reaper"
	"server/internal/staging"
)

// GenerationService is the slice of the job manager the handlers consume.
type GenerationService interface {
	StartGeneration(ctx context.Context, userID string, req staging.GenerationRequest) (*domain.Job, error)
	JobStatus(ctx context.Context, jobID, userID string) (*staging.JobStatusView, error)
}

// SessionService covers session creation and history reads.
type SessionService interface {
	CreateSession(ctx context.Context, userID, originalImageURL string, roomState domain.RoomState) (*domain.Session, error)
	SelectEmptyRoom(ctx context.Context, userID, sessionID, url string) (*domain.Session, error)
	ListSessionsWithHistory(ctx context.Context, userID string) ([]staging.SessionHistory, error)
}

// CreditService covers the credit reads and the admin top-up.
type CreditService interface {
	Balance(ctx context.Context, userID string) (int, error)
	Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error)
	Grant(ctx context.Context, userID string, amount int, description string) error
}

// Sweeper runs the stuck-job sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// RetentionRunner runs the retention cleanup.
type RetentionRunner interface {
	Sweep(ctx context.Context) (reaper.RetentionResult, error)
}

// RefundReconciler repairs missing refunds for failed jobs.
type RefundReconciler interface {
	Reconcile(ctx context.Context) (int64, error)
}

// App is the handler container wired once at startup.
type App struct {
	Config      *infra.Config
	Logger      zerolog.Logger
	Users       domain.UserRepository
	Credits     CreditService
	Generations GenerationService
	Sessions    SessionService
	Stuck       Sweeper
	Retention   RetentionRunner
	Reconciler  RefundReconciler
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]errorBody{"error": {Code: errCode, Message: message}})
}

func (a *App) validationError(w http.ResponseWriter, verr *domain.ValidationError) {
	a.json(w, http.StatusUnprocessableEntity, map[string]errorBody{
		"error": {Code: "validation_failed", Message: verr.Reason, Field: verr.Field},
	})
}

// currentUser resolves the authenticated identity to a persisted user,
// creating the row on first sight and granting the welcome credits once.
func (a *App) currentUser(r *http.Request) (*domain.User, error) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	user, created, err := a.Users.UpsertBySubject(r.Context(), &domain.User{
		ID:      uuid.NewString(),
		Subject: identity.Subject,
		Email:   identity.Email,
		Name:    identity.Name,
	})
	if err != nil {
		return nil, err
	}
	if created && a.Config.WelcomeCredits > 0 {
		if err := a.Credits.Grant(r.Context(), user.ID, a.Config.WelcomeCredits, "welcome credits"); err != nil {
			a.Logger.Error().Err(err).Str("user_id", user.ID).Msg("welcome grant failed")
		}
	}
	return user, nil
}

// serviceError maps domain errors to the HTTP envelope. Unrecognized
// errors become an opaque 500 and are logged with full detail.
func (a *App) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	var ierr *domain.InsufficientCreditsError
	switch {
	case errors.As(err, &verr):
		a.validationError(w, verr)
	case errors.As(err, &ierr):
		a.json(w, http.StatusPaymentRequired, map[string]any{
			"error": errorBody{Code: "insufficient_credits", Message: ierr.Error()},
			"required_credits":  ierr.Required,
			"available_credits": ierr.Available,
		})
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "authentication required")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
