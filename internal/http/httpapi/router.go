// Package httpapi assembles the chi router from the handler container.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"server/internal/http/handlers"
	"server/internal/infra/geoip"
	"server/internal/middleware"
)

// NewRouter wires middlewares and routes. rdb and countries may be nil;
// the middlewares degrade to pass-through.
func NewRouter(app *handlers.App, rdb *redis.Client, countries geoip.CountryResolver) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(app.Logger, countries))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(2 * time.Minute))

	r.Get("/v1/healthz", app.Healthz)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(app.Config.JWTSecret))
		r.Use(middleware.RateLimit(rdb, app.Config.RateLimitPerMin, app.Logger))

		r.Post("/v1/generations", app.CreateGeneration)
		r.Get("/v1/generations/{jobID}", app.GetGeneration)

		r.Post("/v1/sessions", app.CreateSession)
		r.Get("/v1/sessions", app.ListSessions)
		r.Post("/v1/sessions/{sessionID}/empty-room", app.SelectEmptyRoom)

		r.Get("/v1/credits", app.GetCredits)

		r.Route("/v1/admin", func(r chi.Router) {
			r.Post("/credits/grant", app.GrantCredits)
			r.Post("/reaper/stuck-jobs", app.SweepStuckJobs)
			r.Post("/reaper/retention", app.RunRetention)
		})
	})

	return r
}
