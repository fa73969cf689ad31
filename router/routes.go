package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/gowompi/handler"
	"github.com/mstgnz/gowompi/infra/middle"
	"github.com/mstgnz/gowompi/infra/response"
	v1 "github.com/mstgnz/gowompi/router/v1"
)

// Dependencies are the handlers and settings the routes are built from
type Dependencies struct {
	Wompi  *handler.WompiHandler
	Calls  *handler.CallsHandler
	Health *handler.HealthHandler

	// APIKey guards /v1. Empty leaves /v1 unmounted.
	APIKey             string
	WebhookIPWhitelist []string
	RateLimiter        *middle.RateLimiter
}

// Routes registers the public gateway routes and the authenticated /v1 API
func Routes(r chi.Router, deps Dependencies) {
	r.Get("/health", deps.Health.CheckHealth)

	// Gateway notifications (no API key, the payload is signed)
	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(middle.RateLimitMiddleware(deps.RateLimiter))
		}
		r.With(middle.IPWhitelistMiddleware(deps.WebhookIPWhitelist)).Post("/webhooks/wompi", deps.Wompi.HandleWebhook)
		r.Get("/callback/wompi", deps.Wompi.HandleCallback)
	})

	if deps.APIKey != "" {
		r.Route("/v1", func(r chi.Router) {
			r.Use(middle.AuthMiddleware(deps.APIKey))
			v1.Routes(r, deps.Wompi, deps.Calls)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = response.WriteJSON(w, http.StatusNotFound, response.Response{Success: false, Message: "Not Found"})
	})
}
