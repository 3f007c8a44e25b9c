package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mstgnz/gohuifu/handler"
	"github.com/mstgnz/gohuifu/infra/middle"
	"github.com/mstgnz/gohuifu/infra/response"
	v1 "github.com/mstgnz/gohuifu/router/v1"
)

// Options carries everything mounted on the root router. Nil handlers and
// an empty APIKey leave their routes or middleware out.
type Options struct {
	APIKey      string
	RateLimiter *middle.RateLimiter
	CallbackIPs []string
	Health      *handler.HealthHandler
	Callbacks   *handler.CallbackHandler
	V1          v1.Handlers
}

// Routes mounts the public endpoints, the gateway callbacks and the
// authenticated /v1 API.
func Routes(r chi.Router, opts Options) {
	r.Use(middle.RequestValidationMiddleware())

	if opts.Health != nil {
		r.Get("/health", opts.Health.CheckHealth)
	}
	r.Handle("/metrics", promhttp.Handler())

	// Gateway notifications, no auth
	if opts.Callbacks != nil {
		r.Group(func(r chi.Router) {
			r.Use(middle.IPWhitelistMiddleware(opts.CallbackIPs))
			r.Post("/callback/{event}", opts.Callbacks.Handle)
		})
	}

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(middle.AuthMiddleware(opts.APIKey))
		}
		if opts.RateLimiter != nil {
			r.Use(middle.RateLimitMiddleware(opts.RateLimiter))
		}
		v1.Routes(r, opts.V1)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found", nil)
	})
}
