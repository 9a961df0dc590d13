package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/tallyport/tallyport/internal/config"
	"github.com/tallyport/tallyport/internal/metrics"
)

// Deps carries the constructed collaborators the router wires into handlers.
// Everything is created once at process start and injected; handlers hold no
// process-wide state.
type Deps struct {
	Users     UserLoader
	Link      LinkService
	Billing   BillingClient
	Collector *metrics.Collector
}

// NewRouter creates the HTTP router
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(SecurityHeadersMiddleware(cfg))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// OTP endpoints get a stricter budget than the rest of the API.
	apiLimiter := NewRateLimiter(rate.Limit(10), 20)
	apiLimiter.CleanupOldLimiters()
	linkLimiter := NewRateLimiter(rate.Limit(0.2), 5)
	linkLimiter.CleanupOldLimiters()

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimitMiddleware(apiLimiter))

		// Auth routes
		r.Post("/auth/login", HandleLogin(deps.Users, cfg))
		r.Post("/auth/register", HandleRegister(deps.Users, cfg))

		// Linking routes (bearer credential required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.JWTSecret, deps.Users))
			r.Get("/user/me", HandleGetCurrentUser())

			r.Group(func(r chi.Router) {
				r.Use(RateLimitMiddleware(linkLimiter))
				r.Post("/link/start", HandleStartLink(deps.Link, deps.Collector))
				r.Post("/link/verify", HandleVerifyLink(deps.Link, cfg, deps.Collector))
			})
		})

		// Billing routes (session cookie gated)
		r.Get("/billing/status", HandleEntitlementStatus(deps.Billing))
		r.Post("/billing/checkout", HandleCheckout(deps.Billing))
		r.Post("/billing/portal", HandleManageBilling(deps.Billing))
		r.Get("/billing/await-activation", HandleAwaitActivation(deps.Billing, deps.Collector))
	})

	// Prometheus metrics endpoint (no auth required)
	r.Get("/metrics", deps.Collector.Handler().ServeHTTP)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
