package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/devforge-dev/devforge/internal/api/middleware"
	"github.com/devforge-dev/devforge/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler          http.HandlerFunc
	LoginHandler           http.HandlerFunc
	CallbackHandler        http.HandlerFunc
	MeHandler              http.HandlerFunc
	SyncHandler            http.HandlerFunc
	ListReposHandler       http.HandlerFunc
	CreatePortfolioHandler http.HandlerFunc
	GetPortfolioHandler    http.HandlerFunc
	GenerateHandler        http.HandlerFunc
	JobHandler             http.HandlerFunc
	JobEventsHandler       http.HandlerFunc
	PublicSiteHandler      http.HandlerFunc

	// GeneratedFiles serves the deployed static sites under /generated/.
	GeneratedFiles http.Handler
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public routes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Get("/auth/github/login", orNotImplemented(deps.LoginHandler))
	r.Get("/auth/github/callback", orNotImplemented(deps.CallbackHandler))
	r.Get("/api/v1/portfolios/{subdomain}", orNotImplemented(deps.GetPortfolioHandler))
	r.Get("/p/{subdomain}", orNotImplemented(deps.PublicSiteHandler))
	if deps.GeneratedFiles != nil {
		r.Handle("/generated/*", http.StripPrefix("/generated/", deps.GeneratedFiles))
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/me", orNotImplemented(deps.MeHandler))
		r.Post("/api/v1/sync", orNotImplemented(deps.SyncHandler))
		r.Get("/api/v1/repos", orNotImplemented(deps.ListReposHandler))

		r.Post("/api/v1/portfolios", orNotImplemented(deps.CreatePortfolioHandler))

		r.Post("/api/v1/generate", orNotImplemented(deps.GenerateHandler))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.JobHandler))
		r.Get("/api/v1/jobs/{jobID}/events", orNotImplemented(deps.JobEventsHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
