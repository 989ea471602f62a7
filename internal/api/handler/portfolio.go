package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	mw "github.com/devforge-dev/devforge/internal/api/middleware"
	"github.com/devforge-dev/devforge/internal/api/response"
	"github.com/devforge-dev/devforge/internal/store"
	"github.com/devforge-dev/devforge/pkg/models"
)

const defaultTemplateID = "minimal"

// Subdomains are DNS labels: lowercase alphanumerics and hyphens, no
// leading or trailing hyphen, at most 63 characters.
var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// NewCreatePortfolioHandler returns the handler for POST /api/v1/portfolios.
func NewCreatePortfolioHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
			return
		}

		var req struct {
			Subdomain   string         `json:"subdomain"`
			TemplateID  string         `json:"template_id"`
			ThemeConfig map[string]any `json:"theme_config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if !subdomainPattern.MatchString(req.Subdomain) {
			response.Error(w, http.StatusBadRequest, "INVALID_SUBDOMAIN",
				"subdomain must be a valid DNS label", nil)
			return
		}
		if req.TemplateID == "" {
			req.TemplateID = defaultTemplateID
		}

		p := &models.Portfolio{
			UserID:      userID,
			Subdomain:   req.Subdomain,
			TemplateID:  req.TemplateID,
			ThemeConfig: req.ThemeConfig,
		}
		if err := st.CreatePortfolio(r.Context(), p); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "SUBDOMAIN_TAKEN",
					"That subdomain is already in use", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not create the portfolio", nil)
			return
		}

		response.Created(w, p)
	}
}

// NewGetPortfolioHandler returns the handler for GET /api/v1/portfolios/{subdomain}.
func NewGetPortfolioHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := st.GetPortfolioBySubdomain(r.Context(), chi.URLParam(r, "subdomain"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Portfolio not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not load the portfolio", nil)
			return
		}
		response.JSON(w, p)
	}
}

// NewPublicSiteHandler returns the handler for GET /p/{subdomain}, the
// rendered portfolio page itself. Each hit counts one view; the counter is
// best effort and never fails the page.
func NewPublicSiteHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := st.GetPortfolioBySubdomain(r.Context(), chi.URLParam(r, "subdomain"))
		if err != nil || !p.IsPublished || p.GeneratedHTML == nil {
			http.NotFound(w, r)
			return
		}

		_ = st.IncrementPortfolioViews(r.Context(), p.ID)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(*p.GeneratedHTML))
	}
}
