package handler

import (
	"net/http"
	"strconv"

	mw "github.com/devforge-dev/devforge/internal/api/middleware"
	"github.com/devforge-dev/devforge/internal/api/response"
	"github.com/devforge-dev/devforge/internal/store"
	"github.com/devforge-dev/devforge/pkg/models"
)

const (
	defaultReposPerPage = 20
	maxReposPerPage     = 100
)

// NewListReposHandler returns the handler for GET /api/v1/repos, the
// authenticated user's synced repositories ordered by stars.
func NewListReposHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
			return
		}

		page := queryInt(r, "page", 1)
		if page < 1 {
			page = 1
		}
		limit := queryInt(r, "limit", defaultReposPerPage)
		if limit < 1 {
			limit = defaultReposPerPage
		}
		if limit > maxReposPerPage {
			limit = maxReposPerPage
		}

		repos, err := st.ListRepositoriesByUser(r.Context(), userID, 0)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not list repositories", nil)
			return
		}

		total := len(repos)
		start := (page - 1) * limit
		if start > total {
			start = total
		}
		end := start + limit
		if end > total {
			end = total
		}
		pageRepos := repos[start:end]
		if pageRepos == nil {
			pageRepos = []*models.Repository{}
		}

		response.Collection(w, pageRepos, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: end < total,
		})
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
