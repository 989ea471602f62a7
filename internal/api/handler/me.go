package handler

import (
	"errors"
	"net/http"

	mw "github.com/devforge-dev/devforge/internal/api/middleware"
	"github.com/devforge-dev/devforge/internal/api/response"
	"github.com/devforge-dev/devforge/internal/store"
)

// NewMeHandler returns the handler for GET /api/v1/me, the authenticated
// user with their synced GitHub profile when one exists.
func NewMeHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
			return
		}

		user, err := st.GetUser(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "User not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not load the user", nil)
			return
		}

		body := map[string]any{"user": user}
		if profile, err := st.GetProfileByUser(r.Context(), userID); err == nil {
			body["profile"] = profile
		}
		response.JSON(w, body)
	}
}
