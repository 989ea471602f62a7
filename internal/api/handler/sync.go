package handler

import (
	"net/http"

	mw "github.com/devforge-dev/devforge/internal/api/middleware"
	"github.com/devforge-dev/devforge/internal/api/response"
	"github.com/devforge-dev/devforge/internal/queue"
	"github.com/devforge-dev/devforge/internal/tasks"
)

// NewSyncHandler returns the handler for POST /api/v1/sync, which queues a
// fresh profile and repository sync for the authenticated user.
func NewSyncHandler(q queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
			return
		}

		h, err := q.Enqueue(r.Context(), tasks.TypeSyncUser, tasks.SyncUserPayload{UserID: userID})
		if err != nil {
			response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE",
				"Could not queue the sync task", nil)
			return
		}

		response.Accepted(w, map[string]string{"task_id": h.ID})
	}
}
