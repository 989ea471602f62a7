package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/devforge-dev/devforge/internal/api/middleware"
	"github.com/devforge-dev/devforge/internal/api/response"
	"github.com/devforge-dev/devforge/internal/queue"
	"github.com/devforge-dev/devforge/internal/store"
	"github.com/devforge-dev/devforge/internal/tasks"
	"github.com/devforge-dev/devforge/pkg/models"
)

// NewGenerateHandler returns the handler for POST /api/v1/generate. It
// records a pending job, queues the generation task and answers 202; the
// caller follows progress through the job endpoints.
func NewGenerateHandler(st store.Store, q queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
			return
		}

		var req struct {
			PortfolioID uuid.UUID `json:"portfolio_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PortfolioID == uuid.Nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "portfolio_id is required", nil)
			return
		}

		p, err := st.GetPortfolio(r.Context(), req.PortfolioID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Portfolio not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not load the portfolio", nil)
			return
		}
		if p.UserID != userID {
			response.Error(w, http.StatusForbidden, "FORBIDDEN", "Not your portfolio", nil)
			return
		}

		job := &models.GenerationJob{
			UserID:      userID,
			PortfolioID: p.ID,
			Status:      models.JobStatusPending,
		}
		if err := st.CreateJob(r.Context(), job); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not create the generation job", nil)
			return
		}

		if _, err := q.Enqueue(r.Context(), tasks.TypeGeneratePortfolio, tasks.GeneratePortfolioPayload{JobID: job.ID}); err != nil {
			slog.Error("queue generation failed", "job_id", job.ID, "error", err)
			_ = st.UpdateJob(r.Context(), job.ID,
				store.WithStatus(models.JobStatusFailed),
				store.WithProgress(100),
				store.WithStep("Failed"),
				store.WithErrorMessage("could not queue the generation task"),
				store.WithCompleted())
			response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE",
				"Could not queue the generation task", nil)
			return
		}

		response.Accepted(w, job)
	}
}

// NewJobHandler returns the handler for GET /api/v1/jobs/{jobID}.
func NewJobHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
			return
		}

		job, ok := loadOwnJob(w, r, st, userID)
		if !ok {
			return
		}
		response.JSON(w, job)
	}
}

// loadOwnJob parses {jobID}, loads the job and checks ownership, writing
// the error response itself when any step fails.
func loadOwnJob(w http.ResponseWriter, r *http.Request, st store.Store, userID uuid.UUID) (*models.GenerationJob, bool) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
		return nil, false
	}

	job, err := st.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return nil, false
		}
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Could not load the job", nil)
		return nil, false
	}
	if job.UserID != userID {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
		return nil, false
	}
	return job, true
}
