package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	mw "github.com/devforge-dev/devforge/internal/api/middleware"
	"github.com/devforge-dev/devforge/internal/api/response"
	"github.com/devforge-dev/devforge/internal/events"
	"github.com/devforge-dev/devforge/internal/store"
	"github.com/devforge-dev/devforge/pkg/models"
)

// NewJobEventsHandler returns the handler for GET /api/v1/jobs/{jobID}/events,
// a Server-Sent Events stream of generation progress. The stream opens with a
// snapshot built from the job row, then relays live bus events until a
// terminal status arrives or the client goes away. Progress published while
// nobody is subscribed is not replayed; the snapshot covers the catch-up.
func NewJobEventsHandler(st store.Store, bus events.Bus) http.HandlerFunc {
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

		flusher, ok := w.(http.Flusher)
		if !ok {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Streaming is not supported", nil)
			return
		}

		// Subscribe before writing the snapshot so no event published in
		// between is lost.
		ch, stop, err := bus.Subscribe(r.Context(), job.ID.String())
		if err != nil {
			response.Error(w, http.StatusServiceUnavailable, "EVENTS_UNAVAILABLE",
				"Could not subscribe to job events", nil)
			return
		}
		defer stop()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		snapshot := snapshotEvent(job)
		writeEvent(w, snapshot)
		flusher.Flush()
		if terminalStatus(snapshot.Status) {
			return
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case ev, open := <-ch:
				if !open {
					return
				}
				writeEvent(w, ev)
				flusher.Flush()
				if terminalStatus(ev.Status) {
					return
				}
			}
		}
	}
}

func snapshotEvent(job *models.GenerationJob) models.GenerationEvent {
	ev := models.GenerationEvent{
		JobID:    job.ID.String(),
		Status:   job.Status,
		Progress: job.Progress,
	}
	if job.CurrentStep != nil {
		ev.Step = *job.CurrentStep
	}
	if job.ErrorMsg != nil {
		ev.Error = *job.ErrorMsg
	}
	return ev
}

func terminalStatus(status string) bool {
	return status == models.JobStatusCompleted || status == models.JobStatusFailed
}

func writeEvent(w http.ResponseWriter, ev models.GenerationEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
