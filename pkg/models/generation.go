package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// GenerationJob tracks one portfolio generation run. Progress is
// non-decreasing on the happy path and forced to 100 on terminal states.
// Only the generation orchestrator mutates a job after creation.
type GenerationJob struct {
	ID          uuid.UUID  `db:"id"            json:"id"`
	UserID      uuid.UUID  `db:"user_id"       json:"user_id"`
	PortfolioID uuid.UUID  `db:"portfolio_id"  json:"portfolio_id"`
	Status      string     `db:"status"        json:"status"`
	Progress    int        `db:"progress"      json:"progress"`
	CurrentStep *string    `db:"current_step"  json:"current_step,omitempty"`
	ErrorMsg    *string    `db:"error_message" json:"error_message,omitempty"`
	StartedAt   time.Time  `db:"started_at"    json:"started_at"`
	CompletedAt *time.Time `db:"completed_at"  json:"completed_at,omitempty"`
}

// GenerationEvent is the transient progress message broadcast over the event
// bus while a job runs. It is never persisted; a subscriber that is not
// listening at publish time never sees it.
type GenerationEvent struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Step     string `json:"step"`
	URL      string `json:"url,omitempty"`
	Error    string `json:"error,omitempty"`
}
