package models

import (
	"time"

	"github.com/google/uuid"
)

// Commit is a single analyzed commit. SHA is globally unique across all
// repositories; inserts keyed by SHA are idempotent.
type Commit struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	RepositoryID uuid.UUID `db:"repository_id" json:"repository_id"`
	SHA          string    `db:"sha"           json:"sha"`
	Message      string    `db:"message"       json:"message"`
	AuthorName   *string   `db:"author_name"   json:"author_name,omitempty"`
	AuthorEmail  *string   `db:"author_email"  json:"author_email,omitempty"`
	CommittedAt  time.Time `db:"committed_at"  json:"committed_at"`
	Additions    int       `db:"additions"     json:"additions"`
	Deletions    int       `db:"deletions"     json:"deletions"`
	FilesChanged int       `db:"files_changed" json:"files_changed"`
}
