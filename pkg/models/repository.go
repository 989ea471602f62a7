package models

import (
	"time"

	"github.com/google/uuid"
)

// Repository mirrors a GitHub repository for one user. GitHubID is the
// natural uniqueness key for upserts; AnalyzedAt is the incremental-sync
// watermark: a repository analyzed within the configured TTL is considered
// fresh and skips recomputation.
type Repository struct {
	ID            uuid.UUID        `db:"id"             json:"id"`
	UserID        uuid.UUID        `db:"user_id"        json:"user_id"`
	GitHubID      int64            `db:"github_id"      json:"github_id"`
	Name          string           `db:"name"           json:"name"`
	FullName      string           `db:"full_name"      json:"full_name"`
	Description   *string          `db:"description"    json:"description,omitempty"`
	AIDescription *string          `db:"ai_description" json:"ai_description,omitempty"`
	URL           string           `db:"url"            json:"url"`
	Homepage      *string          `db:"homepage"       json:"homepage,omitempty"`
	Language      *string          `db:"language"       json:"language,omitempty"`
	Languages     map[string]int64 `db:"languages"      json:"languages"`
	Topics        []string         `db:"topics"         json:"topics"`
	Stars         int              `db:"stars"          json:"stars"`
	Forks         int              `db:"forks"          json:"forks"`
	IsFork        bool             `db:"is_fork"        json:"is_fork"`
	IsPrivate     bool             `db:"is_private"     json:"is_private"`
	PushedAt      *time.Time       `db:"pushed_at"      json:"pushed_at,omitempty"`
	AnalyzedAt    *time.Time       `db:"analyzed_at"    json:"analyzed_at,omitempty"`
	CreatedAt     time.Time        `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at"     json:"updated_at"`
}

// OwnerAndName splits FullName ("owner/repo") into its two parts.
// Returns false if FullName is not in that shape.
func (r *Repository) OwnerAndName() (string, string, bool) {
	for i := 0; i < len(r.FullName); i++ {
		if r.FullName[i] == '/' {
			owner, name := r.FullName[:i], r.FullName[i+1:]
			if owner == "" || name == "" {
				return "", "", false
			}
			return owner, name, true
		}
	}
	return "", "", false
}
