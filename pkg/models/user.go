// Package models contains shared data models used across the DevForge codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a GitHub-authenticated account. AccessToken holds the sealed
// (encrypted) GitHub OAuth token, never the plaintext.
type User struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	GitHubID       int64     `db:"github_id"       json:"github_id"`
	GitHubUsername string    `db:"github_username" json:"github_username"`
	Email          *string   `db:"email"           json:"email,omitempty"`
	AvatarURL      *string   `db:"avatar_url"      json:"avatar_url,omitempty"`
	AccessToken    *string   `db:"access_token"    json:"-"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"      json:"updated_at"`
}
