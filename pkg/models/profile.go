package models

import (
	"time"

	"github.com/google/uuid"
)

// GitHubProfile is the 1:1 synced copy of a user's public GitHub profile.
// SyncedAt records the last successful profile sync.
type GitHubProfile struct {
	ID              uuid.UUID  `db:"id"               json:"id"`
	UserID          uuid.UUID  `db:"user_id"          json:"user_id"`
	Name            *string    `db:"name"             json:"name,omitempty"`
	Bio             *string    `db:"bio"              json:"bio,omitempty"`
	Location        *string    `db:"location"         json:"location,omitempty"`
	Company         *string    `db:"company"          json:"company,omitempty"`
	BlogURL         *string    `db:"blog_url"         json:"blog_url,omitempty"`
	TwitterUsername *string    `db:"twitter_username" json:"twitter_username,omitempty"`
	PublicRepos     int        `db:"public_repos"     json:"public_repos"`
	Followers       int        `db:"followers"        json:"followers"`
	Following       int        `db:"following"        json:"following"`
	SyncedAt        *time.Time `db:"synced_at"        json:"synced_at,omitempty"`
}
