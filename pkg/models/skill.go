package models

import (
	"time"

	"github.com/google/uuid"
)

// Skill is a derived per-user aggregate. The whole set is recomputed and
// replaced atomically on every extraction run, never patched in place.
type Skill struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	UserID      uuid.UUID  `db:"user_id"      json:"user_id"`
	Name        string     `db:"name"         json:"name"`
	Category    string     `db:"category"     json:"category"`
	Proficiency int        `db:"proficiency"  json:"proficiency"`
	UsageCount  int64      `db:"usage_count"  json:"usage_count"`
	LastUsedAt  *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
}
