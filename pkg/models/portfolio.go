package models

import (
	"time"

	"github.com/google/uuid"
)

// Portfolio is a user's published site. Subdomain is unique across the
// system and doubles as the deploy target directory name.
type Portfolio struct {
	ID              uuid.UUID      `db:"id"                json:"id"`
	UserID          uuid.UUID      `db:"user_id"           json:"user_id"`
	Subdomain       string         `db:"subdomain"         json:"subdomain"`
	CustomDomain    *string        `db:"custom_domain"     json:"custom_domain,omitempty"`
	TemplateID      string         `db:"template_id"       json:"template_id"`
	ThemeConfig     map[string]any `db:"theme_config"      json:"theme_config"`
	IsPublished     bool           `db:"is_published"      json:"is_published"`
	LastGeneratedAt *time.Time     `db:"last_generated_at" json:"last_generated_at,omitempty"`
	ViewCount       int            `db:"view_count"        json:"view_count"`
	GeneratedHTML   *string        `db:"generated_html"    json:"-"`
	CreatedAt       time.Time      `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"        json:"updated_at"`
}
