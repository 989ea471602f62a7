// Package render turns a portfolio snapshot into a static HTML page.
package render

import (
	"fmt"
	"html/template"
	"regexp"
	"strings"
	"time"

	"github.com/devforge-dev/devforge/pkg/models"
)

const maxSkills = 30

// PageData is the snapshot a portfolio page is rendered from.
type PageData struct {
	User         *models.User
	Profile      *models.GitHubProfile
	Portfolio    *models.Portfolio
	Repositories []*models.Repository
	Skills       []*models.Skill
	GeneratedAt  time.Time
}

type Renderer struct {
	tmpl *template.Template
}

func New() (*Renderer, error) {
	tmpl, err := template.New("portfolio").Funcs(template.FuncMap{
		"card": cardDescription,
	}).Parse(portfolioTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse portfolio template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Portfolio renders the page and returns the HTML.
func (r *Renderer) Portfolio(data PageData) (string, error) {
	if len(data.Skills) > maxSkills {
		data.Skills = data.Skills[:maxSkills]
	}

	view := pageView{
		PageData: data,
		Accent:   safeCSS(themeString(data.Portfolio, "accent", ""), "#6366f1"),
		Font:     safeCSS(themeString(data.Portfolio, "font", ""), "Inter, system-ui, sans-serif"),
		Title:    pageTitle(data),
	}

	var b strings.Builder
	if err := r.tmpl.Execute(&b, view); err != nil {
		return "", fmt.Errorf("render portfolio: %w", err)
	}
	return b.String(), nil
}

type pageView struct {
	PageData
	Accent template.CSS
	Font   template.CSS
	Title  string
}

var cssValue = regexp.MustCompile(`^[a-zA-Z0-9#(),.\s-]+$`)

// safeCSS admits simple theme values (colors, font stacks) and falls back
// for anything that could escape a CSS context.
func safeCSS(v, fallback string) template.CSS {
	if v == "" || !cssValue.MatchString(v) {
		return template.CSS(fallback)
	}
	return template.CSS(v)
}

func pageTitle(data PageData) string {
	if data.Profile != nil && data.Profile.Name != nil && *data.Profile.Name != "" {
		return *data.Profile.Name
	}
	return data.User.GitHubUsername
}

// cardDescription prefers the AI copy, falls back to the GitHub
// description, and stays empty otherwise.
func cardDescription(repo *models.Repository) string {
	if repo.AIDescription != nil && *repo.AIDescription != "" {
		return *repo.AIDescription
	}
	if repo.Description != nil {
		return *repo.Description
	}
	return ""
}

func themeString(p *models.Portfolio, key, fallback string) string {
	if p == nil || p.ThemeConfig == nil {
		return fallback
	}
	if v, ok := p.ThemeConfig[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
