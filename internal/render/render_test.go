package render_test

import (
	"testing"
	"time"

	"github.com/devforge-dev/devforge/internal/render"
	"github.com/devforge-dev/devforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() render.PageData {
	name := "The Octocat"
	bio := "I build things."
	aiDesc := "A polished greeting toolkit."
	ghDesc := "just says hello"
	lang := "Go"

	return render.PageData{
		User: &models.User{GitHubUsername: "octocat"},
		Profile: &models.GitHubProfile{
			Name:        &name,
			Bio:         &bio,
			Followers:   100,
			PublicRepos: 8,
		},
		Portfolio: &models.Portfolio{
			Subdomain:   "octocat",
			ThemeConfig: map[string]any{"accent": "#0f766e"},
		},
		Repositories: []*models.Repository{
			{Name: "hello", URL: "https://github.com/octocat/hello", AIDescription: &aiDesc, Language: &lang, Stars: 42},
			{Name: "tools", URL: "https://github.com/octocat/tools", Description: &ghDesc, Stars: 3},
		},
		Skills: []*models.Skill{
			{Name: "Go", Proficiency: 5},
			{Name: "Python", Proficiency: 3},
		},
		GeneratedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPortfolio_RendersSnapshot(t *testing.T) {
	r, err := render.New()
	require.NoError(t, err)

	html, err := r.Portfolio(sample())
	require.NoError(t, err)

	assert.Contains(t, html, "<title>The Octocat · Developer Portfolio</title>")
	assert.Contains(t, html, "--accent: #0f766e")
	assert.Contains(t, html, "I build things.")
	assert.Contains(t, html, "A polished greeting toolkit.")
	// Repos without AI copy fall back to the GitHub description.
	assert.Contains(t, html, "just says hello")
	assert.Contains(t, html, ">Go</li>")
}

func TestPortfolio_DefaultsWithoutTheme(t *testing.T) {
	r, err := render.New()
	require.NoError(t, err)

	data := sample()
	data.Portfolio.ThemeConfig = nil
	data.Profile.Name = nil

	html, err := r.Portfolio(data)
	require.NoError(t, err)

	assert.Contains(t, html, "--accent: #6366f1")
	// Falls back to the GitHub username for the title.
	assert.Contains(t, html, "<title>octocat · Developer Portfolio</title>")
}

func TestPortfolio_EscapesUntrustedContent(t *testing.T) {
	r, err := render.New()
	require.NoError(t, err)

	hostile := `<script>alert("x")</script>`
	data := sample()
	data.Profile.Bio = &hostile

	html, err := r.Portfolio(data)
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>alert")
}

func TestPortfolio_CapsSkillList(t *testing.T) {
	r, err := render.New()
	require.NoError(t, err)

	data := sample()
	data.Skills = nil
	for i := 0; i < 40; i++ {
		data.Skills = append(data.Skills, &models.Skill{Name: string(rune('A' + i%26))})
	}

	html, err := r.Portfolio(data)
	require.NoError(t, err)
	// Only the first 30 render; count the list items.
	assert.Equal(t, 30, countOccurrences(html, "<li>"))
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}
