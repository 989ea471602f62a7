package syncer

import (
	"sort"
	"time"

	"github.com/devforge-dev/devforge/pkg/models"
	"github.com/google/uuid"
)

const skillCategoryLanguage = "language"

// buildSkills aggregates per-language usage across repositories. Usage is
// the byte count from the languages map; a repository with only a primary
// language string contributes a weight of 1 for it.
func buildSkills(userID uuid.UUID, repos []*models.Repository) []*models.Skill {
	usage := make(map[string]int64)
	lastUsed := make(map[string]time.Time)

	for _, repo := range repos {
		touch := func(lang string) {
			if repo.PushedAt != nil && repo.PushedAt.After(lastUsed[lang]) {
				lastUsed[lang] = *repo.PushedAt
			}
		}

		if len(repo.Languages) > 0 {
			for lang, bytes := range repo.Languages {
				usage[lang] += bytes
				touch(lang)
			}
			continue
		}
		if repo.Language != nil && *repo.Language != "" {
			usage[*repo.Language]++
			touch(*repo.Language)
		}
	}

	skills := make([]*models.Skill, 0, len(usage))
	for lang, count := range usage {
		skill := &models.Skill{
			UserID:      userID,
			Name:        lang,
			Category:    skillCategoryLanguage,
			Proficiency: proficiencyTier(count),
			UsageCount:  count,
		}
		if at, ok := lastUsed[lang]; ok {
			t := at
			skill.LastUsedAt = &t
		}
		skills = append(skills, skill)
	}

	sort.Slice(skills, func(i, j int) bool {
		if skills[i].UsageCount != skills[j].UsageCount {
			return skills[i].UsageCount > skills[j].UsageCount
		}
		return skills[i].Name < skills[j].Name
	})
	return skills
}

// proficiencyTier maps raw usage onto the 5-tier scale. Tier 1 is reserved
// for languages we have no usage signal for at all.
func proficiencyTier(usage int64) int {
	switch {
	case usage > 10000:
		return 5
	case usage > 3000:
		return 4
	case usage > 1000:
		return 3
	default:
		return 2
	}
}
