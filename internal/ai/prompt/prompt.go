// Package prompt builds the chat prompts shared by the OpenAI-compatible
// providers.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devforge-dev/devforge/pkg/models"
)

const DescribeSystem = "You write concise, confident portfolio copy for software engineers. " +
	"Respond with a single paragraph of two to three sentences, third person, no markdown."

// DescribeRepository renders the user prompt for a repository description.
func DescribeRepository(facts models.RepositoryFacts) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Describe the project %q for a developer portfolio.\n", facts.FullName)
	if facts.Description != nil && *facts.Description != "" {
		fmt.Fprintf(&b, "Existing short description: %s\n", *facts.Description)
	}
	if facts.PrimaryLanguage != nil && *facts.PrimaryLanguage != "" {
		fmt.Fprintf(&b, "Primary language: %s\n", *facts.PrimaryLanguage)
	}
	if langs := topLanguages(facts.Languages, 5); len(langs) > 0 {
		fmt.Fprintf(&b, "Languages: %s\n", strings.Join(langs, ", "))
	}
	if len(facts.Topics) > 0 {
		fmt.Fprintf(&b, "Topics: %s\n", strings.Join(facts.Topics, ", "))
	}
	fmt.Fprintf(&b, "Stars: %d, analyzed commits: %d\n", facts.Stars, facts.CommitCount)

	return b.String()
}

func topLanguages(languages map[string]int64, n int) []string {
	names := make([]string, 0, len(languages))
	for name := range languages {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if languages[names[i]] != languages[names[j]] {
			return languages[names[i]] > languages[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}
