package models

import "context"

// RepositoryFacts is the digest of a repository handed to an AI provider
// when asking for a portfolio description.
type RepositoryFacts struct {
	Name            string
	FullName        string
	Description     *string
	PrimaryLanguage *string
	Languages       map[string]int64
	Topics          []string
	Stars           int
	CommitCount     int
}

// AIProvider generates natural-language portfolio copy. Implementations
// live in internal/ai and are selected by config at startup.
type AIProvider interface {
	Name() string

	// DescribeRepository writes a short third-person description of the
	// repository suitable for a portfolio card.
	DescribeRepository(ctx context.Context, facts RepositoryFacts) (string, error)
}
