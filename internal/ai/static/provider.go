// Package static is the zero-dependency fallback provider. It composes a
// deterministic description from repository facts, so the system works
// without any AI credentials configured.
package static

import (
	"context"
	"fmt"
	"strings"

	"github.com/devforge-dev/devforge/pkg/models"
)

type Provider struct{}

func NewProvider() *Provider { return &Provider{} }

func (p *Provider) Name() string { return "static" }

func (p *Provider) DescribeRepository(_ context.Context, facts models.RepositoryFacts) (string, error) {
	var parts []string

	if facts.Description != nil && *facts.Description != "" {
		parts = append(parts, strings.TrimRight(*facts.Description, ".")+".")
	} else {
		parts = append(parts, fmt.Sprintf("%s is an open-source project.", facts.Name))
	}

	if facts.PrimaryLanguage != nil && *facts.PrimaryLanguage != "" {
		parts = append(parts, fmt.Sprintf("Built primarily in %s.", *facts.PrimaryLanguage))
	}

	if facts.CommitCount > 0 {
		parts = append(parts, fmt.Sprintf("Actively developed with %d analyzed commits.", facts.CommitCount))
	}

	return strings.Join(parts, " "), nil
}

var _ models.AIProvider = (*Provider)(nil)
