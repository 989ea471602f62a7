// Package ai selects and drives the portfolio copywriting provider.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devforge-dev/devforge/internal/queue"
	"github.com/devforge-dev/devforge/internal/store"
	"github.com/devforge-dev/devforge/internal/tasks"
	"github.com/devforge-dev/devforge/pkg/models"
)

// DescriptionService generates and persists AI descriptions for
// repositories. A repository that already has one is never re-described.
type DescriptionService struct {
	provider models.AIProvider
	store    store.Store
	timeout  time.Duration
}

func NewDescriptionService(provider models.AIProvider, st store.Store, timeout time.Duration) *DescriptionService {
	return &DescriptionService{provider: provider, store: st, timeout: timeout}
}

// EnsureDescription returns the repository's portfolio description,
// generating and persisting one when absent.
func (s *DescriptionService) EnsureDescription(ctx context.Context, repo *models.Repository, commitCount int) (string, error) {
	if repo.AIDescription != nil && *repo.AIDescription != "" {
		return *repo.AIDescription, nil
	}

	facts := models.RepositoryFacts{
		Name:            repo.Name,
		FullName:        repo.FullName,
		Description:     repo.Description,
		PrimaryLanguage: repo.Language,
		Languages:       repo.Languages,
		Topics:          repo.Topics,
		Stars:           repo.Stars,
		CommitCount:     commitCount,
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	description, err := s.provider.DescribeRepository(callCtx, facts)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if description == "" {
		return "", ErrInvalidResponse
	}

	if err := s.store.SetRepositoryDescription(ctx, repo.ID, description); err != nil {
		return "", fmt.Errorf("persist description: %w", err)
	}
	repo.AIDescription = &description
	return description, nil
}

// Registry is where task handlers are mounted.
type Registry interface {
	Register(taskType string, fn queue.HandlerFunc)
}

// RegisterHandlers mounts the description-generation task handler.
func (s *DescriptionService) RegisterHandlers(reg Registry) {
	reg.Register(tasks.TypeDescribeRepository, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p tasks.DescribeRepositoryPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}

		repo, err := s.store.GetRepository(ctx, p.RepositoryID)
		if err != nil {
			return nil, err
		}
		count, err := s.store.CountCommits(ctx, repo.ID)
		if err != nil {
			return nil, err
		}
		return s.EnsureDescription(ctx, repo, count)
	})
}
