// Package syncer pulls a user's GitHub profile, repositories, and derived
// skills into the local store. The sync is a linear chain of three steps,
// each independently retried and each idempotent, so a crashed or retried
// sync never corrupts earlier steps' work.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/devforge-dev/devforge/internal/github"
	"github.com/devforge-dev/devforge/internal/store"
	"github.com/devforge-dev/devforge/internal/workflow"
	"github.com/devforge-dev/devforge/pkg/models"
	"github.com/google/uuid"
)

type Syncer struct {
	store      store.Store
	client     github.Client
	maxRetries uint64
}

func New(st store.Store, client github.Client, maxRetries int) *Syncer {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Syncer{store: st, client: client, maxRetries: uint64(maxRetries)}
}

// Run executes the full chain for one user: profile, then repositories,
// then skills. A step that exhausts its retries aborts the chain; effects
// of completed steps stay committed.
func (s *Syncer) Run(ctx context.Context, userID uuid.UUID) error {
	step := func(name string, fn func(context.Context, uuid.UUID) error) workflow.Step {
		return workflow.Task{
			Label:   name,
			Retries: s.maxRetries,
			Run: func(ctx context.Context) error {
				if err := fn(ctx, userID); err != nil {
					return err
				}
				slog.Debug("sync step completed", "step", name, "user_id", userID)
				return nil
			},
		}
	}

	chain := workflow.Sequence{Label: "sync", Steps: []workflow.Step{
		step("sync-profile", s.SyncProfile),
		step("sync-repositories", s.SyncRepositories),
		step("extract-skills", s.ExtractSkills),
	}}
	return chain.Execute(ctx)
}

// SyncProfile fetches the authenticated account and upserts the user row
// and its 1:1 profile record.
func (s *Syncer) SyncProfile(ctx context.Context, userID uuid.UUID) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	account, err := s.client.GetAuthenticatedUser(ctx)
	if err != nil {
		return err
	}

	email := account.Email
	if email == nil {
		// The public profile often hides the email; the emails endpoint
		// reports the verified ones.
		if emails, err := s.client.ListUserEmails(ctx); err == nil && len(emails) > 0 {
			email = &emails[0]
		}
	}

	if _, err := s.store.UpsertUser(ctx, &models.User{
		GitHubID:       account.GitHubID,
		GitHubUsername: account.Login,
		Email:          email,
		AvatarURL:      account.AvatarURL,
	}); err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.store.UpsertProfile(ctx, &models.GitHubProfile{
		UserID:          user.ID,
		Name:            account.Name,
		Bio:             account.Bio,
		Location:        account.Location,
		Company:         account.Company,
		BlogURL:         account.BlogURL,
		TwitterUsername: account.TwitterUsername,
		PublicRepos:     account.PublicRepos,
		Followers:       account.Followers,
		Following:       account.Following,
		SyncedAt:        &now,
	})
	return err
}

// SyncRepositories pages through every repository the user owns and upserts
// each by its GitHub id. Language byte counts are fetched per repository;
// a failed language lookup degrades to the primary-language string only.
func (s *Syncer) SyncRepositories(ctx context.Context, userID uuid.UUID) error {
	repos, err := s.client.ListRepositories(ctx)
	if err != nil {
		return err
	}

	for _, repo := range repos {
		repo.UserID = userID

		if owner, name, ok := repo.OwnerAndName(); ok && !repo.IsFork {
			languages, err := s.client.ListLanguages(ctx, owner, name)
			if err != nil {
				slog.Warn("language lookup failed",
					"repo", repo.FullName, "error", err)
			} else {
				repo.Languages = languages
			}
		}

		if _, err := s.store.UpsertRepository(ctx, repo); err != nil {
			return fmt.Errorf("upsert %s: %w", repo.FullName, err)
		}
	}

	slog.Info("repositories synced", "user_id", userID, "count", len(repos))
	return nil
}

// ExtractSkills recomputes the user's language skills from the stored
// repositories and atomically replaces the previous set.
func (s *Syncer) ExtractSkills(ctx context.Context, userID uuid.UUID) error {
	repos, err := s.store.ListRepositoriesByUser(ctx, userID, 0)
	if err != nil {
		return err
	}

	skills := buildSkills(userID, repos)
	if err := s.store.ReplaceSkills(ctx, userID, skills); err != nil {
		return err
	}

	slog.Info("skills extracted", "user_id", userID, "count", len(skills))
	return nil
}
