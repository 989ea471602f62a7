// Package github wraps the GitHub REST API behind a small interface. Every
// outbound call passes through the shared rate limiter first, so the
// application stays inside GitHub's per-minute and hourly budgets no matter
// how many workers are fetching concurrently.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/devforge-dev/devforge/internal/ratelimit"
	"github.com/devforge-dev/devforge/pkg/models"
	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
)

const listPageSize = 100

// Account is the authenticated user's profile as GitHub reports it.
type Account struct {
	GitHubID        int64
	Login           string
	Name            *string
	Email           *string
	Bio             *string
	Location        *string
	Company         *string
	BlogURL         *string
	TwitterUsername *string
	AvatarURL       *string
	PublicRepos     int
	Followers       int
	Following       int
}

// CommitRef is a lightweight commit from the list endpoint; it carries no
// diff stats. Use GetCommit for the full record.
type CommitRef struct {
	SHA         string
	Message     string
	AuthorName  *string
	AuthorEmail *string
	CommittedAt time.Time
}

// Client is the GitHub API surface the rest of the application depends on.
type Client interface {
	GetAuthenticatedUser(ctx context.Context) (*Account, error)

	// ListUserEmails returns the account's verified emails, primary first.
	ListUserEmails(ctx context.Context) ([]string, error)

	// ListRepositories returns every repository the user owns, walking all
	// pages. Returned repositories have no UserID set.
	ListRepositories(ctx context.Context) ([]*models.Repository, error)

	ListLanguages(ctx context.Context, owner, repo string) (map[string]int64, error)

	// ListCommits fetches one page of the repository's commit list.
	ListCommits(ctx context.Context, owner, repo string, page, perPage int) ([]CommitRef, error)

	// GetCommit fetches one commit with its diff stats.
	GetCommit(ctx context.Context, owner, repo, sha string) (*models.Commit, error)
}

// APIClient is the production Client backed by go-github.
type APIClient struct {
	gh          *github.Client
	limiter     *ratelimit.Limiter
	hourlyQuota float64
	perMinute   int
	maxRetries  uint64
}

// NewAPIClient builds a client authenticated with the given plaintext OAuth
// token. hourlyQuota and perMinute bound the shared call budget enforced via
// the limiter; maxRetries bounds retries of transient failures per call.
func NewAPIClient(token string, limiter *ratelimit.Limiter, hourlyQuota, perMinute, maxRetries int) *APIClient {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)

	if maxRetries < 0 {
		maxRetries = 0
	}
	return &APIClient{
		gh:          github.NewClient(tc),
		limiter:     limiter,
		hourlyQuota: float64(hourlyQuota),
		perMinute:   perMinute,
		maxRetries:  uint64(maxRetries),
	}
}

// throttle consumes budget from both limiter tiers, failing fast when either
// is exhausted. The error unwraps to ratelimit.ErrRateLimited.
func (c *APIClient) throttle(ctx context.Context) error {
	if err := c.limiter.CheckWindow(ctx, "github:minute", c.perMinute, time.Minute); err != nil {
		return err
	}
	return c.limiter.ConsumeToken(ctx, "github:hour", c.hourlyQuota, c.hourlyQuota/3600)
}

// call runs one API operation with throttling and retries. Every attempt,
// including retries, consumes budget before reaching the network. Server
// errors and secondary rate limits are retried with exponential backoff;
// other client errors and an exhausted budget are permanent.
func call[T any](ctx context.Context, c *APIClient, op func() (T, *github.Response, error)) (T, error) {
	var result T

	attempt := func() error {
		if err := c.throttle(ctx); err != nil {
			return backoff.Permanent(err)
		}
		v, resp, err := op()
		if err != nil {
			return classify(resp, err)
		}
		result = v
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return result, err
	}
	return result, nil
}

// classify decides whether an API error is worth retrying.
func classify(resp *github.Response, err error) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return err
	}
	if resp != nil {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return err
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(err)
		}
	}
	// Transport-level failure, no response at all.
	return err
}

func (c *APIClient) GetAuthenticatedUser(ctx context.Context) (*Account, error) {
	user, err := call(ctx, c, func() (*github.User, *github.Response, error) {
		return c.gh.Users.Get(ctx, "")
	})
	if err != nil {
		return nil, fmt.Errorf("get authenticated user: %w", err)
	}

	return &Account{
		GitHubID:        user.GetID(),
		Login:           user.GetLogin(),
		Name:            user.Name,
		Email:           user.Email,
		Bio:             user.Bio,
		Location:        user.Location,
		Company:         user.Company,
		BlogURL:         user.Blog,
		TwitterUsername: user.TwitterUsername,
		AvatarURL:       user.AvatarURL,
		PublicRepos:     user.GetPublicRepos(),
		Followers:       user.GetFollowers(),
		Following:       user.GetFollowing(),
	}, nil
}

func (c *APIClient) ListUserEmails(ctx context.Context) ([]string, error) {
	entries, err := call(ctx, c, func() ([]*github.UserEmail, *github.Response, error) {
		return c.gh.Users.ListEmails(ctx, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("list user emails: %w", err)
	}

	var emails []string
	for _, e := range entries {
		if !e.GetVerified() {
			continue
		}
		if e.GetPrimary() {
			emails = append([]string{e.GetEmail()}, emails...)
		} else {
			emails = append(emails, e.GetEmail())
		}
	}
	return emails, nil
}

func (c *APIClient) ListRepositories(ctx context.Context) ([]*models.Repository, error) {
	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Type:        "owner",
		Sort:        "pushed",
		ListOptions: github.ListOptions{Page: 1, PerPage: listPageSize},
	}

	var all []*models.Repository
	for {
		page, err := call(ctx, c, func() ([]*github.Repository, *github.Response, error) {
			return c.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
		})
		if err != nil {
			return nil, fmt.Errorf("list repositories page %d: %w", opts.Page, err)
		}

		for _, r := range page {
			all = append(all, toRepository(r))
		}

		// A short page means we have walked the full list.
		if len(page) < listPageSize {
			return all, nil
		}
		opts.Page++
	}
}

func (c *APIClient) ListLanguages(ctx context.Context, owner, repo string) (map[string]int64, error) {
	raw, err := call(ctx, c, func() (map[string]int, *github.Response, error) {
		return c.gh.Repositories.ListLanguages(ctx, owner, repo)
	})
	if err != nil {
		return nil, fmt.Errorf("list languages for %s/%s: %w", owner, repo, err)
	}

	languages := make(map[string]int64, len(raw))
	for lang, bytes := range raw {
		languages[lang] = int64(bytes)
	}
	return languages, nil
}

func (c *APIClient) ListCommits(ctx context.Context, owner, repo string, page, perPage int) ([]CommitRef, error) {
	opts := &github.CommitsListOptions{
		ListOptions: github.ListOptions{Page: page, PerPage: perPage},
	}

	commits, err := call(ctx, c, func() ([]*github.RepositoryCommit, *github.Response, error) {
		return c.gh.Repositories.ListCommits(ctx, owner, repo, opts)
	})
	if err != nil {
		return nil, fmt.Errorf("list commits for %s/%s page %d: %w", owner, repo, page, err)
	}

	refs := make([]CommitRef, 0, len(commits))
	for _, rc := range commits {
		refs = append(refs, CommitRef{
			SHA:         rc.GetSHA(),
			Message:     rc.GetCommit().GetMessage(),
			AuthorName:  stringPtr(rc.GetCommit().GetAuthor().GetName()),
			AuthorEmail: stringPtr(rc.GetCommit().GetAuthor().GetEmail()),
			CommittedAt: rc.GetCommit().GetAuthor().GetDate().Time,
		})
	}
	return refs, nil
}

func (c *APIClient) GetCommit(ctx context.Context, owner, repo, sha string) (*models.Commit, error) {
	rc, err := call(ctx, c, func() (*github.RepositoryCommit, *github.Response, error) {
		return c.gh.Repositories.GetCommit(ctx, owner, repo, sha, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("get commit %s: %w", sha, err)
	}

	return &models.Commit{
		SHA:          rc.GetSHA(),
		Message:      rc.GetCommit().GetMessage(),
		AuthorName:   stringPtr(rc.GetCommit().GetAuthor().GetName()),
		AuthorEmail:  stringPtr(rc.GetCommit().GetAuthor().GetEmail()),
		CommittedAt:  rc.GetCommit().GetAuthor().GetDate().Time,
		Additions:    rc.GetStats().GetAdditions(),
		Deletions:    rc.GetStats().GetDeletions(),
		FilesChanged: len(rc.Files),
	}, nil
}

func toRepository(r *github.Repository) *models.Repository {
	repo := &models.Repository{
		GitHubID:    r.GetID(),
		Name:        r.GetName(),
		FullName:    r.GetFullName(),
		Description: r.Description,
		URL:         r.GetHTMLURL(),
		Homepage:    r.Homepage,
		Language:    r.Language,
		Topics:      r.Topics,
		Stars:       r.GetStargazersCount(),
		Forks:       r.GetForksCount(),
		IsFork:      r.GetFork(),
		IsPrivate:   r.GetPrivate(),
	}
	if pushed := r.PushedAt; pushed != nil {
		t := pushed.Time
		repo.PushedAt = &t
	}
	return repo
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ Client = (*APIClient)(nil)
