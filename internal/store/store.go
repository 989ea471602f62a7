package store

import (
	"context"
	"errors"
	"time"

	"github.com/devforge-dev/devforge/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) (*models.User, error)

	UpsertProfile(ctx context.Context, profile *models.GitHubProfile) (*models.GitHubProfile, error)
	GetProfileByUser(ctx context.Context, userID uuid.UUID) (*models.GitHubProfile, error)

	GetRepository(ctx context.Context, id uuid.UUID) (*models.Repository, error)
	UpsertRepository(ctx context.Context, repo *models.Repository) (*models.Repository, error)
	ListRepositoriesByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Repository, error)
	MarkRepositoryAnalyzed(ctx context.Context, id uuid.UUID, at time.Time) error
	SetRepositoryDescription(ctx context.Context, id uuid.UUID, description string) error

	// CreateCommit inserts a commit keyed by its SHA. Inserting an existing
	// SHA is a no-op and reports inserted=false, never an error.
	CreateCommit(ctx context.Context, commit *models.Commit) (inserted bool, err error)
	ListCommitSHAs(ctx context.Context, repositoryID uuid.UUID, limit int) ([]string, error)
	FilterExistingSHAs(ctx context.Context, shas []string) (map[string]bool, error)
	CountCommits(ctx context.Context, repositoryID uuid.UUID) (int, error)

	// ReplaceSkills atomically swaps the user's entire skill set.
	ReplaceSkills(ctx context.Context, userID uuid.UUID, skills []*models.Skill) error
	ListSkillsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Skill, error)

	GetPortfolio(ctx context.Context, id uuid.UUID) (*models.Portfolio, error)
	GetPortfolioBySubdomain(ctx context.Context, subdomain string) (*models.Portfolio, error)
	CreatePortfolio(ctx context.Context, p *models.Portfolio) error
	SetPortfolioGenerated(ctx context.Context, id uuid.UUID, html string, at time.Time) error
	IncrementPortfolioViews(ctx context.Context, id uuid.UUID) error

	CreateJob(ctx context.Context, job *models.GenerationJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error)
	UpdateJob(ctx context.Context, id uuid.UUID, opts ...JobUpdateOption) error
}

type jobUpdateParams struct {
	Status       *string
	Progress     *int
	CurrentStep  *string
	ErrorMessage *string
	Completed    bool
}

type JobUpdateOption func(*jobUpdateParams)

func WithStatus(status string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Status = &status
	}
}

func WithProgress(progress int) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Progress = &progress
	}
}

func WithStep(step string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.CurrentStep = &step
	}
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithCompleted() JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Completed = true
	}
}
