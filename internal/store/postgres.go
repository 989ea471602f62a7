package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/devforge-dev/devforge/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Users ---

const userColumns = `id, github_id, github_username, email, avatar_url, access_token, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.GitHubID, &u.GitHubUsername, &u.Email, &u.AvatarURL,
		&u.AccessToken, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) GetUserByGitHubID(ctx context.Context, githubID int64) (*models.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = $1`, githubID))
}

func (s *PostgresStore) UpsertUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return scanUser(s.pool.QueryRow(ctx,
		`INSERT INTO users (id, github_id, github_username, email, avatar_url, access_token, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 ON CONFLICT (github_id) DO UPDATE SET
		   github_username = EXCLUDED.github_username,
		   email = EXCLUDED.email,
		   avatar_url = EXCLUDED.avatar_url,
		   access_token = COALESCE(EXCLUDED.access_token, users.access_token),
		   updated_at = NOW()
		 RETURNING `+userColumns,
		user.ID, user.GitHubID, user.GitHubUsername, user.Email, user.AvatarURL, user.AccessToken))
}

// --- GitHub Profiles ---

const profileColumns = `id, user_id, name, bio, location, company, blog_url, twitter_username, public_repos, followers, following, synced_at`

func scanProfile(row pgx.Row) (*models.GitHubProfile, error) {
	var p models.GitHubProfile
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Bio, &p.Location, &p.Company,
		&p.BlogURL, &p.TwitterUsername, &p.PublicRepos, &p.Followers, &p.Following, &p.SyncedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, profile *models.GitHubProfile) (*models.GitHubProfile, error) {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	return scanProfile(s.pool.QueryRow(ctx,
		`INSERT INTO github_profiles (id, user_id, name, bio, location, company, blog_url, twitter_username, public_repos, followers, following, synced_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (user_id) DO UPDATE SET
		   name = EXCLUDED.name,
		   bio = EXCLUDED.bio,
		   location = EXCLUDED.location,
		   company = EXCLUDED.company,
		   blog_url = EXCLUDED.blog_url,
		   twitter_username = EXCLUDED.twitter_username,
		   public_repos = EXCLUDED.public_repos,
		   followers = EXCLUDED.followers,
		   following = EXCLUDED.following,
		   synced_at = EXCLUDED.synced_at
		 RETURNING `+profileColumns,
		profile.ID, profile.UserID, profile.Name, profile.Bio, profile.Location, profile.Company,
		profile.BlogURL, profile.TwitterUsername, profile.PublicRepos, profile.Followers,
		profile.Following, profile.SyncedAt))
}

func (s *PostgresStore) GetProfileByUser(ctx context.Context, userID uuid.UUID) (*models.GitHubProfile, error) {
	return scanProfile(s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM github_profiles WHERE user_id = $1`, userID))
}

// --- Repositories ---

const repoColumns = `id, user_id, github_id, name, full_name, description, ai_description, url, homepage, language, languages, topics, stars, forks, is_fork, is_private, pushed_at, analyzed_at, created_at, updated_at`

func scanRepository(row pgx.Row) (*models.Repository, error) {
	var r models.Repository
	err := row.Scan(&r.ID, &r.UserID, &r.GitHubID, &r.Name, &r.FullName, &r.Description,
		&r.AIDescription, &r.URL, &r.Homepage, &r.Language, &r.Languages, &r.Topics,
		&r.Stars, &r.Forks, &r.IsFork, &r.IsPrivate, &r.PushedAt, &r.AnalyzedAt,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan repository: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) GetRepository(ctx context.Context, id uuid.UUID) (*models.Repository, error) {
	return scanRepository(s.pool.QueryRow(ctx,
		`SELECT `+repoColumns+` FROM repositories WHERE id = $1`, id))
}

func (s *PostgresStore) UpsertRepository(ctx context.Context, repo *models.Repository) (*models.Repository, error) {
	if repo.ID == uuid.Nil {
		repo.ID = uuid.New()
	}
	if repo.Languages == nil {
		repo.Languages = map[string]int64{}
	}
	if repo.Topics == nil {
		repo.Topics = []string{}
	}
	return scanRepository(s.pool.QueryRow(ctx,
		`INSERT INTO repositories (id, user_id, github_id, name, full_name, description, url, homepage, language, languages, topics, stars, forks, is_fork, is_private, pushed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
		 ON CONFLICT (github_id) DO UPDATE SET
		   name = EXCLUDED.name,
		   full_name = EXCLUDED.full_name,
		   description = EXCLUDED.description,
		   url = EXCLUDED.url,
		   homepage = EXCLUDED.homepage,
		   language = EXCLUDED.language,
		   languages = EXCLUDED.languages,
		   topics = EXCLUDED.topics,
		   stars = EXCLUDED.stars,
		   forks = EXCLUDED.forks,
		   is_fork = EXCLUDED.is_fork,
		   is_private = EXCLUDED.is_private,
		   pushed_at = EXCLUDED.pushed_at,
		   updated_at = NOW()
		 RETURNING `+repoColumns,
		repo.ID, repo.UserID, repo.GitHubID, repo.Name, repo.FullName, repo.Description,
		repo.URL, repo.Homepage, repo.Language, repo.Languages, repo.Topics,
		repo.Stars, repo.Forks, repo.IsFork, repo.IsPrivate, repo.PushedAt))
}

func (s *PostgresStore) ListRepositoriesByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Repository, error) {
	// limit <= 0 means no cap.
	if limit <= 0 {
		limit = math.MaxInt32
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+repoColumns+` FROM repositories
		 WHERE user_id = $1 ORDER BY stars DESC, full_name ASC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var repos []*models.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

func (s *PostgresStore) MarkRepositoryAnalyzed(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE repositories SET analyzed_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark repository analyzed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetRepositoryDescription(ctx context.Context, id uuid.UUID, description string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE repositories SET ai_description = $2, updated_at = NOW() WHERE id = $1`, id, description)
	if err != nil {
		return fmt.Errorf("set repository description: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Commits ---

func (s *PostgresStore) CreateCommit(ctx context.Context, commit *models.Commit) (bool, error) {
	if commit.ID == uuid.Nil {
		commit.ID = uuid.New()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO commits (id, repository_id, sha, message, author_name, author_email, committed_at, additions, deletions, files_changed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (sha) DO NOTHING`,
		commit.ID, commit.RepositoryID, commit.SHA, commit.Message, commit.AuthorName,
		commit.AuthorEmail, commit.CommittedAt, commit.Additions, commit.Deletions, commit.FilesChanged)
	if err != nil {
		return false, fmt.Errorf("create commit: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListCommitSHAs(ctx context.Context, repositoryID uuid.UUID, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT sha FROM commits WHERE repository_id = $1 ORDER BY committed_at DESC LIMIT $2`,
		repositoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("list commit shas: %w", err)
	}
	defer rows.Close()

	var shas []string
	for rows.Next() {
		var sha string
		if err := rows.Scan(&sha); err != nil {
			return nil, fmt.Errorf("scan commit sha: %w", err)
		}
		shas = append(shas, sha)
	}
	return shas, rows.Err()
}

func (s *PostgresStore) FilterExistingSHAs(ctx context.Context, shas []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(shas) == 0 {
		return existing, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT sha FROM commits WHERE sha = ANY($1)`, shas)
	if err != nil {
		return nil, fmt.Errorf("filter existing shas: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sha string
		if err := rows.Scan(&sha); err != nil {
			return nil, fmt.Errorf("scan sha: %w", err)
		}
		existing[sha] = true
	}
	return existing, rows.Err()
}

func (s *PostgresStore) CountCommits(ctx context.Context, repositoryID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM commits WHERE repository_id = $1`, repositoryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count commits: %w", err)
	}
	return count, nil
}

// --- Skills ---

func (s *PostgresStore) ReplaceSkills(ctx context.Context, userID uuid.UUID, skills []*models.Skill) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace skills: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM skills WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete skills: %w", err)
	}

	batch := &pgx.Batch{}
	for _, skill := range skills {
		id := skill.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch.Queue(
			`INSERT INTO skills (id, user_id, name, category, proficiency, usage_count, last_used_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, userID, skill.Name, skill.Category, skill.Proficiency, skill.UsageCount, skill.LastUsedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert skills: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ListSkillsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Skill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, category, proficiency, usage_count, last_used_at
		 FROM skills WHERE user_id = $1 ORDER BY proficiency DESC, usage_count DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var skills []*models.Skill
	for rows.Next() {
		var sk models.Skill
		if err := rows.Scan(&sk.ID, &sk.UserID, &sk.Name, &sk.Category,
			&sk.Proficiency, &sk.UsageCount, &sk.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		skills = append(skills, &sk)
	}
	return skills, rows.Err()
}

// --- Portfolios ---

const portfolioColumns = `id, user_id, subdomain, custom_domain, template_id, theme_config, is_published, last_generated_at, view_count, generated_html, created_at, updated_at`

func scanPortfolio(row pgx.Row) (*models.Portfolio, error) {
	var p models.Portfolio
	err := row.Scan(&p.ID, &p.UserID, &p.Subdomain, &p.CustomDomain, &p.TemplateID,
		&p.ThemeConfig, &p.IsPublished, &p.LastGeneratedAt, &p.ViewCount,
		&p.GeneratedHTML, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan portfolio: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) GetPortfolio(ctx context.Context, id uuid.UUID) (*models.Portfolio, error) {
	return scanPortfolio(s.pool.QueryRow(ctx,
		`SELECT `+portfolioColumns+` FROM portfolios WHERE id = $1`, id))
}

func (s *PostgresStore) GetPortfolioBySubdomain(ctx context.Context, subdomain string) (*models.Portfolio, error) {
	return scanPortfolio(s.pool.QueryRow(ctx,
		`SELECT `+portfolioColumns+` FROM portfolios WHERE subdomain = $1`, subdomain))
}

func (s *PostgresStore) CreatePortfolio(ctx context.Context, p *models.Portfolio) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.ThemeConfig == nil {
		p.ThemeConfig = map[string]any{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO portfolios (id, user_id, subdomain, custom_domain, template_id, theme_config, is_published, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`,
		p.ID, p.UserID, p.Subdomain, p.CustomDomain, p.TemplateID, p.ThemeConfig, p.IsPublished)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create portfolio: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetPortfolioGenerated(ctx context.Context, id uuid.UUID, html string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE portfolios SET generated_html = $2, last_generated_at = $3, is_published = TRUE, updated_at = NOW()
		 WHERE id = $1`, id, html, at)
	if err != nil {
		return fmt.Errorf("set portfolio generated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IncrementPortfolioViews(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE portfolios SET view_count = view_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment portfolio views: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Generation Jobs ---

const jobColumns = `id, user_id, portfolio_id, status, progress, current_step, error_message, started_at, completed_at`

func scanJob(row pgx.Row) (*models.GenerationJob, error) {
	var j models.GenerationJob
	err := row.Scan(&j.ID, &j.UserID, &j.PortfolioID, &j.Status, &j.Progress,
		&j.CurrentStep, &j.ErrorMsg, &j.StartedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan generation job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.GenerationJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO generation_jobs (id, user_id, portfolio_id, status, progress, current_step, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.UserID, job.PortfolioID, job.Status, job.Progress, job.CurrentStep, job.StartedAt)
	if err != nil {
		return fmt.Errorf("create generation job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	return scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1`, id))
}

func (s *PostgresStore) UpdateJob(ctx context.Context, id uuid.UUID, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	query := `UPDATE generation_jobs SET id = id`
	args := []any{id}
	argIdx := 2

	if params.Status != nil {
		query += fmt.Sprintf(", status = $%d", argIdx)
		args = append(args, *params.Status)
		argIdx++
	}
	if params.Progress != nil {
		query += fmt.Sprintf(", progress = $%d", argIdx)
		args = append(args, *params.Progress)
		argIdx++
	}
	if params.CurrentStep != nil {
		query += fmt.Sprintf(", current_step = $%d", argIdx)
		args = append(args, *params.CurrentStep)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.Completed {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, time.Now().UTC())
		argIdx++
	}

	query += " WHERE id = $1"

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update generation job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
