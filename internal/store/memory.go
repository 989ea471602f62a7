package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/devforge-dev/devforge/pkg/models"
	"github.com/google/uuid"
)

// MemoryStore is an in-process Store implementation used by tests and local
// tooling. It honors the same natural-key semantics as PostgresStore:
// users upsert by github_id, repositories by github_id, commits by SHA.
type MemoryStore struct {
	mu         sync.Mutex
	users      map[uuid.UUID]*models.User
	profiles   map[uuid.UUID]*models.GitHubProfile // keyed by user id
	repos      map[uuid.UUID]*models.Repository
	commits    map[string]*models.Commit // keyed by SHA
	skills     map[uuid.UUID][]*models.Skill
	portfolios map[uuid.UUID]*models.Portfolio
	jobs       map[uuid.UUID]*models.GenerationJob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[uuid.UUID]*models.User),
		profiles:   make(map[uuid.UUID]*models.GitHubProfile),
		repos:      make(map[uuid.UUID]*models.Repository),
		commits:    make(map[string]*models.Commit),
		skills:     make(map[uuid.UUID][]*models.Skill),
		portfolios: make(map[uuid.UUID]*models.Portfolio),
		jobs:       make(map[uuid.UUID]*models.GenerationJob),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// --- Users ---

func (s *MemoryStore) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByGitHubID(_ context.Context, githubID int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.GitHubID == githubID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpsertUser(_ context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, existing := range s.users {
		if existing.GitHubID == user.GitHubID {
			existing.GitHubUsername = user.GitHubUsername
			existing.Email = user.Email
			existing.AvatarURL = user.AvatarURL
			if user.AccessToken != nil {
				existing.AccessToken = user.AccessToken
			}
			existing.UpdatedAt = now
			cp := *existing
			return &cp, nil
		}
	}

	cp := *user
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

// --- Profiles ---

func (s *MemoryStore) UpsertProfile(_ context.Context, profile *models.GitHubProfile) (*models.GitHubProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *profile
	if existing, ok := s.profiles[profile.UserID]; ok {
		cp.ID = existing.ID
	} else if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	s.profiles[cp.UserID] = &cp
	out := cp
	return &out, nil
}

func (s *MemoryStore) GetProfileByUser(_ context.Context, userID uuid.UUID) (*models.GitHubProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// --- Repositories ---

func (s *MemoryStore) GetRepository(_ context.Context, id uuid.UUID) (*models.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) UpsertRepository(_ context.Context, repo *models.Repository) (*models.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, existing := range s.repos {
		if existing.GitHubID == repo.GitHubID {
			id, createdAt := existing.ID, existing.CreatedAt
			analyzedAt, aiDesc := existing.AnalyzedAt, existing.AIDescription
			cp := *repo
			cp.ID = id
			cp.CreatedAt = createdAt
			cp.AnalyzedAt = analyzedAt
			cp.AIDescription = aiDesc
			cp.UpdatedAt = now
			s.repos[id] = &cp
			out := cp
			return &out, nil
		}
	}

	cp := *repo
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.repos[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *MemoryStore) ListRepositoriesByUser(_ context.Context, userID uuid.UUID, limit int) ([]*models.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var repos []*models.Repository
	for _, r := range s.repos {
		if r.UserID == userID {
			cp := *r
			repos = append(repos, &cp)
		}
	}
	sort.Slice(repos, func(i, j int) bool {
		if repos[i].Stars != repos[j].Stars {
			return repos[i].Stars > repos[j].Stars
		}
		return repos[i].FullName < repos[j].FullName
	})
	if limit > 0 && len(repos) > limit {
		repos = repos[:limit]
	}
	return repos, nil
}

func (s *MemoryStore) MarkRepositoryAnalyzed(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return ErrNotFound
	}
	r.AnalyzedAt = &at
	return nil
}

func (s *MemoryStore) SetRepositoryDescription(_ context.Context, id uuid.UUID, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return ErrNotFound
	}
	r.AIDescription = &description
	return nil
}

// --- Commits ---

func (s *MemoryStore) CreateCommit(_ context.Context, commit *models.Commit) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.commits[commit.SHA]; exists {
		return false, nil
	}
	cp := *commit
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	s.commits[cp.SHA] = &cp
	return true, nil
}

func (s *MemoryStore) ListCommitSHAs(_ context.Context, repositoryID uuid.UUID, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []*models.Commit
	for _, c := range s.commits {
		if c.RepositoryID == repositoryID {
			list = append(list, c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CommittedAt.After(list[j].CommittedAt) })

	var shas []string
	for _, c := range list {
		shas = append(shas, c.SHA)
		if limit > 0 && len(shas) >= limit {
			break
		}
	}
	return shas, nil
}

func (s *MemoryStore) FilterExistingSHAs(_ context.Context, shas []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]bool)
	for _, sha := range shas {
		if _, ok := s.commits[sha]; ok {
			existing[sha] = true
		}
	}
	return existing, nil
}

func (s *MemoryStore) CountCommits(_ context.Context, repositoryID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, c := range s.commits {
		if c.RepositoryID == repositoryID {
			count++
		}
	}
	return count, nil
}

// --- Skills ---

func (s *MemoryStore) ReplaceSkills(_ context.Context, userID uuid.UUID, skills []*models.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := make([]*models.Skill, 0, len(skills))
	for _, sk := range skills {
		cp := *sk
		if cp.ID == uuid.Nil {
			cp.ID = uuid.New()
		}
		cp.UserID = userID
		replaced = append(replaced, &cp)
	}
	s.skills[userID] = replaced
	return nil
}

func (s *MemoryStore) ListSkillsByUser(_ context.Context, userID uuid.UUID) ([]*models.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	skills := make([]*models.Skill, 0, len(s.skills[userID]))
	for _, sk := range s.skills[userID] {
		cp := *sk
		skills = append(skills, &cp)
	}
	sort.Slice(skills, func(i, j int) bool {
		if skills[i].Proficiency != skills[j].Proficiency {
			return skills[i].Proficiency > skills[j].Proficiency
		}
		return skills[i].UsageCount > skills[j].UsageCount
	})
	return skills, nil
}

// --- Portfolios ---

func (s *MemoryStore) GetPortfolio(_ context.Context, id uuid.UUID) (*models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetPortfolioBySubdomain(_ context.Context, subdomain string) (*models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.portfolios {
		if p.Subdomain == subdomain {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreatePortfolio(_ context.Context, p *models.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.portfolios {
		if existing.Subdomain == p.Subdomain {
			return ErrDuplicateKey
		}
	}
	cp := *p
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.portfolios[cp.ID] = &cp
	p.ID = cp.ID
	return nil
}

func (s *MemoryStore) SetPortfolioGenerated(_ context.Context, id uuid.UUID, html string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[id]
	if !ok {
		return ErrNotFound
	}
	p.GeneratedHTML = &html
	p.LastGeneratedAt = &at
	p.IsPublished = true
	return nil
}

func (s *MemoryStore) IncrementPortfolioViews(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[id]
	if !ok {
		return ErrNotFound
	}
	p.ViewCount++
	return nil
}

// --- Generation Jobs ---

func (s *MemoryStore) CreateJob(_ context.Context, job *models.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *job
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.StartedAt.IsZero() {
		cp.StartedAt = time.Now()
	}
	s.jobs[cp.ID] = &cp
	job.ID = cp.ID
	job.StartedAt = cp.StartedAt
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, id uuid.UUID, opts ...JobUpdateOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}

	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	if params.Status != nil {
		j.Status = *params.Status
	}
	if params.Progress != nil {
		j.Progress = *params.Progress
	}
	if params.CurrentStep != nil {
		j.CurrentStep = params.CurrentStep
	}
	if params.ErrorMessage != nil {
		j.ErrorMsg = params.ErrorMessage
	}
	if params.Completed {
		now := time.Now().UTC()
		j.CompletedAt = &now
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
