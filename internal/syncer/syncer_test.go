package syncer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devforge-dev/devforge/internal/github"
	"github.com/devforge-dev/devforge/internal/store"
	"github.com/devforge-dev/devforge/internal/syncer"
	"github.com/devforge-dev/devforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient implements github.Client with overridable behavior per test.
type fakeClient struct {
	account    *github.Account
	emails     []string
	repos      []*models.Repository
	languages  map[string]map[string]int64
	listCalls  int
	listErrs   []error
	commitRefs map[string][]github.CommitRef
	commits    map[string]*models.Commit
}

func (f *fakeClient) GetAuthenticatedUser(context.Context) (*github.Account, error) {
	if f.account == nil {
		return nil, errors.New("no account configured")
	}
	return f.account, nil
}

func (f *fakeClient) ListUserEmails(context.Context) ([]string, error) {
	return f.emails, nil
}

func (f *fakeClient) ListRepositories(context.Context) ([]*models.Repository, error) {
	call := f.listCalls
	f.listCalls++
	if call < len(f.listErrs) && f.listErrs[call] != nil {
		return nil, f.listErrs[call]
	}
	out := make([]*models.Repository, len(f.repos))
	for i, r := range f.repos {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

func (f *fakeClient) ListLanguages(_ context.Context, _, repo string) (map[string]int64, error) {
	langs, ok := f.languages[repo]
	if !ok {
		return nil, errors.New("languages unavailable")
	}
	return langs, nil
}

func (f *fakeClient) ListCommits(_ context.Context, _, repo string, page, perPage int) ([]github.CommitRef, error) {
	refs := f.commitRefs[repo]
	start := (page - 1) * perPage
	if start >= len(refs) {
		return nil, nil
	}
	end := start + perPage
	if end > len(refs) {
		end = len(refs)
	}
	return refs[start:end], nil
}

func (f *fakeClient) GetCommit(_ context.Context, _, _, sha string) (*models.Commit, error) {
	c, ok := f.commits[sha]
	if !ok {
		return nil, errors.New("unknown commit " + sha)
	}
	cp := *c
	return &cp, nil
}

var _ github.Client = (*fakeClient)(nil)

func seedUser(t *testing.T, s store.Store) *models.User {
	t.Helper()
	user, err := s.UpsertUser(context.Background(), &models.User{
		GitHubID:       583231,
		GitHubUsername: "octocat",
	})
	require.NoError(t, err)
	return user
}

func newAccount() *github.Account {
	name := "The Octocat"
	return &github.Account{
		GitHubID:    583231,
		Login:       "octocat",
		Name:        &name,
		PublicRepos: 2,
		Followers:   100,
	}
}

func TestRun_FullChain(t *testing.T) {
	st := store.NewMemoryStore()
	user := seedUser(t, st)
	pushed := time.Now().UTC()

	client := &fakeClient{
		account: newAccount(),
		emails:  []string{"octo@example.com"},
		repos: []*models.Repository{
			{GitHubID: 1, Name: "hello", FullName: "octocat/hello", URL: "u", Stars: 5, PushedAt: &pushed},
			{GitHubID: 2, Name: "tools", FullName: "octocat/tools", URL: "u", Stars: 1, PushedAt: &pushed},
		},
		languages: map[string]map[string]int64{
			"hello": {"Go": 12000, "Makefile": 200},
			"tools": {"Go": 2000, "Python": 3500},
		},
	}

	s := syncer.New(st, client, 0)
	require.NoError(t, s.Run(context.Background(), user.ID))
	ctx := context.Background()

	// Profile landed with a sync timestamp.
	profile, err := st.GetProfileByUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, profile.Name)
	assert.Equal(t, "The Octocat", *profile.Name)
	assert.NotNil(t, profile.SyncedAt)

	// Email was backfilled from the emails endpoint.
	updated, err := st.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.Email)
	assert.Equal(t, "octo@example.com", *updated.Email)

	// Repositories are stored with language maps.
	repos, err := st.ListRepositoriesByUser(ctx, user.ID, 0)
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, int64(12000), repos[0].Languages["Go"])

	// Skills aggregate across repositories with correct tiers.
	skills, err := st.ListSkillsByUser(ctx, user.ID)
	require.NoError(t, err)
	byName := make(map[string]*models.Skill)
	for _, sk := range skills {
		byName[sk.Name] = sk
	}
	require.Contains(t, byName, "Go")
	assert.Equal(t, int64(14000), byName["Go"].UsageCount)
	assert.Equal(t, 5, byName["Go"].Proficiency)
	assert.Equal(t, 4, byName["Python"].Proficiency)
	assert.Equal(t, 2, byName["Makefile"].Proficiency)
}

func TestRun_RetriesTransientStepFailure(t *testing.T) {
	st := store.NewMemoryStore()
	user := seedUser(t, st)

	client := &fakeClient{
		account:  newAccount(),
		repos:    []*models.Repository{{GitHubID: 1, Name: "hello", FullName: "octocat/hello", URL: "u"}},
		listErrs: []error{errors.New("transient")},
	}

	s := syncer.New(st, client, 2)
	require.NoError(t, s.Run(context.Background(), user.ID))

	repos, err := st.ListRepositoriesByUser(context.Background(), user.ID, 0)
	require.NoError(t, err)
	assert.Len(t, repos, 1)
	assert.Equal(t, 2, client.listCalls)
}

func TestRun_AbortsChainWhenStepExhaustsRetries(t *testing.T) {
	st := store.NewMemoryStore()
	user := seedUser(t, st)

	// Leave a previous skill set in place to prove extract-skills never ran.
	require.NoError(t, st.ReplaceSkills(context.Background(), user.ID,
		[]*models.Skill{{Name: "Stale", Category: "language", Proficiency: 2}}))

	client := &fakeClient{
		account:  newAccount(),
		listErrs: []error{errors.New("down"), errors.New("down"), errors.New("down")},
	}

	s := syncer.New(st, client, 2)
	err := s.Run(context.Background(), user.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync-repositories")

	// Profile step committed before the failure and stays committed.
	_, err = st.GetProfileByUser(context.Background(), user.ID)
	assert.NoError(t, err)

	skills, err := st.ListSkillsByUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, skills, 1)
	assert.Equal(t, "Stale", skills[0].Name)
}

func TestSyncRepositories_LanguageLookupFailureDegrades(t *testing.T) {
	st := store.NewMemoryStore()
	user := seedUser(t, st)
	lang := "Go"

	client := &fakeClient{
		account: newAccount(),
		repos: []*models.Repository{
			{GitHubID: 1, Name: "nolangs", FullName: "octocat/nolangs", URL: "u", Language: &lang},
		},
		languages: map[string]map[string]int64{},
	}

	s := syncer.New(st, client, 0)
	require.NoError(t, s.Run(context.Background(), user.ID))

	// Skills fall back to the primary-language string with weight 1.
	skills, err := st.ListSkillsByUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, skills, 1)
	assert.Equal(t, "Go", skills[0].Name)
	assert.Equal(t, int64(1), skills[0].UsageCount)
	assert.Equal(t, 2, skills[0].Proficiency)
}
