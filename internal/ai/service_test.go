package ai_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devforge-dev/devforge/internal/ai"
	"github.com/devforge-dev/devforge/internal/config"
	"github.com/devforge-dev/devforge/internal/store"
	"github.com/devforge-dev/devforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	description string
	err         error
	calls       int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) DescribeRepository(context.Context, models.RepositoryFacts) (string, error) {
	f.calls++
	return f.description, f.err
}

func seedRepo(t *testing.T, s store.Store) *models.Repository {
	t.Helper()
	user, err := s.UpsertUser(context.Background(), &models.User{GitHubID: 1, GitHubUsername: "octocat"})
	require.NoError(t, err)
	repo, err := s.UpsertRepository(context.Background(), &models.Repository{
		UserID:   user.ID,
		GitHubID: 1,
		Name:     "hello",
		FullName: "octocat/hello",
		URL:      "https://github.com/octocat/hello",
	})
	require.NoError(t, err)
	return repo
}

func TestEnsureDescription_GeneratesAndPersists(t *testing.T) {
	st := store.NewMemoryStore()
	repo := seedRepo(t, st)
	provider := &fakeProvider{description: "A friendly greeting tool."}
	svc := ai.NewDescriptionService(provider, st, time.Second)

	got, err := svc.EnsureDescription(context.Background(), repo, 42)
	require.NoError(t, err)
	assert.Equal(t, "A friendly greeting tool.", got)
	assert.Equal(t, 1, provider.calls)

	stored, err := st.GetRepository(context.Background(), repo.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AIDescription)
	assert.Equal(t, "A friendly greeting tool.", *stored.AIDescription)
}

func TestEnsureDescription_SkipsExisting(t *testing.T) {
	st := store.NewMemoryStore()
	repo := seedRepo(t, st)
	require.NoError(t, st.SetRepositoryDescription(context.Background(), repo.ID, "already described"))
	repo, err := st.GetRepository(context.Background(), repo.ID)
	require.NoError(t, err)

	provider := &fakeProvider{description: "should not be used"}
	svc := ai.NewDescriptionService(provider, st, time.Second)

	got, err := svc.EnsureDescription(context.Background(), repo, 0)
	require.NoError(t, err)
	assert.Equal(t, "already described", got)
	assert.Zero(t, provider.calls)
}

func TestEnsureDescription_ProviderFailure(t *testing.T) {
	st := store.NewMemoryStore()
	repo := seedRepo(t, st)
	provider := &fakeProvider{err: errors.New("quota exhausted")}
	svc := ai.NewDescriptionService(provider, st, time.Second)

	_, err := svc.EnsureDescription(context.Background(), repo, 0)
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)

	stored, err := st.GetRepository(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.AIDescription)
}

func TestNewProvider_SelectsByConfig(t *testing.T) {
	provider, err := ai.NewProvider(config.AIConfig{Provider: "static"})
	require.NoError(t, err)
	assert.Equal(t, "static", provider.Name())

	_, err = ai.NewProvider(config.AIConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestStaticProvider_UsesFacts(t *testing.T) {
	provider, err := ai.NewProvider(config.AIConfig{Provider: "static"})
	require.NoError(t, err)

	lang := "Go"
	desc := "A tiny CLI"
	got, err := provider.DescribeRepository(context.Background(), models.RepositoryFacts{
		Name:            "hello",
		FullName:        "octocat/hello",
		Description:     &desc,
		PrimaryLanguage: &lang,
		CommitCount:     10,
	})
	require.NoError(t, err)
	assert.Contains(t, got, "A tiny CLI")
	assert.Contains(t, got, "Go")
}
