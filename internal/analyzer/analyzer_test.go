package analyzer_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/devforge-dev/devforge/internal/analyzer"
	"github.com/devforge-dev/devforge/internal/github"
	"github.com/devforge-dev/devforge/internal/queue"
	"github.com/devforge-dev/devforge/internal/store"
	"github.com/devforge-dev/devforge/internal/tasks"
	"github.com/devforge-dev/devforge/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient serves a fixed commit history, newest first, and counts
// detail fetches. Safe for concurrent use.
type fakeClient struct {
	mu          sync.Mutex
	history     []github.CommitRef
	detailCalls int
	listErr     error
}

func (f *fakeClient) GetAuthenticatedUser(context.Context) (*github.Account, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) ListUserEmails(context.Context) ([]string, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) ListRepositories(context.Context) ([]*models.Repository, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) ListLanguages(context.Context, string, string) (map[string]int64, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) ListCommits(_ context.Context, _, _ string, page, perPage int) ([]github.CommitRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	start := (page - 1) * perPage
	if start >= len(f.history) {
		return nil, nil
	}
	end := start + perPage
	if end > len(f.history) {
		end = len(f.history)
	}
	return f.history[start:end], nil
}

func (f *fakeClient) GetCommit(_ context.Context, _, _, sha string) (*models.Commit, error) {
	f.mu.Lock()
	f.detailCalls++
	f.mu.Unlock()
	return &models.Commit{
		SHA:          sha,
		Message:      "commit " + sha,
		CommittedAt:  time.Now().UTC(),
		Additions:    10,
		Deletions:    3,
		FilesChanged: 2,
	}, nil
}

func (f *fakeClient) details() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls
}

var _ github.Client = (*fakeClient)(nil)

// countingQueue counts enqueued batch tasks.
type countingQueue struct {
	*queue.MemoryQueue
	mu       sync.Mutex
	enqueued []string
}

func (q *countingQueue) Enqueue(ctx context.Context, taskType string, payload any) (*queue.Handle, error) {
	q.mu.Lock()
	q.enqueued = append(q.enqueued, taskType)
	q.mu.Unlock()
	return q.MemoryQueue.Enqueue(ctx, taskType, payload)
}

func (q *countingQueue) count(taskType string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, t := range q.enqueued {
		if t == taskType {
			n++
		}
	}
	return n
}

func history(n int) []github.CommitRef {
	refs := make([]github.CommitRef, n)
	for i := range refs {
		refs[i] = github.CommitRef{
			SHA:         fmt.Sprintf("sha-%04d", i),
			Message:     "m",
			CommittedAt: time.Now().UTC().Add(-time.Duration(i) * time.Minute),
		}
	}
	return refs
}

func defaultConfig() analyzer.Config {
	return analyzer.Config{
		BatchSize:   100,
		SHALookback: 5000,
		JoinTimeout: 30 * time.Second,
		FreshTTL:    24 * time.Hour,
	}
}

type fixture struct {
	store    *store.MemoryStore
	queue    *countingQueue
	client   *fakeClient
	analyzer *analyzer.Analyzer
	repo     *models.Repository
}

func setup(t *testing.T, cfg analyzer.Config, client *fakeClient) *fixture {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemoryStore()
	user, err := st.UpsertUser(ctx, &models.User{GitHubID: 1, GitHubUsername: "octocat"})
	require.NoError(t, err)
	repo, err := st.UpsertRepository(ctx, &models.Repository{
		UserID:   user.ID,
		GitHubID: 1,
		Name:     "hello",
		FullName: "octocat/hello",
		URL:      "u",
	})
	require.NoError(t, err)

	q := &countingQueue{MemoryQueue: queue.NewMemoryQueue()}
	factory := func(context.Context, uuid.UUID) (github.Client, error) { return client, nil }

	a := analyzer.New(st, q, factory, cfg)
	a.RegisterHandlers(q.MemoryQueue)

	return &fixture{store: st, queue: q, client: client, analyzer: a, repo: repo}
}

func TestAnalyzeRepository_FreshIsSkipped(t *testing.T) {
	client := &fakeClient{history: history(10), listErr: errors.New("should not be called")}
	f := setup(t, defaultConfig(), client)
	ctx := context.Background()

	recent := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, f.store.MarkRepositoryAnalyzed(ctx, f.repo.ID, recent))

	result, err := f.analyzer.AnalyzeRepository(ctx, f.repo.ID)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Zero(t, f.client.details())
}

func TestAnalyzeRepository_NoNewCommits(t *testing.T) {
	client := &fakeClient{history: history(5)}
	f := setup(t, defaultConfig(), client)
	ctx := context.Background()

	// Store the whole history up front.
	for _, ref := range client.history {
		_, err := f.store.CreateCommit(ctx, &models.Commit{
			RepositoryID: f.repo.ID,
			SHA:          ref.SHA,
			Message:      "m",
			CommittedAt:  ref.CommittedAt,
		})
		require.NoError(t, err)
	}

	result, err := f.analyzer.AnalyzeRepository(ctx, f.repo.ID)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Zero(t, result.NewCommits)
	assert.Zero(t, f.client.details())
	assert.Zero(t, f.queue.count(tasks.TypeAnalyzeCommitBatch))

	// Zero-work still stamps the watermark.
	repo, err := f.store.GetRepository(ctx, f.repo.ID)
	require.NoError(t, err)
	assert.NotNil(t, repo.AnalyzedAt)
}

func TestAnalyzeRepository_IncrementalFetchesOnlyNew(t *testing.T) {
	client := &fakeClient{history: history(40)}
	f := setup(t, defaultConfig(), client)
	ctx := context.Background()

	// 25 of the 40 are already stored; exactly 15 detail fetches follow.
	for _, ref := range client.history[15:] {
		_, err := f.store.CreateCommit(ctx, &models.Commit{
			RepositoryID: f.repo.ID,
			SHA:          ref.SHA,
			Message:      "m",
			CommittedAt:  ref.CommittedAt,
		})
		require.NoError(t, err)
	}

	result, err := f.analyzer.AnalyzeRepository(ctx, f.repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, result.NewCommits)
	assert.Equal(t, 15, f.client.details())

	count, err := f.store.CountCommits(ctx, f.repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, count)
}

func TestAnalyzeRepository_FanOutAggregation(t *testing.T) {
	client := &fakeClient{history: history(250)}
	f := setup(t, defaultConfig(), client)
	ctx := context.Background()

	result, err := f.analyzer.AnalyzeRepository(ctx, f.repo.ID)
	require.NoError(t, err)

	// 250 new SHAs with batch size 100 fan out as 100, 100, 50.
	assert.Equal(t, 3, f.queue.count(tasks.TypeAnalyzeCommitBatch))
	assert.Equal(t, 250, result.NewCommits)
	assert.Equal(t, 250, result.Processed)

	// The aggregate sums real per-commit stats.
	assert.Equal(t, 250*10, result.Additions)
	assert.Equal(t, 250*3, result.Deletions)
	assert.Equal(t, 250*2, result.FilesChanged)

	count, err := f.store.CountCommits(ctx, f.repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 250, count)
}

func TestAnalyzeCommitBatch_DuplicateDispatchIsIdempotent(t *testing.T) {
	client := &fakeClient{history: history(8)}
	f := setup(t, defaultConfig(), client)
	ctx := context.Background()

	payload := tasks.AnalyzeCommitBatchPayload{
		RepositoryID: f.repo.ID,
		Owner:        "octocat",
		Name:         "hello",
	}
	for _, ref := range client.history {
		payload.SHAs = append(payload.SHAs, ref.SHA)
	}

	first, err := f.analyzer.AnalyzeCommitBatch(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, 8, first.Processed)
	assert.Equal(t, 8, first.Inserted)

	second, err := f.analyzer.AnalyzeCommitBatch(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, 8, second.Processed)
	assert.Zero(t, second.Inserted)

	count, err := f.store.CountCommits(ctx, f.repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, count)
}

func TestAnalyzeRepository_JoinTimeout(t *testing.T) {
	client := &fakeClient{history: history(10)}

	cfg := defaultConfig()
	cfg.JoinTimeout = 200 * time.Millisecond

	f := setup(t, cfg, client)

	// Replace the batch handler with one that never finishes in time.
	f.queue.MemoryQueue.Register(tasks.TypeAnalyzeCommitBatch,
		func(ctx context.Context, _ json.RawMessage) (any, error) {
			select {
			case <-time.After(5 * time.Second):
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})

	_, err := f.analyzer.AnalyzeRepository(context.Background(), f.repo.ID)
	assert.ErrorIs(t, err, analyzer.ErrAggregationTimeout)

	// The watermark must not be stamped on a failed aggregation.
	repo, err2 := f.store.GetRepository(context.Background(), f.repo.ID)
	require.NoError(t, err2)
	assert.Nil(t, repo.AnalyzedAt)
}
