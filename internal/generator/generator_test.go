package generator_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devforge-dev/devforge/internal/deploy"
	"github.com/devforge-dev/devforge/internal/events"
	"github.com/devforge-dev/devforge/internal/generator"
	"github.com/devforge-dev/devforge/internal/queue"
	"github.com/devforge-dev/devforge/internal/render"
	"github.com/devforge-dev/devforge/internal/store"
	"github.com/devforge-dev/devforge/internal/tasks"
	"github.com/devforge-dev/devforge/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *store.MemoryStore
	queue *queue.MemoryQueue
	bus   *events.MemoryBus
	orch  *generator.Orchestrator
	dir   string

	user      *models.User
	portfolio *models.Portfolio
	job       *models.GenerationJob
}

func setup(t *testing.T, repoCount int) *fixture {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemoryStore()
	q := queue.NewMemoryQueue()
	bus := events.NewMemoryBus()
	dir := t.TempDir()

	renderer, err := render.New()
	require.NoError(t, err)
	deployer := deploy.New(dir, "https://devforge.example")

	user, err := st.UpsertUser(ctx, &models.User{GitHubID: 1, GitHubUsername: "octocat"})
	require.NoError(t, err)

	for i := 0; i < repoCount; i++ {
		_, err := st.UpsertRepository(ctx, &models.Repository{
			UserID:   user.ID,
			GitHubID: int64(i + 1),
			Name:     "repo",
			FullName: "octocat/repo",
			URL:      "u",
			Stars:    repoCount - i,
		})
		require.NoError(t, err)
	}
	require.NoError(t, st.ReplaceSkills(ctx, user.ID, []*models.Skill{
		{Name: "Go", Category: "language", Proficiency: 5, UsageCount: 20000},
	}))

	portfolio := &models.Portfolio{UserID: user.ID, Subdomain: "octocat", TemplateID: "modern"}
	require.NoError(t, st.CreatePortfolio(ctx, portfolio))

	job := &models.GenerationJob{
		UserID:      user.ID,
		PortfolioID: portfolio.ID,
		Status:      models.JobStatusPending,
		StartedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.CreateJob(ctx, job))

	return &fixture{
		store: st, queue: q, bus: bus,
		orch:      generator.New(st, q, bus, renderer, deployer, 20),
		dir:       dir,
		user:      user,
		portfolio: portfolio,
		job:       job,
	}
}

// collect subscribes before the run and drains every published event.
func collect(t *testing.T, f *fixture, run func()) []models.GenerationEvent {
	t.Helper()
	ch, stop, err := f.bus.Subscribe(context.Background(), f.job.ID.String())
	require.NoError(t, err)

	run()
	stop()

	var got []models.GenerationEvent
	for event := range ch {
		got = append(got, event)
	}
	return got
}

func TestRun_HappyPath(t *testing.T) {
	f := setup(t, 3)
	ctx := context.Background()

	got := collect(t, f, func() {
		require.NoError(t, f.orch.Run(ctx, f.job.ID))
	})
	require.NotEmpty(t, got)

	// Progress is non-decreasing and terminates at exactly 100/completed.
	last := -1
	for _, event := range got {
		assert.GreaterOrEqual(t, event.Progress, last, "progress regressed at step %q", event.Step)
		last = event.Progress
	}
	final := got[len(got)-1]
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, "Completed", final.Step)
	assert.Equal(t, "https://devforge.example/generated/octocat/index.html", final.URL)

	// Dispatch step labels carry the i/total counter.
	var labels []string
	for _, event := range got {
		labels = append(labels, event.Step)
	}
	assert.Contains(t, labels, "Analyzing repositories (1/3)")
	assert.Contains(t, labels, "Analyzing repositories (3/3)")
	assert.Contains(t, labels, "Generating AI descriptions (2/3)")

	// Job row reflects the terminal state.
	job, err := f.store.GetJob(ctx, f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.CompletedAt)

	// The page landed on disk and on the portfolio row.
	content, err := os.ReadFile(filepath.Join(f.dir, "octocat", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "octocat")

	portfolio, err := f.store.GetPortfolio(ctx, f.portfolio.ID)
	require.NoError(t, err)
	assert.True(t, portfolio.IsPublished)
	require.NotNil(t, portfolio.LastGeneratedAt)
}

func TestRun_DispatchesSubJobsWithoutAwaiting(t *testing.T) {
	f := setup(t, 2)
	ctx := context.Background()

	var analyses, descriptions atomic.Int32
	release := make(chan struct{})
	f.queue.Register(tasks.TypeAnalyzeRepository, func(ctx context.Context, _ json.RawMessage) (any, error) {
		analyses.Add(1)
		// Never finishes during the run; the orchestrator must not care.
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	})
	f.queue.Register(tasks.TypeDescribeRepository, func(context.Context, json.RawMessage) (any, error) {
		descriptions.Add(1)
		return nil, nil
	})

	require.NoError(t, f.orch.Run(ctx, f.job.ID))
	close(release)
	f.queue.Wait()

	assert.Equal(t, int32(2), analyses.Load())
	assert.Equal(t, int32(2), descriptions.Load())
}

func TestRun_FailureBookkeeping(t *testing.T) {
	f := setup(t, 1)
	ctx := context.Background()

	// Point the job at a portfolio that no longer exists.
	f.job = &models.GenerationJob{
		UserID:      f.user.ID,
		PortfolioID: uuid.New(),
		Status:      models.JobStatusPending,
		StartedAt:   time.Now().UTC(),
	}
	require.NoError(t, f.store.CreateJob(ctx, f.job))

	got := collect(t, f, func() {
		err := f.orch.Run(ctx, f.job.ID)
		require.Error(t, err)
	})

	// A subscriber listening before the failure sees the terminal event.
	require.NotEmpty(t, got)
	final := got[len(got)-1]
	assert.Equal(t, models.JobStatusFailed, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, "Failed", final.Step)
	assert.NotEmpty(t, final.Error)

	job, err := f.store.GetJob(ctx, f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ErrorMsg)
	assert.NotEmpty(t, *job.ErrorMsg)
	require.NotNil(t, job.CompletedAt)
}

func TestRun_NoRepositoriesStillCompletes(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()

	got := collect(t, f, func() {
		require.NoError(t, f.orch.Run(ctx, f.job.ID))
	})

	final := got[len(got)-1]
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
}
