// Package analyzer implements incremental commit analysis per repository:
// fetch recent commits, diff against stored SHAs, fan the new ones out in
// fixed-size batches through the queue, then join and aggregate. Inserts
// are idempotent by SHA, so overlapping or retried batches are harmless.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devforge-dev/devforge/internal/github"
	"github.com/devforge-dev/devforge/internal/queue"
	"github.com/devforge-dev/devforge/internal/store"
	"github.com/devforge-dev/devforge/internal/tasks"
	"github.com/devforge-dev/devforge/internal/workflow"
	"github.com/google/uuid"
)

// ErrAggregationTimeout reports that the batch join barrier expired before
// every batch finished. Late batches may still land; their inserts are
// idempotent.
var ErrAggregationTimeout = errors.New("batch aggregation timed out")

type Config struct {
	BatchSize   int
	SHALookback int
	JoinTimeout time.Duration
	FreshTTL    time.Duration
}

// ClientFactory builds a GitHub client authenticated as the given user.
type ClientFactory func(ctx context.Context, userID uuid.UUID) (github.Client, error)

// Registry is where task handlers are mounted; both the Redis worker and
// the in-memory queue satisfy it.
type Registry interface {
	Register(taskType string, fn queue.HandlerFunc)
}

type Analyzer struct {
	store   store.Store
	batches queue.Queue
	clients ClientFactory
	cfg     Config
	now     func() time.Time
}

// New builds an Analyzer. batches is the queue commit-batch tasks run on;
// in production it must be drained by a worker pool separate from the one
// running repository tasks, because a repository task holds its slot while
// joining the batches it fanned out.
func New(st store.Store, batches queue.Queue, clients ClientFactory, cfg Config) *Analyzer {
	return &Analyzer{
		store:   st,
		batches: batches,
		clients: clients,
		cfg:     cfg,
		now:     time.Now,
	}
}

// WithClock overrides the time source. For tests.
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	a.now = now
	return a
}

// RegisterHandlers mounts both pipeline handlers on one registry. Only
// suitable when the registry's pool can run a batch while a repository
// task waits on it; production registers the two halves on separate pools.
func (a *Analyzer) RegisterHandlers(reg Registry) {
	a.RegisterRepositoryHandler(reg)
	a.RegisterBatchHandler(reg)
}

// RegisterRepositoryHandler mounts the per-repository pipeline handler.
func (a *Analyzer) RegisterRepositoryHandler(reg Registry) {
	reg.Register(tasks.TypeAnalyzeRepository, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p tasks.AnalyzeRepositoryPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return a.AnalyzeRepository(ctx, p.RepositoryID)
	})
}

// RegisterBatchHandler mounts the commit-batch handler.
func (a *Analyzer) RegisterBatchHandler(reg Registry) {
	reg.Register(tasks.TypeAnalyzeCommitBatch, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p tasks.AnalyzeCommitBatchPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return a.AnalyzeCommitBatch(ctx, p)
	})
}

// AnalyzeRepository runs the full per-repository pipeline and returns the
// aggregated rollup. A repository analyzed within FreshTTL is skipped.
func (a *Analyzer) AnalyzeRepository(ctx context.Context, repositoryID uuid.UUID) (*tasks.RepositoryAnalysis, error) {
	repo, err := a.store.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}

	if repo.AnalyzedAt != nil && a.now().Sub(*repo.AnalyzedAt) < a.cfg.FreshTTL {
		slog.Debug("repository analysis still fresh", "repo", repo.FullName)
		return &tasks.RepositoryAnalysis{RepositoryID: repo.ID, Skipped: true}, nil
	}

	owner, name, ok := repo.OwnerAndName()
	if !ok {
		return nil, fmt.Errorf("repository %s has malformed full name %q", repo.ID, repo.FullName)
	}

	client, err := a.clients(ctx, repo.UserID)
	if err != nil {
		return nil, err
	}

	newSHAs, err := a.findNewSHAs(ctx, client, repo.ID, owner, name)
	if err != nil {
		return nil, err
	}

	analyzedAt := a.now().UTC()
	if len(newSHAs) == 0 {
		if err := a.store.MarkRepositoryAnalyzed(ctx, repo.ID, analyzedAt); err != nil {
			return nil, err
		}
		return &tasks.RepositoryAnalysis{RepositoryID: repo.ID}, nil
	}

	batches := partition(newSHAs, a.cfg.BatchSize)
	handles := make([]*queue.Handle, len(batches))

	children := make([]workflow.Step, len(batches))
	for i, batch := range batches {
		payload := tasks.AnalyzeCommitBatchPayload{
			RepositoryID: repo.ID,
			Owner:        owner,
			Name:         name,
			SHAs:         batch,
		}
		children[i] = workflow.Task{
			Label: fmt.Sprintf("commit-batch-%d", i+1),
			Run: func(ctx context.Context) error {
				handle, err := a.batches.Enqueue(ctx, tasks.TypeAnalyzeCommitBatch, payload)
				if err != nil {
					return err
				}
				handles[i] = handle
				return queue.Join(ctx, a.cfg.JoinTimeout, handle)
			},
		}
	}

	fanout := workflow.Parallel{
		Label:       "analyze-batches",
		JoinTimeout: a.cfg.JoinTimeout,
		Steps:       children,
	}
	if err := fanout.Execute(ctx); err != nil {
		if errors.Is(err, workflow.ErrJoinTimeout) || errors.Is(err, queue.ErrJoinTimeout) {
			return nil, fmt.Errorf("%w: repository %s", ErrAggregationTimeout, repo.FullName)
		}
		return nil, err
	}

	aggregate := &tasks.RepositoryAnalysis{
		RepositoryID: repo.ID,
		NewCommits:   len(newSHAs),
	}
	for _, handle := range handles {
		var result tasks.CommitBatchResult
		if err := handle.Result(ctx, &result); err != nil {
			return nil, fmt.Errorf("batch %s: %w", handle.ID, err)
		}
		aggregate.Processed += result.Processed
		aggregate.Additions += result.Additions
		aggregate.Deletions += result.Deletions
		aggregate.FilesChanged += result.FilesChanged
	}

	if err := a.store.MarkRepositoryAnalyzed(ctx, repo.ID, analyzedAt); err != nil {
		return nil, err
	}

	slog.Info("repository analyzed",
		"repo", repo.FullName,
		"new_commits", aggregate.NewCommits,
		"processed", aggregate.Processed)
	return aggregate, nil
}

// AnalyzeCommitBatch fetches detail for each SHA in the batch and inserts
// the commits. It re-checks existence first to absorb duplicate dispatch.
func (a *Analyzer) AnalyzeCommitBatch(ctx context.Context, p tasks.AnalyzeCommitBatchPayload) (*tasks.CommitBatchResult, error) {
	repo, err := a.store.GetRepository(ctx, p.RepositoryID)
	if err != nil {
		return nil, err
	}

	client, err := a.clients(ctx, repo.UserID)
	if err != nil {
		return nil, err
	}

	existing, err := a.store.FilterExistingSHAs(ctx, p.SHAs)
	if err != nil {
		return nil, err
	}

	result := &tasks.CommitBatchResult{Processed: len(p.SHAs)}
	for _, sha := range p.SHAs {
		if existing[sha] {
			continue
		}

		commit, err := client.GetCommit(ctx, p.Owner, p.Name, sha)
		if err != nil {
			return nil, err
		}
		commit.RepositoryID = p.RepositoryID

		inserted, err := a.store.CreateCommit(ctx, commit)
		if err != nil {
			return nil, err
		}
		if !inserted {
			continue
		}
		result.Inserted++
		result.Additions += commit.Additions
		result.Deletions += commit.Deletions
		result.FilesChanged += commit.FilesChanged
	}
	return result, nil
}

// findNewSHAs walks recent commit pages, newest first, and returns the SHAs
// not yet stored. The walk stops at a short page, a fully-known page, or
// the lookback bound.
func (a *Analyzer) findNewSHAs(ctx context.Context, client github.Client, repositoryID uuid.UUID, owner, name string) ([]string, error) {
	known, err := a.knownSHAs(ctx, repositoryID)
	if err != nil {
		return nil, err
	}

	var newSHAs []string
	seen := 0
	for page := 1; seen < a.cfg.SHALookback; page++ {
		refs, err := client.ListCommits(ctx, owner, name, page, a.cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		seen += len(refs)

		fresh := 0
		for _, ref := range refs {
			if !known[ref.SHA] {
				newSHAs = append(newSHAs, ref.SHA)
				fresh++
			}
		}

		// A short page ends the history; a fully-known page means
		// everything older is known too.
		if len(refs) < a.cfg.BatchSize || (fresh == 0 && len(refs) > 0) {
			break
		}
	}
	return newSHAs, nil
}

func (a *Analyzer) knownSHAs(ctx context.Context, repositoryID uuid.UUID) (map[string]bool, error) {
	shas, err := a.store.ListCommitSHAs(ctx, repositoryID, a.cfg.SHALookback)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(shas))
	for _, sha := range shas {
		known[sha] = true
	}
	return known, nil
}

func partition(shas []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var batches [][]string
	for start := 0; start < len(shas); start += size {
		end := start + size
		if end > len(shas) {
			end = len(shas)
		}
		batches = append(batches, shas[start:end])
	}
	return batches
}
