// Package generator orchestrates a portfolio generation run: it advances
// the job through its stages, broadcasts progress over the event bus,
// dispatches analysis and description sub-jobs fire-and-forget, and renders
// the site from a best-effort snapshot of whatever data exists at read
// time. Sub-jobs are never awaited; completed ones enrich the next run.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devforge-dev/devforge/internal/deploy"
	"github.com/devforge-dev/devforge/internal/events"
	"github.com/devforge-dev/devforge/internal/queue"
	"github.com/devforge-dev/devforge/internal/render"
	"github.com/devforge-dev/devforge/internal/store"
	"github.com/devforge-dev/devforge/internal/tasks"
	"github.com/devforge-dev/devforge/pkg/models"
	"github.com/google/uuid"
)

type Orchestrator struct {
	store    store.Store
	queue    queue.Queue
	bus      events.Bus
	renderer *render.Renderer
	deployer *deploy.Deployer
	topRepos int
	now      func() time.Time
}

func New(st store.Store, q queue.Queue, bus events.Bus, r *render.Renderer, d *deploy.Deployer, topRepos int) *Orchestrator {
	if topRepos < 1 {
		topRepos = 20
	}
	return &Orchestrator{
		store:    st,
		queue:    q,
		bus:      bus,
		renderer: r,
		deployer: d,
		topRepos: topRepos,
		now:      time.Now,
	}
}

// Registry is where task handlers are mounted.
type Registry interface {
	Register(taskType string, fn queue.HandlerFunc)
}

// RegisterHandlers mounts the generation task handler.
func (o *Orchestrator) RegisterHandlers(reg Registry) {
	reg.Register(tasks.TypeGeneratePortfolio, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p tasks.GeneratePortfolioPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return nil, o.Run(ctx, p.JobID)
	})
}

// Run executes the full generation sequence for one job. On any failure it
// performs terminal bookkeeping (job failed, progress 100, failure event)
// before returning the error to the task runner's retry policy.
func (o *Orchestrator) Run(ctx context.Context, jobID uuid.UUID) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	url, err := o.generate(ctx, job)
	if err != nil {
		o.markFailed(ctx, job, err)
		return err
	}

	if err := o.advance(ctx, job, models.JobStatusCompleted, 100, "Completed", url, true); err != nil {
		return err
	}
	slog.Info("portfolio generated", "job_id", job.ID, "url", url)
	return nil
}

func (o *Orchestrator) generate(ctx context.Context, job *models.GenerationJob) (string, error) {
	portfolio, err := o.store.GetPortfolio(ctx, job.PortfolioID)
	if err != nil {
		return "", fmt.Errorf("load portfolio: %w", err)
	}

	if err := o.advance(ctx, job, models.JobStatusProcessing, 5, "Starting generation", "", false); err != nil {
		return "", err
	}

	repos, err := o.store.ListRepositoriesByUser(ctx, job.UserID, o.topRepos)
	if err != nil {
		return "", fmt.Errorf("load repositories: %w", err)
	}

	// Stage 2: fan out one analysis job per repository. Not awaited.
	for i, repo := range repos {
		if _, err := o.queue.Enqueue(ctx, tasks.TypeAnalyzeRepository,
			tasks.AnalyzeRepositoryPayload{RepositoryID: repo.ID}); err != nil {
			return "", fmt.Errorf("dispatch analysis for %s: %w", repo.FullName, err)
		}

		progress := 20 + 25*(i+1)/len(repos)
		step := fmt.Sprintf("Analyzing repositories (%d/%d)", i+1, len(repos))
		if err := o.advance(ctx, job, models.JobStatusProcessing, progress, step, "", false); err != nil {
			return "", err
		}
	}

	// Stage 3: fan out description generation. Not awaited either.
	if err := o.advance(ctx, job, models.JobStatusProcessing, 50, "Generating AI descriptions", "", false); err != nil {
		return "", err
	}
	for i, repo := range repos {
		if _, err := o.queue.Enqueue(ctx, tasks.TypeDescribeRepository,
			tasks.DescribeRepositoryPayload{RepositoryID: repo.ID}); err != nil {
			return "", fmt.Errorf("dispatch description for %s: %w", repo.FullName, err)
		}

		progress := 50 + 25*(i+1)/len(repos)
		step := fmt.Sprintf("Generating AI descriptions (%d/%d)", i+1, len(repos))
		if err := o.advance(ctx, job, models.JobStatusProcessing, progress, step, "", false); err != nil {
			return "", err
		}
	}

	// Stage 4: render from a fresh snapshot. Dispatched work that already
	// finished shows up here; the rest lands on a later run.
	if err := o.advance(ctx, job, models.JobStatusProcessing, 80, "Rendering portfolio", "", false); err != nil {
		return "", err
	}

	data, err := o.snapshot(ctx, job, portfolio)
	if err != nil {
		return "", err
	}

	html, err := o.renderer.Portfolio(data)
	if err != nil {
		return "", err
	}

	url, err := o.deployer.Publish(portfolio.Subdomain, html)
	if err != nil {
		return "", err
	}

	if err := o.store.SetPortfolioGenerated(ctx, portfolio.ID, html, o.now().UTC()); err != nil {
		return "", fmt.Errorf("persist generated portfolio: %w", err)
	}
	return url, nil
}

func (o *Orchestrator) snapshot(ctx context.Context, job *models.GenerationJob, portfolio *models.Portfolio) (render.PageData, error) {
	user, err := o.store.GetUser(ctx, job.UserID)
	if err != nil {
		return render.PageData{}, fmt.Errorf("load user: %w", err)
	}

	// The profile is optional; a user who never completed a sync still
	// gets a page.
	profile, err := o.store.GetProfileByUser(ctx, job.UserID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return render.PageData{}, fmt.Errorf("load profile: %w", err)
		}
		profile = nil
	}

	repos, err := o.store.ListRepositoriesByUser(ctx, job.UserID, o.topRepos)
	if err != nil {
		return render.PageData{}, fmt.Errorf("reload repositories: %w", err)
	}

	skills, err := o.store.ListSkillsByUser(ctx, job.UserID)
	if err != nil {
		return render.PageData{}, fmt.Errorf("load skills: %w", err)
	}

	return render.PageData{
		User:         user,
		Profile:      profile,
		Portfolio:    portfolio,
		Repositories: repos,
		Skills:       skills,
		GeneratedAt:  o.now().UTC(),
	}, nil
}

// advance persists the job transition and broadcasts the matching event.
// A publish failure is logged but never fails the run; the job row is the
// state of record.
func (o *Orchestrator) advance(ctx context.Context, job *models.GenerationJob, status string, progress int, step, url string, terminal bool) error {
	opts := []store.JobUpdateOption{
		store.WithStatus(status),
		store.WithProgress(progress),
		store.WithStep(step),
	}
	if terminal {
		opts = append(opts, store.WithCompleted())
	}
	if err := o.store.UpdateJob(ctx, job.ID, opts...); err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	event := models.GenerationEvent{
		JobID:    job.ID.String(),
		Status:   status,
		Progress: progress,
		Step:     step,
		URL:      url,
	}
	if err := o.bus.Publish(ctx, event); err != nil {
		slog.Warn("event publish failed", "job_id", job.ID, "error", err)
	}
	return nil
}

// markFailed performs best-effort terminal bookkeeping for a failed run.
func (o *Orchestrator) markFailed(ctx context.Context, job *models.GenerationJob, cause error) {
	msg := cause.Error()
	err := o.store.UpdateJob(ctx, job.ID,
		store.WithStatus(models.JobStatusFailed),
		store.WithProgress(100),
		store.WithStep("Failed"),
		store.WithErrorMessage(msg),
		store.WithCompleted(),
	)
	if err != nil {
		slog.Error("failed to record job failure", "job_id", job.ID, "error", err)
	}

	event := models.GenerationEvent{
		JobID:    job.ID.String(),
		Status:   models.JobStatusFailed,
		Progress: 100,
		Step:     "Failed",
		Error:    msg,
	}
	if err := o.bus.Publish(ctx, event); err != nil {
		slog.Warn("failure event publish failed", "job_id", job.ID, "error", err)
	}
}
