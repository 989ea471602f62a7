// Package workflow models multi-step jobs as data: a tree of Sequence,
// Parallel, and Task nodes evaluated by Execute. Keeping the composition
// declarative lets the pipeline shape be unit-tested without any real
// executor behind it.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// ErrJoinTimeout reports that a Parallel node's join barrier exceeded its
// wait budget. Its children may still be running.
var ErrJoinTimeout = errors.New("parallel join timed out")

// Step is one node of a workflow tree.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
}

// Task is a leaf step. Retries is the number of additional attempts after
// the first, with exponential backoff between them.
type Task struct {
	Label   string
	Retries uint64
	Run     func(ctx context.Context) error
}

func (t Task) Name() string { return t.Label }

func (t Task) Execute(ctx context.Context) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), t.Retries), ctx)

	if err := backoff.Retry(func() error { return t.Run(ctx) }, policy); err != nil {
		return fmt.Errorf("%s: %w", t.Label, err)
	}
	return nil
}

// Sequence runs its children strictly in order. The first failure aborts
// the remainder; effects of completed children stay committed.
type Sequence struct {
	Label string
	Steps []Step
}

func (s Sequence) Name() string { return s.Label }

func (s Sequence) Execute(ctx context.Context) error {
	for _, step := range s.Steps {
		if err := step.Execute(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Parallel runs its children concurrently and joins on all of them. When
// JoinTimeout is set and expires first, Execute returns ErrJoinTimeout;
// children past the barrier may still complete on their own.
type Parallel struct {
	Label       string
	JoinTimeout time.Duration
	Steps       []Step
}

func (p Parallel) Name() string { return p.Label }

func (p Parallel) Execute(ctx context.Context) error {
	joinCtx := ctx
	if p.JoinTimeout > 0 {
		var cancel context.CancelFunc
		joinCtx, cancel = context.WithTimeout(ctx, p.JoinTimeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(joinCtx)
	for _, step := range p.Steps {
		g.Go(func() error { return step.Execute(gctx) })
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%s: %w", p.Label, ErrJoinTimeout)
		}
		return err
	}
	return nil
}
