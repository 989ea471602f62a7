// Package queue provides the background task queue used for repository
// analysis and portfolio generation. Producers enqueue typed tasks and get
// back a handle; workers pull tasks, run the registered handler, and record
// the outcome so producers can join on completion.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether a task in this status will never change again.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

var (
	ErrJoinTimeout     = errors.New("timed out waiting for tasks")
	ErrTaskNotFound    = errors.New("task not found")
	ErrTaskFailed      = errors.New("task failed")
	ErrUnknownTaskType = errors.New("no handler registered for task type")
)

// Task is the unit of work carried on the wire.
type Task struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// HandlerFunc executes one task. The returned value is JSON-marshaled and
// stored as the task result.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// Queue enqueues tasks and exposes their status and result.
type Queue interface {
	// Enqueue serializes payload and submits a task of the given type.
	Enqueue(ctx context.Context, taskType string, payload any) (*Handle, error)

	Status(ctx context.Context, taskID string) (Status, error)

	// Result decodes the stored result of a succeeded task into dest.
	// Returns ErrTaskFailed (wrapping the handler error message) for a
	// failed task.
	Result(ctx context.Context, taskID string, dest any) error
}

// Handle refers to one enqueued task.
type Handle struct {
	ID string

	q Queue
}

func NewHandle(q Queue, id string) *Handle {
	return &Handle{ID: id, q: q}
}

func (h *Handle) Status(ctx context.Context) (Status, error) {
	return h.q.Status(ctx, h.ID)
}

func (h *Handle) Result(ctx context.Context, dest any) error {
	return h.q.Result(ctx, h.ID, dest)
}

const joinPollInterval = 200 * time.Millisecond

// Join blocks until every handle reaches a terminal status or the timeout
// elapses. On timeout it returns ErrJoinTimeout; handles that finished
// before the deadline keep their results.
func Join(ctx context.Context, timeout time.Duration, handles ...*Handle) error {
	deadline := time.Now().Add(timeout)
	remaining := make(map[string]*Handle, len(handles))
	for _, h := range handles {
		remaining[h.ID] = h
	}

	ticker := time.NewTicker(joinPollInterval)
	defer ticker.Stop()

	for len(remaining) > 0 {
		for id, h := range remaining {
			status, err := h.Status(ctx)
			if err != nil {
				return err
			}
			if status.Terminal() {
				delete(remaining, id)
			}
		}
		if len(remaining) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrJoinTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
