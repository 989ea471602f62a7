package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue for tests. Handlers run on their own
// goroutine as soon as a task is enqueued.
type MemoryQueue struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	states   map[string]*memoryTaskState
	wg       sync.WaitGroup
}

type memoryTaskState struct {
	status Status
	result json.RawMessage
	errMsg string
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		handlers: make(map[string]HandlerFunc),
		states:   make(map[string]*memoryTaskState),
	}
}

func (q *MemoryQueue) Register(taskType string, fn HandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskType] = fn
}

func (q *MemoryQueue) Enqueue(ctx context.Context, taskType string, payload any) (*Handle, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	id := uuid.New().String()

	q.mu.Lock()
	handler, ok := q.handlers[taskType]
	q.states[id] = &memoryTaskState{status: StatusPending}
	q.mu.Unlock()

	if !ok {
		q.finish(id, nil, ErrUnknownTaskType)
		return NewHandle(q, id), nil
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		q.setStatus(id, StatusRunning)
		result, err := handler(ctx, raw)
		q.finish(id, result, err)
	}()

	return NewHandle(q, id), nil
}

func (q *MemoryQueue) Status(_ context.Context, taskID string) (Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	state, ok := q.states[taskID]
	if !ok {
		return "", ErrTaskNotFound
	}
	return state.status, nil
}

func (q *MemoryQueue) Result(_ context.Context, taskID string, dest any) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	state, ok := q.states[taskID]
	if !ok {
		return ErrTaskNotFound
	}

	switch state.status {
	case StatusFailed:
		return fmt.Errorf("%w: %s", ErrTaskFailed, state.errMsg)
	case StatusSucceeded:
		if dest == nil {
			return nil
		}
		return json.Unmarshal(state.result, dest)
	default:
		return fmt.Errorf("task %s not finished", taskID)
	}
}

// Wait blocks until all in-flight handlers return.
func (q *MemoryQueue) Wait() {
	q.wg.Wait()
}

func (q *MemoryQueue) setStatus(id string, status Status) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if state, ok := q.states[id]; ok {
		state.status = status
	}
}

func (q *MemoryQueue) finish(id string, result any, err error) {
	var encoded json.RawMessage
	if err == nil {
		encoded, err = json.Marshal(result)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	state, ok := q.states[id]
	if !ok {
		return
	}
	if err != nil {
		state.status = StatusFailed
		state.errMsg = err.Error()
		return
	}
	state.status = StatusSucceeded
	state.result = encoded
}

var _ Queue = (*MemoryQueue)(nil)
