package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/devforge-dev/devforge/internal/cache"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	taskList     = "queue:tasks"
	batchList    = "queue:commit-batches"
	taskStateTTL = time.Hour
	popTimeout   = time.Second
)

// RedisQueue is the production Queue: tasks travel on a Redis list and task
// state lives in a per-task hash that expires after taskStateTTL.
type RedisQueue struct {
	client *redis.Client
	list   string
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return NewRedisQueueOn(client, taskList)
}

// NewRedisBatchQueue returns the queue commit-batch tasks run on. Batches get
// their own list because the repository task that fans them out holds a worker
// slot while it joins them.
func NewRedisBatchQueue(client *redis.Client) *RedisQueue {
	return NewRedisQueueOn(client, batchList)
}

// NewRedisQueueOn places tasks on a dedicated list. Workers drain one list
// each, so tasks that block waiting on child tasks must not share a list
// (and therefore a worker pool) with the children they wait for.
func NewRedisQueueOn(client *redis.Client, list string) *RedisQueue {
	return &RedisQueue{client: client, list: list}
}

func (q *RedisQueue) Enqueue(ctx context.Context, taskType string, payload any) (*Handle, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	task := Task{
		ID:      uuid.New().String(),
		Type:    taskType,
		Payload: raw,
	}
	encoded, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, cache.TaskKey(task.ID), "status", string(StatusPending))
	pipe.Expire(ctx, cache.TaskKey(task.ID), taskStateTTL)
	pipe.LPush(ctx, q.list, encoded)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue task: %w", err)
	}

	return NewHandle(q, task.ID), nil
}

func (q *RedisQueue) Status(ctx context.Context, taskID string) (Status, error) {
	status, err := q.client.HGet(ctx, cache.TaskKey(taskID), "status").Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTaskNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get task status: %w", err)
	}
	return Status(status), nil
}

func (q *RedisQueue) Result(ctx context.Context, taskID string, dest any) error {
	state, err := q.client.HGetAll(ctx, cache.TaskKey(taskID)).Result()
	if err != nil {
		return fmt.Errorf("get task state: %w", err)
	}
	if len(state) == 0 {
		return ErrTaskNotFound
	}

	switch Status(state["status"]) {
	case StatusFailed:
		return fmt.Errorf("%w: %s", ErrTaskFailed, state["error"])
	case StatusSucceeded:
		if dest == nil {
			return nil
		}
		return json.Unmarshal([]byte(state["result"]), dest)
	default:
		return fmt.Errorf("task %s not finished", taskID)
	}
}

func (q *RedisQueue) setStatus(ctx context.Context, taskID string, fields map[string]string) error {
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, cache.TaskKey(taskID), fields)
	pipe.Expire(ctx, cache.TaskKey(taskID), taskStateTTL)
	_, err := pipe.Exec(ctx)
	return err
}

var _ Queue = (*RedisQueue)(nil)

// Worker pulls tasks off the Redis list and dispatches them to registered
// handlers with a pool of goroutines. Transient handler failures are
// retried with exponential backoff up to maxRetries before the task is
// marked failed.
type Worker struct {
	queue       *RedisQueue
	handlers    map[string]HandlerFunc
	concurrency int
	maxRetries  int
}

func NewWorker(q *RedisQueue, concurrency, maxRetries int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:       q,
		handlers:    make(map[string]HandlerFunc),
		concurrency: concurrency,
		maxRetries:  maxRetries,
	}
}

func (w *Worker) Register(taskType string, fn HandlerFunc) {
	w.handlers[taskType] = fn
}

// Run blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("worker starting", "concurrency", w.concurrency)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error { return w.loop(ctx) })
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := w.queue.client.BRPop(ctx, popTimeout, w.queue.list).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("queue pop failed", "error", err)
			time.Sleep(popTimeout)
			continue
		}

		var task Task
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			slog.Error("dropping undecodable task", "error", err)
			continue
		}

		w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task Task) {
	logger := slog.With("task_id", task.ID, "task_type", task.Type)

	handler, ok := w.handlers[task.Type]
	if !ok {
		logger.Error("no handler for task type")
		_ = w.queue.setStatus(ctx, task.ID, map[string]string{
			"status": string(StatusFailed),
			"error":  ErrUnknownTaskType.Error(),
		})
		return
	}

	if err := w.queue.setStatus(ctx, task.ID, map[string]string{
		"status": string(StatusRunning),
	}); err != nil {
		logger.Error("failed to mark task running", "error", err)
	}

	var result any
	op := func() error {
		var err error
		result, err = handler(ctx, task.Payload)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(w.maxRetries)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		logger.Error("task failed", "error", err)
		_ = w.queue.setStatus(ctx, task.ID, map[string]string{
			"status": string(StatusFailed),
			"error":  err.Error(),
		})
		return
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		logger.Error("failed to marshal task result", "error", err)
		_ = w.queue.setStatus(ctx, task.ID, map[string]string{
			"status": string(StatusFailed),
			"error":  "unencodable result: " + err.Error(),
		})
		return
	}

	if err := w.queue.setStatus(ctx, task.ID, map[string]string{
		"status": string(StatusSucceeded),
		"result": string(encoded),
	}); err != nil {
		logger.Error("failed to record task result", "error", err)
	}
	logger.Debug("task completed")
}
