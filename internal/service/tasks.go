package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/model"
)

// TaskQueue schedules background work for generation records
type TaskQueue interface {
	EnqueueGeneration(ctx context.Context, recordID string) error
	EnqueueSync(ctx context.Context, recordID string, poll int, delay time.Duration) error
}

// ErrQueueFull is returned when the generation queue is at capacity
var ErrQueueFull = errors.New("generation queue is full")

// AsynqQueue enqueues tasks on redis through asynq
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	capacity  int
}

// NewAsynqQueue creates a queue. With an inspector and a positive capacity,
// generation tasks are rejected once that many are pending.
func NewAsynqQueue(client *asynq.Client, inspector *asynq.Inspector, capacity int) *AsynqQueue {
	return &AsynqQueue{client: client, inspector: inspector, capacity: capacity}
}

// EnqueueGeneration queues a dispatch. asynq retries are off because the
// orchestrator applies its own retry policy.
func (q *AsynqQueue) EnqueueGeneration(ctx context.Context, recordID string) error {
	if err := q.checkCapacity(); err != nil {
		return err
	}

	task, err := NewGenerateTask(recordID)
	if err != nil {
		return err
	}

	_, err = q.client.EnqueueContext(ctx, task,
		asynq.Queue(model.QueueGeneration),
		asynq.MaxRetry(0),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func (q *AsynqQueue) EnqueueSync(ctx context.Context, recordID string, poll int, delay time.Duration) error {
	task, err := NewSyncTask(recordID, poll)
	if err != nil {
		return err
	}

	_, err = q.client.EnqueueContext(ctx, task,
		asynq.Queue(model.QueueSync),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(0),
		asynq.Timeout(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func (q *AsynqQueue) checkCapacity() error {
	if q.inspector == nil || q.capacity <= 0 {
		return nil
	}
	info, err := q.inspector.GetQueueInfo(model.QueueGeneration)
	if err != nil {
		// the queue does not exist until the first task is enqueued
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return nil
		}
		return fmt.Errorf("failed to inspect queue: %w", err)
	}
	if info.Pending+info.Active >= q.capacity {
		return ErrQueueFull
	}
	return nil
}

func NewGenerateTask(recordID string) (*asynq.Task, error) {
	data, err := json.Marshal(model.GenerateTaskPayload{RecordID: recordID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(model.TaskTypeGenerate, data), nil
}

func NewSyncTask(recordID string, poll int) (*asynq.Task, error) {
	data, err := json.Marshal(model.SyncTaskPayload{RecordID: recordID, Poll: poll})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(model.TaskTypeSync, data), nil
}
