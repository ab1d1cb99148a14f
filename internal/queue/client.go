/**
 * Enqueue client
 *
 * Submits transcript jobs to the Redis queue. Used by ingestion tooling
 * and the batch command to feed the worker.
 */

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer submits transcript jobs.
type Enqueuer struct {
	client    *asynq.Client
	queueName string
}

// NewEnqueuer builds an enqueue client for the given Redis URL.
func NewEnqueuer(redisURL, queueName string) (*Enqueuer, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if queueName == "" {
		queueName = DefaultQueueName
	}
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Enqueuer{
		client:    asynq.NewClient(redisOpt),
		queueName: queueName,
	}, nil
}

// Enqueue submits one job and returns the queue task id.
func (e *Enqueuer) Enqueue(ctx context.Context, job *TranscriptTask) (string, error) {
	task, err := NewProcessTask(job)
	if err != nil {
		return "", err
	}
	info, err := e.client.EnqueueContext(ctx, task,
		asynq.Queue(e.queueName),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", job.JobID, err)
	}
	return info.ID, nil
}

// EnqueueBatch submits several jobs, returning the task id per job id.
// The first failure stops the batch; already-submitted jobs stay queued.
func (e *Enqueuer) EnqueueBatch(ctx context.Context, jobs []*TranscriptTask) (map[string]string, error) {
	ids := make(map[string]string, len(jobs))
	for _, job := range jobs {
		id, err := e.Enqueue(ctx, job)
		if err != nil {
			return ids, err
		}
		ids[job.JobID] = id
	}
	return ids, nil
}

// Close releases the underlying Redis connection.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}
