/**
 * Queue consumer for the transcript worker
 *
 * Consumes transcript jobs from Redis via Asynq, drives each through the
 * processing pipeline and persists the resulting record plus the job
 * status transitions.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/landreg/transcript-worker/internal/ocrerr"
	"github.com/landreg/transcript-worker/internal/payload"
	"github.com/landreg/transcript-worker/internal/processor"
	"github.com/landreg/transcript-worker/internal/storage"
)

// Pipeline is the processing entry point the consumer drives.
type Pipeline interface {
	Process(ctx context.Context, req *processor.Request) (*processor.Result, error)
}

// JobStore persists job transitions and finished records.
type JobStore interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
	StoreTranscript(ctx context.Context, record *payload.TranscriptPayload) error
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	ProcessingTimeout time.Duration
}

// Consumer handles job consumption from the Redis queue.
type Consumer struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	pipeline Pipeline
	store    JobStore
	cfg      ConsumerConfig
}

// NewConsumer builds the consumer. The store may be nil; records then
// live only in the result cache.
func NewConsumer(cfg ConsumerConfig, pipeline Pipeline, store JobStore) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueueName
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 5 * time.Minute
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Exponential backoff: 5s, 10s, 20s, capped at a minute.
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task processing error: type=%s, error=%v", task.Type(), err)
			}),
		},
	)

	consumer := &Consumer{
		server:   server,
		mux:      asynq.NewServeMux(),
		pipeline: pipeline,
		store:    store,
		cfg:      cfg,
	}
	consumer.mux.HandleFunc(TaskTypeProcessTranscript, consumer.HandleProcessTranscript)

	return consumer, nil
}

// Start runs the consumer until Stop.
func (c *Consumer) Start(ctx context.Context) error {
	log.Printf("Starting queue consumer (concurrency=%d, queue=%s)...",
		c.cfg.Concurrency, c.cfg.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			log.Printf("Queue consumer error: %v", err)
		}
	}()

	return nil
}

// Stop shuts the consumer down gracefully, letting in-flight jobs finish.
func (c *Consumer) Stop(ctx context.Context) error {
	log.Printf("Stopping queue consumer...")
	c.server.Shutdown()
	log.Printf("Queue consumer stopped")
	return nil
}

// HandleProcessTranscript processes one queued transcript job.
func (c *Consumer) HandleProcessTranscript(ctx context.Context, task *asynq.Task) error {
	start := time.Now()

	var job TranscriptTask
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		// Malformed payloads never succeed on retry.
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}

	log.Printf("[Job %s] Processing transcript: filename=%s, size=%d bytes",
		job.JobID, job.Filename, len(job.FileData))

	c.updateStatus(ctx, &storage.JobUpdate{JobID: job.JobID, Status: storage.JobProcessing})

	processCtx, cancel := context.WithTimeout(ctx, c.cfg.ProcessingTimeout)
	defer cancel()

	result, err := c.pipeline.Process(processCtx, &processor.Request{
		RequestID:  job.JobID,
		Filename:   job.Filename,
		Data:       job.FileData,
		PropertyID: job.PropertyID,
	})
	duration := time.Since(start)

	if err != nil {
		pErr := ocrerr.FromErr(err)
		log.Printf("[Job %s] Processing failed after %v: %v", job.JobID, duration, err)
		c.updateStatus(ctx, &storage.JobUpdate{
			JobID:            job.JobID,
			Status:           storage.JobFailed,
			ProcessingTimeMs: duration.Milliseconds(),
			ErrorCode:        string(pErr.Code),
			ErrorMessage:     pErr.Message,
		})
		if pErr.Code == ocrerr.ErrorValidation {
			// Bad input stays bad; do not retry.
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if c.store != nil && !result.CacheHit {
		if err := c.store.StoreTranscript(ctx, result.Payload); err != nil {
			log.Printf("[Job %s] Failed to persist record: %v", job.JobID, err)
			return err
		}
	}

	c.updateStatus(ctx, &storage.JobUpdate{
		JobID:            job.JobID,
		Status:           storage.JobCompleted,
		Confidence:       result.Payload.Metadata.OCREngine.Confidence,
		ProcessingTimeMs: duration.Milliseconds(),
		DocumentID:       result.Payload.Metadata.DocumentID,
		EngineUsed:       result.EngineName,
	})

	log.Printf("[Job %s] Completed in %v: engine=%s, cache_hit=%v, document=%s",
		job.JobID, duration.Round(time.Millisecond), result.EngineName, result.CacheHit,
		result.Payload.Metadata.DocumentID)

	return nil
}

// updateStatus logs rather than fails on store errors; a status row
// lagging behind is preferable to retry-looping a finished job.
func (c *Consumer) updateStatus(ctx context.Context, update *storage.JobUpdate) {
	if c.store == nil {
		return
	}
	if err := c.store.UpdateJobStatus(ctx, update); err != nil {
		log.Printf("[Job %s] Warning: failed to update status to %s: %v",
			update.JobID, update.Status, err)
	}
}
