/**
 * Batch enqueue command
 *
 * Submits scanned transcript files to the worker's Redis queue and
 * prints the job and task identifiers. Processing happens asynchronously
 * in the worker; this command returns as soon as the jobs are queued.
 *
 * Usage: enqueue <file> [file...]
 */

package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/landreg/transcript-worker/internal/config"
	"github.com/landreg/transcript-worker/internal/queue"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s <file> [file...]", filepath.Base(os.Args[0]))
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	jobs := make([]*queue.TranscriptTask, 0, len(os.Args)-1)
	for _, path := range os.Args[1:] {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", path, err)
		}
		jobs = append(jobs, &queue.TranscriptTask{
			JobID:    uuid.NewString(),
			Filename: filepath.Base(path),
			FileData: data,
		})
	}

	enqueuer, err := queue.NewEnqueuer(cfg.RedisURL, cfg.QueueName)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer enqueuer.Close()

	ctx := context.Background()
	taskIDs, err := enqueuer.EnqueueBatch(ctx, jobs)
	for _, job := range jobs {
		if taskID, ok := taskIDs[job.JobID]; ok {
			log.Printf("Enqueued %s: job=%s task=%s", job.Filename, job.JobID, taskID)
		}
	}
	if err != nil {
		log.Fatalf("Enqueue failed after %d of %d jobs: %v", len(taskIDs), len(jobs), err)
	}
	log.Printf("Queued %d job(s) on %s", len(jobs), cfg.QueueName)
}
