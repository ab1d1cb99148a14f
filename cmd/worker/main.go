/**
 * Transcript worker - main entry point
 *
 * Worker for building title transcript digitization:
 * - Asynq consumer over a Redis-backed job queue
 * - Page preprocessing (denoise, deskew, contrast) before recognition
 * - Vision-model failover roster with a local Tesseract fallback
 * - Redis result cache keyed on content and pipeline configuration
 * - PostgreSQL persistence for records and job status
 */

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/landreg/transcript-worker/internal/cache"
	"github.com/landreg/transcript-worker/internal/config"
	"github.com/landreg/transcript-worker/internal/engine"
	"github.com/landreg/transcript-worker/internal/preprocess"
	"github.com/landreg/transcript-worker/internal/processor"
	"github.com/landreg/transcript-worker/internal/queue"
	"github.com/landreg/transcript-worker/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Transcript worker starting...")
	log.Printf("Configuration loaded: Redis=%s, Queue=%s, Workers=%d, DPI=%d",
		cfg.RedisURL, cfg.QueueName, cfg.WorkerConcurrency, cfg.RenderDPI)

	// Result cache. A broken Redis degrades to the in-process tier.
	var redisClient *redis.Client
	if opts, err := redis.ParseURL(cfg.RedisURL); err != nil {
		log.Printf("Warning: unparseable REDIS_URL for cache, using in-process tier only: %v", err)
	} else {
		redisClient = redis.NewClient(opts)
	}
	resultCache := cache.New(redisClient, cache.WithTTL(cfg.CacheTTL))

	// Persistence is optional; without DATABASE_URL records live in the
	// cache only.
	var store *storage.PostgresStore
	if cfg.DatabaseURL != "" {
		log.Printf("Connecting to PostgreSQL...")
		store, err = storage.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer store.Close()
		log.Printf("PostgreSQL connected")
	} else {
		log.Printf("DATABASE_URL not set, running without persistence")
	}

	// Recognition roster: configured vision models in order, Tesseract
	// as the offline last resort.
	engines := make([]engine.Engine, 0, len(cfg.EngineRoster)+1)
	for _, spec := range cfg.EngineRoster {
		eng, err := engine.NewVLMEngine(spec, cfg.EngineTimeout)
		if err != nil {
			log.Fatalf("Failed to configure engine %s/%s: %v", spec.Provider, spec.Model, err)
		}
		engines = append(engines, eng)
	}
	if cfg.TesseractEnabled {
		engines = append(engines, engine.NewTesseractEngine(nil, true))
	}
	for _, eng := range engines {
		if eng.Ready() {
			log.Printf("Engine %s: ready", eng.Name())
		} else {
			log.Printf("Warning: engine %s has no credential, it will be skipped", eng.Name())
		}
	}
	manager := engine.NewManager(engines)

	pipeline := preprocess.NewPipeline(preprocess.Options{
		DPI:              cfg.RenderDPI,
		Denoise:          true,
		DenoiseStrength:  10,
		Deskew:           true,
		Contrast:         true,
		QualityThreshold: cfg.QualityThreshold,
	})

	proc, err := processor.New(processor.Config{
		MaxFileSize: cfg.MaxFileSize,
		Language:    cfg.Language,
		ProcessedBy: cfg.WorkerName,
		Version:     cfg.Version,
	}, pipeline, manager, resultCache, nil)
	if err != nil {
		log.Fatalf("Failed to initialize processor: %v", err)
	}

	var jobStore queue.JobStore
	if store != nil {
		jobStore = store
	}
	consumer, err := queue.NewConsumer(queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		ProcessingTimeout: cfg.ProcessingTimeout,
	}, proc, jobStore)
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	ctx := context.Background()
	if err := consumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	log.Printf("===========================================")
	log.Printf("Transcript worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s", cfg.QueueName)
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("Engines: %v", manager.Engines())
	log.Printf("Render DPI: %d, quality threshold: %.2f", cfg.RenderDPI, cfg.QualityThreshold)
	log.Printf("===========================================")
	log.Printf("Waiting for jobs...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	if err := consumer.Stop(ctx); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	}

	if store != nil {
		if err := healthCheck(store, resultCache); err != nil {
			log.Printf("Post-shutdown health: %v", err)
		}
	}

	log.Printf("Shutdown complete")
}

// healthCheck verifies the worker's backing services.
func healthCheck(db *storage.PostgresStore, resultCache *cache.ResultCache) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if err := resultCache.Ping(ctx); err != nil {
		return fmt.Errorf("cache health check failed: %w", err)
	}
	return nil
}
