package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zimi2002/qr-system/internal/config"
	"github.com/zimi2002/qr-system/internal/queue"
	"github.com/zimi2002/qr-system/internal/sheets"
	"github.com/zimi2002/qr-system/internal/sheetsync"
	"github.com/zimi2002/qr-system/internal/store"
	"github.com/zimi2002/qr-system/internal/students"
)

// Worker consumes queued sync jobs and runs the sheet-sync pipeline.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "qrsystem:sync-jobs")
	}

	repo := students.NewRepository(db.Client)
	pipeline := sheetsync.NewPipeline(sheets.New(cfg.SheetsAPIKey), repo, cfg.SyncBatchSize)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for sync jobs...")
	for msg := range messages {
		if msg.Type != "sync" {
			continue
		}

		var job queue.SyncJob
		if err := json.Unmarshal(msg.Body, &job); err != nil {
			log.Printf("bad sync job payload: %v", err)
			continue
		}
		if job.SheetID == "" {
			job.SheetID = cfg.DefaultSheetID
		}
		if job.SheetID == "" {
			log.Println("sync job without sheet id, skipping")
			continue
		}

		report, err := pipeline.Run(ctx, job.SheetID, job.CellRange)
		if err != nil {
			log.Printf("sync of sheet %s failed: %v", job.SheetID, err)
			continue
		}
		log.Printf("sync of sheet %s: inserted=%d skipped=%d errors=%d",
			job.SheetID, report.Stats.Inserted, report.Stats.Skipped, report.Stats.Errors)
	}

	log.Println("worker stopped")
}
