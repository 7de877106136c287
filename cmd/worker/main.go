package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schoolmarks/internal/checkin"
	"schoolmarks/internal/config"
	"schoolmarks/internal/scheduler"
	"schoolmarks/internal/store"
)

// Worker polls the close-task schedule and runs the reconciler for every
// session whose window has elapsed. Failed tasks stay scheduled and are
// retried on the next tick; the reconciler is idempotent so retries are safe.
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

	var sched scheduler.Scheduler
	if cfg.SchedulerBackend == "memory" {
		sched = scheduler.NewInMemory()
	} else {
		sched = scheduler.NewRedisScheduler(redisClient.Client, cfg.SchedulerKey)
	}

	repo := checkin.NewRepository(db.Client)
	reconciler := checkin.NewReconciler(repo)

	ticker := time.NewTicker(cfg.ClosePollInterval)
	defer ticker.Stop()

	log.Println("worker started, polling for due close tasks...")
	for {
		select {
		case <-ctx.Done():
			log.Println("worker stopped")
			return
		case now := <-ticker.C:
			tasks, err := sched.Due(ctx, now)
			if err != nil {
				log.Printf("schedule poll failed: %v", err)
				continue
			}
			for _, task := range tasks {
				if task.Kind != checkin.CloseTaskKind {
					continue
				}
				if err := reconciler.CloseSession(ctx, task.ID); err != nil {
					log.Printf("close task %s failed, will retry: %v", task.ID, err)
					continue
				}
				if err := sched.Done(ctx, task); err != nil {
					log.Printf("mark task %s done failed: %v", task.ID, err)
				}
			}
		}
	}
}
