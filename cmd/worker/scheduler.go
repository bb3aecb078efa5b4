package main

import (
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"storefront-backend/internal/infrastructure/queue"
)

// asynqScheduler wraps queue.Scheduler with additional functionality
type asynqScheduler struct {
	*queue.Scheduler
}

// setupScheduler creates and configures the scheduler
func setupScheduler(redisOpt asynq.RedisConnOpt, reconcileInterval time.Duration) *asynqScheduler {
	scheduler := queue.NewScheduler(redisOpt)

	if err := scheduler.RegisterPaymentJobs(reconcileInterval); err != nil {
		log.Fatal().Err(err).Msg("[Scheduler] Failed to register")
	}

	// Start scheduler in goroutine
	go func() {
		log.Info().Msg("[Scheduler] Starting...")
		if err := scheduler.Start(); err != nil {
			log.Fatal().Err(err).Msg("[Scheduler] Failed")
		}
	}()

	return &asynqScheduler{Scheduler: scheduler}
}

// Shutdown gracefully shuts down the scheduler
func (s *asynqScheduler) Shutdown() {
	log.Info().Msg("[Scheduler] Shutting down...")
	s.Scheduler.Shutdown()
	log.Info().Msg("[Scheduler] Stopped")
}
