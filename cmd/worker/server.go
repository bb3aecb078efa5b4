package main

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"storefront-backend/internal/shared"
)

// asynqServer wraps asynq.Server with additional functionality
type asynqServer struct {
	*asynq.Server
}

// setupAsynqServer creates and configures the Asynq server
func setupAsynqServer(redisOpt asynq.RedisConnOpt, concurrency int, handlers *HandlerRegistry) *asynqServer {
	mux := asynq.NewServeMux()
	handlers.RegisterHandlers(mux)

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Queues: map[string]int{
				shared.QueuePayment: 10,
				shared.QueueDefault: 5,
			},
			Concurrency: concurrency,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error().Err(err).Str("task_type", task.Type()).Msg("[Asynq] Task failed")
			}),
		},
	)

	// Start server in goroutine
	go func() {
		log.Info().Msg("[Worker] Starting...")
		if err := srv.Run(mux); err != nil {
			log.Fatal().Err(err).Msg("[Worker] Failed")
		}
	}()

	return &asynqServer{Server: srv}
}

// Shutdown waits for in-flight tasks up to asynq's ShutdownTimeout.
func (s *asynqServer) Shutdown() {
	log.Info().Msg("[Worker] Shutting down...")
	s.Server.Shutdown()
	log.Info().Msg("[Worker] Gracefully stopped")
}
