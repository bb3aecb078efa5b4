// cmd/worker/main.go
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"storefront-backend/pkg/container"
	"storefront-backend/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	logger.Init(os.Getenv("APP_ENV"))

	// Initialize container
	c, err := container.NewContainer()
	if err != nil {
		log.Fatal().Err(err).Msg("[Container] Failed to initialize")
	}
	defer c.Cleanup()

	// The worker shares the API's Redis connection pool.
	redisOpt := asynqRedisOpt(c)

	// Initialize handlers
	handlers := initializeHandlers(c)

	// Setup Asynq server
	srv := setupAsynqServer(redisOpt, c.Config.Worker.Concurrency, handlers)

	// Setup scheduler
	scheduler := setupScheduler(redisOpt, c.Config.Payment.ReconcileInterval)

	// Perform health checks and log startup
	if err := startServices(c); err != nil {
		log.Fatal().Err(err).Msg("[Startup] Health check failed")
	}

	// Wait for shutdown signal
	waitForShutdown(srv, scheduler)
}

func asynqRedisOpt(c *container.Container) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.Config.Redis.Host,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	}
}

func waitForShutdown(srv *asynqServer, scheduler *asynqScheduler) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("[Shutdown] Gracefully stopping...")
	scheduler.Shutdown()
	srv.Shutdown()
	log.Info().Msg("[Shutdown] Stopped")
}
