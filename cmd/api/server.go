package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"storefront-backend/pkg/container"
)

func Serve() {
	// ========================================
	// 1. BUILD DI CONTAINER
	// ========================================
	appContainer, err := container.NewContainer()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize container")
	}
	defer appContainer.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Evict idle per-IP limiters in the background
	go appContainer.CallbackRateLimiter.Run(ctx)
	go appContainer.DB.MonitorPoolHealth(ctx, time.Minute)

	// ========================================
	// 2. SETUP ROUTER
	// ========================================
	router := SetupRouter(appContainer)

	// ========================================
	// 3. CONFIGURE HTTP SERVER
	// ========================================
	port := appContainer.Config.App.Port
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: router,
		// Verify and refund wait on provider APIs.
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   appContainer.Config.Payment.HTTPTimeout + 15*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// ========================================
	// 4. START SERVER (NON-BLOCKING)
	// ========================================
	go func() {
		log.Info().
			Str("port", port).
			Str("environment", appContainer.Config.App.Environment).
			Msgf("Server listening, health check at http://localhost:%s/api/v1/health", port)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// ========================================
	// 5. GRACEFUL SHUTDOWN
	// ========================================
	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}
