// cmd/worker/startup.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"storefront-backend/pkg/container"
)

// HealthChecker performs startup health checks
type HealthChecker struct {
	c *container.Container
}

// startServices performs health checks and starts the probe endpoint
func startServices(c *container.Container) error {
	log.Info().Strs("providers", c.Registry.Codes()).Msg("Payment worker starting")

	checker := &HealthChecker{c: c}
	if err := checker.checkAll(); err != nil {
		return err
	}

	go startHealthCheckServer(checker)

	return nil
}

// checkAll runs all health checks
func (h *HealthChecker) checkAll() error {
	checks := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"Redis Connection", h.c.Redis.HealthCheck},
		{"Database Connection", h.c.DB.HealthCheck},
	}

	for _, check := range checks {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := check.fn(ctx)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("check", check.name).Msg("Health check failed")
			return fmt.Errorf("%s failed: %w", check.name, err)
		}
		log.Info().Str("check", check.name).Msg("Health check OK")
	}

	return nil
}

// startHealthCheckServer serves liveness and readiness probes on :9999
func startHealthCheckServer(h *HealthChecker) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"UP","service":"payment-worker"}`))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := h.checkAll(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"NOT_READY"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"READY"}`))
	})

	log.Info().Msg("[Health] Starting health check server on :9999")
	if err := http.ListenAndServe(":9999", mux); err != nil {
		log.Error().Err(err).Msg("[Health] Failed to start")
	}
}
