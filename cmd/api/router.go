package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	paymentJob "storefront-backend/internal/domains/payment/job"
	"storefront-backend/internal/shared"
	"storefront-backend/internal/shared/middleware"
	"storefront-backend/internal/shared/response"
	"storefront-backend/pkg/container"
	"storefront-backend/pkg/jwt"
)

func SetupRouter(c *container.Container) *gin.Engine {
	router := gin.New()

	// Global middlewares
	router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.ClientIPMiddleware(),
		middleware.Logger(),
	)

	v1 := router.Group("/api/v1")
	{
		// Health check
		v1.GET("/health", healthCheckHandler(c))

		setupPaymentRoutes(v1, c)
		setupCallbackRoutes(v1, c)
		setupWebhookRoutes(v1, c)
		setupAdminPaymentRoutes(v1, c)
	}

	return router
}

// ========================================
// PAYMENT ROUTES (service tokens)
// ========================================
func setupPaymentRoutes(v1 *gin.RouterGroup, c *container.Container) {
	payments := v1.Group("/payments")
	payments.Use(middleware.AuthMiddleware(c.JWTManager))
	{
		payments.POST("/orders/:order_id/initiate", c.PaymentHandler.InitiatePayment)
		payments.POST("/orders/:order_id/verify", c.PaymentHandler.VerifyPayment)
		payments.POST("/orders/:order_id/refund", middleware.RequireRole(jwt.RoleAdmin), c.PaymentHandler.Refund)
		payments.GET("/methods/:code/fields", c.PaymentHandler.ConfigFields)
	}
}

// ========================================
// CALLBACK ROUTES (customer browser)
// ========================================
func setupCallbackRoutes(v1 *gin.RouterGroup, c *container.Container) {
	callbacks := v1.Group("/payments/callback")
	callbacks.Use(c.CallbackRateLimiter.Middleware())
	{
		callbacks.GET("/:provider", c.PaymentHandler.Callback)
		callbacks.POST("/:provider", c.PaymentHandler.Callback)
	}
}

// ========================================
// WEBHOOK ROUTES (provider servers)
// ========================================
func setupWebhookRoutes(v1 *gin.RouterGroup, c *container.Container) {
	webhooks := v1.Group("/webhooks")
	webhooks.Use(c.CallbackRateLimiter.Middleware())
	{
		webhooks.POST("/:provider", c.PaymentHandler.Webhook)
	}
}

// ========================================
// ADMIN PAYMENT ROUTES
// ========================================
func setupAdminPaymentRoutes(v1 *gin.RouterGroup, c *container.Container) {
	admin := v1.Group("/admin/payments")
	admin.Use(
		middleware.AuthMiddleware(c.JWTManager),
		middleware.RequireRole(jwt.RoleAdmin),
	)
	{
		admin.POST("/reconcile", enqueueReconcileHandler(c))
	}
}

// ========================================
// HEALTH CHECK HANDLER
// ========================================
func healthCheckHandler(appCtx *container.Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   appCtx.Config.App.Version,
			"providers": appCtx.Registry.Codes(),
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		// Check database
		dbStatus := "ok"
		if err := appCtx.DB.HealthCheck(ctx); err != nil {
			dbStatus = fmt.Sprintf("error: %v", err)
			health["status"] = "degraded"
		}

		// Check redis (locks live there, so it is critical too)
		redisStatus := "ok"
		if err := appCtx.Redis.HealthCheck(ctx); err != nil {
			redisStatus = fmt.Sprintf("error: %v", err)
			health["status"] = "degraded"
		}

		health["services"] = gin.H{
			"database": dbStatus,
			"redis":    redisStatus,
		}

		statusCode := http.StatusOK
		if health["status"] != "ok" {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, health)
	}
}

// ========================================
// RECONCILE TRIGGER
// ========================================

// enqueueReconcileHandler queues an out-of-schedule reconcile run.
func enqueueReconcileHandler(appCtx *container.Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.GetString(middleware.ContextKeySubject)

		task, err := paymentJob.NewReconcileTask("admin:" + subject)
		if err != nil {
			response.InternalServerError(c, "failed to build task")
			return
		}

		info, err := appCtx.AsynqClient.EnqueueContext(c.Request.Context(), task,
			asynq.Queue(shared.QueuePayment),
			asynq.Unique(time.Minute),
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to enqueue reconcile task")
			response.Error(c, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "failed to enqueue reconcile task")
			return
		}

		response.Success(c, http.StatusAccepted, "Reconcile queued", gin.H{"task_id": info.ID})
	}
}
