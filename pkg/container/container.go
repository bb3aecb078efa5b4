package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"storefront-backend/internal/config"
	"storefront-backend/internal/domains/payment/gateway"
	"storefront-backend/internal/domains/payment/gateway/builtin"
	"storefront-backend/internal/domains/payment/gateway/credentials"
	"storefront-backend/internal/domains/payment/gateway/token"
	paymentHandler "storefront-backend/internal/domains/payment/handler"
	paymentRepo "storefront-backend/internal/domains/payment/repository"
	paymentService "storefront-backend/internal/domains/payment/service"
	infraCache "storefront-backend/internal/infrastructure/cache"
	"storefront-backend/internal/infrastructure/database"
	"storefront-backend/internal/shared/middleware"
	"storefront-backend/pkg/cache"
	pkgdb "storefront-backend/pkg/database"
	"storefront-backend/pkg/jwt"
	"storefront-backend/pkg/lock"
)

// ========================================
// CONTAINER STRUCT
// ========================================

// Container holds every long-lived dependency of the API and the worker.
type Container struct {
	// ========================================
	// INFRASTRUCTURE LAYER
	// ========================================
	Config      *config.Config
	DB          *database.PostgresDB
	Redis       *infraCache.RedisClient
	Cache       cache.Cache
	AsynqClient *asynq.Client
	JWTManager  *jwt.Manager

	// ========================================
	// PAYMENT PLUMBING
	// ========================================
	Methods  credentials.Source
	Tokens   *token.Source
	Registry *gateway.Registry
	Locker   lock.Locker

	// ========================================
	// REPOSITORY LAYER
	// ========================================
	OrderRepo   paymentRepo.OrderRepoInterface
	MethodRepo  paymentRepo.MethodRepoInterface
	WebhookRepo paymentRepo.WebhookRepoInterface

	// ========================================
	// SERVICE LAYER
	// ========================================
	PaymentService paymentService.PaymentService

	// ========================================
	// HANDLER LAYER
	// ========================================
	PaymentHandler      *paymentHandler.PaymentHandler
	CallbackRateLimiter *middleware.RateLimiter
}

// ========================================
// CONSTRUCTOR: BUILD CONTAINER
// ========================================

// NewContainer builds the dependency graph in layer order:
// config, infrastructure, repositories, services, handlers.
func NewContainer() (*Container, error) {
	log.Info().Msg("Initializing DI container")

	c := &Container{}

	// ========================================
	// STEP 1: LOAD CONFIGURATION
	// ========================================
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	c.Config = cfg
	log.Info().Str("environment", cfg.App.Environment).Msg("Config loaded")

	// ========================================
	// STEP 2: INITIALIZE DATABASE
	// ========================================
	db := database.NewPostgresDB(cfg.Database.DBConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database health check failed: %w", err)
	}
	c.DB = db

	// ========================================
	// STEP 3: INITIALIZE REDIS
	// ========================================
	// Redis backs order locks, so unlike a plain cache it is required.
	c.Redis = infraCache.NewRedisClient(cfg.Redis.Host, cfg.Redis.Password, cfg.Redis.DB)
	if err := c.Redis.Connect(ctx); err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.Cache = infraCache.NewRedisCache(c.Redis.Client, "payments:")

	c.AsynqClient = asynq.NewClientFromRedisClient(c.Redis.Client)
	c.JWTManager = jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer)

	// ========================================
	// STEP 4-6: REPOSITORIES, SERVICES, HANDLERS
	// ========================================
	c.initRepositories()
	c.initServices()
	c.initHandlers()

	log.Info().Strs("providers", c.Registry.Codes()).Msg("DI container initialized")
	return c, nil
}

// ========================================
// PRIVATE INITIALIZATION METHODS
// ========================================

func (c *Container) initRepositories() {
	sqlDB := c.DB.SQLDB()

	c.OrderRepo = paymentRepo.NewOrderRepository(sqlDB)
	c.MethodRepo = paymentRepo.NewMethodRepository(sqlDB)
	c.WebhookRepo = paymentRepo.NewWebhookRepository(sqlDB)
}

func (c *Container) initServices() {
	cfg := c.Config.Payment

	// Payment methods are read through the cache on every gateway call.
	c.Methods = credentials.NewCachedSource(c.MethodRepo, c.Cache, cfg.MethodCacheTTL)

	// OAuth tokens (PayPal, PhonePe) are shared by API and worker processes.
	c.Tokens = token.NewSource(token.NewRedisCache(c.Redis.Client))

	c.Registry = builtin.NewDefaultRegistry(gateway.Options{
		Methods:    c.Methods,
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Tokens:     c.Tokens,
		URLs:       gateway.CallbackURLs{BaseURL: cfg.BaseURL},
		Endpoints:  cfg.Endpoints,
	})

	c.Locker = lock.NewRedisLocker(c.Redis.Client, "lock:", lock.Options{
		TTL:  cfg.LockTTL,
		Wait: cfg.LockWait,
	})

	c.PaymentService = paymentService.NewPaymentService(
		c.Registry,
		c.OrderRepo,
		c.WebhookRepo,
		pkgdb.NewTxManager(c.DB.SQLDB()),
		c.Locker,
		paymentService.Config{
			ReconcileMinAge:    cfg.ReconcileMinAge,
			ReconcileMaxAge:    cfg.ReconcileMaxAge,
			ReconcileBatchSize: cfg.ReconcileBatchSize,
			ReconcileProviders: cfg.ReconcileProviders,
		},
	)
}

func (c *Container) initHandlers() {
	c.PaymentHandler = paymentHandler.NewPaymentHandler(c.PaymentService, c.Config.Payment.ResultURL)
	c.CallbackRateLimiter = middleware.NewRateLimiter(c.Config.RateLimit.CallbackRPS, c.Config.RateLimit.CallbackBurst)
}

// ========================================
// HELPER METHODS
// ========================================

// Cleanup releases connections on shutdown.
func (c *Container) Cleanup() {
	log.Info().Msg("Cleaning up container resources")

	// AsynqClient shares the Redis pool, so closing Redis releases it.
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis")
		}
	}

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}

	log.Info().Msg("Container cleanup completed")
}
