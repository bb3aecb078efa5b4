package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"storefront-backend/pkg/logger"
)

func main() {
	// ========================================
	// LOAD ENVIRONMENT VARIABLES
	// ========================================
	// .env is for local development; deployments use real env vars.
	envErr := godotenv.Load()

	env := getEnv("APP_ENV", "development")
	logger.Init(env)
	if envErr != nil {
		log.Debug().Msg("No .env file found, using system environment variables")
	}

	// ========================================
	// SET GIN MODE
	// ========================================
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info().Str("environment", env).Msg("Starting payment API")

	Serve()
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
