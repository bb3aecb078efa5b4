package config

import (
	"storefront-backend/internal/infrastructure/database"
)

// DBConfig converts the database section for the infrastructure layer.
func (c DatabaseConfig) DBConfig() *database.DBConfig {
	return &database.DBConfig{
		Host:              c.Host,
		Port:              c.Port,
		Username:          c.User,
		Password:          c.Password,
		DBName:            c.Database,
		SSLMode:           c.SSLMode,
		MaxConns:          int32(c.MaxConns),
		MinConns:          int32(c.MinConns),
		MaxConnLifetime:   c.MaxConnLifetime,
		MaxConnIdleTime:   c.MaxConnIdleTime,
		HealthCheckPeriod: c.HealthCheckPeriod,
		MaxRetries:        c.MaxRetries,
		RetryDelay:        c.RetryDelay,
		ConnectTimeout:    c.ConnectTimeout,
	}
}
