package cache

import (
	"context"
	"time"
)

// Cache is the key/value contract shared by the Redis and in-memory
// implementations. Values are JSON encoded.
type Cache interface {
	// Get unmarshals the cached value into dest.
	// found is false on a miss and dest is left untouched.
	Get(ctx context.Context, key string, dest interface{}) (found bool, err error)

	// Set stores value with a TTL (0 means no expiry).
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes keys.
	Delete(ctx context.Context, keys ...string) error

	// Ping checks the connection.
	Ping(ctx context.Context) error
}
