// Package bootstrap opens the runtime dependencies of the server.
package bootstrap

import (
	"context"
	"fmt"

	"quill/internal/cache"
	"quill/internal/config"
	"quill/internal/database"
	"quill/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedCategories creates the built-in categories when they are missing.
	SeedCategories bool
}

// InitRuntime connects to the database and Redis. Redis is optional: an
// unreachable server yields a nil client and the app runs uncached.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	if opts.SeedCategories {
		if _, err := seed.Categories(context.Background(), db); err != nil {
			return nil, nil, fmt.Errorf("failed to seed built-in categories: %w", err)
		}
	}

	return db, cache.NewClient(cfg.RedisURL), nil
}
