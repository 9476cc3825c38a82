package redis

import (
	"context"
	"log"
	"time"

	"permission_service/internal/config"

	"github.com/redis/go-redis/v9"
)

// Connect builds the Redis client. A failed ping is logged, not fatal: the
// service degrades to uncached principal resolution.
func Connect(cfg config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Error connect to Redis: %s", err)
	} else {
		log.Println("Successfully connected to Redis")
	}
	return client
}
