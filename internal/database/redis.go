package database

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ruralpay/ledger/internal/config"
)

// InitRedis connects to Redis. It returns nil when Redis is unreachable; the
// server then runs without token revocation.
func InitRedis(cfg config.RedisConfig) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[REDIS] connection failed, continuing without Redis: %v", err)
		rdb.Close()
		return nil
	}

	log.Println("[REDIS] connection established")
	return rdb
}
