package db

import (
	"github.com/redis/go-redis/v9"

	"tele-sticker-search/config"
)

func NewRedisConnection(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
