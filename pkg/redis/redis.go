package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type IRedis interface {
	SetValue(ctx context.Context, key string, value []byte, expiration time.Duration) error
	GetValue(ctx context.Context, key string) ([]byte, error)
	Refresh(ctx context.Context, key string, expiration time.Duration) error
	DeleteKeys(ctx context.Context, keys ...string) error
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

type redisClient struct {
	client *redis.Client
}

// New connects to the Redis instance named by REDIS_ADDRESS. It returns nil
// when no address is configured so callers can fall back to local state.
func New() IRedis {
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		logrus.Info("REDIS_ADDRESS not set, session ledger disabled")
		return nil
	}

	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return NewWithOptions(&redis.Options{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	})
}

func NewWithOptions(opts *redis.Options) IRedis {
	logrus.Info(fmt.Sprintf("Connecting to Redis at %s...", opts.Addr))

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		logrus.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		logrus.Info("Successfully connected to Redis")
	}

	return &redisClient{client: client}
}

func (r *redisClient) SetValue(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	logrus.Debug(fmt.Sprintf("Setting key %s with expiration %v", key, expiration))
	if err := r.client.Set(ctx, key, value, expiration).Err(); err != nil {
		logrus.Error(fmt.Sprintf("Error setting key %s: %v", key, err))
		return err
	}
	return nil
}

func (r *redisClient) GetValue(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		logrus.Debug(fmt.Sprintf("Key %s not found", key))
		return nil, err
	} else if err != nil {
		logrus.Error(fmt.Sprintf("Error getting key %s: %v", key, err))
		return nil, err
	}
	return val, nil
}

func (r *redisClient) Refresh(ctx context.Context, key string, expiration time.Duration) error {
	if expiration <= 0 {
		return r.client.Persist(ctx, key).Err()
	}
	return r.client.Expire(ctx, key, expiration).Err()
}

func (r *redisClient) DeleteKeys(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	result, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		logrus.Error(fmt.Sprintf("Error deleting keys %v: %v", keys, err))
		return err
	}

	logrus.Debug(fmt.Sprintf("Deleted %d of %d keys", result, len(keys)))
	return nil
}

func (r *redisClient) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logrus.Error(fmt.Sprintf("Error scanning keys for %s: %v", pattern, err))
		return nil, err
	}
	return keys, nil
}

func (r *redisClient) Close() error {
	return r.client.Close()
}
