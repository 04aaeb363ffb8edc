package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/Brownie44l1/digit-api/internal/logging"
	"github.com/Brownie44l1/digit-api/internal/model"
)

// PredictionCache stores predictions keyed by Key(imageBytes).
type PredictionCache interface {
	Get(ctx context.Context, key string) (*model.PredictionResponse, bool, error)
	Set(ctx context.Context, key string, prediction *model.PredictionResponse) error
}

// Key derives the content part of a cache key from the decoded image bytes.
func Key(imageBytes []byte) string {
	sum := sha1.Sum(imageBytes)
	return hex.EncodeToString(sum[:])
}

// Namespace condenses everything besides the image that decides a prediction (model
// digest, preprocessing settings) into a short key prefix. Changing any part moves the
// cache to a fresh keyspace.
func Namespace(parts ...string) string {
	h := sha1.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// redisClient is the subset of *redis.Client used here.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisCache is a PredictionCache backed by go-redis with retries on transient errors.
type RedisCache struct {
	client         redisClient
	prefix         string
	ttl            time.Duration
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewRedisCache stores entries under "prediction:<namespace>:<key>".
func NewRedisCache(client redisClient, ttl time.Duration, namespace string, logger *zap.Logger) *RedisCache {
	if namespace == "" {
		namespace = "default"
	}
	return &RedisCache{
		client:         client,
		prefix:         "prediction:" + namespace + ":",
		ttl:            ttl,
		logger:         logger.Named("prediction_cache"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Get returns (nil, false, nil) on a cache miss.
func (c *RedisCache) Get(ctx context.Context, key string) (*model.PredictionResponse, bool, error) {
	requestID := logging.RequestIDFromContext(ctx)

	var raw string
	err := c.withRetry(ctx, requestID, "cache.get", func() error {
		value, err := c.client.Get(ctx, c.prefix+key).Result()
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var prediction model.PredictionResponse
	if err := json.Unmarshal([]byte(raw), &prediction); err != nil {
		return nil, false, logging.NewOperationError("cache.decode", requestID, err)
	}
	return &prediction, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, prediction *model.PredictionResponse) error {
	requestID := logging.RequestIDFromContext(ctx)

	serialized, err := json.Marshal(prediction)
	if err != nil {
		return logging.NewOperationError("cache.encode", requestID, err)
	}
	return c.withRetry(ctx, requestID, "cache.set", func() error {
		return c.client.Set(ctx, c.prefix+key, string(serialized), c.ttl).Err()
	})
}

func (c *RedisCache) withRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	opLogger := logging.WithOperation(c.logger, operation, requestID)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.MaxInterval = c.maxBackoff
	policy.MaxElapsedTime = 0
	retries := uint64(0)
	if c.retryAttempts > 1 {
		retries = uint64(c.retryAttempts - 1)
	}

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := fn()
		switch {
		case err == nil:
			if attempt > 1 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		case errors.Is(err, redis.Nil):
			return backoff.Permanent(err)
		case !isTransientError(err):
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt))
			return backoff.Permanent(err)
		}
		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt))
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx))

	if errors.Is(err, redis.Nil) {
		return err
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}

// Nop is used when no Redis address is configured.
type Nop struct{}

func (Nop) Get(context.Context, string) (*model.PredictionResponse, bool, error) {
	return nil, false, nil
}

func (Nop) Set(context.Context, string, *model.PredictionResponse) error {
	return nil
}

var (
	_ PredictionCache = (*RedisCache)(nil)
	_ PredictionCache = Nop{}
	_ redisClient     = (*redis.Client)(nil)
)
