package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// RedisStore backs the Store contract with Redis for multi-process
// deployments. INCRBY keeps an existing TTL, which is exactly the increment
// semantics rules rely on. All calls go through a circuit breaker so an
// outage fails fast into the rules' fail-open path instead of stalling every
// in-flight request.
type RedisStore struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisStore connects and pings the Redis backend.
func NewRedisStore(cfg RedisConfig, logger *logrus.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithFields(logrus.Fields{
			"host":  cfg.Host,
			"port":  cfg.Port,
			"error": err.Error(),
		}).Error("failed to connect to redis")
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host": cfg.Host,
		"port": cfg.Port,
	}).Info("redis connected successfully")

	return NewRedisStoreWithClient(client, logger), nil
}

// NewRedisStoreWithClient wraps an existing client, used by tests and by
// callers managing their own connection options.
func NewRedisStoreWithClient(client *redis.Client, logger *logrus.Logger) *RedisStore {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "redis-store",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("redis store breaker state changed")
		},
	})
	return &RedisStore{client: client, breaker: breaker, logger: logger}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		value, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return value, nil
	})
	if err != nil {
		return "", false, s.wrap(err)
	}
	if res == nil {
		return "", false, nil
	}
	value, ok := res.(string)
	if !ok {
		return "", false, fmt.Errorf("unexpected redis value type %T", res)
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.client.Set(ctx, key, value, ttl).Err()
	})
	return s.wrap(err)
}

func (s *RedisStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.client.IncrBy(ctx, key, delta).Result()
	})
	if err != nil {
		return 0, s.wrap(err)
	}
	value, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected redis value type %T", res)
	}
	return value, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.client.Del(ctx, key).Err()
	})
	return s.wrap(err)
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.client.Expire(ctx, key, ttl).Err()
	})
	return s.wrap(err)
}

func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	match := prefixOf(pattern) + "*"
	res, err := s.breaker.Execute(func() (interface{}, error) {
		var keys []string
		var cursor uint64
		for {
			batch, nextCursor, err := s.client.Scan(ctx, cursor, match, 100).Result()
			if err != nil {
				return nil, fmt.Errorf("error scanning keys: %w", err)
			}
			keys = append(keys, batch...)
			cursor = nextCursor
			if cursor == 0 {
				break
			}
		}
		return keys, nil
	})
	if err != nil {
		return nil, s.wrap(err)
	}
	keys, ok := res.([]string)
	if !ok {
		return nil, fmt.Errorf("unexpected redis value type %T", res)
	}
	return keys, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
