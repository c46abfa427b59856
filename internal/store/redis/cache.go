// Package redis holds the short-lived state shared between API and scheduler
// processes: the per-user sync lock, cached efficiency scores and the sync
// event channel. Every call goes through a CircuitBreaker so a down Redis
// fails fast instead of stalling requests.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"taxsync-pro/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis cache.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Cache implements SyncThrottle, ScoreCache and EventPublisher.
type Cache struct {
	client *goredis.Client
	cb     *CircuitBreaker
}

var (
	_ model.SyncThrottle   = (*Cache)(nil)
	_ model.ScoreCache     = (*Cache)(nil)
	_ model.EventPublisher = (*Cache)(nil)
)

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// Breaker returns the circuit breaker guarding the client.
func (c *Cache) Breaker() *CircuitBreaker { return c.cb }

// New creates a Cache and pings the server.
func New(cfg Config) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, NewCircuitBreaker(5, 10*time.Second)), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cb *CircuitBreaker) *Cache {
	return &Cache{client: client, cb: cb}
}

func syncLockKey(userID string) string { return "sync:lock:" + userID }
func scoreKey(userID string) string    { return "score:" + userID }

// SyncChannel is the pub/sub channel carrying a user's sync events.
func SyncChannel(userID string) string { return "pub:sync:" + userID }

const syncChannelPattern = "pub:sync:*"

// TryAcquire sets the user's sync lock for window unless it is already held.
func (c *Cache) TryAcquire(ctx context.Context, userID string, window time.Duration) (bool, error) {
	var ok bool
	err := c.cb.Execute(func() error {
		var err error
		ok, err = c.client.SetNX(ctx, syncLockKey(userID), time.Now().Unix(), window).Result()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("redis SETNX %s: %w", syncLockKey(userID), err)
	}
	return ok, nil
}

// Release clears the user's sync lock.
func (c *Cache) Release(ctx context.Context, userID string) error {
	return c.cb.Execute(func() error {
		return c.client.Del(ctx, syncLockKey(userID)).Err()
	})
}

// GetScore returns nil, nil on a cache miss.
func (c *Cache) GetScore(ctx context.Context, userID string) (*model.EfficiencyScore, error) {
	var raw []byte
	err := c.cb.Execute(func() error {
		var err error
		raw, err = c.client.Get(ctx, scoreKey(userID)).Bytes()
		return err
	})
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", scoreKey(userID), err)
	}

	var s model.EfficiencyScore
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode cached score: %w", err)
	}
	return &s, nil
}

// SetScore caches s for ttl.
func (c *Cache) SetScore(ctx context.Context, userID string, s model.EfficiencyScore, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.cb.Execute(func() error {
		return c.client.Set(ctx, scoreKey(userID), data, ttl).Err()
	})
}

// InvalidateScore drops the cached score after the portfolio changes.
func (c *Cache) InvalidateScore(ctx context.Context, userID string) error {
	return c.cb.Execute(func() error {
		return c.client.Del(ctx, scoreKey(userID)).Err()
	})
}

// Publish sends ev on the user's sync channel. Failures are logged only.
func (c *Cache) Publish(ctx context.Context, ev model.SyncEvent) {
	if err := c.publish(ctx, ev); err != nil {
		log.Printf("[redis] publish %s for %s: %v", ev.Type, ev.UserID, err)
	}
}

func (c *Cache) publish(ctx context.Context, ev model.SyncEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.cb.Execute(func() error {
		return c.client.Publish(ctx, SyncChannel(ev.UserID), data).Err()
	})
}

// Subscribe delivers sync events for every user to fn until ctx is done.
func (c *Cache) Subscribe(ctx context.Context, fn func(model.SyncEvent)) error {
	sub := c.client.PSubscribe(ctx, syncChannelPattern)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis PSUBSCRIBE %s: %w", syncChannelPattern, err)
	}
	log.Printf("[redis] subscribed to %s", syncChannelPattern)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev model.SyncEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("[redis] bad sync event on %s: %v", msg.Channel, err)
				continue
			}
			fn(ev)
		}
	}
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
