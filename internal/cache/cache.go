// Package cache layers a bounded in-process map over Redis for serving
// reconciled forecast values without recomputing them per request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"sfcli/internal/config"
)

// ErrMiss is returned when a key is in neither cache layer
var ErrMiss = errors.New("cache miss")

// Prediction is a cached reconciled forecast value for one series, date
// and reconciliation method
type Prediction struct {
	SeriesID string    `json:"series_id"`
	Date     string    `json:"date"`
	Method   string    `json:"method"`
	Value    float64   `json:"value"`
	CachedAt time.Time `json:"cached_at"`
}

// PredictionCache wraps a Redis client with a local layer. When Redis is
// unreachable the cache degrades to local-only operation.
type PredictionCache struct {
	client   *redis.Client
	logger   *slog.Logger
	mu       sync.Mutex
	local    map[string]*localEntry
	maxLocal int
	ttl      time.Duration
}

type localEntry struct {
	prediction *Prediction
	expiresAt  time.Time
}

// New builds a prediction cache from configuration. A bad URL is a hard
// error; a failed ping is logged and the cache runs local-only.
func New(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (*PredictionCache, error) {
	c := newLocal(cfg.MaxLocal, cfg.TTL, logger)

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.WarnContext(ctx, "redis unreachable, serving from local cache only",
			"error", err)
		client.Close()
		return c, nil
	}

	c.client = client
	logger.InfoContext(ctx, "prediction cache connected",
		"max_local", c.maxLocal,
		"ttl", c.ttl.String())
	return c, nil
}

func newLocal(maxLocal int, ttl time.Duration, logger *slog.Logger) *PredictionCache {
	if maxLocal <= 0 {
		maxLocal = 10000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictionCache{
		logger:   logger,
		local:    make(map[string]*localEntry),
		maxLocal: maxLocal,
		ttl:      ttl,
	}
}

// Key builds the deterministic cache key for one forecast value
func Key(seriesID, date, method string) string {
	return fmt.Sprintf("forecast:v1:%s:%s:%s", seriesID, date, method)
}

// Get retrieves a prediction, checking the local layer before Redis
func (c *PredictionCache) Get(ctx context.Context, key string) (*Prediction, error) {
	c.mu.Lock()
	if entry, ok := c.local[key]; ok {
		if time.Now().Before(entry.expiresAt) {
			p := entry.prediction
			c.mu.Unlock()
			return p, nil
		}
		delete(c.local, key)
	}
	c.mu.Unlock()

	if c.client == nil {
		return nil, ErrMiss
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var p Prediction
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal cached prediction: %w", err)
	}

	c.setLocal(key, &p)
	return &p, nil
}

// Set stores a prediction in both layers
func (c *PredictionCache) Set(ctx context.Context, key string, p *Prediction) error {
	p.CachedAt = time.Now()
	c.setLocal(key, p)

	if c.client == nil {
		return nil
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prediction: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// setLocal stores an entry, evicting a batch of the oldest entries when
// the map reaches capacity
func (c *PredictionCache) setLocal(key string, p *Prediction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.local) >= c.maxLocal {
		batch := c.maxLocal / 10
		if batch < 1 {
			batch = 1
		}
		cutoff := time.Now().Add(-c.ttl / 2)
		evicted := 0
		for k, v := range c.local {
			if evicted >= batch {
				break
			}
			if v.prediction.CachedAt.Before(cutoff) {
				delete(c.local, k)
				evicted++
			}
		}
		// All entries still fresh, evict arbitrarily to stay bounded
		for k := range c.local {
			if evicted >= batch {
				break
			}
			delete(c.local, k)
			evicted++
		}
	}

	c.local[key] = &localEntry{
		prediction: p,
		expiresAt:  time.Now().Add(c.ttl),
	}
}

// Stats reports cache occupancy for the health endpoint
func (c *PredictionCache) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{
		"local_entries": len(c.local),
		"max_local":     c.maxLocal,
		"ttl_seconds":   c.ttl.Seconds(),
		"redis":         c.client != nil,
	}
}

// Close releases the Redis connection if one was established
func (c *PredictionCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
