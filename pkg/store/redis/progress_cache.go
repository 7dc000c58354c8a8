package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/doorman/doorman/pkg/model"
)

var ErrProgressNotFound = errors.New("session progress not found")

const (
	defaultProgressTTL = 24 * time.Hour
	defaultLiveWindow  = 10 * time.Minute
)

// ProgressCache keeps the latest progress snapshot of each session and an
// index of running sessions scored by their last update. Sessions silent for
// longer than the live window drop out of the index, so a killed runner does
// not stay listed.
type ProgressCache struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	liveWindow time.Duration
}

type ProgressCacheOption func(*ProgressCache)

func WithLiveWindow(window time.Duration) ProgressCacheOption {
	return func(c *ProgressCache) {
		if window > 0 {
			c.liveWindow = window
		}
	}
}

func NewProgressCache(client redis.UniversalClient, prefix string, opts ...ProgressCacheOption) *ProgressCache {
	if prefix == "" {
		prefix = "doorman"
	}
	c := &ProgressCache{
		client:     client,
		prefix:     prefix,
		ttl:        defaultProgressTTL,
		liveWindow: defaultLiveWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ProgressCache) progressKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:progress", c.prefix, sessionID)
}

func (c *ProgressCache) liveKey() string {
	return c.prefix + ":sessions:live"
}

func (c *ProgressCache) WriteProgress(ctx context.Context, progress *model.LiveProgress) error {
	payload, err := json.Marshal(progress)
	if err != nil {
		return err
	}

	updated := progress.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err = c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.progressKey(progress.SessionID), payload, c.ttl)
		if progress.Status == model.OutcomeRunning {
			pipe.ZAdd(ctx, c.liveKey(), redis.Z{Score: float64(updated.Unix()), Member: progress.SessionID})
		} else {
			pipe.ZRem(ctx, c.liveKey(), progress.SessionID)
		}
		return nil
	})
	return err
}

func (c *ProgressCache) ReadProgress(ctx context.Context, sessionID string) (*model.LiveProgress, error) {
	payload, err := c.client.Get(ctx, c.progressKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrProgressNotFound
		}
		return nil, err
	}

	var progress model.LiveProgress
	if err := json.Unmarshal(payload, &progress); err != nil {
		return nil, fmt.Errorf("decode session progress: %w", err)
	}
	return &progress, nil
}

// LiveSessions lists running sessions updated within the live window, oldest
// first, and prunes the rest from the index.
func (c *ProgressCache) LiveSessions(ctx context.Context) ([]string, error) {
	cutoff := strconv.FormatInt(time.Now().Add(-c.liveWindow).Unix(), 10)

	if err := c.client.ZRemRangeByScore(ctx, c.liveKey(), "-inf", "("+cutoff).Err(); err != nil {
		return nil, err
	}
	return c.client.ZRangeByScore(ctx, c.liveKey(), &redis.ZRangeBy{Min: cutoff, Max: "+inf"}).Result()
}
