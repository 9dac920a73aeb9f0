package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/constants"
	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/pkg/errors"
)

const (
	progressKeyPrefix  = "outreach:progress:"
	runStatusKeyPrefix = "outreach:run-status:"
)

func progressKey(channel string) string {
	return progressKeyPrefix + channel
}

func runStatusKey(runID string) string {
	return runStatusKeyPrefix + runID
}

// AppendProgress appends ev to the channel's replay log and refreshes its TTL.
func (c *CacheService) AppendProgress(ctx context.Context, channel string, ev domain.ProgressEvent) error {
	key := progressKey(channel)
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.NewCacheError("marshal failed", "rpush", key, err)
	}

	pipe := c.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, constants.CacheTTL.ProgressLog)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("Progress append failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("rpush failed", "rpush", key, err)
	}
	return nil
}

// ReadProgress returns the channel's events in append order.
func (c *CacheService) ReadProgress(ctx context.Context, channel string) ([]domain.ProgressEvent, error) {
	key := progressKey(channel)
	values, err := c.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, errors.NewCacheError("lrange failed", "lrange", key, err)
	}

	events := make([]domain.ProgressEvent, 0, len(values))
	for _, v := range values {
		var ev domain.ProgressEvent
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			c.logger.Warn("Skipping malformed progress event", zap.String("key", key), zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (c *CacheService) ResetProgress(ctx context.Context, channel string) error {
	return c.Del(ctx, progressKey(channel))
}

// GetRunStatus implements the filter status snapshot cache.
func (c *CacheService) GetRunStatus(ctx context.Context, runID string) (*domain.RunStatusView, bool, error) {
	var view domain.RunStatusView
	found, err := c.Get(ctx, runStatusKey(runID), &view)
	if err != nil || !found {
		return nil, false, err
	}
	return &view, true, nil
}

func (c *CacheService) SetRunStatus(ctx context.Context, view *domain.RunStatusView, ttl time.Duration) error {
	return c.Set(ctx, runStatusKey(view.ID), view, ttl)
}

func (c *CacheService) DeleteRunStatus(ctx context.Context, runID string) error {
	return c.Del(ctx, runStatusKey(runID))
}
