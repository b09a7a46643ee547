package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coldtrack-sync/internal/models"

	"go.uber.org/zap"
)

const liveKeyPrefix = "coldtrack:live:"

// LiveCache mirrors /status/{device}/live for dashboards
type LiveCache struct {
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

func NewLiveCache(kv KVStore, ttl time.Duration, logger *zap.Logger) *LiveCache {
	return &LiveCache{kv: kv, ttl: ttl, logger: logger}
}

// Put stores the snapshot under coldtrack:live:{device}
func (c *LiveCache) Put(ctx context.Context, snap models.LiveSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal live snapshot: %w", err)
	}
	if err := c.kv.Set(ctx, liveKeyPrefix+snap.DeviceID, string(data), c.ttl); err != nil {
		return fmt.Errorf("failed to cache live snapshot: %w", err)
	}

	c.logger.Debug("Cached live snapshot",
		zap.String("device_id", snap.DeviceID),
		zap.Float64("temp", snap.Temperature),
	)
	return nil
}

// Get returns nil, nil on a miss
func (c *LiveCache) Get(ctx context.Context, deviceID string) (*models.LiveSnapshot, error) {
	data, err := c.kv.Get(ctx, liveKeyPrefix+deviceID)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read live snapshot: %w", err)
	}

	var snap models.LiveSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal live snapshot: %w", err)
	}
	return &snap, nil
}
