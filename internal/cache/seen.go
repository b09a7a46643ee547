package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"coldtrack-sync/internal/models"

	"go.uber.org/zap"
)

const seenKeyPrefix = "coldtrack:seen:"

// SeenCache remembers the last fingerprint written per device/event so the
// listener path can skip repeated notifications. Best effort: every failure
// reads as "not seen".
type SeenCache struct {
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

func NewSeenCache(kv KVStore, ttl time.Duration, logger *zap.Logger) *SeenCache {
	return &SeenCache{kv: kv, ttl: ttl, logger: logger}
}

// Fingerprint the fields a write depends on
func Fingerprint(ev models.RawEvent) string {
	var end int64
	if ev.EndTS != nil {
		end = *ev.EndTS
	}
	return fmt.Sprintf("%t|%d|%d|%s|%s", ev.Ended, end, ev.DurationMS,
		strconv.FormatFloat(ev.MaxTemp, 'g', -1, 64), ev.Type)
}

// Seen reports whether ev was already written with the same fingerprint
func (c *SeenCache) Seen(ctx context.Context, ev models.RawEvent) bool {
	val, err := c.kv.Get(ctx, seenKey(ev))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Debug("Seen cache read failed", zap.Error(err))
		}
		return false
	}
	return val == Fingerprint(ev)
}

// Mark records ev as written
func (c *SeenCache) Mark(ctx context.Context, ev models.RawEvent) {
	if err := c.kv.Set(ctx, seenKey(ev), Fingerprint(ev), c.ttl); err != nil {
		c.logger.Debug("Seen cache write failed", zap.Error(err))
	}
}

func seenKey(ev models.RawEvent) string {
	return seenKeyPrefix + ev.DeviceID + ":" + ev.ExternalID
}
