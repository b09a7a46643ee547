package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// PublishToStream XADDs fields to stream. Scalars are written as text,
// anything else as JSON. maxLen > 0 trims the stream approximately.
func PublishToStream(ctx context.Context, client *Client, stream string, maxLen int64, fields map[string]any) (string, error) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		s, err := fieldString(v)
		if err != nil {
			return "", fmt.Errorf("stream field %q: %w", k, err)
		}
		values[k] = s
	}

	args := &redis.XAddArgs{Stream: stream, Values: values}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	return client.XAdd(ctx, args).Result()
}

// PublishJSONToStream writes data as a single JSON "data" field next to a
// unix "timestamp"
func PublishJSONToStream(ctx context.Context, client *Client, stream string, maxLen int64, data any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return PublishToStream(ctx, client, stream, maxLen, map[string]any{
		"data":      raw,
		"timestamp": time.Now().Unix(),
	})
}

func fieldString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
