package notify

import (
	"context"

	commonredis "coldtrack-sync/common/redis"

	"go.uber.org/zap"
)

// RunPublisher appends sync cycle and backfill run reports to a Redis stream
type RunPublisher struct {
	client *commonredis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

func NewRunPublisher(client *commonredis.Client, stream string, maxLen int64, logger *zap.Logger) *RunPublisher {
	return &RunPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

// PublishRun writes {kind, data, timestamp}; errors are logged only
func (p *RunPublisher) PublishRun(ctx context.Context, kind string, report any) {
	id, err := commonredis.PublishJSONToStream(ctx, p.client, p.stream, p.maxLen, map[string]any{
		"kind":   kind,
		"report": report,
	})
	if err != nil {
		p.logger.Warn("Failed to publish run report",
			zap.String("stream", p.stream),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("Published run report", zap.String("stream", p.stream), zap.String("id", id))
}

// NopRuns discards run reports
type NopRuns struct{}

func (NopRuns) PublishRun(context.Context, string, any) {}
