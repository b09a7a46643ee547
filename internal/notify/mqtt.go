package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"coldtrack-sync/internal/models"

	"go.uber.org/zap"
)

// Publisher is the part of the MQTT client the notifier needs
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTNotifier publishes event notices to {prefix}/{device}
type MQTTNotifier struct {
	pub    Publisher
	prefix string
	qos    byte
	logger *zap.Logger
}

// NewMQTTNotifier creates a notifier; prefix e.g. "coldtrack/events"
func NewMQTTNotifier(pub Publisher, prefix string, qos byte, logger *zap.Logger) *MQTTNotifier {
	return &MQTTNotifier{
		pub:    pub,
		prefix: prefix,
		qos:    qos,
		logger: logger,
	}
}

// EventChanged publishes the notice. Failures are logged, never returned:
// notifications must not fail a reconciliation.
func (n *MQTTNotifier) EventChanged(_ context.Context, notice models.EventNotice) {
	payload, err := json.Marshal(notice)
	if err != nil {
		n.logger.Error("Failed to marshal event notice", zap.Error(err))
		return
	}

	topic := fmt.Sprintf("%s/%s", n.prefix, notice.DeviceID)
	if err := n.pub.Publish(topic, n.qos, false, payload); err != nil {
		n.logger.Warn("Failed to publish event notice",
			zap.String("topic", topic),
			zap.String("kind", notice.Kind),
			zap.String("external_id", notice.ExternalID),
			zap.Error(err),
		)
		return
	}

	n.logger.Debug("Published event notice",
		zap.String("topic", topic),
		zap.String("kind", notice.Kind),
	)
}

// Nop discards notices
type Nop struct{}

func (Nop) EventChanged(context.Context, models.EventNotice) {}
