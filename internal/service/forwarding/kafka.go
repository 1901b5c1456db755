package forwarding

import (
	"context"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	"github.com/mack4pf/telegram-automated-signal/pkg/cache"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaForwarder streams every correlated alert as a SignalEvent. Events are
// keyed by strategy and ticker so a consumer sees each pair in order.
type KafkaForwarder struct {
	publisher Publisher
	topic     string
}

func NewKafkaForwarder(publisher Publisher, topic string) *KafkaForwarder {
	return &KafkaForwarder{publisher: publisher, topic: topic}
}

func (f *KafkaForwarder) Name() string { return "kafka" }

func (f *KafkaForwarder) Forward(ctx context.Context, _ *models.Alert, corr *models.Correlation) error {
	ev := models.NewSignalEvent(corr, 0)
	key := cache.GenerateKey(corr.Strategy, corr.Ticker)
	return f.publisher.Publish(ctx, f.topic, []byte(key), ev)
}
