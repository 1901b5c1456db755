package usecase

import (
	"context"

	domrepo "github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
)

// Message is either a text or an image with caption.
type Message struct {
	Text    string
	Image   []byte
	Caption string
}

// Broadcaster enqueues one delivery per resolved destination.
type Broadcaster struct {
	registry  *DestinationRegistry
	deliverer domrepo.Deliverer
	logger    *logger.Logger
}

func NewBroadcaster(registry *DestinationRegistry, deliverer domrepo.Deliverer, lgr *logger.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, deliverer: deliverer, logger: lgr}
}

// Broadcast returns the number of enqueued deliveries and false only when
// the strategy resolves to no destinations. It does not wait for delivery.
func (b *Broadcaster) Broadcast(ctx context.Context, strategy string, msg Message) (int, bool) {
	dests := b.registry.Resolve(ctx, strategy)
	if len(dests) == 0 {
		return 0, false
	}

	enqueued := 0
	for _, d := range dests {
		var err error
		if len(msg.Image) > 0 {
			err = b.deliverer.EnqueueImage(d, msg.Image, msg.Caption)
		} else {
			err = b.deliverer.EnqueueText(d, msg.Text)
		}
		if err != nil {
			b.logger.Warn("enqueue failed",
				logger.String("strategy", strategy),
				logger.String("destination", d),
				logger.Error(err))
			continue
		}
		enqueued++
	}
	return enqueued, true
}
