package live

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/radiology-ops/pkg/logging"
)

// ChangedChannel is the pub/sub channel every API instance listens on.
const ChangedChannel = "radiology:appointments:changed"

type changeMessage struct {
	Toast *Toast `json:"toast,omitempty"`
}

// RedisFanout relays change signals between instances over Redis pub/sub.
type RedisFanout struct {
	client  *redis.Client
	channel string
	logger  *logging.Logger
}

// NewRedisFanout creates a fanout on ChangedChannel.
func NewRedisFanout(client *redis.Client, logger *logging.Logger) *RedisFanout {
	if client == nil {
		panic("live: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisFanout{client: client, channel: ChangedChannel, logger: logger}
}

// Publish implements Broadcaster.
func (f *RedisFanout) Publish(ctx context.Context, toast *Toast) error {
	data, err := json.Marshal(changeMessage{Toast: toast})
	if err != nil {
		return fmt.Errorf("live: marshal change: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("live: publish change: %w", err)
	}
	return nil
}

// Run refreshes hub on every change message until ctx is cancelled. ready,
// when non-nil, is closed once the subscription is confirmed.
func (f *RedisFanout) Run(ctx context.Context, hub *Hub, ready chan<- struct{}) error {
	sub := f.client.Subscribe(ctx, f.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("live: subscribe %s: %w", f.channel, err)
	}
	if ready != nil {
		close(ready)
	}
	f.logger.Info("live: listening for appointment changes", "channel", f.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var change changeMessage
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				f.logger.Warn("live: ignoring malformed change message", "error", err)
				hub.Refresh(nil)
				continue
			}
			hub.Refresh(change.Toast)
		}
	}
}
