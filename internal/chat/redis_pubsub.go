package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const publishTTL = 5 * time.Second

// redisPayload is the message published to Redis for cross-instance fan-out.
type redisPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

// RedisPubSub publishes and subscribes chat channel events.
type RedisPubSub struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge. Chat channel X maps to Redis channel "<prefix>:X".
func NewRedisPubSub(client *redis.Client, prefix string, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, prefix: prefix + ":", logger: logger}
}

// PublishChannelEvent publishes an event to the chat channel's Redis channel.
func (r *RedisPubSub) PublishChannelEvent(ctx context.Context, channelID, event string, payload []byte) error {
	body, err := json.Marshal(redisPayload{Event: event, Data: payload, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTTL)
	defer cancel()
	return r.client.Publish(ctx, r.prefix+channelID, body).Err()
}

// SubscribeChannel calls handler for each event published to channelID until cancel is called.
func (r *RedisPubSub) SubscribeChannel(channelID string, handler func(event string, payload []byte)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, r.prefix+channelID)
	if _, err = pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p redisPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					r.logger.Warn("invalid chat payload", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				handler(p.Event, p.Data)
			}
		}
	}()
	return cancelCtx, nil
}
