package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	clientBuffer = 256
	eventBuffer  = 1024
	outboxBuffer = 1024
)

// RedisPublisher publishes channel events for cross-instance fan-out.
type RedisPublisher interface {
	PublishChannelEvent(ctx context.Context, channelID, event string, payload []byte) error
}

// RedisSubscriber subscribes to channel events published by any instance.
type RedisSubscriber interface {
	SubscribeChannel(channelID string, handler func(event string, payload []byte)) (cancel func(), err error)
}

type outbound struct {
	channelID string
	event     string
	payload   []byte
}

// Hub maintains channel_id -> set of connections, feeds user events to the
// bot and delivers bot output. With Redis configured, outbound events are
// published only and reach local clients through the subscription.
type Hub struct {
	channels  map[string]map[string]*Client
	subs      map[string]func()
	mu        sync.RWMutex
	logger    *zap.Logger
	redis     RedisPublisher
	redisSub  RedisSubscriber
	ids       *snowflake.Node
	botUserID string
	events    chan Event
	outbox    chan outbound
	now       func() time.Time
}

// NewHub creates a hub. redisPub and redisSub may be nil for a single instance.
func NewHub(logger *zap.Logger, ids *snowflake.Node, botUserID string, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		channels:  make(map[string]map[string]*Client),
		subs:      make(map[string]func()),
		logger:    logger,
		redis:     redisPub,
		redisSub:  redisSub,
		ids:       ids,
		botUserID: botUserID,
		events:    make(chan Event, eventBuffer),
		outbox:    make(chan outbound, outboxBuffer),
		now:       time.Now,
	}
}

// Events returns the stream of inbound user events.
func (h *Hub) Events() <-chan Event {
	return h.events
}

// Run delivers queued outbound events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-h.outbox:
			h.deliver(ctx, out)
		}
	}
}

func (h *Hub) deliver(ctx context.Context, out outbound) {
	if h.redis != nil {
		if err := h.redis.PublishChannelEvent(ctx, out.channelID, out.event, out.payload); err != nil {
			h.logger.Warn("redis publish failed, delivering locally", zap.String("channel_id", out.channelID), zap.Error(err))
			h.BroadcastToChannel(out.channelID, out.event, out.payload)
		}
		return
	}
	h.BroadcastToChannel(out.channelID, out.event, out.payload)
}

func (h *Hub) enqueue(channelID, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	select {
	case h.outbox <- outbound{channelID: channelID, event: event, payload: data}:
		return nil
	default:
		h.logger.Warn("chat outbox full, dropping event", zap.String("channel_id", channelID), zap.String("event", event))
		return ErrOutboxFull
	}
}

// Send queues a bot message and returns its id without waiting for delivery.
func (h *Hub) Send(_ context.Context, channelID string, msg Message) (string, error) {
	id := h.ids.Generate().String()
	err := h.enqueue(channelID, EventBotMessage, MessagePayload{
		ID:        id,
		ChannelID: channelID,
		AuthorID:  h.botUserID,
		Bot:       true,
		Content:   msg.Content,
		Embed:     msg.Embed,
		ReplyTo:   msg.ReplyTo,
		At:        h.now().UTC(),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// React queues a bot reaction on messageID.
func (h *Hub) React(_ context.Context, channelID, messageID, emoji string) error {
	return h.enqueue(channelID, EventBotReaction, ReactionPayload{
		ChannelID: channelID,
		MessageID: messageID,
		UserID:    h.botUserID,
		Emoji:     emoji,
	})
}

// Register adds a client to its channel. Starts the Redis subscription for the channel if first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[c.ChannelID] == nil {
		h.channels[c.ChannelID] = make(map[string]*Client)
		if h.redisSub != nil {
			channelID := c.ChannelID
			cancel, err := h.redisSub.SubscribeChannel(channelID, func(event string, payload []byte) {
				h.BroadcastToChannel(channelID, event, payload)
			})
			if err != nil {
				h.logger.Warn("redis subscribe failed", zap.String("channel_id", channelID), zap.Error(err))
			} else {
				h.subs[channelID] = cancel
			}
		}
	}
	h.channels[c.ChannelID][c.ID] = c
	h.logger.Debug("client registered", zap.String("channel_id", c.ChannelID), zap.String("user_id", c.UserID))
}

// Unregister removes a client. Cancels the Redis subscription when the channel empties.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.channels[c.ChannelID]
	if !ok {
		return
	}
	if _, ok := room[c.ID]; !ok {
		return
	}
	delete(room, c.ID)
	close(c.send)
	if len(room) == 0 {
		delete(h.channels, c.ChannelID)
		if cancel := h.subs[c.ChannelID]; cancel != nil {
			cancel()
			delete(h.subs, c.ChannelID)
		}
	}
}

// BroadcastToChannel sends an event to every local client in the channel. Slow clients are skipped.
func (h *Hub) BroadcastToChannel(channelID, event string, payload []byte) {
	msg := WSMessage{Event: event, Data: json.RawMessage(payload)}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.channels[channelID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("client send buffer full", zap.String("client_id", c.ID))
		}
	}
}

// ClientCount returns the number of local clients in a channel.
func (h *Hub) ClientCount(channelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channelID])
}

// postUserMessage assigns an id to a user's message, echoes it to the
// channel and hands it to the bot.
func (h *Hub) postUserMessage(c *Client, content string) {
	now := h.now().UTC()
	id := h.ids.Generate().String()
	_ = h.enqueue(c.ChannelID, EventUserMessage, MessagePayload{
		ID:        id,
		ChannelID: c.ChannelID,
		AuthorID:  c.UserID,
		Content:   content,
		At:        now,
	})
	h.dispatch(Event{
		Kind:      KindMessage,
		UserID:    c.UserID,
		ChannelID: c.ChannelID,
		MessageID: id,
		Content:   content,
		At:        now,
	})
}

func (h *Hub) postReaction(c *Client, messageID, emoji string) {
	h.dispatch(Event{
		Kind:      KindReaction,
		UserID:    c.UserID,
		ChannelID: c.ChannelID,
		MessageID: messageID,
		Emoji:     emoji,
		At:        h.now().UTC(),
	})
}

func (h *Hub) dispatch(ev Event) {
	select {
	case h.events <- ev:
	default:
		h.logger.Warn("event queue full, dropping", zap.String("user_id", ev.UserID), zap.String("kind", string(ev.Kind)))
	}
}
