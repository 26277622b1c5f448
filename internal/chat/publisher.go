package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Publisher sends bot output straight to Redis. It is the Messenger for
// processes that hold no websocket clients, such as the worker.
type Publisher struct {
	pub       RedisPublisher
	ids       *snowflake.Node
	botUserID string
	now       func() time.Time
}

// NewPublisher creates a Redis-backed messenger.
func NewPublisher(pub RedisPublisher, ids *snowflake.Node, botUserID string) *Publisher {
	return &Publisher{pub: pub, ids: ids, botUserID: botUserID, now: time.Now}
}

// Send publishes a bot message and returns its id.
func (p *Publisher) Send(ctx context.Context, channelID string, msg Message) (string, error) {
	id := p.ids.Generate().String()
	data, err := json.Marshal(MessagePayload{
		ID:        id,
		ChannelID: channelID,
		AuthorID:  p.botUserID,
		Bot:       true,
		Content:   msg.Content,
		Embed:     msg.Embed,
		ReplyTo:   msg.ReplyTo,
		At:        p.now().UTC(),
	})
	if err != nil {
		return "", err
	}
	if err := p.pub.PublishChannelEvent(ctx, channelID, EventBotMessage, data); err != nil {
		return "", err
	}
	return id, nil
}

// React publishes a bot reaction.
func (p *Publisher) React(ctx context.Context, channelID, messageID, emoji string) error {
	data, err := json.Marshal(ReactionPayload{ChannelID: channelID, MessageID: messageID, UserID: p.botUserID, Emoji: emoji})
	if err != nil {
		return err
	}
	return p.pub.PublishChannelEvent(ctx, channelID, EventBotReaction, data)
}
