// Package chat is the messaging platform the bot talks through: websocket
// clients grouped by channel, fanned out across instances with Redis pub/sub.
package chat

import (
	"context"
	"errors"
	"time"
)

// ErrOutboxFull is returned when outbound events cannot be queued without blocking.
var ErrOutboxFull = errors.New("chat outbox full")

// Emoji used by the bot.
const (
	EmojiConfirm     = "✔️"
	EmojiConfirmBare = "✔"
	EmojiReject      = "🚫"
	EmojiWorking     = "🔍"
	EmojiDone        = "✅"
)

// Embed colors.
const (
	ColorSuccess = 0x2ECC71
	ColorError   = 0xE74C3C
	ColorInfo    = 0x3498DB
	ColorWarning = 0xF1C40F
	ColorPending = 0x9B59B6
)

// EventKind is the kind of inbound event.
type EventKind string

const (
	KindMessage  EventKind = "message"
	KindReaction EventKind = "reaction"
)

// Event is something a user did in a channel.
type Event struct {
	Kind      EventKind
	UserID    string
	ChannelID string
	MessageID string // the user's message, or the message reacted to
	Content   string
	Emoji     string
	At        time.Time
}

// Field is one name/value row of an embed.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Embed is a titled, colored card.
type Embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color"`
	Fields      []Field `json:"fields,omitempty"`
	Footer      string  `json:"footer,omitempty"`
}

// AddField appends a field and returns the embed.
func (e *Embed) AddField(name, value string, inline bool) *Embed {
	e.Fields = append(e.Fields, Field{Name: name, Value: value, Inline: inline})
	return e
}

// Message is an outbound bot message.
type Message struct {
	Content string `json:"content,omitempty"`
	Embed   *Embed `json:"embed,omitempty"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// Messenger sends bot output to channels.
type Messenger interface {
	Send(ctx context.Context, channelID string, msg Message) (messageID string, err error)
	React(ctx context.Context, channelID, messageID, emoji string) error
}

// Outbound event names and payloads as seen by websocket clients.
const (
	EventUserMessage = "user_message"
	EventBotMessage  = "bot_message"
	EventBotReaction = "bot_reaction"
)

// MessagePayload is the data of user_message and bot_message events.
type MessagePayload struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	AuthorID  string    `json:"author_id"`
	Bot       bool      `json:"bot,omitempty"`
	Content   string    `json:"content,omitempty"`
	Embed     *Embed    `json:"embed,omitempty"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	At        time.Time `json:"at"`
}

// ReactionPayload is the data of bot_reaction events.
type ReactionPayload struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
}
