package chat

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxContentLength = 4000

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type messageIn struct {
	Content string `json:"content"`
}

type reactionIn struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// Client is a single WebSocket connection in a channel.
type Client struct {
	ID        string
	ChannelID string
	UserID    string
	Role      string
	hub       *Hub
	conn      *websocket.Conn
	send      chan WSMessage
	logger    *zap.Logger
}

// NewClient creates a client without a connection. ServeWs attaches one.
func NewClient(hub *Hub, channelID, userID, role string) *Client {
	return &Client{
		ID:        uuid.New().String(),
		ChannelID: channelID,
		UserID:    userID,
		Role:      role,
		hub:       hub,
		send:      make(chan WSMessage, clientBuffer),
		logger:    hub.logger,
	}
}

// Outbox returns the events queued for this client.
func (c *Client) Outbox() <-chan WSMessage {
	return c.send
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
func ServeWs(hub *Hub, logger *zap.Logger, jwtValidate func(token string) (userID, role string, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		channelID := strings.TrimSpace(c.Query("channel_id"))
		token := c.Query("token")
		if channelID == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "channel_id and token required"})
			return
		}
		userID, role, err := jwtValidate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := NewClient(hub, channelID, userID, role)
		client.conn = conn
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

// handle applies one inbound websocket message.
func (c *Client) handle(msg WSMessage) {
	switch msg.Event {
	case "message":
		var in messageIn
		if err := json.Unmarshal(msg.Data, &in); err != nil {
			return
		}
		content := strings.TrimSpace(in.Content)
		if content == "" || len(content) > maxContentLength {
			return
		}
		c.hub.postUserMessage(c, content)
	case "reaction":
		var in reactionIn
		if err := json.Unmarshal(msg.Data, &in); err != nil || in.MessageID == "" || in.Emoji == "" {
			return
		}
		c.hub.postReaction(c, in.MessageID, in.Emoji)
	default:
		// ignore
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.handle(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
