package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"buswatch/internal/tracking"
)

const (
	// sendChannelSize controls the max number
	// of messages that can be queued for a client.
	sendChannelSize = 16
	pingPeriod      = (60 * 9 * time.Second) / 10
)

type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// controlPayload is the body of join/leave messages from the viewer.
type controlPayload struct {
	ChannelID string `json:"channelId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type Client struct {
	ID      string
	Conn    *websocket.Conn
	Manager *Manager
	send    chan Message
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewClient(id string, conn *websocket.Conn, manager *Manager) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:      id,
		Conn:    conn,
		Manager: manager,
		send:    make(chan Message, sendChannelSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *Client) Start() {
	go c.readPump()
	go c.writePump()
	c.Manager.register <- c
}

func (c *Client) Close() {
	if err := c.Conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		c.Manager.logger.Debug("failed to close connection", "error", err)
	}
	c.cancel()
}

// Send queues a message for the write pump. Messages arriving after the
// client's context is cancelled are discarded, so fan-out goroutines that
// still hold this handle across a disconnect are harmless.
func (c *Client) Send(msg Message) {
	if c.ctx.Err() != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.Manager.forceDisconnect(c)
	}
}

// SendPosition implements tracking.Subscriber.
func (c *Client) SendPosition(u tracking.PositionUpdate) {
	c.sendTyped("position", u)
}

// SendETAs implements tracking.Subscriber.
func (c *Client) SendETAs(u tracking.ETAUpdate) {
	c.sendTyped("etas", u)
}

func (c *Client) sendTyped(msgType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.Manager.logger.Warn("failed to marshal payload", "clientID", c.ID, "type", msgType, "error", err)
		return
	}
	c.Send(Message{Type: msgType, Data: data})
}

func (c *Client) readPump() {
	defer func() {
		c.Manager.unregister <- c
		c.Close()
	}()

	for {
		var msg Message
		if err := wsjson.Read(c.ctx, c.Conn, &msg); err != nil {
			c.Manager.logger.Debug("failed to read message", "clientID", c.ID, "error", err)
			break
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			if err := wsjson.Write(c.ctx, c.Conn, msg); err != nil {
				c.Manager.logger.Warn("failed to write message", "clientID", c.ID, "error", err)
				return
			}
			c.Manager.logger.Debug("message sent", "clientID", c.ID, "type", msg.Type)
		case <-ticker.C:
			if err := c.Conn.Ping(c.ctx); err != nil {
				c.Manager.logger.Debug("failed to ping client", "clientID", c.ID, "error", err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "join":
		var payload controlPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.ChannelID == "" {
			c.sendError("join requires a channelId")
			return
		}
		if err := c.Manager.subscriptions.Subscribe(c.ctx, payload.ChannelID, c); err != nil {
			c.Manager.logger.Warn("join failed", "clientID", c.ID, "channelID", payload.ChannelID, "error", err)
			c.sendError("unknown channel")
			return
		}
		c.Manager.logger.Debug("client joined channel", "clientID", c.ID, "channelID", payload.ChannelID)
	case "leave":
		var payload controlPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.ChannelID == "" {
			c.sendError("leave requires a channelId")
			return
		}
		c.Manager.subscriptions.Unsubscribe(payload.ChannelID, c)
		c.Manager.logger.Debug("client left channel", "clientID", c.ID, "channelID", payload.ChannelID)
	default:
		c.Manager.logger.Debug("received unknown type message", "clientID", c.ID, "type", msg.Type)
	}
}

func (c *Client) sendError(message string) {
	c.sendTyped("error", errorPayload{Message: message})
}
