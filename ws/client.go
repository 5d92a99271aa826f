package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"daohub_backend/internal/logger"

	"github.com/gorilla/websocket"
)

// Membership answers DAO membership questions for websocket sessions.
type Membership interface {
	DAOIDsForUser(ctx context.Context, userID string) ([]string, error)
	IsMember(ctx context.Context, daoID, userID string) (bool, error)
}

type IncomingWSMessage struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type ClientOptions struct {
	SendBuffer     int
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func (o ClientOptions) pongWait() time.Duration {
	return o.PingPeriod * 10 / 9
}

const writeWait = 10 * time.Second

// Client is one gorilla websocket connection. It implements Sender.
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Ctx    context.Context

	send      chan Envelope
	done      chan struct{}
	closeOnce sync.Once

	registry   *Registry
	membership Membership
	opts       ClientOptions
}

func newClient(ctx context.Context, id, userID string, conn *websocket.Conn, registry *Registry, membership Membership, opts ClientOptions) *Client {
	return &Client{
		ID:         id,
		UserID:     userID,
		Conn:       conn,
		Ctx:        ctx,
		send:       make(chan Envelope, opts.SendBuffer),
		done:       make(chan struct{}),
		registry:   registry,
		membership: membership,
		opts:       opts,
	}
}

// Send queues env without blocking.
func (c *Client) Send(env Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.Conn.Close()
	})
	return err
}

func (c *Client) reply(event string, data any) {
	c.Send(Envelope{Event: event, Data: data, SentAt: time.Now()})
}

func (c *Client) readPump() {
	defer func() {
		c.registry.OnDisconnect(c.ID)
		_ = c.Close()
		logger.Debug("ws client disconnected", "connection_id", c.ID, "user_id", c.UserID)
	}()

	c.Conn.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.opts.pongWait()))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.opts.pongWait()))
	})

	for {
		_, msgBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("ws read error", "connection_id", c.ID, "error", err)
			}
			return
		}

		var msg IncomingWSMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			c.reply("error", map[string]string{"message": "invalid message"})
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteJSON(msg); err != nil {
				logger.Warn("ws write error", "connection_id", c.ID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type daoPayload struct {
	DAOID string `json:"daoId"`
}

func (c *Client) handleMessage(msg IncomingWSMessage) {
	switch msg.Action {
	case "join_dao":
		var p daoPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.DAOID == "" {
			c.reply("error", map[string]string{"message": "daoId is required"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Ctx, 5*time.Second)
		ok, err := c.membership.IsMember(ctx, p.DAOID, c.UserID)
		cancel()
		if err != nil || !ok {
			c.reply("error", map[string]string{"message": "not a member of this DAO", "daoId": p.DAOID})
			return
		}
		if err := c.registry.JoinRoom(c.ID, DAORoom(p.DAOID)); err != nil {
			c.reply("error", map[string]string{"message": err.Error()})
			return
		}
		c.reply("joined", p)

	case "leave_dao":
		var p daoPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.DAOID == "" {
			c.reply("error", map[string]string{"message": "daoId is required"})
			return
		}
		if err := c.registry.LeaveRoom(c.ID, DAORoom(p.DAOID)); err != nil {
			c.reply("error", map[string]string{"message": err.Error()})
			return
		}
		c.reply("left", p)

	case "ping":
		c.reply("pong", nil)

	default:
		c.reply("error", map[string]string{"message": "unknown action", "action": msg.Action})
	}
}
