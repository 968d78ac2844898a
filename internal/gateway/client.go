package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/pagelens/pkg/protocol"
)

// Client represents a single WebSocket connection.
type Client struct {
	id            string
	conn          *websocket.Conn
	server        *Server
	remoteKey     string // rate limit key, the peer address without port
	authenticated atomic.Bool
	name          string // set during connect
	send          chan []byte
	seq           atomic.Int64

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, server *Server, remoteKey string) *Client {
	return &Client{
		id:        uuid.NewString(),
		conn:      conn,
		server:    server,
		remoteKey: remoteKey,
		send:      make(chan []byte, 256),
	}
}

// Run starts the write pump and blocks in the read pump.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
}

// maxWSMessageSize caps inbound frames. Snapshots flow outbound only.
const maxWSMessageSize = 512 * 1024

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

func (c *Client) readPump(ctx context.Context) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxWSMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("websocket read error", "client", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		c.handleFrame(ctx, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, data []byte) {
	frameType, err := protocol.ParseFrameType(data)
	if err != nil {
		c.sendError("", protocol.ErrInvalidRequest, "invalid frame: "+err.Error())
		return
	}

	switch frameType {
	case protocol.FrameTypeRequest:
		var req protocol.RequestFrame
		if err := json.Unmarshal(data, &req); err != nil {
			c.sendError("", protocol.ErrInvalidRequest, "malformed request: "+err.Error())
			return
		}
		if !c.authenticated.Load() && req.Method != protocol.MethodConnect {
			c.sendError(req.ID, protocol.ErrUnauthorized, "first request must be 'connect'")
			return
		}
		c.server.router.Handle(ctx, c, &req)

	default:
		c.sendError("", protocol.ErrInvalidRequest, "unexpected frame type: "+frameType)
	}
}

// SendResponse queues a response frame for this client.
func (c *Client) SendResponse(resp *protocol.ResponseFrame) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.server.logger.Error("marshal response failed", "error", err)
		return
	}
	c.enqueue(data, "response")
}

// SendEvent queues an event frame, stamping the connection sequence.
func (c *Client) SendEvent(event protocol.EventFrame) {
	event.Seq = c.seq.Add(1)
	data, err := json.Marshal(event)
	if err != nil {
		c.server.logger.Error("marshal event failed", "error", err)
		return
	}
	c.enqueue(data, "event")
}

func (c *Client) enqueue(data []byte, kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.server.logger.Warn("client send buffer full, dropping "+kind, "client", c.id)
	}
}

func (c *Client) sendError(id, code, message string) {
	c.SendResponse(protocol.NewErrorResponse(id, code, message))
}

// ID returns the client's unique identifier.
func (c *Client) ID() string { return c.id }

// Name returns the client name sent with connect.
func (c *Client) Name() string { return c.name }

// Close stops the write pump. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
