package server

import (
	"context"
	"sync"
	"time"

	"chart-hub/src/helpers"
	"chart-hub/src/logger"
	"chart-hub/src/models"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // client frames are small commands

	defaultSendBuffer = 16
)

// -----------------------------------------------------------------------------
// wsConnection
// -----------------------------------------------------------------------------

// wsConnection is one WebSocket consumer. Sends are queued without blocking
// and written by writePump; readPump feeds inbound frames to the hub.
type wsConnection struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *logger.Logger
}

func newWSConnection(hub *Hub, conn *websocket.Conn, bufferSize int) *wsConnection {
	if bufferSize <= 0 {
		bufferSize = defaultSendBuffer
	}
	id := uuid.NewString()
	return &wsConnection{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, bufferSize),
		done:   make(chan struct{}),
		logger: hub.Logger.With("connection", id),
	}
}

// -----------------------------------------------------------------------------

func (c *wsConnection) ID() string {
	return c.id
}

// -----------------------------------------------------------------------------

// Send never blocks. A closed connection or a full queue is an error.
func (c *wsConnection) Send(msg *models.MServerMessage) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return helpers.NewProtocolError("encode "+msg.Type+" message", err)
	}

	select {
	case <-c.done:
		return helpers.NewTransportError("connection closed", nil)
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return helpers.NewTransportError("send queue full", nil)
	}
}

// -----------------------------------------------------------------------------

func (c *wsConnection) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from the client
// Acts as a watchdog for the connection
// -----------------------------------------------------------------------------

func (c *wsConnection) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.hub.Leave(c)
		c.Close()
		c.conn.Close()
		c.logger.Debug("Client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Info("WebSocket error: %v", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.HandleMessage(ctx, c, message)
	}
}

// -----------------------------------------------------------------------------
// writePump - sends queued messages to the client
// -----------------------------------------------------------------------------

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Info("Write error: %v", err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
