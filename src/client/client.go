package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"chart-hub/src/helpers"
	"chart-hub/src/logger"
	"chart-hub/src/models"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultPingInterval   = 30 * time.Second

	writeWait        = 5 * time.Second
	readWaitFactor   = 2
	handshakeTimeout = 10 * time.Second
)

var (
	ErrNotConnected = errors.New("not connected to hub")
	ErrClosed       = errors.New("client closed")
)

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

type Options struct {
	URL string

	// ReconnectDelay is the wait before the first retry. With
	// MaxReconnectDelay set above it, the wait doubles per failed attempt up
	// to that cap; otherwise it stays fixed.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration

	Header http.Header
	Clock  clockwork.Clock
}

func OptionsFromConfig(cfg *models.MConfig) Options {
	return Options{
		URL:               cfg.Client.URL,
		ReconnectDelay:    time.Duration(cfg.Client.ReconnectDelaySeconds) * time.Second,
		MaxReconnectDelay: time.Duration(cfg.Client.MaxReconnectDelaySeconds) * time.Second,
		PingInterval:      time.Duration(cfg.Client.PingIntervalSeconds) * time.Second,
	}
}

func (o *Options) applyDefaults() {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// Client keeps one connection to the hub alive and mirrors the shared chart
// data into a View. It always retries after a failure until Close.
type Client struct {
	Logger *logger.Logger

	opts   Options
	clock  clockwork.Clock
	dialer *websocket.Dialer

	mu        sync.Mutex
	view      View
	conn      *websocket.Conn
	gen       uint64
	attempts  int
	reconnect clockwork.Timer
	pingStop  chan struct{}
	visible   bool
	closed    bool
	listeners map[int]func(View)
	nextID    int

	writeMu sync.Mutex
}

// -----------------------------------------------------------------------------

func NewClient(opts Options, log *logger.Logger) *Client {
	opts.applyDefaults()

	return &Client{
		Logger: log,
		opts:   opts,
		clock:  opts.Clock,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		view:      View{Loading: true, State: StateDisconnected},
		visible:   true,
		listeners: make(map[int]func(View)),
	}
}

// -----------------------------------------------------------------------------

// View returns a copy of the consumer view. The records are copied too, so
// callers may modify them freely.
func (c *Client) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.clone()
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.State
}

// Subscribe registers fn to receive the view after every change. The
// returned func removes it.
func (c *Client) Subscribe(fn func(View)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// notify must be called without c.mu held.
func (c *Client) notify() {
	c.mu.Lock()
	view := c.view.clone()
	fns := make([]func(View), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(view)
	}
}

// -----------------------------------------------------------------------------
// Connection lifecycle
// -----------------------------------------------------------------------------

// Connect dials the hub. On success it asks for data and starts pinging; on
// failure it schedules a retry and returns the dial error.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.view.State == StateConnected || c.view.State == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.view.State = StateConnecting
	c.mu.Unlock()
	c.notify()

	c.Logger.Debug("Dialing %s", c.opts.URL)
	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		err = helpers.NewTransportError("dial "+c.opts.URL, err)
		c.Logger.Warning("Connection failed: %v", err)
		c.fail(0, err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.gen++
	gen := c.gen
	c.conn = conn
	c.attempts = 0
	c.pingStop = make(chan struct{})
	stop := c.pingStop
	// armed before Connected is visible, so the first ping is one interval out
	ticker := c.clock.NewTicker(c.opts.PingInterval)
	c.view.State = StateConnected
	c.mu.Unlock()
	c.notify()

	c.Logger.Info("Connected to %s", c.opts.URL)

	go c.readLoop(conn, gen)

	if err := c.write(conn, &models.MClientMessage{
		Type:    models.MsgRequestData,
		Payload: &models.MRequestPayload{Force: false},
	}); err != nil {
		ticker.Stop()
		c.fail(gen, err)
		return err
	}

	go c.pingLoop(conn, gen, ticker, stop)
	return nil
}

// -----------------------------------------------------------------------------

// fail moves to Reconnecting and schedules one retry. gen 0 means a failed
// dial; otherwise stale generations are ignored.
func (c *Client) fail(gen uint64, err error) {
	c.mu.Lock()
	if c.closed || (gen != 0 && gen != c.gen) {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.stopPingLocked()
	c.gen++
	c.view.State = StateReconnecting
	c.view.Error = err.Error()
	c.view.Loading = false
	delay := c.scheduleReconnectLocked()
	c.mu.Unlock()
	c.notify()

	c.Logger.Info("Reconnecting in %v", delay)
}

// scheduleReconnectLocked arms the single retry timer.
func (c *Client) scheduleReconnectLocked() time.Duration {
	delay := c.nextDelay()
	c.attempts++

	if c.reconnect != nil {
		c.reconnect.Stop()
	}
	c.reconnect = c.clock.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnect = nil
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		c.Logger.Debug("Attempting to reconnect")
		c.Connect(context.Background())
	})
	return delay
}

// nextDelay is fixed unless a cap above the base delay is configured.
func (c *Client) nextDelay() time.Duration {
	base := c.opts.ReconnectDelay
	if c.opts.MaxReconnectDelay <= base {
		return base
	}
	delay := base
	for i := 0; i < c.attempts && delay < c.opts.MaxReconnectDelay; i++ {
		delay *= 2
	}
	if delay > c.opts.MaxReconnectDelay {
		delay = c.opts.MaxReconnectDelay
	}
	return delay
}

func (c *Client) stopPingLocked() {
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
}

// -----------------------------------------------------------------------------

// Close stops pinging and reconnecting and closes the connection. Messages
// arriving afterwards are dropped. Safe to call twice.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.stopPingLocked()
	conn := c.conn
	c.conn = nil
	c.gen++
	c.view.State = StateDisconnected
	c.listeners = make(map[int]func(View))
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		return conn.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------
// Requests
// -----------------------------------------------------------------------------

// Refresh asks the hub for data. force skips the hub's cache.
func (c *Client) Refresh(force bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.view.State != StateConnected || c.conn == nil {
		c.mu.Unlock()
		c.Logger.Warning("Refresh requested while %s", c.State())
		return ErrNotConnected
	}
	conn, gen := c.conn, c.gen
	c.view.Loading = true
	c.view.Error = ""
	c.mu.Unlock()
	c.notify()

	c.Logger.Debug("Requesting data refresh (force: %v)", force)
	if err := c.write(conn, &models.MClientMessage{
		Type:    models.MsgRequestData,
		Payload: &models.MRequestPayload{Force: force},
	}); err != nil {
		c.fail(gen, err)
		return err
	}
	return nil
}

// SetVisible reports consumer visibility. Becoming visible while connected
// forces a refresh.
func (c *Client) SetVisible(visible bool) {
	c.mu.Lock()
	wasVisible := c.visible
	c.visible = visible
	connected := c.view.State == StateConnected
	c.mu.Unlock()

	if visible && !wasVisible && connected {
		c.Logger.Debug("Became visible, refreshing data")
		c.Refresh(true)
	}
}

// -----------------------------------------------------------------------------

func (c *Client) write(conn *websocket.Conn, msg *models.MClientMessage) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return helpers.NewProtocolError("encode "+msg.Type, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return helpers.NewTransportError("write "+msg.Type, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Loops
// -----------------------------------------------------------------------------

// readLoop gives up when nothing arrives for two ping intervals; a live hub
// answers every ping with a pong.
func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	readWait := readWaitFactor * c.opts.PingInterval
	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.fail(gen, helpers.NewTransportError("connection lost", err))
			return
		}
		c.handleMessage(gen, raw)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, gen uint64, ticker clockwork.Ticker, stop <-chan struct{}) {
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if err := c.write(conn, &models.MClientMessage{Type: models.MsgPing}); err != nil {
				c.fail(gen, err)
				return
			}
		case <-stop:
			return
		}
	}
}

// -----------------------------------------------------------------------------
// Inbound
// -----------------------------------------------------------------------------

func (c *Client) handleMessage(gen uint64, raw []byte) {
	var msg models.MServerMessage
	if err := sonic.Unmarshal(raw, &msg); err != nil {
		c.Logger.Warning("Ignoring malformed message: %v", err)
		return
	}

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}

	switch msg.Type {
	case models.MsgData:
		charts := msg.Data
		if charts == nil {
			charts = []models.MChartRecord{}
		}
		c.view.Charts = charts
		c.view.Source = msg.Source
		c.view.LastUpdated = c.clock.Now()
		if msg.Timestamp > 0 {
			c.view.LastUpdated = time.UnixMilli(msg.Timestamp)
		}
		c.view.Error = ""
		c.view.Loading = false
		c.Logger.Debug("Received %d charts from %s", len(charts), msg.Source)

	case models.MsgError:
		c.view.Error = msg.Error
		if c.view.Error == "" {
			c.view.Error = "unknown error"
		}
		c.view.Loading = false
		c.Logger.Error("Hub error: %s", c.view.Error)

	case models.MsgPong:
		c.view.Connections = msg.Connections
		c.Logger.Debug("Health check: %d connections, cache %s", msg.Connections, msg.CacheStatus)

	default:
		c.mu.Unlock()
		c.Logger.Warning("Ignoring unknown message type %q", msg.Type)
		return
	}
	c.mu.Unlock()
	c.notify()
}

// -----------------------------------------------------------------------------

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return fmt.Sprintf("state(%d)", int(s))
}
